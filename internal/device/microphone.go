// Package device binds the capture and playback graphs to real audio hardware.
package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/ent0n29/iris/internal/audio"
	"github.com/ent0n29/iris/internal/capture"
)

// Microphone opens the default input device through miniaudio.
// A zero SampleRate uses the device's native rate.
type Microphone struct {
	SampleRate int
}

func NewMicrophone(sampleRate int) *Microphone {
	return &Microphone{SampleRate: sampleRate}
}

// Open starts a mono 16-bit capture stream and reports the negotiated rate.
func (m *Microphone) Open(frameSize int, onFrame capture.FrameFunc) (capture.Device, int, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	if m.SampleRate > 0 {
		cfg.SampleRate = uint32(m.SampleRate)
	}
	if frameSize > 0 {
		cfg.PeriodSizeInFrames = uint32(frameSize)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) < 2 {
				return
			}
			onFrame(audio.PCM16ToFloat(input))
		},
	}
	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, 0, fmt.Errorf("init microphone: %w", err)
	}
	rate := int(dev.SampleRate())
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, 0, fmt.Errorf("start microphone: %w", err)
	}
	return &micDevice{ctx: mctx, dev: dev}, rate, nil
}

type micDevice struct {
	once sync.Once
	ctx  *malgo.AllocatedContext
	dev  *malgo.Device
}

func (d *micDevice) Close() error {
	var err error
	d.once.Do(func() {
		err = d.dev.Stop()
		d.dev.Uninit()
		if uerr := d.ctx.Uninit(); err == nil {
			err = uerr
		}
		d.ctx.Free()
	})
	return err
}
