// Package capture turns microphone frames into encoded realtime audio chunks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ent0n29/iris/internal/audio"
	"github.com/ent0n29/iris/internal/logging"
)

var ErrAlreadyStarted = errors.New("capture already started")

// MuteState is the process-wide microphone mute flag. Reads never block.
type MuteState struct {
	muted atomic.Bool
}

func (m *MuteState) Set(muted bool) { m.muted.Store(muted) }

func (m *MuteState) Muted() bool { return m.muted.Load() }

// FrameFunc receives one device frame of mono float samples.
type FrameFunc func(samples []float32)

// Device is an opened input device.
type Device interface {
	Close() error
}

// Source opens the platform input device at its native rate.
type Source interface {
	Open(frameSize int, onFrame FrameFunc) (Device, int, error)
}

// Sink accepts encoded chunks. It is the live connection in production.
type Sink interface {
	IsOpen() bool
	SendAudio(chunk audio.EncodedChunk) error
}

// Stats counts frames seen by the capture callback.
type Stats struct {
	Seen    uint64
	Sent    uint64
	Dropped uint64
}

// Pipeline downsamples, encodes and forwards microphone frames.
type Pipeline struct {
	source    Source
	sink      Sink
	mute      *MuteState
	frameSize int
	log       zerolog.Logger

	mu         sync.Mutex
	device     Device
	nativeRate int

	seen    atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewPipeline(source Source, sink Sink, mute *MuteState, frameSize int) *Pipeline {
	if mute == nil {
		mute = &MuteState{}
	}
	if frameSize <= 0 {
		frameSize = 4096
	}
	return &Pipeline{
		source:    source,
		sink:      sink,
		mute:      mute,
		frameSize: frameSize,
		log:       logging.L("capture"),
	}
}

// Start opens the input device. The callback runs on the device thread.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		return ErrAlreadyStarted
	}
	dev, rate, err := p.source.Open(p.frameSize, p.onFrame)
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}
	if rate <= 0 {
		_ = dev.Close()
		return fmt.Errorf("open input device: invalid native rate %d", rate)
	}
	p.device = dev
	p.nativeRate = rate
	p.log.Info().Int("native_rate", rate).Int("frame_size", p.frameSize).Msg("capture started")
	return nil
}

// Stop releases the input device. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	dev := p.device
	p.device = nil
	p.mu.Unlock()
	if dev == nil {
		return
	}
	if err := dev.Close(); err != nil {
		p.log.Warn().Err(err).Msg("close input device")
	}
}

func (p *Pipeline) Stats() Stats {
	return Stats{Seen: p.seen.Load(), Sent: p.sent.Load(), Dropped: p.dropped.Load()}
}

func (p *Pipeline) onFrame(samples []float32) {
	p.seen.Add(1)

	p.mu.Lock()
	rate := p.nativeRate
	p.mu.Unlock()
	if rate <= 0 {
		p.dropped.Add(1)
		return
	}

	chunk := EncodeFrame(samples, rate)
	if p.mute.Muted() || !p.sink.IsOpen() {
		p.dropped.Add(1)
		return
	}
	if err := p.sink.SendAudio(chunk); err != nil {
		p.dropped.Add(1)
		p.log.Debug().Err(err).Msg("dropped capture frame")
		return
	}
	p.sent.Add(1)
}

// EncodeFrame converts one native-rate frame into a 16 kHz PCM16 chunk.
func EncodeFrame(samples []float32, nativeRate int) audio.EncodedChunk {
	down := audio.Downsample(samples, nativeRate, audio.CaptureRate)
	return audio.EncodeChunk(audio.FloatToPCM16(down), audio.CaptureRate)
}
