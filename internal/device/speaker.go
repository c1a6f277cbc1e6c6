package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ent0n29/iris/internal/playback"
)

// speakerBufferSize is the oto device buffer duration.
const speakerBufferSize = 100 * time.Millisecond

// Speaker plays the session mixer through oto. oto allows one context per
// process, so the first OpenOutput fixes the sample rate.
type Speaker struct {
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

func NewSpeaker() *Speaker { return &Speaker{} }

func (s *Speaker) context(rate int) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		if s.rate != rate {
			return nil, fmt.Errorf("speaker already running at %d Hz, requested %d Hz", s.rate, rate)
		}
		return s.ctx, nil
	}
	ctx, ready, err := oto.NewContext(contextOptions(rate))
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	s.ctx, s.rate = ctx, rate
	return ctx, nil
}

func contextOptions(rate int) *oto.NewContextOptions {
	return &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   speakerBufferSize,
	}
}

// OpenOutput starts a player pulling from a fresh mixer. The mixer clock is the
// device clock: it only advances as oto consumes samples.
func (s *Speaker) OpenOutput(rate int, tap *playback.Analyser) (playback.Device, error) {
	ctx, err := s.context(rate)
	if err != nil {
		return nil, err
	}
	mixer := playback.NewMixer(rate, tap)
	player := ctx.NewPlayer(mixer)
	player.Play()
	return &speakerDevice{mixer: mixer, player: player}, nil
}

type speakerDevice struct {
	once   sync.Once
	mixer  *playback.Mixer
	player *oto.Player
}

func (d *speakerDevice) Output() playback.Output { return d.mixer }

func (d *speakerDevice) Close() error {
	var err error
	d.once.Do(func() {
		d.player.Pause()
		err = d.player.Close()
	})
	return err
}

// Silent renders the mixer against the wall clock without touching hardware.
// It backs headless runs and hosts with playback disabled.
type Silent struct {
	Quantum time.Duration
}

func (s Silent) OpenOutput(rate int, tap *playback.Analyser) (playback.Device, error) {
	quantum := s.Quantum
	if quantum <= 0 {
		quantum = 20 * time.Millisecond
	}
	d := &silentDevice{
		mixer: playback.NewMixer(rate, tap),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
	frames := int(int64(rate) * int64(quantum) / int64(time.Second))
	go d.run(quantum, frames)
	return d, nil
}

type silentDevice struct {
	once  sync.Once
	mixer *playback.Mixer
	quit  chan struct{}
	done  chan struct{}
}

func (d *silentDevice) run(quantum time.Duration, frames int) {
	defer close(d.done)
	buf := make([]float32, frames)
	ticker := time.NewTicker(quantum)
	defer ticker.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
			d.mixer.Render(buf)
		}
	}
}

func (d *silentDevice) Output() playback.Output { return d.mixer }

func (d *silentDevice) Close() error {
	d.once.Do(func() {
		close(d.quit)
		<-d.done
	})
	return nil
}
