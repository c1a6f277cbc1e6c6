package playback

import (
	"math"
	"sync"
	"time"

	"github.com/ent0n29/iris/internal/audio"
)

// Mixer is a software output graph. Its clock advances as frames are rendered,
// so scheduled start times are sample accurate relative to what the speaker heard.
type Mixer struct {
	rate int
	tap  *Analyser

	mu      sync.Mutex
	frame   int64
	voices  map[*mixVoice]struct{}
	scratch []float32
}

type mixVoice struct {
	m       *Mixer
	samples []float32
	start   int64
	onEnded func()
	stopped bool
}

func NewMixer(rate int, tap *Analyser) *Mixer {
	if rate <= 0 {
		rate = audio.PlaybackRate
	}
	return &Mixer{rate: rate, tap: tap, voices: make(map[*mixVoice]struct{})}
}

func (m *Mixer) Rate() int { return m.rate }

func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameToDuration(m.frame)
}

func (m *Mixer) Start(samples []float32, rate int, at time.Duration, onEnded func()) Voice {
	if rate != m.rate && rate > 0 {
		samples = resampleLinear(samples, rate, m.rate)
	}
	v := &mixVoice{
		m:       m,
		samples: samples,
		start:   int64(math.Round(at.Seconds() * float64(m.rate))),
		onEnded: onEnded,
	}
	m.mu.Lock()
	m.voices[v] = struct{}{}
	m.mu.Unlock()
	return v
}

// Stop silences the voice immediately. The end callback is not invoked.
func (v *mixVoice) Stop() {
	v.m.mu.Lock()
	v.stopped = true
	delete(v.m.voices, v)
	v.m.mu.Unlock()
}

// Render mixes the next len(dst) frames into dst and advances the clock.
func (m *Mixer) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	var ended []func()

	m.mu.Lock()
	from := m.frame
	to := from + int64(len(dst))
	for v := range m.voices {
		end := v.start + int64(len(v.samples))
		lo := max(v.start, from)
		hi := min(end, to)
		for f := lo; f < hi; f++ {
			dst[f-from] += v.samples[f-v.start]
		}
		if end <= to {
			delete(m.voices, v)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	m.frame = to
	m.mu.Unlock()

	for i, s := range dst {
		if s > 1 {
			dst[i] = 1
		} else if s < -1 {
			dst[i] = -1
		}
	}
	if m.tap != nil {
		m.tap.Write(dst)
	}
	for _, fn := range ended {
		fn()
	}
}

// Read renders PCM16 little-endian mono frames for the speaker stream.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 2
	if frames == 0 {
		return 0, nil
	}
	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	buf := m.scratch[:frames]
	m.Render(buf)
	pcm := audio.FloatToPCM16(buf)
	copy(p, pcm)
	return frames * 2, nil
}

func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) frameToDuration(frame int64) time.Duration {
	return time.Duration(frame) * time.Second / time.Duration(m.rate)
}

func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if len(in) == 0 || inRate == outRate {
		return in
	}
	ratio := float64(inRate) / float64(outRate)
	outLen := int(math.Round(float64(len(in)) / ratio))
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
