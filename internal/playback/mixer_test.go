package playback

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestMixerRendersVoiceAtScheduledFrame(t *testing.T) {
	m := NewMixer(1000, nil)
	ended := 0
	m.Start([]float32{0.5, 0.5, 0.5}, 1000, 2*time.Millisecond, func() { ended++ })

	dst := make([]float32, 4)
	m.Render(dst)
	want := []float32{0, 0, 0.5, 0.5}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, dst[i], want[i])
		}
	}
	if ended != 0 {
		t.Fatalf("ended = %d before voice finished", ended)
	}

	m.Render(dst)
	if dst[0] != 0.5 || dst[1] != 0 {
		t.Fatalf("second render = %v", dst)
	}
	if ended != 1 {
		t.Fatalf("ended = %d, want 1", ended)
	}
	if m.Now() != 8*time.Millisecond {
		t.Fatalf("Now() = %s, want 8ms", m.Now())
	}
}

func TestMixerStopSilencesWithoutEndCallback(t *testing.T) {
	m := NewMixer(1000, nil)
	ended := false
	v := m.Start([]float32{1, 1, 1, 1}, 1000, 0, func() { ended = true })
	v.Stop()

	dst := make([]float32, 4)
	m.Render(dst)
	for _, s := range dst {
		if s != 0 {
			t.Fatalf("render after Stop = %v, want silence", dst)
		}
	}
	if ended {
		t.Fatalf("stopped voice invoked end callback")
	}
}

func TestMixerReadProducesClampedPCM16(t *testing.T) {
	m := NewMixer(1000, nil)
	m.Start([]float32{0.8, -0.9}, 1000, 0, nil)
	m.Start([]float32{0.8, -0.9}, 1000, 0, nil)

	p := make([]byte, 4)
	n, err := m.Read(p)
	if err != nil || n != 4 {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if got := int16(binary.LittleEndian.Uint16(p[0:])); got != math.MaxInt16 {
		t.Fatalf("frame 0 = %d, want %d", got, math.MaxInt16)
	}
	if got := int16(binary.LittleEndian.Uint16(p[2:])); got != math.MinInt16 {
		t.Fatalf("frame 1 = %d, want %d", got, math.MinInt16)
	}
}

func TestSchedulerOverMixerIsGapless(t *testing.T) {
	m := NewMixer(1000, nil)
	s := NewScheduler(m, 1000, 0)
	a, _ := s.Schedule([]float32{0.1, 0.1})
	b, _ := s.Schedule([]float32{0.2, 0.2})
	if b.Start != a.End() {
		t.Fatalf("b.Start = %s, want %s", b.Start, a.End())
	}

	dst := make([]float32, 4)
	m.Render(dst)
	want := []float32{0.1, 0.1, 0.2, 0.2}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-6 {
			t.Fatalf("frame %d = %v, want %v", i, dst[i], want[i])
		}
	}
	if s.Active() != 0 {
		t.Fatalf("Active() = %d after both voices ended", s.Active())
	}
}

func TestAnalyserLevelAndSpectrum(t *testing.T) {
	a := NewAnalyser()
	if a.Level() != 0 {
		t.Fatalf("Level() = %v on silence", a.Level())
	}

	loud := make([]float32, FFTSize)
	for i := range loud {
		loud[i] = float32(0.8 * math.Sin(2*math.Pi*16*float64(i)/FFTSize))
	}
	a.Write(loud)
	if lvl := a.Level(); lvl < 0.5 || lvl > 0.6 {
		t.Fatalf("Level() = %v, want about 0.566", lvl)
	}

	// A quiet tone keeps the main lobe below the 255 ceiling, so the centre bin stands out.
	quiet := NewAnalyser()
	samples := make([]float32, FFTSize)
	for i := range samples {
		samples[i] = float32(0.01 * math.Sin(2*math.Pi*16*float64(i)/FFTSize))
	}
	quiet.Write(samples)

	bins := quiet.ByteFrequencyData()
	if len(bins) != FFTSize/2 {
		t.Fatalf("bins = %d, want %d", len(bins), FFTSize/2)
	}
	peak := 0
	for k := range bins {
		if bins[k] > bins[peak] {
			peak = k
		}
	}
	if peak != 16 {
		t.Fatalf("peak bin = %d (%v), want 16", peak, bins[14:19])
	}
	if bins[16] == 255 {
		t.Fatalf("bin 16 clamped at 255")
	}
}

func TestAnalyserSpectrumSmoothsOncePerInterval(t *testing.T) {
	a := NewAnalyser()
	now := time.Unix(0, 0)
	a.now = func() time.Time { return now }

	tone := make([]float32, FFTSize)
	for i := range tone {
		tone[i] = float32(0.01 * math.Sin(2*math.Pi*16*float64(i)/FFTSize))
	}
	a.Write(tone)

	first := a.Spectrum()
	for range 5 {
		if got := a.Spectrum(); got[16] != first[16] {
			t.Fatalf("Spectrum() within interval = %d, want cached %d", got[16], first[16])
		}
	}

	now = now.Add(SpectrumInterval)
	if next := a.Spectrum(); next[16] <= first[16] {
		t.Fatalf("Spectrum() after interval = %d, want above %d as smoothing converges", next[16], first[16])
	}
}
