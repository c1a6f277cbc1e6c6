package playback

import (
	"math"
	"math/cmplx"
	"sync"
	"time"
)

const (
	FFTSize           = 256
	SmoothingConstant = 0.5
	minDecibels       = -100.0
	maxDecibels       = -30.0
	frequencyBinCount = FFTSize / 2

	// SpectrumInterval bounds how often Spectrum advances the smoothing state.
	SpectrumInterval = 40 * time.Millisecond
)

// Analyser is a spectrum tap over rendered output, used for amplitude visualization.
type Analyser struct {
	mu       sync.Mutex
	ring     [FFTSize]float32
	pos      int
	smoothed [frequencyBinCount]float64
	window   [FFTSize]float64

	now      func() time.Time
	lastAt   time.Time
	lastBins []byte
}

func NewAnalyser() *Analyser {
	a := &Analyser{now: time.Now}
	// Blackman window.
	for i := range a.window {
		x := 2 * math.Pi * float64(i) / float64(FFTSize)
		a.window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return a
}

// Write appends rendered samples to the time-domain ring.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % FFTSize
	}
}

// Level is the RMS of the last FFTSize samples.
func (a *Analyser) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum float64
	for _, s := range a.ring {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / FFTSize)
}

// ByteFrequencyData returns smoothed magnitudes scaled from the dB range to 0..255.
// Every call advances the smoothing state.
func (a *Analyser) ByteFrequencyData() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.analyseLocked()
}

// Spectrum is ByteFrequencyData shared by many readers: within SpectrumInterval
// of the last analysis it returns a copy of that result.
func (a *Analyser) Spectrum() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if a.lastBins == nil || now.Sub(a.lastAt) >= SpectrumInterval {
		a.lastBins = a.analyseLocked()
		a.lastAt = now
	}
	out := make([]byte, len(a.lastBins))
	copy(out, a.lastBins)
	return out
}

func (a *Analyser) analyseLocked() []byte {
	buf := make([]complex128, FFTSize)
	for i := 0; i < FFTSize; i++ {
		s := a.ring[(a.pos+i)%FFTSize]
		buf[i] = complex(float64(s)*a.window[i], 0)
	}
	fft(buf)

	out := make([]byte, frequencyBinCount)
	for k := 0; k < frequencyBinCount; k++ {
		mag := cmplx.Abs(buf[k]) / FFTSize
		a.smoothed[k] = SmoothingConstant*a.smoothed[k] + (1-SmoothingConstant)*mag
		db := minDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		out[k] = byte(math.Max(0, math.Min(255, scaled)))
	}
	return out
}

// fft is an in-place iterative radix-2 transform; len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < size/2; k++ {
				u := x[start+k]
				v := x[start+k+size/2] * w
				x[start+k] = u + v
				x[start+k+size/2] = u - v
				w *= step
			}
		}
	}
}
