package observability

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// StageStats summarizes one latency stage over the rolling window.
type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverTarget  int     `json:"over_target,omitempty"`
}

// Indicator counts a discrete session occurrence such as an interruption.
type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// stageTargets are the p95 budgets of the realtime path.
var stageTargets = map[string]time.Duration{
	"connect":        1500 * time.Millisecond,
	"setup_complete": 1200 * time.Millisecond,
	"first_audio":    1400 * time.Millisecond,
	"tool_dispatch":  2 * time.Second,
	"persist":        250 * time.Millisecond,
	"flush":          20 * time.Millisecond,
}

// ring keeps the most recent samples of one stage.
type ring struct {
	samples []time.Duration
	next    int
	full    bool
	last    time.Duration
}

func (r *ring) push(d time.Duration) {
	r.samples[r.next] = d
	r.last = d
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) sorted() []time.Duration {
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	out := slices.Clone(r.samples[:n])
	slices.Sort(out)
	return out
}

// latencyWindow aggregates stage latencies and indicator counts for /v1/perf/latency.
type latencyWindow struct {
	mu         sync.Mutex
	size       int
	stages     map[string]*ring
	indicators map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	w := &latencyWindow{size: size}
	w.reset()
	return w
}

func (w *latencyWindow) observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.stages[stage]
	if r == nil {
		r = &ring{samples: make([]time.Duration, w.size)}
		w.stages[stage] = r
	}
	r.push(d)
}

func (w *latencyWindow) count(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	w.stages = make(map[string]*ring)
	w.indicators = make(map[string]int)
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.stages)),
	}
	for _, name := range slices.Sorted(maps.Keys(w.stages)) {
		samples := w.stages[name].sorted()
		if len(samples) == 0 {
			continue
		}
		var sum time.Duration
		for _, d := range samples {
			sum += d
		}
		st := StageStats{
			Stage:   name,
			Samples: len(samples),
			LastMS:  millis(w.stages[name].last),
			AvgMS:   millis(sum / time.Duration(len(samples))),
			P50MS:   millis(percentile(samples, 0.50)),
			P95MS:   millis(percentile(samples, 0.95)),
			P99MS:   millis(percentile(samples, 0.99)),
		}
		if target, ok := stageTargets[name]; ok {
			st.TargetP95MS = millis(target)
			idx, _ := slices.BinarySearch(samples, target+1)
			st.OverTarget = len(samples) - idx
		}
		snap.Stages = append(snap.Stages, st)
	}
	for _, name := range slices.Sorted(maps.Keys(w.indicators)) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []time.Duration, q float64) time.Duration {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[hi]-sorted[lo]))
}

// millis reports d in milliseconds rounded to two decimals.
func millis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
