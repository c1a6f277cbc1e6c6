package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	for _, ms := range []int{500, 700, 1500} {
		w.observe("first_audio", time.Duration(ms)*time.Millisecond)
	}
	w.count("interrupted")
	w.count("interrupted")
	w.count("  ")

	snap := w.snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "first_audio" || s.Samples != 3 {
		t.Fatalf("stage = %+v", s)
	}
	if s.LastMS != 1500 || s.P50MS != 700 || s.AvgMS != 900 {
		t.Fatalf("LastMS = %.2f P50MS = %.2f AvgMS = %.2f, want 1500 / 700 / 900", s.LastMS, s.P50MS, s.AvgMS)
	}
	if s.P95MS <= 700 || s.P95MS > 1500 {
		t.Fatalf("P95MS = %.2f, want (700,1500]", s.P95MS)
	}
	if s.TargetP95MS != 1400 || s.OverTarget != 1 {
		t.Fatalf("TargetP95MS = %.2f OverTarget = %d, want 1400 / 1", s.TargetP95MS, s.OverTarget)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "interrupted" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want interrupted x2", snap.Indicators)
	}
}

func TestLatencyWindowWrapsAndResets(t *testing.T) {
	w := newLatencyWindow(2)
	for _, ms := range []int{10, 20, 30} {
		w.observe("persist", time.Duration(ms)*time.Millisecond)
	}
	w.observe("", time.Millisecond)
	w.observe("persist", -time.Millisecond)

	s := w.snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 25 {
		t.Fatalf("stage = %+v, want 2 samples averaging 25", s)
	}
	w.reset()
	if got := len(w.snapshot().Stages); got != 0 {
		t.Fatalf("Stages after reset = %d, want 0", got)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	samples := []time.Duration{0, 10 * time.Millisecond}
	if got := percentile(samples, 0.5); got != 5*time.Millisecond {
		t.Fatalf("percentile(0.5) = %v, want 5ms", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("percentile(nil) = %v, want 0", got)
	}
}

func TestMetricsExposeToolCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("iris_test", reg)
	m.ObserveTool("read_file", "ok", 12*time.Millisecond)
	m.ObserveTool("read_file", "error", 3*time.Millisecond)
	m.ObserveStage("tool_dispatch", 15*time.Millisecond)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`iris_test_tool_calls_total{outcome="ok",tool="read_file"} 1`,
		`iris_test_tool_calls_total{outcome="error",tool="read_file"} 1`,
		`# HELP iris_test_first_audio_latency_ms Latency from the first user transcript of a turn to the first assistant audio chunk in milliseconds.`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
	if got := m.StageSnapshot().Stages[0].LastMS; got != 15 {
		t.Fatalf("tool_dispatch LastMS = %.2f, want 15", got)
	}
}
