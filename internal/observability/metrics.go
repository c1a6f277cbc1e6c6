package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the engine and control surface.
type Metrics struct {
	ActiveSessions      prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	WireMessages        *prometheus.CounterVec
	ToolCalls           *prometheus.CounterVec
	ToolLatency         *prometheus.HistogramVec
	PersistenceFailures prometheus.Counter
	PlaybackChunks      *prometheus.CounterVec
	CaptureFrames       *prometheus.CounterVec
	ContextNotices      prometheus.Counter
	FirstAudioLatency   prometheus.Histogram

	stages *latencyWindow
}

// NewMetrics registers instruments on reg, or the default registerer when reg is nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions currently connected.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WireMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wire_messages_total",
			Help:      "Live connection messages by direction and kind.",
		}, []string{"direction", "kind"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_ms",
			Help:      "Tool execution latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 20000},
		}, []string{"tool"}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Transcript messages that could not be saved.",
		}),
		PlaybackChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_total",
			Help:      "Assistant audio chunks by action (scheduled, flushed, rejected).",
		}, []string{"action"}),
		CaptureFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_total",
			Help:      "Microphone frames by outcome (sent, dropped).",
		}, []string{"outcome"}),
		ContextNotices: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_notices_total",
			Help:      "Passive context notices delivered to the model.",
		}),
		FirstAudioLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from the first user transcript of a turn to the first assistant audio chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}),
		stages: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.stages.observe("first_audio", d)
}

// ObserveTool satisfies the tool dispatcher's observer.
func (m *Metrics) ObserveTool(name, outcome string, elapsed time.Duration) {
	m.ToolCalls.WithLabelValues(name, outcome).Inc()
	m.ToolLatency.WithLabelValues(name).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.observe(stage, d)
}

func (m *Metrics) ObserveIndicator(name string) {
	m.stages.count(name)
}

func (m *Metrics) StageSnapshot() StageSnapshot {
	return m.stages.snapshot()
}

func (m *Metrics) ResetStages() {
	m.stages.reset()
}

// MetricsHandler serves g, or the default gatherer when g is nil.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
