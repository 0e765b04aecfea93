package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics holds the Prometheus metrics exported at GET /metrics.
// Grounded directly on the teacher's own Metrics struct
// (internal/adapter/inbound/http/metrics.go): same CounterVec/HistogramVec/
// Gauge shape, renamed from MCP request/session/rate-limit concerns to
// chat-request/detector/queue-depth concerns.
type PromMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	DetectorScore    *prometheus.HistogramVec
	BlockedTotal     *prometheus.CounterVec
	EventQueueDepth  prometheus.Gauge
	BenchmarkRunning prometheus.Gauge
}

// NewPromMetrics builds and registers the firewall's Prometheus metrics
// against reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	return &PromMetrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semantic_firewall",
				Name:      "requests_total",
				Help:      "Total number of chat requests processed, by route and outcome",
			},
			[]string{"route", "outcome"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semantic_firewall",
				Name:      "request_duration_seconds",
				Help:      "Chat request duration in seconds, end to end",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		DetectorScore: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semantic_firewall",
				Name:      "detector_score",
				Help:      "Detector score distribution by detector kind",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"detector"},
		),
		BlockedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semantic_firewall",
				Name:      "blocked_total",
				Help:      "Total requests blocked, by matched policy rule",
			},
			[]string{"rule"},
		),
		EventQueueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "semantic_firewall",
				Name:      "event_queue_depth",
				Help:      "Current depth of the dashboard event bus queue",
			},
		),
		BenchmarkRunning: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "semantic_firewall",
				Name:      "benchmark_runs_in_progress",
				Help:      "Number of benchmark runs currently in progress",
			},
		),
	}
}

// observeChatResult records the outcome of one /api/chat call.
func (m *PromMetrics) observeChatResult(start time.Time, blocked bool, rule string) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if blocked {
		outcome = "blocked"
		m.BlockedTotal.WithLabelValues(rule).Inc()
	}
	m.RequestsTotal.WithLabelValues("chat", outcome).Inc()
	m.RequestDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
}

// metricsHandler builds the standard Prometheus registry (Go + process
// collectors plus the firewall's own metrics) and returns its HTTP handler,
// mirroring the teacher's transport.go registry construction.
func metricsHandler() (*PromMetrics, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := NewPromMetrics(reg)
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
