// Package httpapi provides the JSON API handlers for the semantic
// firewall: chat, dashboard stats, model cache inspection, and the
// benchmark harness surface of spec.md §6. Grounded on the teacher's
// admin.AdminAPIHandler: the same struct-of-dependencies +
// AdminAPIOption functional-options shape, Routes() building a plain
// http.ServeMux with Go 1.22+ method patterns, and the
// respondJSON/respondError/readJSON/pathParam helper quartet.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	bm "github.com/dannycabezas/semantic-firewall/internal/domain/benchmark"
	"github.com/dannycabezas/semantic-firewall/internal/domain/firewallerr"
	benchmarkservice "github.com/dannycabezas/semantic-firewall/internal/service/benchmark"
	"github.com/dannycabezas/semantic-firewall/internal/service/gateway"
	"github.com/dannycabezas/semantic-firewall/internal/service/metrics"
	"github.com/dannycabezas/semantic-firewall/internal/service/registry"
)

// Handler serves every JSON API route of spec.md §6 except /ws/dashboard,
// which is served separately by adapter/inbound/ws.Handler.
type Handler struct {
	gateway         *gateway.Gateway
	metricsStore    *metrics.Store
	registry        *registry.Registry
	benchmarkEngine *benchmarkservice.Engine
	benchmarkStore  bm.Store
	tenantID        string
	logger          *slog.Logger

	detectorDefaults DetectorDefaults
	datasetDir       string
	maxUploadBytes   int64

	promMetrics *PromMetrics
	promHandler http.Handler
}

// DetectorDefaults names the process-wide default detector variant per
// category, reported by GET /api/models/available.
type DetectorDefaults struct {
	PromptInjection string
	PII             string
	Toxicity        string
}

// Option configures a Handler at construction.
type Option func(*Handler)

// WithTenantID overrides the default tenant id applied when a request
// carries none (default "default").
func WithTenantID(id string) Option {
	return func(h *Handler) { h.tenantID = id }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithDatasetDir overrides where uploaded dataset files are written
// (default "datasets").
func WithDatasetDir(dir string) Option {
	return func(h *Handler) { h.datasetDir = dir }
}

// WithMaxUploadBytes overrides the default 10MiB dataset upload cap.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) { h.maxUploadBytes = n }
}

const defaultMaxUploadBytes = 10 << 20

// New builds a Handler over the gateway, metrics store, detector
// registry, and benchmark subsystem. benchmarkEngine/benchmarkStore may
// be nil, in which case the benchmark routes answer
// ServiceUnavailableError per spec.md §7.
func New(gw *gateway.Gateway, metricsStore *metrics.Store, reg *registry.Registry, benchmarkEngine *benchmarkservice.Engine, benchmarkStore bm.Store, defaults DetectorDefaults, opts ...Option) *Handler {
	promMetrics, promHandler := metricsHandler()
	h := &Handler{
		gateway:          gw,
		metricsStore:     metricsStore,
		registry:         reg,
		benchmarkEngine:  benchmarkEngine,
		benchmarkStore:   benchmarkStore,
		tenantID:         "default",
		logger:           slog.Default(),
		detectorDefaults: defaults,
		datasetDir:       "datasets",
		maxUploadBytes:   defaultMaxUploadBytes,
		promMetrics:      promMetrics,
		promHandler:      promHandler,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the full mux. Every route is unauthenticated: spec.md
// names no admin-auth surface for this system, unlike the teacher's
// localhost-only admin API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", h.promHandler)
	mux.HandleFunc("POST /api/chat", h.handleChat)

	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/recent-requests", h.handleRecentRequests)
	mux.HandleFunc("GET /api/session-analytics", h.handleSessionAnalytics)
	mux.HandleFunc("GET /api/temporal-breakdown", h.handleTemporalBreakdown)

	mux.HandleFunc("GET /api/models/available", h.handleModelsAvailable)
	mux.HandleFunc("GET /api/models/cache", h.handleModelsCache)
	mux.HandleFunc("POST /api/models/cache/clear", h.handleModelsCacheClear)

	mux.HandleFunc("POST /api/benchmarks/start", h.handleBenchmarkStart)
	mux.HandleFunc("GET /api/benchmarks/status/{id}", h.handleBenchmarkStatus)
	mux.HandleFunc("POST /api/benchmarks/cancel/{id}", h.handleBenchmarkCancel)
	mux.HandleFunc("GET /api/benchmarks/runs", h.handleBenchmarkRuns)
	mux.HandleFunc("GET /api/benchmarks/results/{id}", h.handleBenchmarkResults)
	mux.HandleFunc("GET /api/benchmarks/metrics/{id}", h.handleBenchmarkMetrics)
	mux.HandleFunc("GET /api/benchmarks/errors/{id}", h.handleBenchmarkErrors)
	mux.HandleFunc("GET /api/benchmarks/compare", h.handleBenchmarkCompare)
	mux.HandleFunc("POST /api/benchmarks/datasets/upload", h.handleDatasetUpload)
	mux.HandleFunc("GET /api/benchmarks/datasets", h.handleDatasetList)
	mux.HandleFunc("DELETE /api/benchmarks/datasets/{id}", h.handleDatasetDelete)

	return mux
}

// --- JSON helper methods ---

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err through firewallerr.StatusCode and writes the
// matching error response, so every handler shares one translation path.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.respondJSON(w, statusCodeFor(err), map[string]string{"error": err.Error()})
}

func (h *Handler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// statusCodeFor maps any error to an HTTP status: the firewallerr
// taxonomy's own mapping for recognized types, 500 otherwise.
func statusCodeFor(err error) int {
	return firewallerr.StatusCode(err)
}

// benchmarkUnavailable is returned by every benchmark route when the
// engine/store were not wired at startup.
func (h *Handler) benchmarkUnavailable() error {
	return &firewallerr.ServiceUnavailableError{Message: "benchmark subsystem is not configured"}
}
