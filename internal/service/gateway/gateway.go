// Package gateway implements the request gateway (C7): the single entry
// point that turns one inbound chat request into ingress analysis, a
// backend call, optional egress analysis, and the standardized event
// fan-out to both the metrics store and the dashboard bus. Grounded on
// spec.md §4.7 directly; the backend client's transport config is
// grounded on the teacher's internal/adapter/outbound/mcp/http_client.go.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/detectors"
	"github.com/dannycabezas/semantic-firewall/internal/domain/analysis"
	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
	"github.com/dannycabezas/semantic-firewall/internal/domain/event"
	"github.com/dannycabezas/semantic-firewall/internal/domain/firewallerr"
	"github.com/dannycabezas/semantic-firewall/internal/domain/mlsignals"
	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
	"github.com/dannycabezas/semantic-firewall/internal/domain/preprocess"
	"github.com/dannycabezas/semantic-firewall/internal/domain/requestctx"
	"github.com/dannycabezas/semantic-firewall/internal/service/analyzer"
	"github.com/dannycabezas/semantic-firewall/internal/service/mlfilter"
	"github.com/dannycabezas/semantic-firewall/internal/service/orchestrator"
	"github.com/dannycabezas/semantic-firewall/internal/service/registry"
)

// Backend is the outbound call to the upstream LLM. Satisfied by
// httpbackend.Client.
type Backend interface {
	Chat(ctx context.Context, message string) (string, error)
}

// EventSink receives the standardized event emitted for every request.
// Satisfied by both *metrics.Store and *eventbus.Bus.
type EventSink interface {
	Add(e event.Event)
}

// busSink adapts eventbus.Bus's Publish method to EventSink, since the bus
// and the metrics store are shaped differently (fan-out vs ring buffer)
// but both receive the same event.
type busSink struct {
	publish func(event.Event)
}

func (b busSink) Add(e event.Event) { b.publish(e) }

// NewBusSink wraps a publish function (typically (*eventbus.Bus).Publish)
// as an EventSink.
func NewBusSink(publish func(event.Event)) EventSink { return busSink{publish: publish} }

// DetectorConfig names the detector variant to use per category, for a
// request that opts out of the default singleton firewall instance.
type DetectorConfig struct {
	PIIVariant             string  `json:"pii_variant,omitempty"`
	PIIMockScore           float64 `json:"pii_mock_score,omitempty"`
	ToxicityVariant        string  `json:"toxicity_variant,omitempty"`
	PromptInjectionVariant string  `json:"prompt_injection_variant,omitempty"`
}

// ChatRequest is the inbound payload of POST /api/chat.
type ChatRequest struct {
	Message        string          `json:"message"`
	RequestID      string          `json:"request_id,omitempty"`
	AnalyzeEgress  *bool           `json:"analyze_egress,omitempty"`
	DetectorConfig *DetectorConfig `json:"detector_config,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
}

// ChatResponse is the outbound payload of POST /api/chat, per spec.md §6.
type ChatResponse struct {
	RequestID        string                  `json:"request_id"`
	Blocked          bool                    `json:"blocked"`
	Reason           string                  `json:"reason,omitempty"`
	Reply            string                  `json:"reply,omitempty"`
	MLDetectors      mlsignals.MLSignals     `json:"ml_detectors"`
	Preprocessing    preprocess.Features     `json:"preprocessing"`
	Policy           policy.Decision         `json:"policy"`
	LatencyBreakdown event.LatencyBreakdown  `json:"latency_breakdown"`
	TotalLatencyMs   int64                   `json:"total_latency_ms"`
}

// Gateway wires the analysis pipeline, backend call, and event fan-out
// into process_chat_request.
type Gateway struct {
	registry         *registry.Registry
	defaultAnalyzer  *analyzer.Analyzer
	defaultEvaluator policy.Evaluator
	backend          Backend
	orchestrator     *orchestrator.Orchestrator
	metricsSink      EventSink
	busSink          EventSink
	analyzeEgress    bool
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithEgressAnalysis sets the process-wide default for whether egress
// (backend-reply) analysis runs when a request does not specify.
func WithEgressAnalysis(enabled bool) Option {
	return func(g *Gateway) { g.analyzeEgress = enabled }
}

// New builds a Gateway. defaultAnalyzer and defaultEvaluator back the
// singleton firewall instance used when a request carries no
// detector_config; registry backs the reusable per-config instances.
func New(reg *registry.Registry, defaultAnalyzer *analyzer.Analyzer, defaultEvaluator policy.Evaluator, backend Backend, orch *orchestrator.Orchestrator, metricsSink, busSink EventSink, opts ...Option) *Gateway {
	g := &Gateway{
		registry:         reg,
		defaultAnalyzer:  defaultAnalyzer,
		defaultEvaluator: defaultEvaluator,
		backend:          backend,
		orchestrator:     orch,
		metricsSink:      metricsSink,
		busSink:          busSink,
		analyzeEgress:    false,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultAnalyzer returns the singleton analyzer used when a request
// carries no detector_config, for callers (the benchmark harness) that
// need the same default the gateway itself falls back to.
func (g *Gateway) DefaultAnalyzer() *analyzer.Analyzer { return g.defaultAnalyzer }

// ProcessChatRequest runs the full pipeline for one request: build
// context, pick the firewall instance, ingress-analyze, call the
// backend, optionally egress-analyze, and emit the standardized event.
func (g *Gateway) ProcessChatRequest(ctx context.Context, req ChatRequest, headers http.Header, tenantID string) (ChatResponse, error) {
	reqCtx := requestctx.FromHTTPHeaders(headers, tenantID, "/api/chat")
	if req.RequestID != "" {
		reqCtx.RequestID = req.RequestID
	}
	if req.Context != nil {
		reqCtx.Custom = req.Context
	}

	a := g.defaultAnalyzer
	if req.DetectorConfig != nil {
		a = g.AnalyzerFor(*req.DetectorConfig)
	}

	start := time.Now()
	latency := event.LatencyBreakdown{}

	ingressResult, err := a.AnalyzeContent(req.Message, analysis.DirectionIngress, reqCtx)
	var blocked *analysis.Blocked
	if errors.As(err, &blocked) {
		latency.TotalMs = time.Since(start).Milliseconds()
		g.emit(reqCtx, req.Message, "", blocked.MLSignals, blocked.Decision, latency)
		return ChatResponse{
			RequestID:        reqCtx.RequestID,
			Blocked:          true,
			Reason:           blocked.Reason,
			MLDetectors:      blocked.MLSignals,
			Preprocessing:    blocked.Preprocessed.Features,
			Policy:           blocked.Decision,
			LatencyBreakdown: latency,
			TotalLatencyMs:   latency.TotalMs,
		}, nil
	}
	if err != nil {
		return ChatResponse{}, &firewallerr.FirewallError{Err: err}
	}
	latency.PreprocessingMs = ingressResult.LatencyMs

	reply, err := g.backend.Chat(ctx, req.Message)
	if err != nil {
		var backendErr *firewallerr.BackendError
		if errors.As(err, &backendErr) {
			return ChatResponse{}, err
		}
		return ChatResponse{}, &firewallerr.BackendError{Err: err}
	}

	analyzeEgress := g.analyzeEgress
	if req.AnalyzeEgress != nil {
		analyzeEgress = *req.AnalyzeEgress
	}

	finalSignals := ingressResult.MLSignals
	finalDecision := ingressResult.Decision
	finalPreprocessed := ingressResult.Preprocessed
	if analyzeEgress {
		egressResult, egressErr := a.AnalyzeContent(reply, analysis.DirectionEgress, reqCtx)
		if errors.As(egressErr, &blocked) {
			latency.TotalMs = time.Since(start).Milliseconds()
			g.emit(reqCtx, req.Message, reply, blocked.MLSignals, blocked.Decision, latency)
			return ChatResponse{
				RequestID:        reqCtx.RequestID,
				Blocked:          true,
				Reason:           blocked.Reason,
				MLDetectors:      blocked.MLSignals,
				Preprocessing:    blocked.Preprocessed.Features,
				Policy:           blocked.Decision,
				LatencyBreakdown: latency,
				TotalLatencyMs:   latency.TotalMs,
			}, nil
		}
		if egressErr != nil {
			return ChatResponse{}, &firewallerr.FirewallError{Err: egressErr}
		}
		finalSignals = egressResult.MLSignals
		finalDecision = egressResult.Decision
		finalPreprocessed = egressResult.Preprocessed
	}

	latency.TotalMs = time.Since(start).Milliseconds()
	g.emit(reqCtx, req.Message, reply, finalSignals, finalDecision, latency)

	return ChatResponse{
		RequestID:        reqCtx.RequestID,
		Blocked:          false,
		Reply:            reply,
		MLDetectors:      finalSignals,
		Preprocessing:    finalPreprocessed.Features,
		Policy:           finalDecision,
		LatencyBreakdown: latency,
		TotalLatencyMs:   latency.TotalMs,
	}, nil
}

// emit builds the standardized event and hands it to both the metrics
// store and the dashboard bus, then runs the decision through the
// orchestrator for logging/alerting/idempotency.
func (g *Gateway) emit(reqCtx *requestctx.RequestContext, prompt, reply string, signals mlsignals.MLSignals, decision policy.Decision, latency event.LatencyBreakdown) {
	level := event.Level(signals)
	e := event.Event{
		ID:           uuid.NewString(),
		TimestampUTC: time.Now().UTC(),
		Prompt:       event.Truncate(prompt),
		Response:     event.Truncate(reply),
		RiskLevel:    event.Standardize(level),
		RiskCategory: event.Category(signals),
		Scores: event.Scores{
			PromptInjection: signals.PromptInjection.Score,
			PII:             signals.PII.Score,
			Toxicity:        signals.Toxicity.Score,
			Heuristic:       signals.Heuristic.Score,
		},
		Heuristics: signals.Heuristic.Flags,
		Policy: event.PolicyInfo{
			MatchedRule: decision.MatchedRule,
			Decision:    string(boolToAction(decision.Blocked)),
		},
		Action:    boolToAction(decision.Blocked),
		LatencyMs: latency,
		SessionID: reqCtx.SessionID,
	}

	if g.metricsSink != nil {
		g.metricsSink.Add(e)
	}
	if g.busSink != nil {
		g.busSink.Add(e)
	}
	if g.orchestrator != nil {
		g.orchestrator.Execute(decision, reqCtx.RequestID, reqCtx.Custom)
	}
}

func boolToAction(blocked bool) event.Action {
	if blocked {
		return event.ActionBlock
	}
	return event.ActionAllow
}

// AnalyzerFor builds (or reuses, via the registry) an Analyzer wired to
// the requested detector variants, keeping the default evaluator and
// preprocessing store. Exported so other entry points (the benchmark
// harness's per-request detector_config) can share the same cached
// detector construction as /api/chat.
func (g *Gateway) AnalyzerFor(cfg DetectorConfig) *analyzer.Analyzer {
	pii, _ := g.detector(detector.KindPII, variantOr(cfg.PIIVariant, detector.VariantPresidio), func() (any, error) {
		return detectors.NewPIIDetector(cfg.PIIVariant, cfg.PIIMockScore), nil
	}).(detector.PIIDetector)

	toxicity, _ := g.detector(detector.KindToxicity, variantOr(cfg.ToxicityVariant, detector.VariantDetoxify), func() (any, error) {
		return detectors.NewToxicityDetector(cfg.ToxicityVariant), nil
	}).(detector.ToxicityDetector)

	injection, _ := g.detector(detector.KindPromptInjection, variantOr(cfg.PromptInjectionVariant, detector.VariantCustomONNX), func() (any, error) {
		return detectors.NewPromptInjectionDetector(cfg.PromptInjectionVariant), nil
	}).(detector.PromptInjectionDetector)

	heuristic, _ := g.detector(detector.KindHeuristic, detector.VariantRegex, func() (any, error) {
		return detectors.NewRegexHeuristicDetector(detectors.DefaultRules), nil
	}).(detector.HeuristicDetector)

	mlf := mlfilter.New(mlfilter.Detectors{
		PII:             pii,
		Toxicity:        toxicity,
		PromptInjection: injection,
		Heuristic:       heuristic,
	})

	return analyzer.New(nil, mlf, g.defaultEvaluator)
}

// detector fetches (or constructs) a cached detector instance. A
// construction failure yields a nil instance rather than propagating,
// since mlfilter treats a nil detector as "skip, score zero".
func (g *Gateway) detector(kind detector.Kind, variant string, factory registry.Factory) any {
	inst, err := g.registry.Get(registry.Key{Kind: kind, ModelName: variant}, factory)
	if err != nil {
		return nil
	}
	return inst
}

func variantOr(variant, fallback string) string {
	if variant == "" {
		return fallback
	}
	return variant
}
