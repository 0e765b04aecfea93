// Package detector defines the ports every detector backend implements and
// the small value types ("DetectorScore", "HeuristicResult") they return.
// Concrete backends live under internal/adapter/outbound/detectors; this
// package fixes only the contract, not the model internals.
package detector

import "github.com/dannycabezas/semantic-firewall/internal/domain/requestctx"

// Kind identifies a detector category. It is half of a registry cache key.
type Kind string

const (
	KindPII              Kind = "pii"
	KindToxicity         Kind = "toxicity"
	KindPromptInjection  Kind = "prompt_injection"
	KindHeuristic        Kind = "heuristic"
)

// DetectorScore is the result of any scalar-scoring detector.
type DetectorScore struct {
	Score     float64 `json:"score"`
	LatencyMs int64   `json:"latency_ms"`
}

// HeuristicResult is the result of the rule-driven heuristic detector.
type HeuristicResult struct {
	Blocked   bool     `json:"blocked"`
	Flags     []string `json:"flags"`
	Reason    string   `json:"reason,omitempty"`
	Score     float64  `json:"score"`
	LatencyMs int64    `json:"latency_ms"`
}

// PIIDetector flags personal-data patterns. Recommended policy block
// threshold is 0.8.
type PIIDetector interface {
	Detect(text string) float64
}

// ToxicityDetector scores text for abusive/toxic language. Recommended
// policy block threshold is 0.7.
type ToxicityDetector interface {
	Detect(text string) float64
}

// PromptInjectionDetector scores text for instruction-override attempts.
// Recommended policy block threshold is 0.8. It receives the RequestContext
// because embedding-based backends condition their score on session/user
// metadata (temperature, turn count, rate-limit remaining, device).
type PromptInjectionDetector interface {
	Detect(text string, reqCtx *requestctx.RequestContext) float64
}

// HeuristicDetector is a fast, deterministic regex- and denylist-based
// classifier that runs alongside the ML detectors.
type HeuristicDetector interface {
	Detect(text string) HeuristicResult
}

// Variant names enumerated by spec.md §4.1. These are the model_name half
// of a registry cache key.
const (
	VariantCustomONNX    = "custom_onnx"
	VariantDeBERTa       = "deberta"
	VariantLlamaGuard86M = "llama_guard_86m"
	VariantLlamaGuard22M = "llama_guard_22m"

	VariantPresidio = "presidio"
	VariantONNX     = "onnx"
	VariantMock     = "mock"

	VariantDetoxify = "detoxify"

	VariantRegex = "regex"
)
