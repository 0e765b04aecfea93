// Package event defines the standardized Event record emitted for every
// request and consumed by both the rolling metrics store and the dashboard
// WebSocket fan-out, plus the risk level/category mapping of spec.md §4.9
// (resolved against original_source/firewall/core/risk/levels.py).
package event

import (
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/mlsignals"
)

// RiskLevel is the internal risk bucket computed from detector scores.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// StandardizedRiskLevel is the externally reported, coarser risk level.
type StandardizedRiskLevel string

const (
	RiskBenign    StandardizedRiskLevel = "benign"
	RiskSuspect   StandardizedRiskLevel = "suspicious"
	RiskMalicious StandardizedRiskLevel = "malicious"
)

// RiskCategory classifies which signal drove the risk level.
type RiskCategory string

const (
	CategoryInjection RiskCategory = "injection"
	CategoryPII       RiskCategory = "pii"
	CategoryToxicity  RiskCategory = "toxicity"
	CategoryLeak      RiskCategory = "leak"
	CategoryHarmful   RiskCategory = "harmful"
	CategoryClean     RiskCategory = "clean"
)

// Action is the outcome attached to the event; always in lockstep with the
// policy decision (spec.md §3 invariant: Event.action <=> PolicyDecision.blocked).
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// Scores mirrors the four detector scores for dashboard display.
type Scores struct {
	PromptInjection float64 `json:"prompt_injection"`
	PII             float64 `json:"pii"`
	Toxicity        float64 `json:"toxicity"`
	Heuristic       float64 `json:"heuristic"`
}

// PolicyInfo is the matched-rule summary attached to an event.
type PolicyInfo struct {
	MatchedRule string `json:"matched_rule,omitempty"`
	Decision    string `json:"decision"`
}

// LatencyBreakdown is the per-stage latency attached to an event.
type LatencyBreakdown struct {
	PreprocessingMs int64 `json:"preprocessing"`
	MLMs            int64 `json:"ml"`
	PolicyMs        int64 `json:"policy"`
	BackendMs       int64 `json:"backend"`
	TotalMs         int64 `json:"total"`
}

const maxFieldLen = 500

// Event is the uniform record emitted for every request.
type Event struct {
	ID              string                 `json:"id"`
	TimestampUTC    time.Time              `json:"timestamp_utc"`
	Prompt          string                 `json:"prompt"`
	Response        string                 `json:"response,omitempty"`
	RiskLevel       StandardizedRiskLevel  `json:"risk_level"`
	RiskCategory    RiskCategory           `json:"risk_category"`
	Scores          Scores                 `json:"scores"`
	Heuristics      []string               `json:"heuristics,omitempty"`
	Policy          PolicyInfo             `json:"policy"`
	Action          Action                 `json:"action"`
	LatencyMs       LatencyBreakdown       `json:"latency_ms"`
	SessionID       string                 `json:"session_id"`
	PreprocessingInfo map[string]any       `json:"preprocessing_info,omitempty"`
	DetectorConfig  map[string]string      `json:"detector_config,omitempty"`
}

// Truncate clips a field to spec.md's documented 500-char cap.
func Truncate(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	return s[:maxFieldLen]
}

// Level computes the internal risk bucket from ML signals:
// max(scores) >= 0.8 or heuristic_blocked -> critical; >= 0.6 -> high;
// >= 0.3 -> medium; else low.
func Level(ml mlsignals.MLSignals) RiskLevel {
	max := maxScore(ml)
	switch {
	case max >= 0.8 || ml.Heuristic.Blocked:
		return RiskCritical
	case max >= 0.6:
		return RiskHigh
	case max >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Standardize maps the internal risk level to the externally reported
// three-level scale: low -> benign, medium/high -> suspicious,
// critical -> malicious.
func Standardize(level RiskLevel) StandardizedRiskLevel {
	switch level {
	case RiskCritical:
		return RiskMalicious
	case RiskHigh, RiskMedium:
		return RiskSuspect
	default:
		return RiskBenign
	}
}

// Category determines the risk category: heuristic-blocked -> leak; else
// the argmax of {injection, pii, toxicity} if its score > 0.3, else clean.
func Category(ml mlsignals.MLSignals) RiskCategory {
	if ml.Heuristic.Blocked {
		return CategoryLeak
	}

	best := CategoryInjection
	bestScore := ml.PromptInjection.Score
	if ml.PII.Score > bestScore {
		bestScore = ml.PII.Score
		best = CategoryPII
	}
	if ml.Toxicity.Score > bestScore {
		bestScore = ml.Toxicity.Score
		best = CategoryToxicity
	}
	if bestScore > 0.3 {
		return best
	}
	return CategoryClean
}

func maxScore(ml mlsignals.MLSignals) float64 {
	max := ml.PII.Score
	if ml.Toxicity.Score > max {
		max = ml.Toxicity.Score
	}
	if ml.PromptInjection.Score > max {
		max = ml.PromptInjection.Score
	}
	return max
}
