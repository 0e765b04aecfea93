// Package mlsignals holds the aggregate result of one ML filter fan-out
// (spec.md §3/§4.3).
package mlsignals

import "github.com/dannycabezas/semantic-firewall/internal/domain/detector"

// MLSignals is the aggregate of all four detectors for one text. Field
// order is fixed; detector completion order is not.
type MLSignals struct {
	PII             detector.DetectorScore   `json:"pii"`
	Toxicity        detector.DetectorScore   `json:"toxicity"`
	PromptInjection detector.DetectorScore   `json:"prompt_injection"`
	Heuristic       detector.HeuristicResult `json:"heuristic"`
	// TotalLatencyMs is the wall-clock of the parallel fan-out, not the sum
	// of the four detector latencies.
	TotalLatencyMs int64 `json:"total_latency_ms"`
}

// MaxDetectorLatencyMs returns the largest of the four per-detector
// latencies, used to check the invariant
// TotalLatencyMs >= max(detector latencies).
func (s MLSignals) MaxDetectorLatencyMs() int64 {
	max := s.PII.LatencyMs
	if s.Toxicity.LatencyMs > max {
		max = s.Toxicity.LatencyMs
	}
	if s.PromptInjection.LatencyMs > max {
		max = s.PromptInjection.LatencyMs
	}
	if s.Heuristic.LatencyMs > max {
		max = s.Heuristic.LatencyMs
	}
	return max
}
