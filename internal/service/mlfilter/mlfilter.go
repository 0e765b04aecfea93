// Package mlfilter implements the ML filter service (C3): parallel fan-out
// to four detectors, joined into one MLSignals.
package mlfilter

import (
	"sync"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
	"github.com/dannycabezas/semantic-firewall/internal/domain/mlsignals"
	"github.com/dannycabezas/semantic-firewall/internal/domain/requestctx"
)

// Detectors bundles the four detector instances the service fans out to.
type Detectors struct {
	PII             detector.PIIDetector
	Toxicity        detector.ToxicityDetector
	PromptInjection detector.PromptInjectionDetector
	Heuristic       detector.HeuristicDetector
}

// Service runs all four detectors in parallel and joins their results.
type Service struct {
	detectors Detectors
}

// New creates an ML filter service over the given detector set.
func New(d Detectors) *Service {
	return &Service{detectors: d}
}

// Analyze runs all four detectors concurrently and returns only after all
// complete. On an individual detector panic, it records a zero/neutral
// score for that detector and continues — it never panics out to the
// caller. total_latency_ms is the enclosing wall-clock, not a sum.
func (s *Service) Analyze(text string, reqCtx *requestctx.RequestContext) mlsignals.MLSignals {
	start := time.Now()

	var wg sync.WaitGroup
	var signals mlsignals.MLSignals
	wg.Add(4)

	go func() {
		defer wg.Done()
		signals.PII = s.runScore(s.detectors.PII, text)
	}()
	go func() {
		defer wg.Done()
		signals.Toxicity = s.runScore(s.detectors.Toxicity, text)
	}()
	go func() {
		defer wg.Done()
		signals.PromptInjection = s.runInjectionScore(text, reqCtx)
	}()
	go func() {
		defer wg.Done()
		signals.Heuristic = s.runHeuristic(text)
	}()

	wg.Wait()
	signals.TotalLatencyMs = time.Since(start).Milliseconds()
	return signals
}

type scalarDetector interface {
	Detect(text string) float64
}

func (s *Service) runScore(d scalarDetector, text string) (result detector.DetectorScore) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = detector.DetectorScore{Score: 0, LatencyMs: time.Since(start).Milliseconds()}
		}
	}()
	if d == nil {
		return detector.DetectorScore{LatencyMs: time.Since(start).Milliseconds()}
	}
	score := d.Detect(text)
	return detector.DetectorScore{Score: score, LatencyMs: time.Since(start).Milliseconds()}
}

func (s *Service) runInjectionScore(text string, reqCtx *requestctx.RequestContext) (result detector.DetectorScore) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = detector.DetectorScore{Score: 0, LatencyMs: time.Since(start).Milliseconds()}
		}
	}()
	if s.detectors.PromptInjection == nil {
		return detector.DetectorScore{LatencyMs: time.Since(start).Milliseconds()}
	}
	score := s.detectors.PromptInjection.Detect(text, reqCtx)
	return detector.DetectorScore{Score: score, LatencyMs: time.Since(start).Milliseconds()}
}

func (s *Service) runHeuristic(text string) (result detector.HeuristicResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = detector.HeuristicResult{LatencyMs: time.Since(start).Milliseconds()}
		}
	}()
	if s.detectors.Heuristic == nil {
		return detector.HeuristicResult{LatencyMs: time.Since(start).Milliseconds()}
	}
	return s.detectors.Heuristic.Detect(text)
}
