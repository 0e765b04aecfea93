package mlfilter

import (
	"testing"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
	"github.com/dannycabezas/semantic-firewall/internal/domain/requestctx"
)

type slowScoreDetector struct {
	sleep time.Duration
	score float64
}

func (d slowScoreDetector) Detect(string) float64 {
	time.Sleep(d.sleep)
	return d.score
}

type slowInjectionDetector struct {
	sleep time.Duration
	score float64
}

func (d slowInjectionDetector) Detect(string, *requestctx.RequestContext) float64 {
	time.Sleep(d.sleep)
	return d.score
}

type slowHeuristicDetector struct {
	sleep time.Duration
}

func (d slowHeuristicDetector) Detect(string) detector.HeuristicResult {
	time.Sleep(d.sleep)
	return detector.HeuristicResult{Blocked: false}
}

type panickingDetector struct{}

func (panickingDetector) Detect(string) float64 { panic("boom") }

type panickingInjectionDetector struct{}

func (panickingInjectionDetector) Detect(string, *requestctx.RequestContext) float64 {
	panic("boom")
}

type panickingHeuristicDetector struct{}

func (panickingHeuristicDetector) Detect(string) detector.HeuristicResult { panic("boom") }

func TestAnalyze_TotalLatencyAtLeastSlowestDetector(t *testing.T) {
	svc := New(Detectors{
		PII:             slowScoreDetector{sleep: 30 * time.Millisecond, score: 0.1},
		Toxicity:        slowScoreDetector{sleep: 5 * time.Millisecond, score: 0.1},
		PromptInjection: slowInjectionDetector{sleep: 5 * time.Millisecond, score: 0.1},
		Heuristic:       slowHeuristicDetector{sleep: 5 * time.Millisecond},
	})

	signals := svc.Analyze("hello", nil)

	if signals.TotalLatencyMs < signals.MaxDetectorLatencyMs() {
		t.Errorf("total_latency_ms=%d must be >= max(detector latencies)=%d",
			signals.TotalLatencyMs, signals.MaxDetectorLatencyMs())
	}
}

func TestAnalyze_RunsDetectorsInParallel(t *testing.T) {
	const sleep = 50 * time.Millisecond
	svc := New(Detectors{
		PII:             slowScoreDetector{sleep: sleep, score: 0.1},
		Toxicity:        slowScoreDetector{sleep: sleep, score: 0.1},
		PromptInjection: slowInjectionDetector{sleep: sleep, score: 0.1},
		Heuristic:       slowHeuristicDetector{sleep: sleep},
	})

	start := time.Now()
	svc.Analyze("hello", nil)
	elapsed := time.Since(start)

	// If the four detectors ran sequentially this would take >= 4*sleep.
	// Parallel fan-out should complete well under that, leaving headroom
	// for scheduling jitter.
	if elapsed >= 4*sleep {
		t.Errorf("Analyze took %v, expected detectors to run in parallel (well under %v)", elapsed, 4*sleep)
	}
}

func TestAnalyze_DetectorPanicRecoversToZeroScore(t *testing.T) {
	svc := New(Detectors{
		PII:             panickingDetector{},
		Toxicity:        slowScoreDetector{score: 0.5},
		PromptInjection: panickingInjectionDetector{},
		Heuristic:       panickingHeuristicDetector{},
	})

	signals := svc.Analyze("hello", nil)

	if signals.PII.Score != 0 {
		t.Errorf("expected PII score 0 after panic, got %v", signals.PII.Score)
	}
	if signals.PromptInjection.Score != 0 {
		t.Errorf("expected prompt injection score 0 after panic, got %v", signals.PromptInjection.Score)
	}
	if signals.Heuristic.Blocked {
		t.Errorf("expected heuristic result zero-value after panic, got %+v", signals.Heuristic)
	}
	if signals.Toxicity.Score != 0.5 {
		t.Errorf("expected unaffected detector to still score normally, got %v", signals.Toxicity.Score)
	}
}

func TestAnalyze_NilDetectorsYieldZeroScores(t *testing.T) {
	svc := New(Detectors{})

	signals := svc.Analyze("hello", nil)

	if signals.PII.Score != 0 || signals.Toxicity.Score != 0 || signals.PromptInjection.Score != 0 {
		t.Errorf("expected all-zero scores with nil detectors, got %+v", signals)
	}
	if signals.Heuristic.Blocked {
		t.Error("expected heuristic result to be unblocked with nil detector")
	}
}
