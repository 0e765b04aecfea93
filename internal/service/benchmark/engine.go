// Package benchmark implements the benchmark engine (C10): bounded-
// concurrency batched replay of a labeled dataset against the analyzer,
// with cooperative per-run cancellation and aggregate metric computation.
// Grounded on the teacher's audit_service.go (batch/flush loop) and
// upstream_manager.go (context.WithCancel goroutine-lifecycle idiom).
package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dannycabezas/semantic-firewall/internal/domain/analysis"
	bm "github.com/dannycabezas/semantic-firewall/internal/domain/benchmark"
	"github.com/dannycabezas/semantic-firewall/internal/domain/firewallerr"
	"github.com/dannycabezas/semantic-firewall/internal/domain/requestctx"
)

const (
	defaultMaxConcurrentSamples = 10
	defaultBatchSize            = 50
)

// Analyzer is the subset of analyzer.Analyzer the engine depends on.
type Analyzer interface {
	AnalyzeContent(content string, direction analysis.Direction, reqCtx *requestctx.RequestContext) (analysis.Result, error)
}

// DatasetLoader resolves a named dataset (or an uploaded object, when
// customDatasetID is non-empty) into samples.
type DatasetLoader interface {
	Load(ctx context.Context, datasetName, split string, maxSamples int, customDatasetID string) ([]bm.Sample, error)
}

// run tracks the live cancellation flag and tenant context for one
// in-flight benchmark run.
type run struct {
	tenantID  string
	analyzer  Analyzer
	cancelled atomic.Bool
}

// Engine coordinates benchmark runs against the analyzer and persists
// results through the bm.Store port.
type Engine struct {
	store      bm.Store
	analyzer   Analyzer
	loader     DatasetLoader
	logger     *slog.Logger
	maxConcurrentSamples int
	batchSize            int

	mu   sync.Mutex
	runs map[string]*run
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMaxConcurrentSamples overrides the default semaphore width (10).
func WithMaxConcurrentSamples(n int) Option {
	return func(e *Engine) { e.maxConcurrentSamples = n }
}

// WithBatchSize overrides the default per-batch persistence size (50).
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an Engine over store/analyzer/loader.
func New(store bm.Store, analyzer Analyzer, loader DatasetLoader, opts ...Option) *Engine {
	e := &Engine{
		store:                store,
		analyzer:             analyzer,
		loader:               loader,
		logger:               slog.Default(),
		maxConcurrentSamples: defaultMaxConcurrentSamples,
		batchSize:            defaultBatchSize,
		runs:                 make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartBenchmark loads the dataset, persists a new running BenchmarkRun,
// and spawns the background replay task against the engine's default
// analyzer. Returns the new run's ID immediately; the caller polls
// GetRun/GetMetrics for progress.
func (e *Engine) StartBenchmark(ctx context.Context, datasetName, split string, maxSamples int, tenantID, customDatasetID string) (string, error) {
	return e.startBenchmark(ctx, e.analyzer, datasetName, split, maxSamples, tenantID, customDatasetID)
}

// StartBenchmarkWithAnalyzer is StartBenchmark but replays against
// analyzer instead of the engine's default, letting a caller honor a
// per-request detector_config (spec.md §4.10) without reconstructing the
// engine.
func (e *Engine) StartBenchmarkWithAnalyzer(ctx context.Context, analyzer Analyzer, datasetName, split string, maxSamples int, tenantID, customDatasetID string) (string, error) {
	return e.startBenchmark(ctx, analyzer, datasetName, split, maxSamples, tenantID, customDatasetID)
}

func (e *Engine) startBenchmark(ctx context.Context, analyzer Analyzer, datasetName, split string, maxSamples int, tenantID, customDatasetID string) (string, error) {
	samples, err := e.loader.Load(ctx, datasetName, split, maxSamples, customDatasetID)
	if err != nil {
		return "", &firewallerr.FirewallError{Err: fmt.Errorf("load dataset: %w", err)}
	}

	runID := uuid.NewString()
	r := &bm.Run{
		ID:            runID,
		DatasetName:   datasetName,
		DatasetSource: datasetSource(customDatasetID),
		DatasetSplit:  split,
		StartTime:     time.Now().UTC(),
		Status:        bm.StatusRunning,
		TotalSamples:  len(samples),
	}
	if err := e.store.CreateRun(r); err != nil {
		return "", &firewallerr.FirewallError{Err: fmt.Errorf("create run: %w", err)}
	}

	e.mu.Lock()
	e.runs[runID] = &run{tenantID: tenantID, analyzer: analyzer}
	e.mu.Unlock()

	go e.replay(context.Background(), runID, samples)

	return runID, nil
}

func datasetSource(customDatasetID string) string {
	if customDatasetID != "" {
		return "upload:" + customDatasetID
	}
	return "builtin"
}

// CancelBenchmark sets the cancellation flag for runID. Idempotent: a
// missing or already-cancelled run is not an error.
func (e *Engine) CancelBenchmark(runID string) bool {
	e.mu.Lock()
	r, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	r.cancelled.Store(true)
	return true
}

// replay runs the background task: fan out up to maxConcurrentSamples
// concurrent process_sample calls per batch, persist each batch in one
// transaction, and check the cancellation flag before every batch.
func (e *Engine) replay(ctx context.Context, runID string, samples []bm.Sample) {
	e.mu.Lock()
	r := e.runs[runID]
	e.mu.Unlock()

	var latencies []int64
	processed := 0

	defer func() {
		e.mu.Lock()
		delete(e.runs, runID)
		e.mu.Unlock()
	}()

	for start := 0; start < len(samples); start += e.batchSize {
		if r.cancelled.Load() {
			e.finishCancelled(runID)
			return
		}

		end := start + e.batchSize
		if end > len(samples) {
			end = len(samples)
		}
		batch := samples[start:end]

		results, batchLatencies, err := e.processBatch(ctx, runID, r.tenantID, r.analyzer, start, batch)
		if err != nil {
			e.finishFailed(runID, err)
			return
		}
		if err := e.store.SaveResultsBatch(results); err != nil {
			e.finishFailed(runID, fmt.Errorf("save results batch: %w", err))
			return
		}
		latencies = append(latencies, batchLatencies...)
		processed += len(batch)

		current, err := e.store.GetRun(runID)
		if err != nil {
			e.finishFailed(runID, fmt.Errorf("reload run: %w", err))
			return
		}
		current.ProcessedSamples = processed
		if err := e.store.UpdateRun(current); err != nil {
			e.logger.Error("failed to persist progress", "run_id", runID, "error", err)
		}
	}

	e.finishCompleted(runID, latencies)
}

// processBatch fans batch out to at most maxConcurrentSamples concurrent
// process_sample calls, guarded by a semaphore, and returns results in
// input order.
func (e *Engine) processBatch(ctx context.Context, runID, tenantID string, analyzer Analyzer, startIndex int, batch []bm.Sample) ([]bm.Result, []int64, error) {
	sem := make(chan struct{}, e.maxConcurrentSamples)
	var wg sync.WaitGroup
	results := make([]bm.Result, len(batch))
	latencies := make([]int64, len(batch))

	for i, sample := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sample bm.Sample) {
			defer wg.Done()
			defer func() { <-sem }()
			result := e.processSample(runID, tenantID, analyzer, startIndex+i, sample)
			results[i] = result
			latencies[i] = result.LatencyMs
		}(i, sample)
	}
	wg.Wait()

	return results, latencies, nil
}

// processSample runs the analyzer on one sample and classifies the
// outcome per spec.md §4.10's confusion-matrix mapping.
func (e *Engine) processSample(runID, tenantID string, analyzer Analyzer, sampleIndex int, sample bm.Sample) bm.Result {
	start := time.Now()
	reqCtx := &requestctx.RequestContext{RequestID: uuid.NewString(), Timestamp: start, TenantID: tenantID}

	predicted := bm.PredictedAllowed
	var analysisDetails string

	_, err := analyzer.AnalyzeContent(sample.Text, analysis.DirectionIngress, reqCtx)
	var blocked *analysis.Blocked
	switch {
	case asBlocked(err, &blocked):
		predicted = bm.PredictedBlocked
		analysisDetails = blocked.Reason
	case err != nil:
		predicted = bm.PredictedError
		analysisDetails = err.Error()
	}

	resultType, isCorrect := bm.Classify(sample.Expected, predicted)

	return bm.Result{
		RunID:           runID,
		SampleIndex:     sampleIndex,
		InputText:       sample.Text,
		ExpectedLabel:   sample.Expected,
		PredictedLabel:  predicted,
		IsCorrect:       isCorrect,
		ResultType:      resultType,
		AnalysisDetails: analysisDetails,
		LatencyMs:       time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
}

func asBlocked(err error, target **analysis.Blocked) bool {
	b, ok := err.(*analysis.Blocked)
	if !ok {
		return false
	}
	*target = b
	return true
}

func (e *Engine) finishCancelled(runID string) {
	r, err := e.store.GetRun(runID)
	if err != nil {
		e.logger.Error("failed to load run for cancellation", "run_id", runID, "error", err)
		return
	}
	r.Status = bm.StatusCancelled
	now := time.Now().UTC()
	r.EndTime = &now
	if err := e.store.UpdateRun(r); err != nil {
		e.logger.Error("failed to persist cancellation", "run_id", runID, "error", err)
	}
}

func (e *Engine) finishFailed(runID string, cause error) {
	r, err := e.store.GetRun(runID)
	if err != nil {
		e.logger.Error("failed to load run for failure", "run_id", runID, "error", err)
		return
	}
	r.Status = bm.StatusFailed
	r.ErrorMessage = cause.Error()
	now := time.Now().UTC()
	r.EndTime = &now
	if err := e.store.UpdateRun(r); err != nil {
		e.logger.Error("failed to persist failure", "run_id", runID, "error", err)
	}
}

func (e *Engine) finishCompleted(runID string, latencies []int64) {
	results, err := e.store.GetResultsBySampleIndex(runID)
	if err != nil {
		e.finishFailed(runID, fmt.Errorf("load results for metrics: %w", err))
		return
	}

	m := computeMetrics(runID, results, latencies)
	if err := e.store.SaveMetrics(m); err != nil {
		e.finishFailed(runID, fmt.Errorf("save metrics: %w", err))
		return
	}

	r, err := e.store.GetRun(runID)
	if err != nil {
		e.logger.Error("failed to load run for completion", "run_id", runID, "error", err)
		return
	}
	r.Status = bm.StatusCompleted
	now := time.Now().UTC()
	r.EndTime = &now
	if err := e.store.UpdateRun(r); err != nil {
		e.logger.Error("failed to persist completion", "run_id", runID, "error", err)
	}
}

// computeMetrics aggregates the confusion matrix and latency percentiles
// from the persisted results.
func computeMetrics(runID string, results map[int]bm.Result, latencies []int64) *bm.Metrics {
	m := &bm.Metrics{RunID: runID}
	for _, res := range results {
		switch res.ResultType {
		case bm.TruePositive:
			m.TP++
		case bm.FalsePositive:
			m.FP++
		case bm.TrueNegative:
			m.TN++
		case bm.FalseNegative:
			m.FN++
		}
	}

	if m.TP+m.FP > 0 {
		m.Precision = float64(m.TP) / float64(m.TP+m.FP)
	}
	if m.TP+m.FN > 0 {
		m.Recall = float64(m.TP) / float64(m.TP+m.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	total := m.TP + m.FP + m.TN + m.FN
	if total > 0 {
		m.Accuracy = float64(m.TP+m.TN) / float64(total)
	}

	if len(latencies) > 0 {
		sorted := append([]int64(nil), latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		m.AvgLatencyMs = float64(sum) / float64(len(sorted))
		m.P50LatencyMs = float64(percentile(sorted, 50))
		m.P95LatencyMs = float64(percentile(sorted, 95))
		m.P99LatencyMs = float64(percentile(sorted, 99))
	}

	return m
}

func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Polarity is whether a metric delta counts as an improvement or a
// regression. Latency and error-count metrics are lower-is-better, so
// their polarity is inverted relative to accuracy-style metrics.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// MetricDelta is one named metric's comparison between a candidate and
// the baseline run.
type MetricDelta struct {
	Delta    float64  `json:"delta"`
	Percent  float64  `json:"percent"`
	Polarity Polarity `json:"polarity"`
}

// SampleTransition is one sample index whose classification changed
// between the baseline and a candidate run.
type SampleTransition struct {
	SampleIndex int            `json:"sample_index"`
	From        bm.ResultType  `json:"from"`
	To          bm.ResultType  `json:"to"`
	Kind        string         `json:"kind"`
}

// CandidateReport is one candidate run's comparison against the baseline.
type CandidateReport struct {
	RunID          string                 `json:"run_id"`
	Metrics        map[string]MetricDelta `json:"metrics"`
	SampleChanges  []SampleTransition     `json:"sample_changes"`
	Improvements   int                    `json:"improvements"`
	Regressions    int                    `json:"regressions"`
	NetChange      int                    `json:"net_change"`
}

// ComparisonReport is the result of comparing a baseline run's results
// against one or more candidate runs.
type ComparisonReport struct {
	BaselineRunID string            `json:"baseline_run_id"`
	Candidates    []CandidateReport `json:"candidates"`
}

// lowerIsBetter names the metrics whose polarity is inverted: a
// decrease is an improvement.
var lowerIsBetter = map[string]bool{
	"avg_latency_ms": true,
	"p50_latency_ms": true,
	"p95_latency_ms": true,
	"p99_latency_ms": true,
	"fp":             true,
	"fn":             true,
}

// CompareBenchmarks evaluates baselineRunID against each of
// candidateRunIDs per spec.md §4.10's guardrails and transition
// classification.
func (e *Engine) CompareBenchmarks(baselineRunID string, candidateRunIDs []string) (*ComparisonReport, error) {
	baseline, err := e.store.GetRun(baselineRunID)
	if err != nil {
		return nil, &firewallerr.NotFoundError{Message: fmt.Sprintf("baseline run %s not found", baselineRunID)}
	}
	if err := requireCompleted(baseline); err != nil {
		return nil, err
	}
	baselineMetrics, err := e.store.GetMetrics(baselineRunID)
	if err != nil {
		return nil, &firewallerr.ValidationError{Message: fmt.Sprintf("baseline run %s has no metrics", baselineRunID)}
	}
	baselineResults, err := e.store.GetResultsBySampleIndex(baselineRunID)
	if err != nil {
		return nil, &firewallerr.FirewallError{Err: fmt.Errorf("load baseline results: %w", err)}
	}

	report := &ComparisonReport{BaselineRunID: baselineRunID}

	for _, candidateID := range candidateRunIDs {
		if candidateID == baselineRunID {
			return nil, &firewallerr.ValidationError{Message: fmt.Sprintf("candidate run %s must not equal the baseline", candidateID)}
		}
		candidate, err := e.store.GetRun(candidateID)
		if err != nil {
			return nil, &firewallerr.NotFoundError{Message: fmt.Sprintf("candidate run %s not found", candidateID)}
		}
		if err := requireCompleted(candidate); err != nil {
			return nil, err
		}
		if candidate.DatasetName != baseline.DatasetName || candidate.DatasetSplit != baseline.DatasetSplit {
			return nil, &firewallerr.ValidationError{Message: fmt.Sprintf("candidate run %s does not share dataset_name/dataset_split with the baseline", candidateID)}
		}
		candidateMetrics, err := e.store.GetMetrics(candidateID)
		if err != nil {
			return nil, &firewallerr.ValidationError{Message: fmt.Sprintf("candidate run %s has no metrics", candidateID)}
		}
		candidateResults, err := e.store.GetResultsBySampleIndex(candidateID)
		if err != nil {
			return nil, &firewallerr.FirewallError{Err: fmt.Errorf("load candidate %s results: %w", candidateID, err)}
		}

		report.Candidates = append(report.Candidates, buildCandidateReport(candidateID, baselineMetrics, candidateMetrics, baselineResults, candidateResults))
	}

	return report, nil
}

func requireCompleted(r *bm.Run) error {
	if r.Status != bm.StatusCompleted {
		return &firewallerr.ValidationError{Message: fmt.Sprintf("run %s is not completed (status=%s)", r.ID, r.Status)}
	}
	return nil
}

func buildCandidateReport(candidateID string, baselineMetrics, candidateMetrics *bm.Metrics, baselineResults, candidateResults map[int]bm.Result) CandidateReport {
	report := CandidateReport{
		RunID:   candidateID,
		Metrics: compareMetrics(baselineMetrics, candidateMetrics),
	}

	for sampleIndex, baseResult := range baselineResults {
		candResult, ok := candidateResults[sampleIndex]
		if !ok {
			continue
		}
		kind, improved := classifyTransition(baseResult.ResultType, candResult.ResultType)
		if kind == "" {
			continue
		}
		report.SampleChanges = append(report.SampleChanges, SampleTransition{
			SampleIndex: sampleIndex,
			From:        baseResult.ResultType,
			To:          candResult.ResultType,
			Kind:        kind,
		})
		if improved {
			report.Improvements++
		} else {
			report.Regressions++
		}
	}
	report.NetChange = report.Improvements - report.Regressions

	return report
}

// classifyTransition maps a (from, to) ResultType pair to spec.md
// §4.10's named transition kinds. Returns an empty kind for an
// unchanged or unrecognized pair, which the caller drops.
func classifyTransition(from, to bm.ResultType) (kind string, improved bool) {
	switch {
	case from == bm.TruePositive && to == bm.FalseNegative:
		return "critical_regression", false
	case from == bm.TrueNegative && to == bm.FalsePositive:
		return "new_false_positive", false
	case from == bm.FalseNegative && to == bm.TruePositive:
		return "new_detection", true
	case from == bm.FalsePositive && to == bm.TrueNegative:
		return "fixed_false_positive", true
	default:
		return "", false
	}
}

func compareMetrics(baseline, candidate *bm.Metrics) map[string]MetricDelta {
	return map[string]MetricDelta{
		"precision":      deltaFor("precision", baseline.Precision, candidate.Precision),
		"recall":         deltaFor("recall", baseline.Recall, candidate.Recall),
		"f1":             deltaFor("f1", baseline.F1, candidate.F1),
		"accuracy":       deltaFor("accuracy", baseline.Accuracy, candidate.Accuracy),
		"avg_latency_ms": deltaFor("avg_latency_ms", baseline.AvgLatencyMs, candidate.AvgLatencyMs),
		"p50_latency_ms": deltaFor("p50_latency_ms", baseline.P50LatencyMs, candidate.P50LatencyMs),
		"p95_latency_ms": deltaFor("p95_latency_ms", baseline.P95LatencyMs, candidate.P95LatencyMs),
		"p99_latency_ms": deltaFor("p99_latency_ms", baseline.P99LatencyMs, candidate.P99LatencyMs),
		"fp":             deltaFor("fp", float64(baseline.FP), float64(candidate.FP)),
		"fn":             deltaFor("fn", float64(baseline.FN), float64(candidate.FN)),
	}
}

func deltaFor(name string, baseline, candidate float64) MetricDelta {
	delta := candidate - baseline
	var percent float64
	if baseline != 0 {
		percent = delta / baseline * 100
	}

	polarity := PolarityNeutral
	switch {
	case delta > 0:
		polarity = PolarityPositive
	case delta < 0:
		polarity = PolarityNegative
	}
	if lowerIsBetter[name] && polarity != PolarityNeutral {
		if polarity == PolarityPositive {
			polarity = PolarityNegative
		} else {
			polarity = PolarityPositive
		}
	}

	return MetricDelta{Delta: delta, Percent: percent, Polarity: polarity}
}
