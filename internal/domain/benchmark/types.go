// Package benchmark holds the entities of spec.md's benchmark harness:
// runs, per-sample results, aggregate metrics, and uploaded-dataset
// metadata, plus the store port (C11).
package benchmark

import "time"

// Status is a BenchmarkRun's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is a single benchmark execution against a dataset.
type Run struct {
	ID               string    `json:"id"`
	DatasetName      string    `json:"dataset_name"`
	DatasetSource    string    `json:"dataset_source"`
	DatasetSplit     string    `json:"dataset_split"`
	ConfigSnapshot   string    `json:"config_snapshot"`
	StartTime        time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Status           Status    `json:"status"`
	TotalSamples     int       `json:"total_samples"`
	ProcessedSamples int       `json:"processed_samples"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// ExpectedLabel is the ground-truth label of a benchmark sample.
type ExpectedLabel string

const (
	LabelBenign    ExpectedLabel = "benign"
	LabelJailbreak ExpectedLabel = "jailbreak"
)

// PredictedLabel is what the pipeline actually did with a sample.
type PredictedLabel string

const (
	PredictedAllowed PredictedLabel = "allowed"
	PredictedBlocked PredictedLabel = "blocked"
	PredictedError   PredictedLabel = "error"
)

// ResultType is the confusion-matrix bucket a sample falls into.
// "Positive" means "predicted blocked"; ground truth "jailbreak" is the
// positive class.
type ResultType string

const (
	TruePositive  ResultType = "TRUE_POSITIVE"
	FalsePositive ResultType = "FALSE_POSITIVE"
	TrueNegative  ResultType = "TRUE_NEGATIVE"
	FalseNegative ResultType = "FALSE_NEGATIVE"
	ResultError   ResultType = "ERROR"
)

// Result is one sample's outcome within a Run.
type Result struct {
	RunID          string         `json:"run_id"`
	SampleIndex    int            `json:"sample_index"`
	InputText      string         `json:"input_text"`
	ExpectedLabel  ExpectedLabel  `json:"expected_label"`
	PredictedLabel PredictedLabel `json:"predicted_label"`
	IsCorrect      bool           `json:"is_correct"`
	ResultType     ResultType     `json:"result_type"`
	AnalysisDetails string        `json:"analysis_details,omitempty"`
	LatencyMs      int64          `json:"latency_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Classify applies the confusion-matrix mapping of spec.md §4.10.
func Classify(expected ExpectedLabel, predicted PredictedLabel) (ResultType, bool) {
	switch {
	case predicted == PredictedError:
		return ResultError, false
	case expected == LabelJailbreak && predicted == PredictedBlocked:
		return TruePositive, true
	case expected == LabelJailbreak && predicted == PredictedAllowed:
		return FalseNegative, false
	case expected == LabelBenign && predicted == PredictedBlocked:
		return FalsePositive, false
	case expected == LabelBenign && predicted == PredictedAllowed:
		return TrueNegative, true
	default:
		return ResultError, false
	}
}

// Metrics is the aggregate confusion-matrix and latency summary for a
// completed run.
type Metrics struct {
	RunID        string  `json:"run_id"`
	TP           int     `json:"tp"`
	FP           int     `json:"fp"`
	TN           int     `json:"tn"`
	FN           int     `json:"fn"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1           float64 `json:"f1"`
	Accuracy     float64 `json:"accuracy"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

// DatasetFileType enumerates the upload MIME types spec.md accepts.
type DatasetFileType string

const (
	FileTypeCSV  DatasetFileType = "text/csv"
	FileTypeJSON DatasetFileType = "application/json"
)

// DatasetMetadata describes an uploaded custom dataset.
type DatasetMetadata struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	FileKey      string          `json:"file_key"`
	FileType     DatasetFileType `json:"file_type"`
	TotalSamples int             `json:"total_samples"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Sample is one (text, expected label) pair loaded from a dataset.
type Sample struct {
	Text     string
	Expected ExpectedLabel
}

// Store is the C11 persistence port: three tables (runs, results, metrics)
// plus dataset metadata. SaveResultsBatch must be a single transaction.
type Store interface {
	CreateRun(run *Run) error
	UpdateRun(run *Run) error
	GetRun(runID string) (*Run, error)
	ListRuns() ([]*Run, error)

	SaveResultsBatch(results []Result) error
	GetResults(runID string, resultType ResultType, limit, offset int) ([]Result, error)
	GetResultsBySampleIndex(runID string) (map[int]Result, error)
	GetErrors(runID string) ([]Result, error)

	SaveMetrics(m *Metrics) error
	GetMetrics(runID string) (*Metrics, error)

	SaveDataset(meta *DatasetMetadata) error
	GetDataset(id string) (*DatasetMetadata, error)
	ListDatasets() ([]*DatasetMetadata, error)
	DeleteDataset(id string) error
}
