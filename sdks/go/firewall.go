// Package firewall provides a Go SDK for the semantic firewall's chat and
// benchmark API. It lets a Go application route its LLM traffic through the
// firewall's POST /api/chat endpoint before forwarding a message to its own
// backend, and drive the benchmark harness. It uses only the Go standard
// library (net/http) with zero external dependencies.
//
// Quick start:
//
//	// Set FIREWALL_SDK_SERVER_ADDR, then:
//	client := firewall.NewClient()
//
//	resp, err := client.Chat(ctx, firewall.ChatRequest{Message: "hello"})
//	if err != nil {
//	    var blocked *firewall.BlockedError
//	    if errors.As(err, &blocked) {
//	        fmt.Printf("blocked: %s\n", blocked.Reason)
//	    }
//	}
package firewall

// DetectorConfig names the detector variant to use per category, for a
// request that opts out of the server's default firewall instance.
type DetectorConfig struct {
	PIIVariant             string  `json:"pii_variant,omitempty"`
	PIIMockScore           float64 `json:"pii_mock_score,omitempty"`
	ToxicityVariant        string  `json:"toxicity_variant,omitempty"`
	PromptInjectionVariant string  `json:"prompt_injection_variant,omitempty"`
}

// ChatRequest is the payload of POST /api/chat.
type ChatRequest struct {
	Message        string          `json:"message"`
	RequestID      string          `json:"request_id,omitempty"`
	AnalyzeEgress  *bool           `json:"analyze_egress,omitempty"`
	DetectorConfig *DetectorConfig `json:"detector_config,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
}

// MLSignalScore is one detector's score/flag pair.
type MLSignalScore struct {
	Score float64  `json:"score"`
	Flags []string `json:"flags,omitempty"`
}

// MLSignals mirrors the server's mlsignals.MLSignals on the wire.
type MLSignals struct {
	PromptInjection MLSignalScore `json:"prompt_injection"`
	PII             MLSignalScore `json:"pii"`
	Toxicity        MLSignalScore `json:"toxicity"`
	Heuristic       MLSignalScore `json:"heuristic"`
}

// PolicyDecision mirrors the server's policy.Decision on the wire.
type PolicyDecision struct {
	Blocked     bool    `json:"blocked"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	MatchedRule string  `json:"matched_rule,omitempty"`
}

// LatencyBreakdown mirrors the server's event.LatencyBreakdown.
type LatencyBreakdown struct {
	PreprocessingMs int64 `json:"preprocessing_ms"`
	MLDetectorsMs   int64 `json:"ml_detectors_ms"`
	PolicyMs        int64 `json:"policy_ms"`
	TotalMs         int64 `json:"total_ms"`
}

// ChatResponse is the server's response to POST /api/chat.
type ChatResponse struct {
	RequestID        string           `json:"request_id"`
	Blocked          bool             `json:"blocked"`
	Reason           string           `json:"reason,omitempty"`
	Reply            string           `json:"reply,omitempty"`
	MLDetectors      MLSignals        `json:"ml_detectors"`
	Policy           PolicyDecision   `json:"policy"`
	LatencyBreakdown LatencyBreakdown `json:"latency_breakdown"`
	TotalLatencyMs   int64            `json:"total_latency_ms"`
}

// BenchmarkStartRequest is the payload of POST /api/benchmarks/start.
type BenchmarkStartRequest struct {
	Dataset         string          `json:"dataset"`
	Split           string          `json:"split"`
	MaxSamples      int             `json:"max_samples"`
	TenantID        string          `json:"tenant_id,omitempty"`
	DetectorConfig  *DetectorConfig `json:"detector_config,omitempty"`
	CustomDatasetID string          `json:"custom_dataset_id,omitempty"`
}

// BenchmarkRun mirrors the server's benchmark.Run on the wire.
type BenchmarkRun struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Dataset         string `json:"dataset"`
	Split           string `json:"split"`
	TotalSamples    int    `json:"total_samples"`
	ProcessedCount  int    `json:"processed_count"`
	TenantID        string `json:"tenant_id"`
	CustomDatasetID string `json:"custom_dataset_id,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// BenchmarkMetrics mirrors the server's benchmark.Metrics on the wire.
type BenchmarkMetrics struct {
	RunID              string  `json:"run_id"`
	Accuracy           float64 `json:"accuracy"`
	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1Score            float64 `json:"f1_score"`
	FalsePositiveRate  float64 `json:"false_positive_rate"`
	FalseNegativeRate  float64 `json:"false_negative_rate"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	P95LatencyMs       float64 `json:"p95_latency_ms"`
	P99LatencyMs       float64 `json:"p99_latency_ms"`
	TruePositives      int     `json:"true_positives"`
	TrueNegatives      int     `json:"true_negatives"`
	FalsePositives     int     `json:"false_positives"`
	FalseNegatives     int     `json:"false_negatives"`
}
