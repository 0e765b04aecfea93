package policyengine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

// externalRequest is the payload shipped to the external decision service.
type externalRequest struct {
	Input externalInput `json:"input"`
}

type externalInput struct {
	MLSignals externalMLSignals `json:"ml_signals"`
	Features  map[string]any    `json:"features"`
	Tenant    externalTenant    `json:"tenant_context"`
}

type externalMLSignals struct {
	PIIScore             float64  `json:"pii_score"`
	ToxicityScore        float64  `json:"toxicity_score"`
	PromptInjectionScore float64  `json:"prompt_injection_score"`
	HeuristicBlocked     bool     `json:"heuristic_blocked"`
	HeuristicFlags       []string `json:"heuristic_flags"`
}

type externalTenant struct {
	ID   string         `json:"id"`
	Meta map[string]any `json:"metadata,omitempty"`
}

type externalResponse struct {
	Blocked     bool    `json:"blocked"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	MatchedRule string  `json:"matched_rule,omitempty"`
}

// ExternalEvaluator ships the evaluation context to an external decision
// service over HTTP. It re-uploads the policy document only when its hash
// changes, and fails open (allow, confidence 0) on any transport or decoding
// error unless FailOpen is false, since an unreachable policy sidecar must
// never silently block every request by default.
type ExternalEvaluator struct {
	endpoint string
	client   *http.Client
	failOpen bool
	logger   *slog.Logger

	mu         sync.Mutex
	policyHash string
}

// ExternalEvaluatorOption configures an ExternalEvaluator at construction.
type ExternalEvaluatorOption func(*ExternalEvaluator)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ExternalEvaluatorOption {
	return func(e *ExternalEvaluator) { e.client = c }
}

// WithFailOpen sets whether an unreachable or erroring external evaluator
// falls back to allow (true, the default) or block (false).
func WithFailOpen(failOpen bool) ExternalEvaluatorOption {
	return func(e *ExternalEvaluator) { e.failOpen = failOpen }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ExternalEvaluatorOption {
	return func(e *ExternalEvaluator) { e.logger = logger }
}

// NewExternalEvaluator builds an evaluator that POSTs to endpoint.
func NewExternalEvaluator(endpoint string, opts ...ExternalEvaluatorOption) *ExternalEvaluator {
	e := &ExternalEvaluator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		failOpen: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncPolicy hashes p and uploads it to the external evaluator's
// /policy endpoint only if the hash differs from the last upload,
// avoiding a round trip on every request.
func (e *ExternalEvaluator) SyncPolicy(ctx context.Context, p policy.Policy) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("policyengine: marshal policy: %w", err)
	}
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	e.mu.Lock()
	unchanged := hash == e.policyHash
	e.mu.Unlock()
	if unchanged {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.endpoint+"/policy", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("policyengine: build policy sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("policyengine: policy sync request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("policyengine: policy sync returned status %d", resp.StatusCode)
	}

	e.mu.Lock()
	e.policyHash = hash
	e.mu.Unlock()
	return nil
}

// Evaluate ships evalCtx to the external decision service and maps its
// response into a Decision. On any transport, status, or decode error it
// fails open (or closed, per WithFailOpen) rather than returning the error,
// since the analyzer's only recourse on an evaluator error is to treat the
// request as unclassified.
func (e *ExternalEvaluator) Evaluate(evalCtx policy.EvaluationContext) (policy.Decision, error) {
	reqBody := externalRequest{
		Input: externalInput{
			MLSignals: externalMLSignals{
				PIIScore:             evalCtx.PIIScore,
				ToxicityScore:        evalCtx.ToxicityScore,
				PromptInjectionScore: evalCtx.PromptInjectionScore,
				HeuristicBlocked:     evalCtx.HeuristicBlocked,
				HeuristicFlags:       evalCtx.HeuristicFlags,
			},
			Features: map[string]any{
				"length":            evalCtx.FeatureLength,
				"word_count":        evalCtx.FeatureWordCount,
				"char_count":        evalCtx.FeatureCharCount,
				"has_numbers":       evalCtx.FeatureHasNumbers,
				"has_special_chars": evalCtx.FeatureHasSpecialChars,
				"url_count":         evalCtx.FeatureURLCount,
				"email_count":       evalCtx.FeatureEmailCount,
			},
			Tenant: externalTenant{ID: evalCtx.TenantID, Meta: evalCtx.Tenant},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return e.fallback(fmt.Errorf("marshal evaluation request: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return e.fallback(fmt.Errorf("build evaluation request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return e.fallback(fmt.Errorf("evaluation request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return e.fallback(fmt.Errorf("evaluation service returned status %d", resp.StatusCode))
	}

	var out externalResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return e.fallback(fmt.Errorf("decode evaluation response: %w", err))
	}

	return policy.Decision{
		Blocked:     out.Blocked,
		Reason:      out.Reason,
		Confidence:  out.Confidence,
		MatchedRule: out.MatchedRule,
	}, nil
}

func (e *ExternalEvaluator) fallback(err error) (policy.Decision, error) {
	e.logger.Error("external policy evaluator unreachable, falling back", "error", err, "fail_open", e.failOpen)
	if e.failOpen {
		return policy.Decision{
			Blocked:    false,
			Reason:     "external policy evaluator unavailable, failed open",
			Confidence: 0,
		}, nil
	}
	return policy.Decision{
		Blocked:    true,
		Reason:     "external policy evaluator unavailable, failed closed",
		Confidence: 0,
	}, nil
}
