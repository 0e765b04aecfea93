// Package analyzer implements the analyzer (C6): it chains preprocessing,
// the ML filter, and the policy engine into one analyze_content pass, the
// sole component allowed to raise analysis.Blocked. Grounded on the
// teacher's InterceptorChain shape (internal/domain/action/chain.go),
// generalized from a tool-call interceptor chain to a three-stage content
// analysis pipeline.
package analyzer

import (
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/analysis"
	"github.com/dannycabezas/semantic-firewall/internal/domain/mlsignals"
	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
	"github.com/dannycabezas/semantic-firewall/internal/domain/preprocess"
	"github.com/dannycabezas/semantic-firewall/internal/domain/requestctx"
)

// MLFilter is the port the analyzer fans content out to (C3).
type MLFilter interface {
	Analyze(text string, reqCtx *requestctx.RequestContext) mlsignals.MLSignals
}

// Analyzer chains preprocessing -> ML filter -> policy evaluation.
type Analyzer struct {
	store     preprocess.Store
	mlFilter  MLFilter
	evaluator policy.Evaluator
}

// New builds an Analyzer. store may be nil (no vector persistence).
func New(store preprocess.Store, mlFilter MLFilter, evaluator policy.Evaluator) *Analyzer {
	return &Analyzer{store: store, mlFilter: mlFilter, evaluator: evaluator}
}

// AnalyzeContent runs C2->C3->C4 against content for the given direction.
// On a blocked policy decision it returns *analysis.Blocked as the error,
// which the gateway is expected to type-assert against.
func (a *Analyzer) AnalyzeContent(content string, direction analysis.Direction, reqCtx *requestctx.RequestContext) (analysis.Result, error) {
	start := time.Now()

	preprocessed := preprocess.Preprocess(content, a.store)
	signals := a.mlFilter.Analyze(preprocessed.Normalized, reqCtx)
	evalCtx := buildEvaluationContext(preprocessed, signals, reqCtx)

	decision, err := a.evaluator.Evaluate(evalCtx)
	if err != nil {
		return analysis.Result{}, err
	}

	result := analysis.Result{
		Preprocessed: preprocessed,
		MLSignals:    signals,
		Decision:     decision,
		Direction:    direction,
		LatencyMs:    time.Since(start).Milliseconds(),
	}

	if decision.Blocked {
		return result, &analysis.Blocked{
			Reason:       decision.Reason,
			Direction:    direction,
			MLSignals:    signals,
			Preprocessed: preprocessed,
			Decision:     decision,
		}
	}

	return result, nil
}

func buildEvaluationContext(p preprocess.PreprocessedText, signals mlsignals.MLSignals, reqCtx *requestctx.RequestContext) policy.EvaluationContext {
	evalCtx := policy.EvaluationContext{
		PIIScore:               signals.PII.Score,
		ToxicityScore:          signals.Toxicity.Score,
		PromptInjectionScore:   signals.PromptInjection.Score,
		HeuristicBlocked:       signals.Heuristic.Blocked,
		HeuristicFlags:         signals.Heuristic.Flags,
		FeatureLength:          p.Features.Length,
		FeatureWordCount:       p.Features.WordCount,
		FeatureCharCount:       p.Features.CharCount,
		FeatureHasNumbers:      p.Features.HasNumbers,
		FeatureHasSpecialChars: p.Features.HasSpecialChars,
		FeatureURLCount:        p.Features.URLCount,
		FeatureEmailCount:      p.Features.EmailCount,
	}
	if reqCtx != nil {
		evalCtx.TenantID = reqCtx.TenantID
	}
	return evalCtx
}
