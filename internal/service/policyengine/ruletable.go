// Package policyengine implements the two policy-evaluator variants named
// in spec.md §4.4: a rule-table evaluator backed by CEL conditions, and an
// external-engine-over-HTTP evaluator. Grounded on the teacher's CEL
// evaluator (internal/adapter/outbound/cel), generalized from tool-call
// approval rules to detector-score rules.
package policyengine

import (
	"fmt"
	"log/slog"
	"sync"

	celgo "github.com/google/cel-go/cel"

	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/cel"
	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

// DefaultPolicy is used when no policy document is configured or the store
// is empty. It reproduces spec.md §4.4's baseline thresholds, with rule
// names and reasons matching original_source's yaml_policy_loader.py
// default rule table literally (plus prompt_injection_threshold, which the
// original's four-rule default omits but spec.md §8's scenario 2 requires).
var DefaultPolicy = policy.Policy{
	Name: "default",
	Rules: []policy.Rule{
		{
			Name:      "heuristic_block",
			Condition: "heuristic_blocked",
			Action:    policy.ActionBlock,
			Reason:    "Heuristic detection blocked",
		},
		{
			Name:      "pii_threshold",
			Condition: "pii_score > 0.8",
			Action:    policy.ActionBlock,
			Reason:    "High PII score detected",
		},
		{
			Name:      "toxicity_threshold",
			Condition: "toxicity_score > 0.7",
			Action:    policy.ActionBlock,
			Reason:    "High toxicity score detected",
		},
		{
			Name:      "prompt_injection_threshold",
			Condition: "prompt_injection_score > 0.8",
			Action:    policy.ActionBlock,
			Reason:    "High prompt injection score detected",
		},
		{
			Name:      "max_length",
			Condition: "feature(features, \"length\") > 4000",
			Action:    policy.ActionBlock,
			Reason:    "Prompt too long",
		},
	},
	DefaultAction: policy.ActionAllow,
}

// compiledRule pairs a Rule with its compiled CEL program.
type compiledRule struct {
	policy.Rule
	program celgo.Program
}

// RuleTableEvaluator evaluates an ordered rule table compiled once at
// construction (or on policy reload) rather than per request. CEL programs
// are compiled and evaluated through the shared hardened cel.Evaluator
// (expression length/nesting validation, cost limit, context timeout).
type RuleTableEvaluator struct {
	mu     sync.RWMutex
	eval   *cel.Evaluator
	rules  []compiledRule
	def    policy.Action
	logger *slog.Logger
}

// NewRuleTableEvaluator compiles p's rules against the policy CEL
// environment. An empty Policy{} compiles DefaultPolicy instead.
func NewRuleTableEvaluator(p policy.Policy, logger *slog.Logger) (*RuleTableEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(p.Rules) == 0 {
		p = DefaultPolicy
	}
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("policyengine: build cel evaluator: %w", err)
	}
	e := &RuleTableEvaluator{eval: eval, def: p.DefaultAction, logger: logger}
	if e.def == "" {
		e.def = policy.ActionAllow
	}
	if err := e.compile(p); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *RuleTableEvaluator) compile(p policy.Policy) error {
	compiled := make([]compiledRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if err := e.eval.ValidateExpression(r.Condition); err != nil {
			return fmt.Errorf("policyengine: invalid condition for rule %q: %w", r.Name, err)
		}
		prg, err := e.eval.Compile(r.Condition)
		if err != nil {
			return fmt.Errorf("policyengine: compile rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, program: prg})
	}
	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// Reload recompiles the evaluator against a new policy document, atomically
// replacing the rule set in use by concurrent Evaluate calls.
func (e *RuleTableEvaluator) Reload(p policy.Policy) error {
	return e.compile(p)
}

// Evaluate runs the rule table in order and returns the first match. Rules
// that fail to evaluate (a CEL runtime error) are skipped, not fatal — the
// evaluator falls through to the next rule rather than returning an error,
// since a single malformed rule must never take the whole policy engine
// down.
func (e *RuleTableEvaluator) Evaluate(evalCtx policy.EvaluationContext) (policy.Decision, error) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		matched, err := e.eval.Evaluate(r.program, evalCtx)
		if err != nil {
			e.logger.Warn("policy rule evaluation error", "rule", r.Name, "error", err)
			continue
		}
		if !matched {
			continue
		}
		return policy.Decision{
			Blocked:     r.Action == policy.ActionBlock,
			Reason:      r.Reason,
			Confidence:  0.9,
			MatchedRule: r.Name,
		}, nil
	}

	return policy.Decision{
		Blocked:    e.def == policy.ActionBlock,
		Reason:     "no rule matched, default action applied",
		Confidence: 0.5,
	}, nil
}
