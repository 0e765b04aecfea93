package policyengine

import (
	"strings"
	"testing"

	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

func TestRuleTableEvaluator_HeuristicBlockedWins(t *testing.T) {
	eval, err := NewRuleTableEvaluator(policy.Policy{}, nil)
	if err != nil {
		t.Fatalf("NewRuleTableEvaluator() error: %v", err)
	}

	decision, err := eval.Evaluate(policy.EvaluationContext{HeuristicBlocked: true, PIIScore: 0.1})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !decision.Blocked {
		t.Error("expected heuristic_block rule to block")
	}
	if decision.MatchedRule != "heuristic_block" {
		t.Errorf("expected matched_rule heuristic_block, got %q", decision.MatchedRule)
	}
}

func TestRuleTableEvaluator_PIIThreshold(t *testing.T) {
	eval, err := NewRuleTableEvaluator(policy.Policy{}, nil)
	if err != nil {
		t.Fatalf("NewRuleTableEvaluator() error: %v", err)
	}

	blocked, err := eval.Evaluate(policy.EvaluationContext{PIIScore: 0.9})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !blocked.Blocked {
		t.Error("expected pii_score 0.9 to block")
	}
	if blocked.MatchedRule != "pii_threshold" {
		t.Errorf("expected matched_rule pii_threshold, got %q", blocked.MatchedRule)
	}
	if blocked.Reason != "High PII score detected" {
		t.Errorf("expected reason 'High PII score detected', got %q", blocked.Reason)
	}

	allowed, err := eval.Evaluate(policy.EvaluationContext{PIIScore: 0.5})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if allowed.Blocked {
		t.Error("expected pii_score 0.5 to allow")
	}
}

func TestRuleTableEvaluator_DefaultAllow(t *testing.T) {
	eval, err := NewRuleTableEvaluator(policy.Policy{}, nil)
	if err != nil {
		t.Fatalf("NewRuleTableEvaluator() error: %v", err)
	}

	decision, err := eval.Evaluate(policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if decision.Blocked {
		t.Error("expected clean context to default-allow")
	}
	if decision.MatchedRule != "" {
		t.Errorf("expected no matched rule, got %q", decision.MatchedRule)
	}
}

func TestRuleTableEvaluator_OversizedInput(t *testing.T) {
	eval, err := NewRuleTableEvaluator(policy.Policy{}, nil)
	if err != nil {
		t.Fatalf("NewRuleTableEvaluator() error: %v", err)
	}

	decision, err := eval.Evaluate(policy.EvaluationContext{FeatureLength: 4001})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !decision.Blocked {
		t.Error("expected length 4001 to block")
	}
	if decision.MatchedRule != "max_length" {
		t.Errorf("expected matched_rule max_length, got %q", decision.MatchedRule)
	}
	if !strings.Contains(decision.Reason, "too long") {
		t.Errorf("expected reason to contain 'too long', got %q", decision.Reason)
	}

	decision, err = eval.Evaluate(policy.EvaluationContext{FeatureLength: 4000})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if decision.Blocked {
		t.Error("expected length 4000 (boundary) to allow")
	}
}

func TestRuleTableEvaluator_Reload(t *testing.T) {
	eval, err := NewRuleTableEvaluator(policy.Policy{}, nil)
	if err != nil {
		t.Fatalf("NewRuleTableEvaluator() error: %v", err)
	}

	custom := policy.Policy{
		Rules: []policy.Rule{
			{Name: "always_block", Condition: "true", Action: policy.ActionBlock, Reason: "test"},
		},
		DefaultAction: policy.ActionAllow,
	}
	if err := eval.Reload(custom); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	decision, err := eval.Evaluate(policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !decision.Blocked || decision.MatchedRule != "always_block" {
		t.Errorf("expected reloaded policy to always block, got %+v", decision)
	}
}

func TestRuleTableEvaluator_InvalidConditionRejected(t *testing.T) {
	bad := policy.Policy{
		Rules: []policy.Rule{
			{Name: "bad", Condition: "not valid cel !!!", Action: policy.ActionBlock},
		},
	}
	if _, err := NewRuleTableEvaluator(bad, nil); err == nil {
		t.Fatal("expected error compiling invalid rule condition")
	}
}
