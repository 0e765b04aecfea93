// Package detectors provides the concrete detector variants enumerated by
// spec.md §4.1. The concrete ML models themselves (ONNX graphs, transformer
// checkpoints) are out of scope; these implementations apply the spec's
// scoring conventions with deterministic keyword/regex heuristics in place
// of the real backends, which is exactly the "fallback mode" spec.md §4.1
// describes for a detector whose model fails to load — here it is simply
// the only mode, since no model is ever loaded.
package detectors

import "strings"

// injectionKeywords drives the custom_onnx fallback scoring formula of
// spec.md §4.1: 0 matches -> 0.0, 1 -> 0.3, 2 -> 0.6, 3+ -> 0.3 + 0.2*(n-1)
// capped at 0.9.
var injectionKeywords = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard previous",
	"forget previous instructions",
	"you are now",
	"new instructions",
	"reveal the system prompt",
	"reveal your system prompt",
	"system prompt",
	"jailbreak",
	"do anything now",
	"dan mode",
	"bypass safety",
	"ignore safety",
}

func countKeywordMatches(normalized string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(normalized, kw) {
			count++
		}
	}
	return count
}

// KeywordInjectionScore applies the embedding-unavailable fallback formula
// of spec.md §4.1 directly.
func KeywordInjectionScore(text string) float64 {
	matches := countKeywordMatches(strings.ToLower(text), injectionKeywords)
	switch matches {
	case 0:
		return 0.0
	case 1:
		return 0.3
	case 2:
		return 0.6
	default:
		score := 0.3 + 0.2*float64(matches-1)
		if score > 0.9 {
			score = 0.9
		}
		return score
	}
}

// labelConfidence derives a pseudo-classifier confidence in [0,1] from
// keyword density, standing in for a real transformer's softmax output.
func labelConfidence(normalized string, keywords []string) float64 {
	matches := countKeywordMatches(normalized, keywords)
	if matches == 0 {
		return 0.0
	}
	conf := 0.5 + 0.15*float64(matches)
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// LabelMappingScore applies the DeBERTa/Llama-Guard label-to-score mapping
// of spec.md §4.1: BENIGN -> 1 - confidence; INJECTION/JAILBREAK ->
// 0.7 + confidence*0.3. Jailbreak keeps the identical mapping to injection
// per spec.md §9's open question.
func LabelMappingScore(text string) float64 {
	normalized := strings.ToLower(text)
	conf := labelConfidence(normalized, injectionKeywords)
	if conf == 0.0 {
		// BENIGN branch: confidence of "benign" is high when no signal found.
		return 1 - 0.95
	}
	return 0.7 + conf*0.3
}

var toxicityKeywords = []string{
	"kill you", "hate you", "idiot", "stupid", "shut up", "worthless",
	"disgusting", "racist", "slur", "i will hurt", "threaten",
}

// KeywordToxicityScore is the fallback scorer behind the detoxify/onnx
// toxicity variants.
func KeywordToxicityScore(text string) float64 {
	normalized := strings.ToLower(text)
	matches := countKeywordMatches(normalized, toxicityKeywords)
	switch {
	case matches == 0:
		return 0.0
	case matches == 1:
		return 0.5
	default:
		score := 0.5 + 0.15*float64(matches-1)
		if score > 0.95 {
			score = 0.95
		}
		return score
	}
}
