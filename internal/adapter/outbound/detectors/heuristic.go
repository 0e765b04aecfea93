package detectors

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
)

// RulesConfig is the YAML shape of a heuristic rules file: a
// case-insensitive regex pattern list plus a substring denylist, per
// spec.md §4.1's "regex" variant.
type RulesConfig struct {
	Patterns []string `yaml:"patterns"`
	Denylist []string `yaml:"denylist"`
}

// DefaultRules is used when no rules file is configured. The pattern bank
// is adapted directly from the teacher's ResponseScanner
// (internal/domain/action/response_scanner.go), generalized from
// MCP-tool-response prompt-injection scanning to inbound/outbound chat
// message scanning.
var DefaultRules = RulesConfig{
	Patterns: []string{
		`(?i)(?:ignore|disregard|forget)\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|prompts|rules|context)`,
		`(?i)you\s+are\s+(?:now|actually|really)\s+(?:a|an|my)\s+`,
		`(?i)(?:new\s+instructions?|updated?\s+(?:instructions?|rules?|prompt)):\s*`,
		`(?i)<\s*(?:system|assistant|user|human|ai)\s*>`,
		`(?i)(?:DAN|do\s+anything\s+now|jailbreak|ignore\s+safety)`,
	},
	Denylist: []string{
		"denytoken",
	},
}

type compiledPattern struct {
	name string
	re   *regexp.Regexp
}

// RegexHeuristicDetector is the "regex" heuristic variant: a compiled
// pattern bank plus a substring denylist, all compiled once at
// construction.
type RegexHeuristicDetector struct {
	patterns []compiledPattern
	denylist []string
}

// LoadRulesFile reads a YAML rules file in the shape of RulesConfig.
func LoadRulesFile(path string) (RulesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RulesConfig{}, err
	}
	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RulesConfig{}, err
	}
	return cfg, nil
}

// NewRegexHeuristicDetector compiles the given rules. An empty
// RulesConfig{} falls back to DefaultRules.
func NewRegexHeuristicDetector(cfg RulesConfig) *RegexHeuristicDetector {
	if len(cfg.Patterns) == 0 && len(cfg.Denylist) == 0 {
		cfg = DefaultRules
	}
	compiled := make([]compiledPattern, 0, len(cfg.Patterns))
	for i, p := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledPattern{name: ruleName(i), re: re})
	}
	return &RegexHeuristicDetector{patterns: compiled, denylist: cfg.Denylist}
}

func ruleName(i int) string {
	names := []string{
		"system_prompt_override", "role_hijack", "instruction_injection",
		"system_tag_injection", "do_anything_now",
	}
	if i < len(names) {
		return names[i]
	}
	return "pattern_rule"
}

// Detect runs the compiled pattern bank and denylist over text.
func (d *RegexHeuristicDetector) Detect(text string) detector.HeuristicResult {
	start := time.Now()

	if text == "" {
		return detector.HeuristicResult{LatencyMs: time.Since(start).Milliseconds()}
	}

	lower := strings.ToLower(text)
	for _, token := range d.denylist {
		if token == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(token)) {
			return detector.HeuristicResult{
				Blocked:   true,
				Flags:     []string{"denylist:" + token},
				Reason:    "Contains denylisted token: " + token,
				Score:     1,
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}
	}

	var flags []string
	for _, p := range d.patterns {
		if p.re.MatchString(text) {
			flags = append(flags, p.name)
		}
	}

	if len(flags) > 0 {
		return detector.HeuristicResult{
			Blocked:   true,
			Flags:     flags,
			Reason:    "Heuristic detection blocked",
			Score:     1,
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	return detector.HeuristicResult{LatencyMs: time.Since(start).Milliseconds()}
}
