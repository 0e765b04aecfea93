package cel

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

// NewUniversalPolicyEnvironment creates the CEL environment rule conditions
// are compiled and evaluated against. It declares:
//   - detector scores: pii_score, toxicity_score, prompt_injection_score
//   - heuristic outcome: heuristic_blocked, heuristic_flags
//   - preprocessor features: features (length, word_count, char_count,
//     has_numbers, has_special_chars, url_count, email_count)
//   - tenant metadata: tenant_id, tenant
//   - custom functions: has_flag, feature, contains_any
func NewUniversalPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("pii_score", cel.DoubleType),
		cel.Variable("toxicity_score", cel.DoubleType),
		cel.Variable("prompt_injection_score", cel.DoubleType),

		cel.Variable("heuristic_blocked", cel.BoolType),
		cel.Variable("heuristic_flags", cel.ListType(cel.StringType)),

		cel.Variable("features", cel.MapType(cel.StringType, cel.DynType)),

		cel.Variable("tenant_id", cel.StringType),
		cel.Variable("tenant", cel.MapType(cel.StringType, cel.DynType)),

		// has_flag: checks whether a named flag is present in heuristic_flags.
		// Usage: has_flag(heuristic_flags, "role_hijack")
		cel.Function("has_flag",
			cel.Overload("has_flag_list_string",
				[]*cel.Type{cel.ListType(cel.StringType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(listVal, nameVal ref.Val) ref.Val {
					name := nameVal.Value().(string)
					list, ok := listVal.Value().([]ref.Val)
					if ok {
						for _, v := range list {
							if s, ok := v.Value().(string); ok && s == name {
								return types.Bool(true)
							}
						}
						return types.Bool(false)
					}
					if strs, ok := listVal.Value().([]string); ok {
						for _, s := range strs {
							if s == name {
								return types.Bool(true)
							}
						}
					}
					return types.Bool(false)
				}),
			),
		),

		// feature: extract a named feature by key from the features map.
		// Usage: feature(features, "length") > 4000
		cel.Function("feature",
			cel.Overload("feature_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					key := keyVal.Value().(string)
					if m, ok := mapVal.Value().(map[ref.Val]ref.Val); ok {
						if v, found := m[types.String(key)]; found {
							return v
						}
						return types.NullValue
					}
					if goMap, ok := mapVal.Value().(map[string]any); ok {
						if v, found := goMap[key]; found {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					}
					return types.NullValue
				}),
			),
		),

		// contains_any: true if s contains any of the given substrings.
		// Usage: contains_any(tenant_id, ["beta-", "internal-"])
		cel.Function("contains_any",
			cel.Overload("contains_any_string_list",
				[]*cel.Type{cel.StringType, cel.ListType(cel.StringType)},
				cel.BoolType,
				cel.BinaryBinding(func(sVal, listVal ref.Val) ref.Val {
					s := sVal.Value().(string)
					if list, ok := listVal.Value().([]ref.Val); ok {
						for _, v := range list {
							if sub, ok := v.Value().(string); ok && strings.Contains(s, sub) {
								return types.Bool(true)
							}
						}
						return types.Bool(false)
					}
					if strs, ok := listVal.Value().([]string); ok {
						for _, sub := range strs {
							if strings.Contains(s, sub) {
								return types.Bool(true)
							}
						}
					}
					return types.Bool(false)
				}),
			),
		),
	)
}

// BuildUniversalActivation creates a CEL activation map from an
// EvaluationContext, filling nil maps/slices so CEL never sees a nil.
func BuildUniversalActivation(evalCtx policy.EvaluationContext) map[string]any {
	flags := evalCtx.HeuristicFlags
	if flags == nil {
		flags = []string{}
	}
	tenant := evalCtx.Tenant
	if tenant == nil {
		tenant = map[string]any{}
	}

	return map[string]any{
		"pii_score":              evalCtx.PIIScore,
		"toxicity_score":         evalCtx.ToxicityScore,
		"prompt_injection_score": evalCtx.PromptInjectionScore,

		"heuristic_blocked": evalCtx.HeuristicBlocked,
		"heuristic_flags":   flags,

		"features": map[string]any{
			"length":            int64(evalCtx.FeatureLength),
			"word_count":        int64(evalCtx.FeatureWordCount),
			"char_count":        int64(evalCtx.FeatureCharCount),
			"has_numbers":       evalCtx.FeatureHasNumbers,
			"has_special_chars": evalCtx.FeatureHasSpecialChars,
			"url_count":         int64(evalCtx.FeatureURLCount),
			"email_count":       int64(evalCtx.FeatureEmailCount),
		},

		"tenant_id": evalCtx.TenantID,
		"tenant":    tenant,
	}
}
