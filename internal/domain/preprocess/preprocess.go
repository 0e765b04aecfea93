// Package preprocess normalizes raw text and extracts the lightweight
// feature set the policy engine conditions on.
package preprocess

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	hasNumbersRe      = regexp.MustCompile(`\d`)
	hasSpecialCharsRe = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
	urlRe             = regexp.MustCompile(`https?://\S+`)
	emailRe           = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
)

// Features is the lightweight, policy-visible feature set extracted from a
// normalized text.
type Features struct {
	Length          int  `json:"length"`
	WordCount       int  `json:"word_count"`
	CharCount       int  `json:"char_count"`
	HasNumbers      bool `json:"has_numbers"`
	HasSpecialChars bool `json:"has_special_chars"`
	URLCount        int  `json:"url_count"`
	EmailCount      int  `json:"email_count"`
}

// PreprocessedText is immutable after creation and owned by the analyzer
// for the duration of one request.
type PreprocessedText struct {
	Original          string   `json:"original"`
	Normalized        string   `json:"normalized"`
	Features          Features `json:"features"`
	OptionalEmbedding []float32 `json:"optional_embedding,omitempty"`
	VectorID          string    `json:"vector_id,omitempty"`
}

// Store persists a text's vector and feature metadata under a freshly
// generated vector id. Vectorization and persistence are decoupled from the
// synchronous preprocessing path: implementations MAY skip both for live
// requests (see spec.md §4.2).
type Store interface {
	SaveVector(vectorID string, embedding []float32, features Features) error
}

// Preprocess normalizes text and extracts features. If store is non-nil,
// the vector (always empty, since text is not vectorized here) and its
// feature metadata are persisted under a freshly generated vector id.
// Empty input yields all-zero/empty features.
func Preprocess(text string, store Store) PreprocessedText {
	normalized := normalize(text)
	features := extractFeatures(normalized)

	out := PreprocessedText{
		Original:   text,
		Normalized: normalized,
		Features:   features,
	}

	// Embedding generation is decoupled from the sync path; this
	// implementation does not vectorize live requests, matching the spec's
	// "implementations MAY skip vectorization" allowance. Only the
	// persistence hook is exercised, for callers (e.g. the benchmark
	// engine) that supply a store and want feature metadata recorded.
	if store != nil {
		out.VectorID = uuid.NewString()
		_ = store.SaveVector(out.VectorID, out.OptionalEmbedding, features)
	}

	return out
}

func normalize(text string) string {
	lower := strings.ToLower(text)
	trimmed := strings.TrimSpace(lower)
	return whitespaceRe.ReplaceAllString(trimmed, " ")
}

func extractFeatures(normalized string) Features {
	if normalized == "" {
		return Features{}
	}
	return Features{
		Length:          len(normalized),
		WordCount:       len(strings.Fields(normalized)),
		CharCount:       len([]rune(normalized)),
		HasNumbers:      hasNumbersRe.MatchString(normalized),
		HasSpecialChars: hasSpecialCharsRe.MatchString(normalized),
		URLCount:        len(urlRe.FindAllString(normalized, -1)),
		EmailCount:      len(emailRe.FindAllString(normalized, -1)),
	}
}
