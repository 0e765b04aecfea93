package detectors

import "regexp"

var (
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardRe = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
	emailPIIRe   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe      = regexp.MustCompile(`\b(\+?1[- ]?)?\(?\d{3}\)?[- ]?\d{3}[- ]?\d{4}\b`)
)

// entityWeights mirrors spec.md §4.1's Presidio weighting: SSN/credit-card
// -> 0.9; email -> 0.7; phone -> 0.6. Person/location/date-time detection
// requires an NER model and is out of scope; the presidio variant here
// covers the regex-detectable entity classes only.
const (
	weightSSNOrCard = 0.9
	weightEmail     = 0.7
	weightPhone     = 0.6
)

// PresidioScore applies spec.md §4.1's entity weighting: the per-text score
// is the max across detected entities, 0 if none.
func PresidioScore(text string) float64 {
	best := 0.0
	if ssnRe.MatchString(text) || creditCardRe.MatchString(text) {
		best = weightSSNOrCard
	}
	if best < weightEmail && emailPIIRe.MatchString(text) {
		best = weightEmail
	}
	if best < weightPhone && phoneRe.MatchString(text) {
		best = weightPhone
	}
	return best
}

// ONNXPIIScore is a lighter-weight fallback variant: same entity regexes,
// no per-entity weighting — it flags presence at a flat confidence,
// standing in for a generic ONNX NER graph without Presidio's entity
// taxonomy.
func ONNXPIIScore(text string) float64 {
	if ssnRe.MatchString(text) || creditCardRe.MatchString(text) {
		return 0.85
	}
	if emailPIIRe.MatchString(text) || phoneRe.MatchString(text) {
		return 0.55
	}
	return 0.0
}
