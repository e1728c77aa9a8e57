package window

// TokenEstimator estimates how many tokens a piece of text costs.
// Implementations must be deterministic: the same text always yields the
// same count.
type TokenEstimator interface {
	// Estimate returns the approximate token count for text. Empty text
	// costs zero tokens; non-empty text costs at least one.
	Estimate(text string) int
}

const defaultCharsPerToken = 4.0

// CharEstimator approximates tokens from character length using a fixed
// characters-per-token ratio. The default ratio of 4.0 is a reasonable
// fit for English prose across common tokenizers.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator returns an estimator with the given ratio. Ratios of
// zero or below fall back to the default.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate rounds the character count divided by the ratio up to the
// next whole token, so any non-empty text costs at least one token.
func (e *CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := float64(len(text)) / e.CharsPerToken
	return int(tokens) + 1
}
