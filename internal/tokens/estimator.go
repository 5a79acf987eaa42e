package tokens

import "strings"

// TokensPerWord is the estimation ratio applied to whitespace-delimited
// words. It overshoots typical English tokenization, so estimate-driven
// packing errs toward smaller chunks.
const TokensPerWord = 1.5

// Estimate gives a fast token count from the word count alone. It is
// deterministic and never calls out anywhere.
func Estimate(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * TokensPerWord)
}
