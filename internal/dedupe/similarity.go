package dedupe

import (
	"math"
	"strings"
)

// Similarity scores how alike two names are on a 0-100 scale.
type Similarity interface {
	Score(a, b string) int
}

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(a, b string) int

func (f SimilarityFunc) Score(a, b string) int { return f(a, b) }

// Ratio is the default metric: the indel similarity of the lower-cased,
// trimmed names, 100 * 2 * LCS / (len(a) + len(b)), computed over runes.
type Ratio struct{}

func (Ratio) Score(a, b string) int {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))

	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(2*lcs(ra, rb)) / float64(total)))
}

// lcs returns the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
