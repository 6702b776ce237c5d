package differ

import (
	"math"
	"strings"
)

// maxDistinctSimilarity keeps distinct bodies strictly below identical ones.
const maxDistinctSimilarity = 0.99

// Similarity scores two bodies in [0,1].
//
// The score is the multiset Jaccard index over word unigrams and word
// bigrams (including bigrams with the start and end of the text), rounded
// to two decimals. It is symmetric, 1.0 only for identical bodies and 0.0
// only when the bodies share no token.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ta, tb := tokenize(a), tokenize(b)
	var inter, union int
	for tok, na := range ta {
		nb := tb[tok]
		inter += min(na, nb)
		union += max(na, nb)
	}
	for tok, nb := range tb {
		if _, seen := ta[tok]; !seen {
			union += nb
		}
	}
	if inter == 0 || union == 0 {
		return 0.0
	}

	score := math.Round(float64(inter)/float64(union)*100) / 100
	switch {
	case score > maxDistinctSimilarity:
		return maxDistinctSimilarity
	case score == 0:
		return 0.01
	}
	return score
}

const (
	startMarker = "\x02"
	endMarker   = "\x03"
)

// tokenize counts unigrams and boundary-aware bigrams.
func tokenize(s string) map[string]int {
	words := strings.Fields(s)
	counts := make(map[string]int, 2*len(words)+1)
	if len(words) == 0 {
		return counts
	}

	prev := startMarker
	for _, w := range words {
		counts["1:"+w]++
		counts["2:"+prev+" "+w]++
		prev = w
	}
	counts["2:"+prev+" "+endMarker]++
	return counts
}
