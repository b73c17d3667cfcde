package kb

import (
	"math"
)

// Ratio scores two strings from 0 to 100 by insert/delete distance relative
// to their combined length, so a substitution costs two edits. It is
// symmetric, case sensitive, 100 only for identical strings and 0 when
// either string is empty.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	ra, rb := []rune(a), []rune(b)
	lensum := len(ra) + len(rb)
	dist := lensum - 2*lcs(ra, rb)
	score := int(math.RoundToEven(100 * float64(lensum-dist) / float64(lensum)))
	// rounding must not promote a near match to an exact one
	return min(score, 99)
}

// lcs is the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// BestSimilarity is the highest Ratio between mention and the candidate's
// label or any of its aliases.
func BestSimilarity(mention string, c Candidate) int {
	best := Ratio(c.Label, mention)
	for _, alias := range c.Aliases {
		if best == 100 {
			break
		}
		best = max(best, Ratio(alias, mention))
	}
	return best
}

// SelectBest picks the candidate whose label should replace mention.
//
// Candidates are scanned in order. An exact label or alias match wins
// immediately. Otherwise the highest score at or above threshold wins, and the
// earlier candidate wins a tie.
func SelectBest(mention string, candidates []Candidate, threshold int) (Candidate, bool) {
	var best Candidate
	found := false
	highest := 0

	for _, c := range candidates {
		score := BestSimilarity(mention, c)
		if score == 100 {
			return c, true
		}
		if score > highest && score >= threshold {
			best = c
			highest = score
			found = true
		}
	}
	return best, found
}
