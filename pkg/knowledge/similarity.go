package knowledge

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns the Ratcliff-Obershelp similarity of a and b in [0, 1],
// computed character by character. The pair is ordered before matching so
// Ratio(a, b) == Ratio(b, a).
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a > b {
		a, b = b, a
	}
	m := difflib.NewMatcherWithJunk(runes(a), runes(b), false, nil)
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// closestMatch returns the candidate most similar to term with a ratio of
// at least cutoff. Ties go to the lexicographically greater candidate.
func closestMatch(term string, candidates []string, cutoff float64) (string, bool) {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	best, bestScore := "", -1.0
	for _, c := range sorted {
		if score := Ratio(term, c); score >= cutoff && score >= bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore >= 0
}
