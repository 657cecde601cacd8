package knowledge

import "strings"

// Static is a fixed Expander and SynonymChecker for tests and for running
// without an ontology.
type Static struct {
	Keywords  []string
	Neighbors []string
	// Synonyms lists unordered synonym pairs.
	Synonyms [][2]string
}

// Expand returns the fixed keyword and neighbour lists regardless of intent.
func (s Static) Expand(string) (keywords, neighbors []string) {
	return s.Keywords, s.Neighbors
}

// AreSynonyms reports whether a and b form one of the fixed pairs.
func (s Static) AreSynonyms(a, b string) bool {
	for _, p := range s.Synonyms {
		if (strings.EqualFold(p[0], a) && strings.EqualFold(p[1], b)) ||
			(strings.EqualFold(p[0], b) && strings.EqualFold(p[1], a)) {
			return true
		}
	}
	return false
}
