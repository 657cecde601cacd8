package integration

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ekaya-inc/ekaya-federation/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

var (
	legalSuffixes = regexp.MustCompile(`\b(pvt|ltd|inc|corp|llc|private|limited|co)\b`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// foldAccents strips combining marks, so "Société" becomes "Societe".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeCompany lower-cases a company name, folds accents, drops
// punctuation and legal suffixes and collapses whitespace.
func NormalizeCompany(name string) string {
	s := strings.ToLower(foldAccents(name))
	s = nonWord.ReplaceAllString(s, " ")
	s = legalSuffixes.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTitle lower-cases a title and collapses whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Match reports whether two records describe the same entity. Companies
// must be present and similar (blocking); titles must then be equal,
// registered synonyms, or similar. Match(a, b) == Match(b, a).
func (it *Integrator) Match(a, b models.GlobalRecord) bool {
	f := it.cfg.Fields

	ca, cb := NormalizeCompany(a.Text(f.Company)), NormalizeCompany(b.Text(f.Company))
	if ca == "" || cb == "" {
		return false
	}
	if ca != cb && knowledge.Ratio(ca, cb) < it.cfg.SimilarityThreshold {
		return false
	}

	ta, tb := NormalizeTitle(a.Text(f.Title)), NormalizeTitle(b.Text(f.Title))
	if ta == tb {
		return true
	}
	if it.synonyms != nil && it.synonyms.AreSynonyms(ta, tb) {
		return true
	}
	return knowledge.Ratio(ta, tb) >= it.cfg.SimilarityThreshold
}

// Fuse merges newcomer into existing. Mergeable attributes keep the
// non-empty value, or the longer one when both are set; other attributes
// only fill gaps. Sources are unioned in first-seen order.
func (it *Integrator) Fuse(existing, newcomer models.GlobalRecord) models.GlobalRecord {
	out := existing.Clone()

	for attr, nv := range newcomer.Values {
		if models.IsEmptyValue(nv) {
			continue
		}
		ev := out.Values[attr]
		switch {
		case models.IsEmptyValue(ev):
			out.Values[attr] = nv
		case it.mergeable[attr] && textLen(nv) > textLen(ev):
			out.Values[attr] = nv
		}
	}

	for _, s := range newcomer.Sources {
		if !contains(out.Sources, s) {
			out.Sources = append(out.Sources, s)
		}
	}
	return out
}

func textLen(v any) int {
	return len([]rune(strings.TrimSpace(models.ValueText(v))))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
