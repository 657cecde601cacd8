package integration

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// neutralRecency is the recency score of a record without a usable date.
const neutralRecency = 0.5

// Weights are the relevance scoring parameters.
type Weights struct {
	Company     float64
	Title       float64
	Skills      float64
	Description float64
	Location    float64
	Recency     float64
	// SemanticBonus is the score of one neighbour term match.
	SemanticBonus float64
	// KeywordCap bounds how many occurrences of one term count per field.
	KeywordCap int
}

// DefaultWeights ranks company matches highest, then title, skills,
// description and location.
func DefaultWeights() Weights {
	return Weights{
		Company:       4.0,
		Title:         3.0,
		Skills:        2.0,
		Description:   1.0,
		Location:      0.5,
		Recency:       1.5,
		SemanticBonus: 0.5,
		KeywordCap:    1,
	}
}

// scorer holds the compiled term patterns of one integration pass.
type scorer struct {
	weights   Weights
	keywords  []*regexp.Regexp
	neighbors []*regexp.Regexp
}

func newScorer(w Weights, keywords, neighbors []string) *scorer {
	if w.KeywordCap <= 0 {
		w.KeywordCap = 1
	}
	return &scorer{
		weights:   w,
		keywords:  compileTerms(keywords),
		neighbors: compileTerms(neighbors),
	}
}

func compileTerms(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return out
}

func (s *scorer) score(rec models.GlobalRecord, f Fields, now time.Time) float64 {
	w := s.weights
	total := s.fieldScore(rec.Text(f.Company))*w.Company +
		s.fieldScore(rec.Text(f.Title))*w.Title +
		s.fieldScore(rec.Text(f.Skills))*w.Skills +
		s.fieldScore(rec.Text(f.Description))*w.Description +
		s.fieldScore(rec.Text(f.Location))*w.Location +
		RecencyScore(rec.Values[f.PostedAt], now)*w.Recency
	return math.Round(total*100) / 100
}

// fieldScore is 1 per keyword occurrence plus the semantic bonus per
// neighbour occurrence, each capped per term.
func (s *scorer) fieldScore(text string) float64 {
	if text == "" {
		return 0
	}
	text = strings.ToLower(text)

	score := 0.0
	for _, re := range s.keywords {
		score += float64(s.count(re, text))
	}
	for _, re := range s.neighbors {
		score += float64(s.count(re, text)) * s.weights.SemanticBonus
	}
	return score
}

func (s *scorer) count(re *regexp.Regexp, text string) int {
	return len(re.FindAllStringIndex(text, s.weights.KeywordCap))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// RecencyScore decays with age as 1/(days+1). Missing or unparsable dates
// score 0.5; future dates score 1.
func RecencyScore(v any, now time.Time) float64 {
	posted, ok := parseDate(v)
	if !ok {
		return neutralRecency
	}
	days := int(now.Sub(posted).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return 1.0 / float64(days+1)
}

func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case int64:
		return time.Unix(t, 0), true
	case int:
		return time.Unix(int64(t), 0), true
	case float64:
		return time.Unix(int64(t), 0), true
	case string, []byte:
		s := strings.TrimSpace(models.ValueText(t))
		if s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
			return time.Time{}, false
		}
		if strings.Contains(s, "T") || strings.Contains(s, ":") {
			for _, layout := range dateLayouts {
				if parsed, err := time.Parse(layout, s); err == nil {
					return parsed, true
				}
			}
		}
		if len(s) >= 10 {
			if parsed, err := time.Parse("2006-01-02", s[:10]); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
