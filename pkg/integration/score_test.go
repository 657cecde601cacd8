package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

func TestRecencyScore(t *testing.T) {
	now := fixedNow

	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"missing", nil, 0.5},
		{"empty string", "", 0.5},
		{"none string", "None", 0.5},
		{"unparsable", "last tuesday", 0.5},
		{"zero time", time.Time{}, 0.5},
		{"today", now.Add(-2 * time.Hour), 1},
		{"one day old", now.Add(-25 * time.Hour), 0.5},
		{"date string", "2024-05-03", 1.0 / 8},
		{"date with time", "2024-05-03 09:30:00", 1.0 / 8},
		{"rfc3339", "2024-05-09T12:00:00Z", 0.5},
		{"bytes", []byte("2024-05-03"), 1.0 / 8},
		{"unix seconds", now.Add(-72 * time.Hour).Unix(), 0.25},
		{"future", now.Add(48 * time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RecencyScore(tt.value, now), 1e-9)
		})
	}
}

func TestScorer_Score(t *testing.T) {
	s := newScorer(DefaultWeights(), []string{"python"}, []string{"sql"})
	rec := record("a", map[string]any{
		"company_name": "Initech",
		"title":        "Python Developer",
		"skills":       "Python, SQL",
	})

	// title 1*3 + skills (1 + 0.5)*2 + neutral recency 0.5*1.5
	assert.InDelta(t, 6.75, s.score(rec, DefaultFields(), fixedNow), 1e-9)
}

func TestScorer_FieldWeights(t *testing.T) {
	s := newScorer(DefaultWeights(), []string{"acme"}, nil)
	date := fixedNow

	tests := []struct {
		field string
		want  float64
	}{
		{"company_name", 4},
		{"title", 3},
		{"skills", 2},
		{"description", 1},
		{"location", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			rec := record("a", map[string]any{tt.field: "Acme", "job_posting_date": date})
			assert.InDelta(t, tt.want+1.5, s.score(rec, DefaultFields(), fixedNow), 1e-9)
		})
	}
}

func TestScorer_KeywordCap(t *testing.T) {
	text := "python python python"

	capped := newScorer(DefaultWeights(), []string{"python"}, nil)
	assert.Equal(t, 1.0, capped.fieldScore(text))

	w := DefaultWeights()
	w.KeywordCap = 2
	loose := newScorer(w, []string{"python"}, []string{"python"})
	assert.Equal(t, 3.0, loose.fieldScore(text), "two keyword hits plus two bonus hits")
}

func TestScorer_WordBoundaries(t *testing.T) {
	s := newScorer(DefaultWeights(), []string{"java", "c++"}, []string{"machine learning"})

	assert.Equal(t, 0.0, s.fieldScore("javascript pythonic"))
	assert.Equal(t, 1.0, s.fieldScore("Java, Spring"))
	assert.Equal(t, 0.5, s.fieldScore("Applied Machine Learning"))
	assert.Equal(t, 0.0, s.fieldScore(""))
}

func TestScorer_Rounding(t *testing.T) {
	w := DefaultWeights()
	w.Recency = 1.0 / 3
	s := newScorer(w, nil, nil)

	got := s.score(models.NewGlobalRecord("a"), DefaultFields(), fixedNow)
	assert.Equal(t, 0.17, got)
}
