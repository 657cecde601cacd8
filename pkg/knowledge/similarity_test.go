package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"techco", "techco", 1},
		{"abcd", "", 0},
		{"abcd", "bcde", 0.75},
		{"data scientist", "data scientists", 28.0 / 29.0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, Ratio(tt.b, tt.a), 1e-9)
		})
	}
}

func TestRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"flipkart", "flipkart internet"},
		{"tata consultancy", "consultancy tata"},
		{"backend developer", "developer backend"},
	}
	for _, p := range pairs {
		assert.Equal(t, Ratio(p[0], p[1]), Ratio(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestClosestMatch(t *testing.T) {
	terms := []string{"python", "react", "pandas"}

	got, ok := closestMatch("pyhton", terms, 0.8)
	assert.True(t, ok)
	assert.Equal(t, "python", got)

	_, ok = closestMatch("golang", terms, 0.8)
	assert.False(t, ok)
}
