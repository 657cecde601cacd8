package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// FieldSource lists the sources a record was fused from.
	FieldSource = "_source"
	// FieldRelevanceScore holds the ranking score of a record.
	FieldRelevanceScore = "_relevance_score"
)

// GlobalRecord is a row expressed in global attribute names.
// Values holds every global attribute, with nil for attributes the
// contributing sources do not carry.
type GlobalRecord struct {
	Values  map[string]any
	Sources []string
	Score   float64
}

// NewGlobalRecord creates an empty record contributed by source.
func NewGlobalRecord(source string) GlobalRecord {
	return GlobalRecord{
		Values:  make(map[string]any),
		Sources: []string{source},
	}
}

// Text returns the attribute as a trimmed string; nil becomes "".
func (r GlobalRecord) Text(attr string) string {
	return strings.TrimSpace(ValueText(r.Values[attr]))
}

// HasValue reports whether the attribute is present and non-empty.
func (r GlobalRecord) HasValue(attr string) bool {
	return !IsEmptyValue(r.Values[attr])
}

// Clone returns a deep copy of the record's maps and slices.
func (r GlobalRecord) Clone() GlobalRecord {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return GlobalRecord{
		Values:  values,
		Sources: append([]string(nil), r.Sources...),
		Score:   r.Score,
	}
}

// MarshalJSON renders the record as a flat object with _source and
// _relevance_score alongside the attribute values.
func (r GlobalRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Values)+2)
	for k, v := range r.Values {
		out[k] = v
	}
	out[FieldSource] = r.Sources
	out[FieldRelevanceScore] = r.Score
	return json.Marshal(out)
}

// ValueText renders a raw column value as text.
func ValueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// IsEmptyValue reports whether v is nil or renders to blank text.
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if t, ok := v.(time.Time); ok {
		return t.IsZero()
	}
	return strings.TrimSpace(ValueText(v)) == ""
}
