package integration

import (
	"strings"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// Standardize expresses a raw row in global attribute names. Each attribute
// is read from the source's mapped column, then from a column named after
// the attribute itself, and is nil when neither is present.
func Standardize(global models.GlobalSchema, src *models.SourceDescriptor, row map[string]any) models.GlobalRecord {
	rec := models.NewGlobalRecord(src.Name)
	for _, attr := range global.Attributes {
		var value any
		found := false
		if mapped, ok := src.LocalColumn(attr.Name); ok {
			_, column := models.SplitQualified(mapped)
			value, found = lookup(row, column)
		}
		if !found {
			value, _ = lookup(row, attr.Name)
		}
		rec.Values[attr.Name] = normalizeValue(value)
	}
	return rec
}

// lookup finds a column by exact name, then case-insensitively.
func lookup(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

// normalizeValue converts driver byte slices to strings; other values pass through.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
