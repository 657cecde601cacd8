package datasource

import (
	"context"
	"fmt"
	"strings"
)

// ProbeColumns returns the columns of a physical table by selecting at most
// one row from it. Qualified names ("schema.table") are quoted per part.
func ProbeColumns(ctx context.Context, exec QueryExecutor, table string) ([]ColumnInfo, error) {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = exec.QuoteIdentifier(p)
	}

	result, err := exec.Query(ctx, "SELECT * FROM "+strings.Join(parts, "."), 1)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", table, err)
	}
	return result.Columns, nil
}

// MissingColumns reports which of want are absent from the probed columns.
// The comparison is case-insensitive.
func MissingColumns(have []ColumnInfo, want []string) []string {
	present := make(map[string]bool, len(have))
	for _, c := range have {
		present[strings.ToLower(c.Name)] = true
	}

	var missing []string
	for _, w := range want {
		if !present[strings.ToLower(w)] {
			missing = append(missing, w)
		}
	}
	return missing
}
