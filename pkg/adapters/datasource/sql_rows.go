package datasource

import (
	"database/sql"
	"fmt"
)

// CollectRows drains a database/sql result set into a QueryExecutionResult.
// typeName maps driver type names to display names; nil keeps them as-is.
// Text columns that the driver returns as []byte are converted to string.
func CollectRows(rows *sql.Rows, typeName func(string) string) (*QueryExecutionResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		dbType := ""
		if i < len(columnTypes) && columnTypes[i] != nil {
			dbType = columnTypes[i].DatabaseTypeName()
		}
		if typeName != nil {
			dbType = typeName(dbType)
		}
		columns[i] = ColumnInfo{Name: name, Type: dbType}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
				continue
			}
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
