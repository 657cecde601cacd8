// Package datasource connects federation sources to their databases.
// Adapters register themselves by type from init(); the connection manager
// keeps one pool per source alive between runs.
package datasource

import (
	"context"
	"strings"
)

// ConnectionTester tests database connectivity.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// MaxQueryLimit is the hard cap on rows returned by Query.
const MaxQueryLimit = 1000

// QueryExecutor executes validated source queries.
// Each implementation borrows its pool from the connection manager; Close
// never closes a managed pool.
type QueryExecutor interface {
	ConnectionTester

	// Query runs a SELECT statement and returns bounded results.
	// The query is wrapped with a dialect-specific limit:
	//   - PostgreSQL, MySQL, SQLite: SELECT * FROM (query) AS _limited LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
	//
	// limit <= 0 or limit > MaxQueryLimit uses MaxQueryLimit.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QuoteIdentifier quotes a table or column name for this database.
	QuoteIdentifier(name string) string
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns the result column names in order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// EffectiveLimit clamps a requested row limit to (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// StripTerminator removes trailing semicolons so a statement can be nested
// inside a limiting subquery.
func StripTerminator(sqlQuery string) string {
	return strings.TrimRight(strings.TrimSpace(sqlQuery), "; \t\r\n")
}
