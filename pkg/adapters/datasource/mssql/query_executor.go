package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	db      *sql.DB
	ownedDB bool // true if we opened the DB (no connection manager)
}

// NewQueryExecutor creates a SQL Server query executor.
// Uses connection manager for connection pooling when provided.
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, sourceName string) (*QueryExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, owned, err := acquireDB(ctx, cfg, connMgr, sourceName)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{db: db, ownedDB: owned}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := e.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Query runs a SELECT statement and returns bounded results using TOP.
// See datasource.QueryExecutor.Query for limit behavior.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited",
		datasource.EffectiveLimit(limit), datasource.StripTerminator(sqlQuery))

	rows, err := e.db.QueryContext(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.CollectRows(rows, columnType)
}

// QuoteIdentifier quotes an identifier with SQL Server brackets.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteName(name)
}

// Close releases the executor (but NOT the DB if managed).
func (e *QueryExecutor) Close() error {
	if e.ownedDB && e.db != nil {
		return e.db.Close()
	}
	return nil
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
