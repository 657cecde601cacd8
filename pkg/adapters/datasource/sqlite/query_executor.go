package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
)

const dbType = "sqlite"

// QueryExecutor provides SQLite query execution for file-backed sources.
type QueryExecutor struct {
	db      *sql.DB
	ownedDB bool
}

// NewQueryExecutor creates a SQLite query executor.
// Uses connection manager for connection pooling when provided.
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, sourceName string) (*QueryExecutor, error) {
	dsn := cfg.DSN()

	if connMgr == nil {
		connector, err := datasource.OpenSQLDB(ctx, "sqlite", dsn, dbType, datasource.ConnectionManagerConfig{
			TTLMinutes:   datasource.DefaultConnectionTTLMinutes,
			PoolMaxConns: datasource.DefaultPoolMaxConns,
			PoolMinConns: datasource.DefaultPoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db, err := datasource.GetSQLDB(connector)
		if err != nil {
			return nil, err
		}
		return &QueryExecutor{db: db, ownedDB: true}, nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, dbType, sourceName, func(ctx context.Context) (datasource.PoolConnector, error) {
		return datasource.OpenSQLDB(ctx, "sqlite", dsn, dbType, connMgr.Config())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract sqlite db: %w", err)
	}
	return &QueryExecutor{db: db}, nil
}

// TestConnection verifies the database file can be opened and read.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	var n int
	if err := e.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Query runs a SELECT statement and returns bounded results.
// See datasource.QueryExecutor.Query for limit behavior.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d",
		datasource.StripTerminator(sqlQuery), datasource.EffectiveLimit(limit))

	rows, err := e.db.QueryContext(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.CollectRows(rows, strings.ToUpper)
}

// QuoteIdentifier quotes an identifier with SQL double quotes.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
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
