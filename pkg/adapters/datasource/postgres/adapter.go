package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-federation/pkg/config"
)

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, #
// or ? survive URL parsing. localhost resolves to host.docker.internal when
// running in Docker.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// acquirePool returns the managed pool for a source, or an unmanaged pool
// when connMgr is nil.
func acquirePool(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, sourceName string) (*pgxpool.Pool, bool, error) {
	connStr := buildConnectionString(cfg)

	if connMgr == nil {
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, false, fmt.Errorf("connect to postgres: %w", err)
		}
		return pool, true, nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, "postgres", sourceName, func(ctx context.Context) (datasource.PoolConnector, error) {
		return datasource.CreatePostgresPool(ctx, connStr, connMgr.Config())
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		return nil, false, fmt.Errorf("failed to extract postgres pool: %w", err)
	}
	return pool, false, nil
}
