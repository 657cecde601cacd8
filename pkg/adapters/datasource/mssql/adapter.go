package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-federation/pkg/config"
)

const dbType = "sqlserver"

// buildDSN returns the driver name and connection URL for the configured
// auth method. Service principals go through the azuresql driver.
func buildDSN(cfg *Config) (string, string, error) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", strconv.FormatBool(cfg.Encrypt))

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(cfg.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(cfg.Host)

	switch cfg.AuthMethod {
	case AuthMethodSQL:
		return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
			url.QueryEscape(cfg.Username),
			url.QueryEscape(cfg.Password),
			host,
			cfg.Port,
			query.Encode(),
		), nil

	case AuthMethodServicePrincipal:
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, cfg.Port, query.Encode()), nil

	default:
		return "", "", fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// acquireDB returns the managed *sql.DB for a source, or an unmanaged one
// when connMgr is nil.
func acquireDB(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, sourceName string) (*sql.DB, bool, error) {
	driverName, dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, false, err
	}

	if connMgr == nil {
		connector, err := datasource.OpenSQLDB(ctx, driverName, dsn, dbType, datasource.ConnectionManagerConfig{
			TTLMinutes:   datasource.DefaultConnectionTTLMinutes,
			PoolMaxConns: datasource.DefaultPoolMaxConns,
			PoolMinConns: datasource.DefaultPoolMinConns,
		})
		if err != nil {
			return nil, false, fmt.Errorf("create connection: %w", err)
		}
		db, err := datasource.GetSQLDB(connector)
		return db, true, err
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, dbType, sourceName, func(ctx context.Context) (datasource.PoolConnector, error) {
		return datasource.OpenSQLDB(ctx, driverName, dsn, dbType, connMgr.Config())
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, false, fmt.Errorf("failed to extract sqlserver db: %w", err)
	}
	return db, false, nil
}
