package postgres

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a source's connection settings.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		SSLMode: DefaultSSLMode(),
	}

	var ok bool
	if cfg.Host, ok = datasource.ConfigString(config, "host"); !ok {
		return nil, fmt.Errorf("host is required")
	}

	port, err := datasource.ConfigInt(config, "port", DefaultPort())
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if cfg.User, ok = datasource.ConfigString(config, "user"); !ok {
		return nil, fmt.Errorf("user is required")
	}

	if cfg.Password, err = datasource.ResolvePassword(config); err != nil {
		return nil, err
	}

	if database, ok := datasource.ConfigString(config, "database"); ok {
		cfg.Database = database
	} else if name, ok := datasource.ConfigString(config, "name"); ok {
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := datasource.ConfigString(config, "ssl_mode"); ok {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}
