package mssql

import (
	"fmt"
	"os"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
)

const (
	AuthMethodSQL              = "sql"
	AuthMethodServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a source's connection settings and
// auto-detects the auth method.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Encrypt: true,
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

	if database, ok := datasource.ConfigString(config, "database"); ok {
		cfg.Database = database
	} else if name, ok := datasource.ConfigString(config, "name"); ok {
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if encryptStr, ok := config["encrypt"].(string); ok {
		// "true", "false", "strict"
		cfg.Encrypt = encryptStr == "true" || encryptStr == "strict"
	} else {
		cfg.Encrypt = datasource.ConfigBool(config, "encrypt", true)
	}
	cfg.TrustServerCertificate = datasource.ConfigBool(config, "trust_server_certificate", false)

	if cfg.ConnectionTimeout, err = datasource.ConfigInt(config, "connection_timeout", DefaultConnectionTimeout()); err != nil {
		return nil, err
	}

	if authMethod, ok := datasource.ConfigString(config, "auth_method"); ok {
		cfg.AuthMethod = authMethod
	} else if _, hasClientID := datasource.ConfigString(config, "client_id"); hasClientID {
		cfg.AuthMethod = AuthMethodServicePrincipal
	} else if _, hasUsername := datasource.ConfigString(config, "username"); hasUsername {
		cfg.AuthMethod = AuthMethodSQL
	} else if _, hasUser := datasource.ConfigString(config, "user"); hasUser {
		cfg.AuthMethod = AuthMethodSQL
	} else {
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case AuthMethodSQL:
		if username, ok := datasource.ConfigString(config, "username"); ok {
			cfg.Username = username
		} else if user, ok := datasource.ConfigString(config, "user"); ok {
			cfg.Username = user
		} else {
			return nil, fmt.Errorf("username is required for SQL authentication")
		}
		if cfg.Password, err = datasource.ResolvePassword(config); err != nil {
			return nil, err
		}

	case AuthMethodServicePrincipal:
		cfg.TenantID, _ = datasource.ConfigString(config, "tenant_id")
		cfg.ClientID, _ = datasource.ConfigString(config, "client_id")
		cfg.ClientSecret, _ = datasource.ConfigString(config, "client_secret")
		if envName, ok := datasource.ConfigString(config, "client_secret_env"); ok {
			cfg.ClientSecret = os.Getenv(envName)
		}

	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthMethodSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthMethodServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}
