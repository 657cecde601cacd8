package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-federation/pkg/config"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "", "true", "skip-verify", "preferred"
	Timeout  time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a source's connection settings.
func FromMap(settings map[string]any) (*Config, error) {
	cfg := &Config{}

	var ok bool
	if cfg.Host, ok = datasource.ConfigString(settings, "host"); !ok {
		return nil, fmt.Errorf("host is required")
	}

	port, err := datasource.ConfigInt(settings, "port", DefaultPort())
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if cfg.User, ok = datasource.ConfigString(settings, "user"); !ok {
		return nil, fmt.Errorf("user is required")
	}

	if cfg.Password, err = datasource.ResolvePassword(settings); err != nil {
		return nil, err
	}

	if cfg.Database, ok = datasource.ConfigString(settings, "database"); !ok {
		return nil, fmt.Errorf("database is required")
	}

	if tls, ok := datasource.ConfigString(settings, "tls"); ok {
		cfg.TLS = tls
	} else if sslMode, ok := datasource.ConfigString(settings, "ssl_mode"); ok && sslMode == "require" {
		cfg.TLS = "true"
	}

	seconds, err := datasource.ConfigInt(settings, "connection_timeout", 10)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(seconds) * time.Second

	return cfg, nil
}

// DSN renders the go-sql-driver connection string. parseTime makes DATE and
// DATETIME columns arrive as time.Time, which recency scoring relies on.
func (c *Config) DSN() string {
	dc := gomysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Timeout = c.Timeout
	dc.TLSConfig = c.TLS
	return dc.FormatDSN()
}
