package sqlite

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
)

// Config contains SQLite connection options.
type Config struct {
	Path          string
	ReadOnly      bool
	BusyTimeoutMs int
}

// FromMap creates a Config from a source's connection settings.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{}

	var ok bool
	if cfg.Path, ok = datasource.ConfigString(config, "path"); !ok {
		return nil, fmt.Errorf("path is required")
	}
	cfg.ReadOnly = datasource.ConfigBool(config, "read_only", true)

	busy, err := datasource.ConfigInt(config, "busy_timeout_ms", 5000)
	if err != nil {
		return nil, err
	}
	cfg.BusyTimeoutMs = busy

	return cfg, nil
}

// DSN renders a file: URI with pragmas understood by modernc.org/sqlite.
func (c *Config) DSN() string {
	query := url.Values{}
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeoutMs))
	if c.ReadOnly {
		query.Add("mode", "ro")
	}
	return "file:" + c.Path + "?" + query.Encode()
}
