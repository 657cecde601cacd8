package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-federation.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// RegistryPath points at the YAML file describing the global schema and sources.
	RegistryPath string `yaml:"registry_path" env:"FEDERATION_REGISTRY_PATH" env-default:"registry.yaml"`

	// OntologyPath points at the knowledge graph JSON (synonyms, graph_neighbors).
	// Empty disables semantic expansion.
	OntologyPath string `yaml:"ontology_path" env:"FEDERATION_ONTOLOGY_PATH" env-default:""`

	Federation FederationConfig `yaml:"federation"`
	Ranking    RankingConfig    `yaml:"ranking"`
	LLM        LLMConfig        `yaml:"llm"`
	Datasource DatasourceConfig `yaml:"datasource"`
	History    HistoryConfig    `yaml:"history"`
}

// FederationConfig controls the orchestrator.
type FederationConfig struct {
	// MaxRetries is the correction budget per scope.
	MaxRetries int `yaml:"max_retries" env:"FEDERATION_MAX_RETRIES" env-default:"3"`
	// ExecutionTimeout bounds each source query.
	ExecutionTimeout time.Duration `yaml:"execution_timeout" env:"FEDERATION_EXECUTION_TIMEOUT" env-default:"5s"`
	// MaxConcurrency bounds parallel per-source workers.
	MaxConcurrency int `yaml:"max_concurrency" env:"FEDERATION_MAX_CONCURRENCY" env-default:"8"`
	// DefaultLimit is used when a run asks for limit <= 0.
	DefaultLimit int `yaml:"default_limit" env:"FEDERATION_DEFAULT_LIMIT" env-default:"10"`

	// GlobalTablesStr is a comma-separated list of logical table names the
	// global query may use, e.g. "jobs,postings".
	GlobalTablesStr string `yaml:"global_tables" env:"FEDERATION_GLOBAL_TABLES" env-default:"jobs"`

	// GlobalTables is parsed from GlobalTablesStr (not from config file).
	GlobalTables []string `yaml:"-"`
}

// RankingConfig holds the entity resolution and scoring parameters.
type RankingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"RANKING_SIMILARITY_THRESHOLD" env-default:"0.85"`
	KeywordCap          int     `yaml:"keyword_cap" env:"RANKING_KEYWORD_CAP" env-default:"1"`
	NeighborLimit       int     `yaml:"neighbor_limit" env:"RANKING_NEIGHBOR_LIMIT" env-default:"3"`

	CompanyWeight     float64 `yaml:"company_weight" env-default:"4.0"`
	TitleWeight       float64 `yaml:"title_weight" env-default:"3.0"`
	SkillsWeight      float64 `yaml:"skills_weight" env-default:"2.0"`
	DescriptionWeight float64 `yaml:"description_weight" env-default:"1.0"`
	LocationWeight    float64 `yaml:"location_weight" env-default:"0.5"`
	RecencyWeight     float64 `yaml:"recency_weight" env-default:"1.5"`
	SemanticBonus     float64 `yaml:"semantic_bonus" env-default:"0.5"`
}

// LLMConfig selects and configures the correction service backend.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint), "anthropic" or "none".
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"none"`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:""`
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"30s"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// IsEnabled returns true if a correction backend is configured.
func (c *LLMConfig) IsEnabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// DatasourceConfig holds source connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle source pools are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// PoolMaxConns is the maximum number of connections per source pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per source pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// HistoryConfig controls the optional run-history store.
type HistoryConfig struct {
	Enabled        bool           `yaml:"enabled" env:"HISTORY_ENABLED" env-default:"false"`
	MigrationsPath string         `yaml:"migrations_path" env:"HISTORY_MIGRATIONS_PATH" env-default:"migrations"`
	Database       DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL database configuration for run history.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_federation"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Load reads config.yaml from the working directory with environment overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
// A missing file at the default path falls back to environment-only configuration;
// a missing file at an explicit path is an error.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Federation.GlobalTables = parseList(c.Federation.GlobalTablesStr)
	if len(c.Federation.GlobalTables) == 0 {
		return fmt.Errorf("federation.global_tables must name at least one table")
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	return nil
}

// Validate checks value ranges that cleanenv cannot express.
func (c *Config) Validate() error {
	if c.Federation.MaxRetries < 0 {
		return fmt.Errorf("federation.max_retries must be >= 0, got %d", c.Federation.MaxRetries)
	}
	if c.Federation.ExecutionTimeout <= 0 {
		return fmt.Errorf("federation.execution_timeout must be positive")
	}
	if c.Federation.MaxConcurrency < 1 {
		return fmt.Errorf("federation.max_concurrency must be >= 1, got %d", c.Federation.MaxConcurrency)
	}
	if c.Ranking.SimilarityThreshold <= 0 || c.Ranking.SimilarityThreshold > 1 {
		return fmt.Errorf("ranking.similarity_threshold must be in (0, 1], got %v", c.Ranking.SimilarityThreshold)
	}

	switch c.LLM.Provider {
	case "", "none":
	case "openai":
		if c.LLM.BaseURL == "" || c.LLM.Model == "" {
			return fmt.Errorf("llm.base_url and llm.model are required for provider openai")
		}
	case "anthropic":
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required for provider anthropic")
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for provider anthropic")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}

	return nil
}

// parseList splits a comma-separated list, dropping blanks.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, ResolveHostForDocker(c.Host), c.Port, c.Database, c.SSLMode,
	)
}
