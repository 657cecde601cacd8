package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-federation/pkg/audit"
	"github.com/ekaya-inc/ekaya-federation/pkg/config"
	"github.com/ekaya-inc/ekaya-federation/pkg/database"
	"github.com/ekaya-inc/ekaya-federation/pkg/integration"
	"github.com/ekaya-inc/ekaya-federation/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-federation/pkg/llm"
	"github.com/ekaya-inc/ekaya-federation/pkg/repositories"
	"github.com/ekaya-inc/ekaya-federation/pkg/schema"
	"github.com/ekaya-inc/ekaya-federation/pkg/services"

	// Source connectors register themselves by type.
	_ "github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource/sqlite"
)

// app is the configuration-derived state shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	graph    *knowledge.Graph

	closers []func()
}

// loadApp reads the config, the registry and the knowledge graph.
func loadApp(opts *RootOptions) (*app, error) {
	cfg, err := config.LoadFrom(opts.ConfigPath, opts.Version)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, err := newLogger(cfg, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}

	registry, err := schema.Load(cfg.RegistryPath, cfg.Federation.GlobalTables)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	graphOpts := []knowledge.Option{knowledge.WithNeighborLimit(cfg.Ranking.NeighborLimit)}
	graph := knowledge.Empty(graphOpts...)
	if cfg.OntologyPath != "" {
		graph, err = knowledge.Load(cfg.OntologyPath, graphOpts...)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load ontology", err)
		}
	}

	logger.Debug("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("registry", cfg.RegistryPath),
		zap.Int("sources", len(registry.Sources())),
		zap.Int("ontology_terms", graph.Terms()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("history", cfg.History.Enabled))

	return &app{cfg: cfg, logger: logger, registry: registry, graph: graph}, nil
}

// newLogger builds a development logger for local environments and a
// production (JSON) logger otherwise. Both write to stderr.
func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Env == "local" || cfg.Env == "dev" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	if !verbose && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}

	return zapCfg.Build()
}

// close releases pools and flushes the logger.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func (a *app) newConnectionManager() *datasource.ConnectionManager {
	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfigFrom(a.cfg.Datasource), a.logger)
	a.closers = append(a.closers, func() { _ = connMgr.Close() })
	return connMgr
}

// newCorrector returns the LLM-backed corrector, or one that always fails
// when no provider is configured so every invalid query goes straight to
// EXHAUSTED once the budget is spent.
func (a *app) newCorrector() (services.Corrector, error) {
	if !a.cfg.LLM.IsEnabled() {
		return services.NoopCorrector{}, nil
	}
	client, err := llm.NewClientFactory(a.cfg.LLM, a.logger).Create()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create llm client", err)
	}
	breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	return services.NewLLMCorrector(client, breaker, a.cfg.LLM.Temperature, a.logger), nil
}

func (a *app) newIntegrator() *integration.Integrator {
	r := a.cfg.Ranking
	cfg := integration.DefaultConfig()
	cfg.SimilarityThreshold = r.SimilarityThreshold
	cfg.DefaultLimit = a.cfg.Federation.DefaultLimit
	cfg.Weights = integration.Weights{
		Company:       r.CompanyWeight,
		Title:         r.TitleWeight,
		Skills:        r.SkillsWeight,
		Description:   r.DescriptionWeight,
		Location:      r.LocationWeight,
		Recency:       r.RecencyWeight,
		SemanticBonus: r.SemanticBonus,
		KeywordCap:    r.KeywordCap,
	}
	return integration.NewIntegrator(a.registry, a.graph, a.graph, cfg, a.logger)
}

// openHistory connects to the run-history store and applies migrations.
func (a *app) openHistory(ctx context.Context) (repositories.RunHistoryRepository, error) {
	dbCfg := a.cfg.History.Database
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dbCfg.ConnectionString(),
		MaxConnections: dbCfg.MaxConnections,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to history database", err)
	}
	a.closers = append(a.closers, db.Close)

	if err := database.RunMigrations(db.SQL(), a.logger); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to migrate history database", err)
	}
	return repositories.NewRunHistoryRepository(db.SQL()), nil
}

// newFederationService wires the orchestrator with every collaborator.
func (a *app) newFederationService(ctx context.Context) (services.FederationService, error) {
	corrector, err := a.newCorrector()
	if err != nil {
		return nil, err
	}

	var recorder services.RunRecorder
	if a.cfg.History.Enabled {
		repo, err := a.openHistory(ctx)
		if err != nil {
			return nil, err
		}
		recorder = repo
	}

	factory := datasource.NewAdapterFactory(a.newConnectionManager())
	return services.NewFederationService(
		a.registry,
		factory,
		corrector,
		a.newIntegrator(),
		audit.NewSecurityAuditor(a.logger),
		recorder,
		a.cfg.Federation,
		a.logger,
	), nil
}
