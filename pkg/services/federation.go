package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-federation/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-federation/pkg/audit"
	"github.com/ekaya-inc/ekaya-federation/pkg/config"
	"github.com/ekaya-inc/ekaya-federation/pkg/integration"
	"github.com/ekaya-inc/ekaya-federation/pkg/logging"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/schema"
	"github.com/ekaya-inc/ekaya-federation/pkg/sql"
)

const (
	DefaultMaxRetries       = 3
	DefaultExecutionTimeout = 5 * time.Second

	causeTimeout          = "timeout"
	causeCanceled         = "canceled"
	causeRetriesExhausted = "retries_exhausted"
	causeNotAllowed       = "statement_not_allowed"
)

// RunRecorder persists run summaries. Recording is best-effort: an error
// is logged and never fails the run.
type RunRecorder interface {
	RecordRun(ctx context.Context, result *models.FederationResult) error
}

// FederationService answers a global query from every registered source.
type FederationService interface {
	// Run validates (and if needed corrects) the global query, rewrites it
	// for each source, runs the sources concurrently and integrates their
	// rows into a ranked list. Source failures are reported per source in
	// the result; they never fail the run.
	Run(ctx context.Context, globalQuery, resolvedIntent string, limit int) (*models.FederationResult, error)
}

type federationService struct {
	registry   *schema.Registry
	executors  datasource.AdapterFactory
	corrector  Corrector
	integrator *integration.Integrator
	auditor    *audit.SecurityAuditor
	recorder   RunRecorder
	workerPool *WorkerPool
	cfg        config.FederationConfig
	now        func() time.Time
	logger     *zap.Logger
}

// NewFederationService creates the orchestrator. A nil corrector disables
// correction, and a nil recorder disables run history.
func NewFederationService(
	registry *schema.Registry,
	executors datasource.AdapterFactory,
	corrector Corrector,
	integrator *integration.Integrator,
	auditor *audit.SecurityAuditor,
	recorder RunRecorder,
	cfg config.FederationConfig,
	logger *zap.Logger,
) FederationService {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutionTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = integration.DefaultLimit
	}
	if corrector == nil {
		corrector = NoopCorrector{}
	}
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}

	return &federationService{
		registry:   registry,
		executors:  executors,
		corrector:  corrector,
		integrator: integrator,
		auditor:    auditor,
		recorder:   recorder,
		workerPool: NewWorkerPool(WorkerPoolConfig{MaxConcurrent: cfg.MaxConcurrency}, logger),
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.Named("federation"),
	}
}

var _ FederationService = (*federationService)(nil)

// sourceOutcome is what one source worker hands to the join point.
type sourceOutcome struct {
	summary models.AttemptSummary
	result  models.RawResultSet
}

func (s *federationService) Run(ctx context.Context, globalQuery, resolvedIntent string, limit int) (*models.FederationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	runID := uuid.New()
	sources := s.registry.Sources()
	result := &models.FederationResult{
		RunID:           runID,
		GlobalQuery:     globalQuery,
		ResolvedIntent:  resolvedIntent,
		SourceOrder:     make([]string, len(sources)),
		PerSourceStatus: make(map[string]models.SourceStatus, len(sources)),
		RankedRecords:   []models.GlobalRecord{},
		StartedAt:       s.now(),
	}
	for i, src := range sources {
		result.SourceOrder[i] = src.Name
	}

	logger := s.logger.With(zap.String("run_id", runID.String()))
	logger.Info("Starting federation run",
		zap.String("query", logging.SanitizeQuery(globalQuery)),
		zap.Int("sources", len(sources)),
		zap.Int("limit", limit))

	global := s.validateGlobal(ctx, runID, globalQuery, resolvedIntent)
	result.GlobalStatus = global.State
	result.Attempts = append(result.Attempts, summarize(global, globalStatus(global)))

	if global.State != models.AttemptValid {
		logger.Warn("Global query exhausted its corrections; no source is queried",
			zap.Int("attempts_used", global.AttemptsUsed),
			zap.Strings("errors", global.LastVerdict.Errors))
		s.auditor.LogRetriesExhausted(runID, models.GlobalSchemaSource, audit.RetriesExhaustedDetails{
			AttemptsUsed: global.AttemptsUsed,
			LastErrors:   global.LastVerdict.Errors,
			LastQuery:    global.CurrentQuery,
		})
		for _, src := range sources {
			result.PerSourceStatus[src.Name] = models.StatusNoQuery
			result.Attempts = append(result.Attempts, models.AttemptSummary{
				Source: src.Name,
				State:  models.AttemptPending,
				Status: models.StatusNoQuery,
			})
		}
		return s.finish(ctx, logger, result), nil
	}
	result.AcceptedQuery = global.CurrentQuery

	items := make([]WorkItem[sourceOutcome], len(sources))
	for i, src := range sources {
		items[i] = WorkItem[sourceOutcome]{
			ID: src.Name,
			Execute: func(ctx context.Context) (sourceOutcome, error) {
				return s.runSource(ctx, runID, src, global.CurrentQuery, resolvedIntent), nil
			},
		}
	}

	// Join point: every source has an outcome before integration starts.
	outcomes := Process(ctx, s.workerPool, items, nil)

	rawResults := make([]models.RawResultSet, len(outcomes))
	for i, o := range outcomes {
		outcome := o.Result
		if o.Err != nil {
			// The worker never started; the run was cancelled first.
			outcome = sourceOutcome{
				summary: models.AttemptSummary{
					Source: o.ID,
					State:  models.AttemptPending,
					Status: contextStatus(o.Err),
				},
				result: models.RawResultSet{Source: o.ID, Err: o.Err},
			}
		}
		result.PerSourceStatus[o.ID] = outcome.summary.Status
		result.Attempts = append(result.Attempts, outcome.summary)
		rawResults[i] = outcome.result
	}

	if s.integrator != nil {
		if ranked := s.integrator.Integrate(rawResults, resolvedIntent, limit); ranked != nil {
			result.RankedRecords = ranked
		}
	}

	return s.finish(ctx, logger, result), nil
}

// validateGlobal runs the global query through the attempt machine against
// the global validation schema.
func (s *federationService) validateGlobal(ctx context.Context, runID uuid.UUID, globalQuery, intent string) *models.FederationAttempt {
	validationSchema := s.registry.GlobalValidationSchema()
	machine := &attemptMachine{
		maxRetries: s.cfg.MaxRetries,
		corrector:  s.corrector,
		dialect:    models.GlobalDialect,
		schema:     validationSchema,
		request: CorrectionRequest{
			Source:           models.GlobalSchemaSource,
			Dialect:          models.GlobalDialect,
			LocalSchema:      validationSchema,
			Intent:           intent,
			GlobalAttributes: s.registry.Global().Names(),
			GlobalTables:     s.registry.GlobalTables(),
		},
		screenInitial: true,
		onInjection:   s.injectionHandler(runID, models.GlobalSchemaSource),
		logger:        s.logger,
	}
	return machine.run(ctx, globalQuery, nil)
}

// runSource is one source worker: rewrite, validate and correct, then
// execute. It owns its attempt state and never returns an error; failures
// become the source's status.
func (s *federationService) runSource(ctx context.Context, runID uuid.UUID, src *models.SourceDescriptor, accepted, intent string) sourceOutcome {
	started := s.now()
	localSchema := s.registry.LocalSchema(src)

	query := accepted
	var initial *models.ValidationVerdict
	rewritten, err := sql.NewRewriter(src, s.registry).Rewrite(accepted)
	if err != nil {
		// Enter correction with the global query itself.
		initial = &models.ValidationVerdict{Errors: []string{err.Error()}, Warnings: []string{}}
	} else {
		query = rewritten.SQL
	}

	machine := &attemptMachine{
		maxRetries: s.cfg.MaxRetries,
		corrector:  s.corrector,
		dialect:    src.Dialect,
		schema:     localSchema,
		request: CorrectionRequest{
			Source:           src.Name,
			Dialect:          src.Dialect,
			LocalSchema:      localSchema,
			GlobalQuery:      accepted,
			Intent:           intent,
			GlobalAttributes: s.registry.Global().Names(),
			GlobalTables:     s.registry.GlobalTables(),
		},
		onInjection: s.injectionHandler(runID, src.Name),
		logger:      s.logger,
	}
	attempt := machine.run(ctx, query, initial)

	if attempt.State == models.AttemptExhausted {
		s.auditor.LogRetriesExhausted(runID, src.Name, audit.RetriesExhaustedDetails{
			AttemptsUsed: attempt.AttemptsUsed,
			LastErrors:   attempt.LastVerdict.Errors,
			LastQuery:    attempt.CurrentQuery,
		})
		summary := summarize(attempt, models.ErrorStatus(causeRetriesExhausted))
		summary.Duration = s.now().Sub(started)
		return sourceOutcome{
			summary: summary,
			result: models.RawResultSet{
				Source: src.Name,
				Err:    apperrors.New(apperrors.KindRetriesExhausted, src.Name, nil),
			},
		}
	}

	status, rows, execErr := s.execute(ctx, src, attempt.CurrentQuery)
	summary := summarize(attempt, status)
	summary.RowCount = len(rows)
	summary.Duration = s.now().Sub(started)

	s.auditor.LogQueryExecution(runID, src.Name, audit.QueryExecutionDetails{
		RowCount:   len(rows),
		DurationMs: summary.Duration.Milliseconds(),
		Status:     string(status),
	})

	return sourceOutcome{
		summary: summary,
		result:  models.RawResultSet{Source: src.Name, Rows: rows, Err: execErr},
	}
}

// execute runs a validated query against the source with the execution
// timeout. Execution failures are not retried.
func (s *federationService) execute(ctx context.Context, src *models.SourceDescriptor, query string) (models.SourceStatus, []map[string]any, error) {
	if _, err := ValidateReadOnly(query); err != nil {
		s.logger.Warn("Refusing to execute statement",
			zap.String("source", src.Name),
			zap.Error(err))
		return models.ErrorStatus(causeNotAllowed), nil, apperrors.New(apperrors.KindExecutionFailed, src.Name, err)
	}

	timeout := s.cfg.ExecutionTimeout
	if src.Timeout > 0 {
		timeout = src.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executor, err := s.executors.NewQueryExecutor(execCtx, src)
	if err != nil {
		if errors.Is(err, datasource.ErrAdapterNotRegistered) || errors.Is(err, datasource.ErrNoConnection) {
			s.logger.Info("Source has no connector; skipping",
				zap.String("source", src.Name),
				zap.Error(err))
			return models.StatusNoQuery, nil, err
		}
		return s.executionFailure(execCtx, src, err)
	}
	defer executor.Close()

	res, err := executor.Query(execCtx, datasource.StripTerminator(query), 0)
	if err != nil {
		return s.executionFailure(execCtx, src, err)
	}

	s.logger.Debug("Source query complete",
		zap.String("source", src.Name),
		zap.Int("rows", res.RowCount))
	return models.StatusOK, res.Rows, nil
}

func (s *federationService) executionFailure(execCtx context.Context, src *models.SourceDescriptor, err error) (models.SourceStatus, []map[string]any, error) {
	status := contextStatus(execCtx.Err())
	if status == "" {
		status = contextStatus(err)
	}
	if status == "" {
		status = models.ErrorStatus(statusCause(err))
	}

	s.logger.Warn("Source query failed",
		zap.String("source", src.Name),
		zap.String("status", string(status)),
		zap.String("error", logging.SanitizeError(err)))
	return status, nil, apperrors.New(apperrors.KindExecutionFailed, src.Name, err)
}

// finish stamps the completion time, records the run and logs the outcome.
func (s *federationService) finish(ctx context.Context, logger *zap.Logger, result *models.FederationResult) *models.FederationResult {
	result.CompletedAt = s.now()

	if s.recorder != nil {
		// The run's own deadline must not drop its history row.
		if err := s.recorder.RecordRun(context.WithoutCancel(ctx), result); err != nil {
			logger.Warn("Failed to record federation run", zap.Error(err))
		}
	}

	ok := 0
	for _, status := range result.PerSourceStatus {
		if status == models.StatusOK {
			ok++
		}
	}
	logger.Info("Federation run complete",
		zap.String("global_status", string(result.GlobalStatus)),
		zap.Int("sources_ok", ok),
		zap.Int("sources_total", len(result.SourceOrder)),
		zap.Int("records", len(result.RankedRecords)),
		zap.Duration("duration", result.CompletedAt.Sub(result.StartedAt)))
	return result
}

func (s *federationService) injectionHandler(runID uuid.UUID, source string) InjectionHandler {
	return func(query string, findings []*sql.InjectionCheckResult, corrected bool) {
		for _, f := range findings {
			s.auditor.LogInjectionAttempt(runID, source, audit.SQLInjectionDetails{
				Literal:     f.Value,
				Fingerprint: f.Fingerprint,
				Query:       query,
				Corrected:   corrected,
			})
		}
	}
}

func summarize(attempt *models.FederationAttempt, status models.SourceStatus) models.AttemptSummary {
	return models.AttemptSummary{
		Source:       attempt.Source,
		State:        attempt.State,
		AttemptsUsed: attempt.AttemptsUsed,
		FinalQuery:   attempt.CurrentQuery,
		Errors:       attempt.LastVerdict.Errors,
		Warnings:     attempt.LastVerdict.Warnings,
		Status:       status,
	}
}

func globalStatus(attempt *models.FederationAttempt) models.SourceStatus {
	if attempt.State == models.AttemptValid {
		return models.StatusOK
	}
	return models.ErrorStatus(causeRetriesExhausted)
}

// contextStatus maps context errors to a status, or "" for other errors.
func contextStatus(err error) models.SourceStatus {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorStatus(causeTimeout)
	case errors.Is(err, context.Canceled):
		return models.ErrorStatus(causeCanceled)
	default:
		return ""
	}
}

// statusCause renders an error as a single-line, credential-free cause.
func statusCause(err error) string {
	cause := logging.SanitizeError(err)
	cause = strings.Join(strings.Fields(cause), " ")
	if cause == "" {
		cause = fmt.Sprintf("%T", err)
	}
	return logging.TruncateString(cause, logging.MaxQueryLogLength)
}
