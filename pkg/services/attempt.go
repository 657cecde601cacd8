package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/logging"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/sql"
)

// InjectionHandler is told about string literals flagged by injection
// screening. corrected is true when the query came back from correction.
type InjectionHandler func(query string, findings []*sql.InjectionCheckResult, corrected bool)

// attemptMachine drives one scope through the validate/correct loop:
//
//	PENDING -> VALIDATING -> VALID
//	                      -> CORRECTING -> VALIDATING -> ...
//	                      -> EXHAUSTED (AttemptsUsed == maxRetries)
//
// A machine and the attempt it returns belong to one worker.
type attemptMachine struct {
	maxRetries int
	corrector  Corrector
	dialect    models.Dialect
	schema     models.LocalSchema
	// request is the template for correction calls; Query and Errors are
	// filled per attempt.
	request CorrectionRequest
	// screenInitial screens the starting query for injection. Per-source
	// queries skip it because their literals come from the global query.
	screenInitial bool
	onInjection   InjectionHandler
	logger        *zap.Logger
}

// run validates query and corrects it until it is valid or the budget is
// spent. A non-nil initial verdict replaces the first validation; it is
// used when the query could not be rewritten at all.
func (m *attemptMachine) run(ctx context.Context, query string, initial *models.ValidationVerdict) *models.FederationAttempt {
	attempt := &models.FederationAttempt{
		Source:       m.request.Source,
		State:        models.AttemptPending,
		CurrentQuery: query,
	}
	corrected := false

	for {
		m.transition(attempt, models.AttemptValidating)

		var report sql.Report
		if initial != nil && !corrected && attempt.AttemptsUsed == 0 {
			report.Verdict = *initial
		} else {
			report = sql.Check(attempt.CurrentQuery, m.dialect, m.schema)
		}
		attempt.LastVerdict = report.Verdict

		if len(report.Injections) > 0 && (corrected || m.screenInitial) && m.onInjection != nil {
			m.onInjection(attempt.CurrentQuery, report.Injections, corrected)
		}

		if report.Verdict.Valid {
			m.transition(attempt, models.AttemptValid)
			return attempt
		}
		if attempt.AttemptsUsed >= m.maxRetries {
			m.transition(attempt, models.AttemptExhausted)
			return attempt
		}

		m.transition(attempt, models.AttemptCorrecting)
		req := m.request
		req.Query = attempt.CurrentQuery
		req.Errors = report.Verdict.Errors

		fixed, err := m.corrector.Correct(ctx, &req)
		attempt.AttemptsUsed++
		if err != nil {
			m.logger.Warn("Correction attempt failed",
				zap.String("source", attempt.Source),
				zap.Int("attempt", attempt.AttemptsUsed),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		attempt.CurrentQuery = fixed
		corrected = true
	}
}

func (m *attemptMachine) transition(attempt *models.FederationAttempt, to models.AttemptState) {
	m.logger.Debug("Attempt state change",
		zap.String("source", attempt.Source),
		zap.String("from", string(attempt.State)),
		zap.String("to", string(to)),
		zap.Int("attempts_used", attempt.AttemptsUsed))
	attempt.State = to
}
