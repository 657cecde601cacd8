package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-federation/pkg/llm"
	"github.com/ekaya-inc/ekaya-federation/pkg/logging"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/prompts"
	"github.com/ekaya-inc/ekaya-federation/pkg/retry"
)

// CorrectionRequest is one call to the correction collaborator.
type CorrectionRequest struct {
	// Query is the statement that failed validation.
	Query   string
	Source  string
	Dialect models.Dialect
	// LocalSchema is the schema Query is validated against. For the
	// global query it is the global validation schema.
	LocalSchema models.LocalSchema
	Errors      []string

	// GlobalQuery is the accepted global query a source query came from.
	GlobalQuery      string
	Intent           string
	GlobalAttributes []string
	GlobalTables     []string
}

// IsGlobal reports whether the request is for the global query.
func (r *CorrectionRequest) IsGlobal() bool {
	return r.Source == models.GlobalSchemaSource
}

// Corrector rewrites a query that failed validation. Any error is a failed
// correction attempt; callers never treat it as fatal.
type Corrector interface {
	Correct(ctx context.Context, req *CorrectionRequest) (string, error)
}

// CorrectorFunc adapts a function to the Corrector interface.
type CorrectorFunc func(ctx context.Context, req *CorrectionRequest) (string, error)

func (f CorrectorFunc) Correct(ctx context.Context, req *CorrectionRequest) (string, error) {
	return f(ctx, req)
}

// StaticCorrector answers every request for a source with a fixed query.
// Sources without an entry fail.
type StaticCorrector map[string]string

func (s StaticCorrector) Correct(_ context.Context, req *CorrectionRequest) (string, error) {
	corrected, ok := s[req.Source]
	if !ok {
		return "", apperrors.Newf(apperrors.KindCorrectionFailed, req.Source, "no static correction")
	}
	return corrected, nil
}

// NoopCorrector always fails. It is used when no language model is
// configured, so invalid queries exhaust their retries without a network call.
type NoopCorrector struct{}

func (NoopCorrector) Correct(_ context.Context, req *CorrectionRequest) (string, error) {
	return "", apperrors.Newf(apperrors.KindCorrectionFailed, req.Source, "correction is disabled")
}

// correctionResponse is the JSON shape the correction prompt asks for.
type correctionResponse struct {
	CorrectedSQL string `json:"corrected_sql"`
}

type llmCorrector struct {
	client         llm.LLMClient
	circuitBreaker *llm.CircuitBreaker
	temperature    float64
	retryCfg       *retry.Config
	logger         *zap.Logger
}

// NewLLMCorrector creates a Corrector backed by a language model. A nil
// circuit breaker gets the default configuration.
func NewLLMCorrector(
	client llm.LLMClient,
	circuitBreaker *llm.CircuitBreaker,
	temperature float64,
	logger *zap.Logger,
) Corrector {
	if circuitBreaker == nil {
		circuitBreaker = llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	}
	return &llmCorrector{
		client:         client,
		circuitBreaker: circuitBreaker,
		temperature:    temperature,
		retryCfg:       retry.LLMConfig(),
		logger:         logger.Named("correction"),
	}
}

var _ Corrector = (*llmCorrector)(nil)

func (c *llmCorrector) Correct(ctx context.Context, req *CorrectionRequest) (string, error) {
	allowed, err := c.circuitBreaker.Allow()
	if !allowed {
		c.logger.Warn("Circuit breaker prevented correction call",
			zap.String("source", req.Source),
			zap.String("circuit_state", c.circuitBreaker.State().String()),
			zap.Int("consecutive_failures", c.circuitBreaker.ConsecutiveFailures()))
		return "", apperrors.New(apperrors.KindCorrectionFailed, req.Source, err)
	}

	prompt := buildCorrectionPrompt(req)

	var result *llm.GenerateResponseResult
	err = retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		var callErr error
		result, callErr = c.client.GenerateResponse(ctx, prompt, prompts.CorrectionSystemMessage, c.temperature)
		if callErr != nil {
			classified := llm.ClassifyError(callErr)
			c.logger.Warn("Correction call failed",
				zap.String("source", req.Source),
				zap.String("error_type", string(classified.Type)),
				zap.Bool("retryable", classified.Retryable),
				zap.String("error", logging.SanitizeError(callErr)))
			return classified
		}
		return nil
	})
	if err != nil {
		c.circuitBreaker.RecordFailure()
		return "", apperrors.New(apperrors.KindCorrectionFailed, req.Source, fmt.Errorf("correction call failed: %w", err))
	}
	c.circuitBreaker.RecordSuccess()

	corrected, err := extractCorrectedSQL(result.Content)
	if err != nil {
		c.logger.Warn("Unusable correction response",
			zap.String("source", req.Source),
			zap.String("response_preview", logging.TruncateString(result.Content, 200)),
			zap.Error(err))
		return "", apperrors.New(apperrors.KindCorrectionFailed, req.Source, err)
	}

	c.logger.Debug("Received corrected query",
		zap.String("source", req.Source),
		zap.String("query", logging.SanitizeQuery(corrected)),
		zap.Int("total_tokens", result.TotalTokens))
	return corrected, nil
}

var errNoCorrectedSQL = errors.New("response contains no corrected SQL")

// extractCorrectedSQL reads {"corrected_sql": ...} from a response. A reply
// that is not JSON is accepted when its code block (or whole body) is a
// query statement.
func extractCorrectedSQL(content string) (string, error) {
	if resp, err := llm.ParseJSONResponse[correctionResponse](content); err == nil {
		if sql := strings.TrimSpace(resp.CorrectedSQL); sql != "" {
			return sql, nil
		}
		return "", errNoCorrectedSQL
	}

	candidate := llm.ExtractCodeBlock(content)
	if IsQueryStatement(DetectSQLType(candidate)) {
		return candidate, nil
	}
	return "", errNoCorrectedSQL
}

func buildCorrectionPrompt(req *CorrectionRequest) string {
	c := prompts.CorrectionContext{
		Intent:           req.Intent,
		GlobalQuery:      req.GlobalQuery,
		PreviousSQL:      req.Query,
		Source:           req.Source,
		Dialect:          string(req.Dialect),
		GlobalAttributes: req.GlobalAttributes,
		GlobalTables:     req.GlobalTables,
		Errors:           req.Errors,
	}
	if req.IsGlobal() {
		return prompts.BuildGlobalCorrectionPrompt(c)
	}
	c.LocalSchema = req.LocalSchema
	return prompts.BuildTranslationCorrectionPrompt(c)
}
