// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant federation events in structured JSON format for
// easy parsing by security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a literal in a query bound for a source.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventRetriesExhausted is logged when a scope runs out of correction attempts.
	EventRetriesExhausted SecurityEventType = "retries_exhausted"
	// EventQueryExecution is logged for each source query execution (can be high volume).
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent is one auditable event of a federation run.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RunID     uuid.UUID         `json:"run_id"`
	Source    string            `json:"source"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged literal.
type SQLInjectionDetails struct {
	Literal     string `json:"literal"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Query       string `json:"query"`
	Corrected   bool   `json:"corrected"` // the query came back from the correction service
}

// RetriesExhaustedDetails describes a scope that never validated.
type RetriesExhaustedDetails struct {
	AttemptsUsed int      `json:"attempts_used"`
	LastErrors   []string `json:"last_errors"`
	LastQuery    string   `json:"last_query"`
}

// QueryExecutionDetails describes one source execution.
type QueryExecutionDetails struct {
	RowCount   int    `json:"row_count"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor under the
// "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

func (a *SecurityAuditor) event(eventType SecurityEventType, runID uuid.UUID, source string, details any, severity string) string {
	event := SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		RunID:     runID,
		Source:    source,
		Details:   details,
		Severity:  severity,
	}
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)
	return string(eventJSON)
}

// LogInjectionAttempt records a literal flagged by injection screening.
// Logged at ERROR level with "critical" severity for immediate alerting.
// Literal and query are truncated before logging.
func (a *SecurityAuditor) LogInjectionAttempt(runID uuid.UUID, source string, details SQLInjectionDetails) {
	details.Literal = logging.TruncateString(details.Literal, logging.MaxQueryLogLength)
	details.Query = logging.SanitizeQuery(details.Query)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", a.event(EventSQLInjectionAttempt, runID, source, details, "critical")),
		zap.String("run_id", runID.String()),
		zap.String("source", source),
		zap.String("fingerprint", details.Fingerprint),
		zap.Bool("corrected", details.Corrected),
		zap.String("severity", "critical"),
	)
}

// LogRetriesExhausted records a scope that exhausted its correction budget.
// Logged at WARN level; repeated exhaustion for one source usually means
// its mapping is stale.
func (a *SecurityAuditor) LogRetriesExhausted(runID uuid.UUID, source string, details RetriesExhaustedDetails) {
	details.LastQuery = logging.SanitizeQuery(details.LastQuery)

	a.logger.Warn("Correction retries exhausted",
		zap.String("event_json", a.event(EventRetriesExhausted, runID, source, details, "warning")),
		zap.String("run_id", runID.String()),
		zap.String("source", source),
		zap.Int("attempts_used", details.AttemptsUsed),
		zap.String("severity", "warning"),
	)
}

// LogQueryExecution records a source execution for the audit trail.
func (a *SecurityAuditor) LogQueryExecution(runID uuid.UUID, source string, details QueryExecutionDetails) {
	a.logger.Info("Query executed",
		zap.String("event_json", a.event(EventQueryExecution, runID, source, details, "info")),
		zap.String("run_id", runID.String()),
		zap.String("source", source),
		zap.Int("row_count", details.RowCount),
		zap.String("status", details.Status),
		zap.String("severity", "info"),
	)
}
