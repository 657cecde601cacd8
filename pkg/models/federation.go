package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RewrittenQuery is a global query rewritten for one source.
type RewrittenQuery struct {
	Source  string  `json:"source"`
	Dialect Dialect `json:"dialect"`
	SQL     string  `json:"sql"`
}

// ValidationVerdict is the outcome of validating one query.
// Warnings never affect Valid.
type ValidationVerdict struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AttemptState is a state of the per-scope validate/correct loop.
type AttemptState string

const (
	AttemptPending    AttemptState = "PENDING"
	AttemptValidating AttemptState = "VALIDATING"
	AttemptValid      AttemptState = "VALID"
	AttemptCorrecting AttemptState = "CORRECTING"
	AttemptExhausted  AttemptState = "EXHAUSTED"
)

// IsTerminal reports whether no further transitions can occur.
func (s AttemptState) IsTerminal() bool {
	return s == AttemptValid || s == AttemptExhausted
}

// FederationAttempt tracks one scope (a source or GLOBAL_SCHEMA) through
// validation and correction. It is owned by exactly one worker.
type FederationAttempt struct {
	Source       string            `json:"source"`
	State        AttemptState      `json:"state"`
	AttemptsUsed int               `json:"attempts_used"`
	CurrentQuery string            `json:"current_query"`
	LastVerdict  ValidationVerdict `json:"last_verdict"`
}

// SourceStatus is the per-source outcome of a federation run.
type SourceStatus string

const (
	StatusOK      SourceStatus = "ok"
	StatusNoQuery SourceStatus = "no_query"

	statusErrorPrefix = "error:"
)

// ErrorStatus builds an "error:<cause>" status.
func ErrorStatus(cause string) SourceStatus {
	return SourceStatus(statusErrorPrefix + cause)
}

// IsError reports whether the status is an error status.
func (s SourceStatus) IsError() bool {
	return strings.HasPrefix(string(s), statusErrorPrefix)
}

// Cause returns the error cause of an error status.
func (s SourceStatus) Cause() string {
	if !s.IsError() {
		return ""
	}
	return strings.TrimPrefix(string(s), statusErrorPrefix)
}

// RawResultSet holds the rows returned by one source, or the failure.
type RawResultSet struct {
	Source string           `json:"source"`
	Rows   []map[string]any `json:"rows"`
	Err    error            `json:"-"`
}

// AttemptSummary is the per-scope record kept on a FederationResult.
type AttemptSummary struct {
	Source       string        `json:"source"`
	State        AttemptState  `json:"state"`
	AttemptsUsed int           `json:"attempts_used"`
	FinalQuery   string        `json:"final_query,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Status       SourceStatus  `json:"status"`
	RowCount     int           `json:"row_count"`
	Duration     time.Duration `json:"duration_ns"`
}

// FederationResult is the output of one federation run.
type FederationResult struct {
	RunID           uuid.UUID               `json:"run_id"`
	GlobalQuery     string                  `json:"global_query"`
	ResolvedIntent  string                  `json:"resolved_intent"`
	GlobalStatus    AttemptState            `json:"global_status"`
	AcceptedQuery   string                  `json:"accepted_query,omitempty"`
	SourceOrder     []string                `json:"source_order"`
	PerSourceStatus map[string]SourceStatus `json:"per_source_status"`
	Attempts        []AttemptSummary        `json:"attempts"`
	RankedRecords   []GlobalRecord          `json:"ranked_records"`
	StartedAt       time.Time               `json:"started_at"`
	CompletedAt     time.Time               `json:"completed_at"`
}
