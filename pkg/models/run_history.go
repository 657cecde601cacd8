package models

import (
	"time"

	"github.com/google/uuid"
)

// RunHistoryEntry is one persisted federation run. Only statuses and the
// queries that ran are kept; result rows never are.
type RunHistoryEntry struct {
	ID             uuid.UUID    `json:"id"`
	GlobalQuery    string       `json:"global_query"`
	ResolvedIntent string       `json:"resolved_intent"`
	GlobalStatus   AttemptState `json:"global_status"`
	AcceptedQuery  string       `json:"accepted_query,omitempty"`

	SourceCount int `json:"source_count"`
	OKCount     int `json:"ok_count"`
	RecordCount int `json:"record_count"`

	// Per-source outcomes
	Sources []AttemptSummary `json:"sources"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// NewRunHistoryEntry summarizes a federation result for storage.
func NewRunHistoryEntry(result *FederationResult) *RunHistoryEntry {
	entry := &RunHistoryEntry{
		ID:             result.RunID,
		GlobalQuery:    result.GlobalQuery,
		ResolvedIntent: result.ResolvedIntent,
		GlobalStatus:   result.GlobalStatus,
		AcceptedQuery:  result.AcceptedQuery,
		SourceCount:    len(result.SourceOrder),
		RecordCount:    len(result.RankedRecords),
		StartedAt:      result.StartedAt,
		DurationMs:     result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	}
	for _, status := range result.PerSourceStatus {
		if status == StatusOK {
			entry.OKCount++
		}
	}
	for _, attempt := range result.Attempts {
		if attempt.Source == GlobalSchemaSource {
			continue
		}
		entry.Sources = append(entry.Sources, attempt)
	}
	return entry
}

// RunHistoryFilters narrows a run history listing.
type RunHistoryFilters struct {
	GlobalStatus AttemptState
	Since        *time.Time
	Limit        int
}
