package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var runColumns = []string{
	"id", "global_query", "resolved_intent", "global_status", "accepted_query",
	"source_count", "ok_count", "record_count", "sources",
	"started_at", "duration_ms",
}

// RunHistoryRepository provides data access for federation run history.
type RunHistoryRepository interface {
	// RecordRun stores the summary of a finished federation run.
	RecordRun(ctx context.Context, result *models.FederationResult) error
	Create(ctx context.Context, entry *models.RunHistoryEntry) error
	List(ctx context.Context, filters models.RunHistoryFilters) ([]*models.RunHistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type runHistoryRepository struct {
	db *sql.DB
}

// NewRunHistoryRepository creates a repository backed by db.
func NewRunHistoryRepository(db *sql.DB) RunHistoryRepository {
	return &runHistoryRepository{db: db}
}

var _ RunHistoryRepository = (*runHistoryRepository)(nil)

func (r *runHistoryRepository) RecordRun(ctx context.Context, result *models.FederationResult) error {
	return r.Create(ctx, models.NewRunHistoryEntry(result))
}

func (r *runHistoryRepository) Create(ctx context.Context, entry *models.RunHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	sources := entry.Sources
	if sources == nil {
		sources = []models.AttemptSummary{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query, args, err := psq.Insert("federation_runs").
		Columns(runColumns...).
		Values(
			entry.ID,
			entry.GlobalQuery,
			entry.ResolvedIntent,
			string(entry.GlobalStatus),
			entry.AcceptedQuery,
			entry.SourceCount,
			entry.OKCount,
			entry.RecordCount,
			sourcesJSON,
			entry.StartedAt,
			entry.DurationMs,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create run history entry: %w", err)
	}
	return nil
}

func (r *runHistoryRepository) List(ctx context.Context, filters models.RunHistoryFilters) ([]*models.RunHistoryEntry, error) {
	limit := filters.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	qb := psq.Select(runColumns...).From("federation_runs")
	if filters.GlobalStatus != "" {
		qb = qb.Where(sq.Eq{"global_status": string(filters.GlobalStatus)})
	}
	if filters.Since != nil {
		qb = qb.Where(sq.GtOrEq{"started_at": *filters.Since})
	}
	qb = qb.OrderBy("started_at DESC").Limit(uint64(limit))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*models.RunHistoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run history: %w", err)
	}
	return entries, nil
}

func (r *runHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psq.Delete("federation_runs").Where(sq.Lt{"started_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete run history: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(rows *sql.Rows) (*models.RunHistoryEntry, error) {
	var entry models.RunHistoryEntry
	var status string
	var sourcesJSON []byte

	err := rows.Scan(
		&entry.ID,
		&entry.GlobalQuery,
		&entry.ResolvedIntent,
		&status,
		&entry.AcceptedQuery,
		&entry.SourceCount,
		&entry.OKCount,
		&entry.RecordCount,
		&sourcesJSON,
		&entry.StartedAt,
		&entry.DurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run history row: %w", err)
	}
	entry.GlobalStatus = models.AttemptState(status)

	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &entry.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	return &entry, nil
}
