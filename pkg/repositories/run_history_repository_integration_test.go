//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/testhelpers"
)

func TestRunHistoryRepository_Integration(t *testing.T) {
	historyDB := testhelpers.GetHistoryDB(t)
	repo := NewRunHistoryRepository(historyDB.DB.SQL())
	ctx := context.Background()

	_, err := historyDB.DB.Exec(ctx, "TRUNCATE federation_runs")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	old := newTestResult()
	old.RunID = uuid.New()
	old.StartedAt = now.Add(-48 * time.Hour)
	old.CompletedAt = old.StartedAt.Add(time.Second)

	recent := newTestResult()
	recent.RunID = uuid.New()
	recent.StartedAt = now
	recent.CompletedAt = now.Add(250 * time.Millisecond)

	exhausted := newTestResult()
	exhausted.RunID = uuid.New()
	exhausted.GlobalStatus = models.AttemptExhausted
	exhausted.AcceptedQuery = ""
	exhausted.StartedAt = now.Add(-time.Hour)
	exhausted.CompletedAt = exhausted.StartedAt

	for _, r := range []*models.FederationResult{old, recent, exhausted} {
		require.NoError(t, repo.RecordRun(ctx, r))
	}

	t.Run("newest first", func(t *testing.T) {
		entries, err := repo.List(ctx, models.RunHistoryFilters{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, recent.RunID, entries[0].ID)
		assert.Equal(t, old.RunID, entries[2].ID)

		// The global scope is not stored with the per-source outcomes.
		require.Len(t, entries[0].Sources, 2)
		assert.Equal(t, "Linkedin_source", entries[0].Sources[0].Source)
		assert.Equal(t, int64(250), entries[0].DurationMs)
	})

	t.Run("filter by status", func(t *testing.T) {
		entries, err := repo.List(ctx, models.RunHistoryFilters{GlobalStatus: models.AttemptExhausted})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, exhausted.RunID, entries[0].ID)
	})

	t.Run("prune", func(t *testing.T) {
		deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		entries, err := repo.List(ctx, models.RunHistoryFilters{})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}
