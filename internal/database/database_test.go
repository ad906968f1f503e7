package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsureExternalTableIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	name := "properties_dataset.raw_london_properties"
	pattern := "gs://london-properties/raw_daily_data/succeeded/*.parquet"

	require.NoError(t, db.EnsureExternalTable(ctx, name, "PARQUET", pattern))
	require.NoError(t, db.EnsureExternalTable(ctx, name, "PARQUET", pattern))

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, name, tables[0].Name)
	assert.Equal(t, "PARQUET", tables[0].Format)
	assert.Equal(t, pattern, tables[0].SourceURIPattern)
}

func TestEnsureExternalTableKeepsFirstDefinition(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnsureExternalTable(ctx, "t", "PARQUET", "file:///a/*.parquet"))
	require.NoError(t, db.EnsureExternalTable(ctx, "t", "PARQUET", "file:///b/*.parquet"))

	table, err := db.GetTable(ctx, "t")
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, "file:///a/*.parquet", table.SourceURIPattern)
}

func TestEnsureExternalTableRejectsEmptyArguments(t *testing.T) {
	db := setupTestDB(t)
	err := db.EnsureExternalTable(context.Background(), "t", "", "p")
	var catalogErr *CatalogError
	assert.ErrorAs(t, err, &catalogErr)
}

func TestRunHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 19, 19, 50, 0, 0, time.UTC)
	older := &models.ScrapeRun{ID: "run-1", RunDate: "2024-03-19", Status: models.RunStatusSucceeded, StartedAt: start}
	newer := &models.ScrapeRun{ID: "run-2", RunDate: "2024-03-20", Status: models.RunStatusRunning, StartedAt: start.Add(24 * time.Hour)}
	require.NoError(t, db.SaveRun(ctx, older))
	require.NoError(t, db.SaveRun(ctx, newer))

	finished := start.Add(25 * time.Hour)
	newer.Status = models.RunStatusFailed
	newer.FinishedAt = &finished
	newer.Failed = 2
	newer.FailuresByKind = map[string]int{"fetch": 2}
	require.NoError(t, db.SaveRun(ctx, newer))

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.Equal(t, map[string]int{"fetch": 2}, runs[0].FailuresByKind)

	limited, err := db.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-19", got.RunDate)

	_, err = db.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	latest, err := db.LatestSucceededRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-1", latest.ID)
}
