package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/store"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := store.RunRecord{
		ID:          "run-1",
		Pipeline:    "pk/summary",
		Input:       "table2.md",
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
		Success:     true,
		RowCount:    4,
		TotalTokens: 120,
		Output:      "| a |\n| --- |\n| 1 |\n",
	}
	records := []pipeline.Record{
		{Step: "drug-identity", Success: true, RawReasoning: "r <<[]>>", CleanedReasoning: "r", TokenUsage: 60, Attempts: 1},
		{Step: "drug-matching", Success: true, Skipped: true},
		{Step: "time-extraction", Success: true, TokenUsage: 60, Truncated: true, Attempts: 2},
	}
	require.NoError(t, db.SaveRun(ctx, first, records))

	second := store.RunRecord{
		ID:         "run-2",
		Pipeline:   "pk/individual",
		Input:      "table3.md",
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour),
		Error:      "pipeline failed",
	}
	require.NoError(t, db.SaveRun(ctx, second, nil))

	runs, err := db.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
	assert.False(t, runs[0].Success)
	assert.Equal(t, first, runs[1])

	limited, err := db.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	loaded, err := db.Steps(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	got, err := db.Run(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, "pipeline failed", got.Error)

	_, err = db.Run(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestStoreRejectsDuplicateRun(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	run := store.RunRecord{ID: "same", Pipeline: "pk/summary", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, db.SaveRun(ctx, run, []pipeline.Record{{Step: "assembly", Success: true}}))
	require.Error(t, db.SaveRun(ctx, run, []pipeline.Record{{Step: "assembly", Success: true}}))

	steps, err := db.Steps(ctx, "same")
	require.NoError(t, err)
	assert.Len(t, steps, 1, "the failed save rolled back")
}
