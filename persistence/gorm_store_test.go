package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/consortium/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func sampleRecord(runID string, round int) types.IterationRecord {
	return types.IterationRecord{
		RunID:  runID,
		Round:  round,
		Prompt: "the prompt",
		Responses: []types.AgentResponse{
			{AgentID: "a", Instance: 1, Answer: "A", Confidence: types.Float64Ptr(0.8)},
			{AgentID: "b", Instance: 1, ErrMessage: "timed out"},
		},
		Synthesis: types.SynthesisResult{
			Synthesis:       "merged",
			Confidence:      0.75,
			RefinementAreas: []string{"be specific"},
		},
		StartedAt:   time.Now().Add(-time.Second).UTC().Truncate(time.Millisecond),
		CompletedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestGormStore_AppendAndListByRun(t *testing.T) {
	t.Parallel()

	store, err := NewGormStore(setupTestDB(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, sampleRecord("run-1", 1)))
	require.NoError(t, store.Append(ctx, sampleRecord("run-1", 2)))
	require.NoError(t, store.Append(ctx, sampleRecord("run-2", 1)))

	records, err := store.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Round)
	assert.Equal(t, 2, records[1].Round)

	got := records[0]
	assert.Equal(t, "the prompt", got.Prompt)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "a", got.Responses[0].AgentID)
	require.NotNil(t, got.Responses[0].Confidence)
	assert.Equal(t, 0.8, *got.Responses[0].Confidence)
	assert.Equal(t, "timed out", got.Responses[1].ErrMessage)
	assert.Equal(t, "merged", got.Synthesis.Synthesis)
	assert.Equal(t, []string{"be specific"}, got.Synthesis.RefinementAreas)
}

func TestGormStore_ListByRun_Empty(t *testing.T) {
	t.Parallel()

	store, err := NewGormStore(setupTestDB(t), nil)
	require.NoError(t, err)

	records, err := store.ListByRun(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenDatabase_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenDatabase(DBConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenDatabase_SQLiteDefault(t *testing.T) {
	t.Parallel()

	db, err := OpenDatabase(DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
