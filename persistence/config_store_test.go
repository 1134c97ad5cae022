package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/consortium/consortium"
	"github.com/BaSui01/consortium/types"
)

func TestConfigStore_SaveGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewConfigStore(setupTestDB(t), nil)
	require.NoError(t, err)

	cfg := consortium.Config{
		Roster:              types.Roster{{ID: "gpt-4o", Count: 2}, {ID: "claude", Count: 1}},
		Arbiter:             "claude",
		ConfidenceThreshold: 0.9,
		MinIterations:       1,
		MaxIterations:       5,
		SystemPrompt:        "be careful",
	}

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "careful-panel", cfg))

	got, err := store.Get(ctx, "careful-panel")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestConfigStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store, err := NewConfigStore(setupTestDB(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	first := consortium.Config{Roster: types.Roster{{ID: "a", Count: 1}}, Arbiter: "a"}
	second := consortium.Config{Roster: types.Roster{{ID: "b", Count: 3}}, Arbiter: "b"}

	require.NoError(t, store.Save(ctx, "panel", first))
	require.NoError(t, store.Save(ctx, "panel", second))

	got, err := store.Get(ctx, "panel")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"panel"}, names)
}

func TestConfigStore_GetMissing(t *testing.T) {
	t.Parallel()

	store, err := NewConfigStore(setupTestDB(t), nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestConfigStore_ListSorted(t *testing.T) {
	t.Parallel()

	store, err := NewConfigStore(setupTestDB(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Save(ctx, name, consortium.Config{Arbiter: "a"}))
	}

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestConfigStore_Remove(t *testing.T) {
	t.Parallel()

	store, err := NewConfigStore(setupTestDB(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "panel", consortium.Config{Arbiter: "a"}))
	require.NoError(t, store.Remove(ctx, "panel"))

	_, err = store.Get(ctx, "panel")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	assert.ErrorIs(t, store.Remove(ctx, "panel"), ErrConfigNotFound)
}

func TestConfigStore_EmptyNameRejected(t *testing.T) {
	t.Parallel()

	store, err := NewConfigStore(setupTestDB(t), nil)
	require.NoError(t, err)

	err = store.Save(context.Background(), "", consortium.Config{Arbiter: "a"})
	assert.Equal(t, types.ErrConfigInvalid, types.GetErrorCode(err))
}
