package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cogito/internal/memory"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/internal/storage/sqlite"
	"github.com/scrypster/cogito/pkg/types"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	backend, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	store, err := memory.NewStore(backend.Memories(), 168*time.Hour, 0.9)
	require.NoError(t, err)
	return store
}

func TestInsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cand := memory.Candidate{
		Source:       types.SourceSearch,
		Content:      "octopuses have three hearts",
		Associations: []string{"biology"},
	}

	first, inserted, err := store.Insert(ctx, cand)
	require.NoError(t, err)
	assert.True(t, inserted)

	second, inserted, err := store.Insert(ctx, cand)
	require.NoError(t, err)
	assert.False(t, inserted, "second insert of identical content must be a no-op")
	assert.Equal(t, first.ID, second.ID)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total, "total count unchanged by duplicate insert")
}

func TestInsertDefaultsImportance(t *testing.T) {
	store := newTestStore(t)

	entry, _, err := store.Insert(context.Background(), memory.Candidate{
		Source:  types.SourceVideo,
		Content: "a lecture on thermodynamics",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, entry.Importance, 1e-9)
}

func TestQueryIsLazyAndRestartable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		_, _, err := store.Insert(ctx, memory.Candidate{
			Source:  types.SourceSearch,
			Content: fmt.Sprintf("fact number %d", i),
		})
		require.NoError(t, err)
	}

	count := func() int {
		n := 0
		for entry, err := range store.Query(ctx, storage.MemoryFilter{}) {
			require.NoError(t, err)
			require.NotNil(t, entry)
			n++
		}
		return n
	}

	assert.Equal(t, 250, count(), "iterator must page through the full store")
	assert.Equal(t, 250, count(), "iterator must be restartable")
}

func TestQueryEarlyStop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _, err := store.Insert(ctx, memory.Candidate{
			Source:  types.SourceSearch,
			Content: fmt.Sprintf("entry %d", i),
		})
		require.NoError(t, err)
	}

	n := 0
	for _, err := range store.Query(ctx, storage.MemoryFilter{}) {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestQueryOrderedByCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := store.Insert(ctx, memory.Candidate{
			Source:  types.SourceSearch,
			Content: fmt.Sprintf("ordered entry %d", i),
		})
		require.NoError(t, err)
	}

	var prev time.Time
	for entry, err := range store.Query(ctx, storage.MemoryFilter{}) {
		require.NoError(t, err)
		assert.False(t, entry.CreatedAt.Before(prev), "entries must arrive in created_at order")
		prev = entry.CreatedAt
	}
}

func TestImportanceDecayPassNeverDeletes(t *testing.T) {
	backend, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	store, err := memory.NewStore(backend.Memories(), time.Hour, 0.5)
	require.NoError(t, err)

	// Insert an entry dated past the decay age directly through the backend.
	old := &types.MemoryEntry{
		ID:         types.MemoryID(types.SourceSearch, "aging fact"),
		Source:     types.SourceSearch,
		Content:    "aging fact",
		Importance: 0.8,
		CreatedAt:  time.Now().UTC().Add(-2 * time.Hour),
	}
	_, err = backend.Memories().Insert(ctx, old)
	require.NoError(t, err)

	updated, err := store.ImportanceDecayPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	entry, err := store.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, entry.Importance, 1e-9)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total, "decay pass must not delete entries")
}
