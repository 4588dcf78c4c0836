package diagnostics

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enerhogar/energia-tracker/internal/common"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diag.db")
	store, err := Open(path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetRawText(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	err := store.SaveRawText(ctx, id, 42, "total a pagar $0")
	require.NoError(t, err)

	text, err := store.GetRawText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "total a pagar $0", text)
}

func TestSaveOverwritesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.SaveRawText(ctx, id, 1, "first"))
	require.NoError(t, store.SaveRawText(ctx, id, 1, "second"))

	text, err := store.GetRawText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", text)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRawText(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveRawText(ctx, uuid.New(), int64(i), "text"))
	}

	entries, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, 4, e.Bytes)
	}
}
