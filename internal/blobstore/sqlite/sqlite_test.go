package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/mealsnap/internal/blobstore"
	"github.com/vbonduro/mealsnap/internal/db"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return New(d)
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "meal_records")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestSQLiteStorePutOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "meal_records", []byte(`[1]`)))
	require.NoError(t, s.Put(ctx, "meal_records", []byte(`[1,2]`)))

	got, err := s.Get(ctx, "meal_records")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)
}

func TestSQLiteStoreDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "meal_records", []byte(`[]`)))
	require.NoError(t, s.Delete(ctx, "meal_records"))
	require.NoError(t, s.Delete(ctx, "meal_records"))

	_, err := s.Get(ctx, "meal_records")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
