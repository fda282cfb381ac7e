package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestBaselines_SetGetDelete(t *testing.T) {
	b := NewBaselines(NewSQLiteRepository(setupDB(t)))
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	v := models.VersionPair{Server: 3, Client: 7}
	require.NoError(t, b.Set(ctx, "s1", v))

	got, ok, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, v, got)

	require.NoError(t, b.Delete(ctx, "s1"))
	_, ok, err = b.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBaselines_GetAllSkipsForeignKeys(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	b := NewBaselines(repo)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "s1", models.VersionPair{Server: 1, Client: 1}))
	require.NoError(t, b.Set(ctx, "s2", models.VersionPair{Server: 2, Client: 0}))
	require.NoError(t, b.SetLastSyncAt(ctx, time.Now()))

	all, err := b.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, models.ServerVersion(2), all["s2"].Server)
}

func TestBaselines_LastSyncAtRoundTrip(t *testing.T) {
	b := NewBaselines(NewSQLiteRepository(setupDB(t)))
	ctx := context.Background()

	got, err := b.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, b.SetLastSyncAt(ctx, at))

	got, err = b.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}
