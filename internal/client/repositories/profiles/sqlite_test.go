package profiles

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE session_profiles (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  name TEXT NOT NULL,
  host TEXT NOT NULL,
  port INTEGER NOT NULL DEFAULT 22,
  username TEXT NOT NULL,
  group_name TEXT NOT NULL DEFAULT '',
  terminal_type TEXT NOT NULL DEFAULT '',
  columns INTEGER NOT NULL DEFAULT 0,
  rows INTEGER NOT NULL DEFAULT 0,
  ciphertext BLOB NOT NULL,
  nonce BLOB NOT NULL,
  key_salt BLOB,
  fingerprint BLOB,
  server_version INTEGER NOT NULL DEFAULT 0,
  client_version INTEGER NOT NULL DEFAULT 0,
  last_synced_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  deleted_at TIMESTAMP
);
`)
	require.NoError(t, err)
	return db
}

func testProfile(id string, clientVersion int64) *models.SessionProfile {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.SessionProfile{
		ID:       id,
		Owner:    "user-1",
		Name:     "build box " + id,
		Host:     "build-" + id + ".internal",
		Port:     22,
		Username: "deploy",
		Envelope: models.CredentialEnvelope{
			Ciphertext: []byte("ct-" + id),
			Nonce:      []byte("nonce-" + id),
			KeySalt:    []byte("salt-" + id),
		},
		Version:   models.VersionPair{Client: models.ClientVersion(clientVersion)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewSQLiteRepository(setupDB(t)), 0)
}

func TestPut_InsertAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	p := testProfile("s1", 1)
	p.GroupName = "prod"
	p.TerminalType = "xterm-256color"
	p.Columns = 120
	p.Rows = 40
	require.NoError(t, s.Put(ctx, p))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Host, got.Host)
	assert.Equal(t, "prod", got.GroupName)
	assert.Equal(t, 120, got.Columns)
	assert.Equal(t, p.Envelope.Ciphertext, got.Envelope.Ciphertext)
	assert.Equal(t, p.Envelope.Nonce, got.Envelope.Nonce)
	assert.Equal(t, p.Envelope.KeySalt, got.Envelope.KeySalt)
	assert.Equal(t, models.ClientVersion(1), got.Version.Client)
	assert.False(t, got.Version.Synced())
	assert.Nil(t, got.LastSyncedAt)
	assert.Nil(t, got.DeletedAt)
}

func TestPut_StaleWriteRejectedAndRowUnchanged(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 3)))

	// equal version
	dup := testProfile("s1", 3)
	dup.Name = "should not land"
	err := s.Put(ctx, dup)
	assert.ErrorIs(t, err, common.ErrStaleWrite)

	// older version
	old := testProfile("s1", 2)
	old.Name = "should not land either"
	err = s.Put(ctx, old)
	assert.ErrorIs(t, err, common.ErrStaleWrite)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "build box s1", got.Name)
	assert.Equal(t, models.ClientVersion(3), got.Version.Client)
}

func TestPut_NewerVersionWins(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 1)))

	upd := testProfile("s1", 2)
	upd.Name = "renamed"
	require.NoError(t, s.Put(ctx, upd))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, models.ClientVersion(2), got.Version.Client)
}

func TestPut_TombstoneRejectsMutation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 1)))
	require.NoError(t, s.MarkDeleted(ctx, "s1", time.Now().UTC()))

	err := s.Put(ctx, testProfile("s1", 5))
	assert.ErrorIs(t, err, common.ErrTombstoned)
}

func TestGet_NotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListPage_StableOrderingAndTotal(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		p := testProfile(id, 1)
		p.CreatedAt = base.Add(time.Duration(i/2) * time.Hour) // c,a share a timestamp
		require.NoError(t, s.Put(ctx, p))
	}

	page1, err := s.ListPage(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page1.Total)
	require.Len(t, page1.Profiles, 2)
	// equal created_at ties broken by id
	assert.Equal(t, "a", page1.Profiles[0].ID)
	assert.Equal(t, "c", page1.Profiles[1].ID)

	// repeated listing with no intervening writes is identical
	again, err := s.ListPage(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, again.Profiles, 2)
	assert.Equal(t, page1.Profiles[0].ID, again.Profiles[0].ID)
	assert.Equal(t, page1.Profiles[1].ID, again.Profiles[1].ID)

	page2, err := s.ListPage(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Profiles, 1)
	assert.Equal(t, "b", page2.Profiles[0].ID)
}

func TestListPage_ExcludesTombstones(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 1)))
	require.NoError(t, s.Put(ctx, testProfile("s2", 1)))
	require.NoError(t, s.MarkDeleted(ctx, "s1", time.Now().UTC()))

	page, err := s.ListPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, "s2", page.Profiles[0].ID)
}

func TestListPage_InvalidArguments(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, tc := range []struct{ page, size int }{
		{0, 10}, {-1, 10}, {1, 0}, {1, -5}, {1, DefaultMaxPageSize + 1},
	} {
		_, err := s.ListPage(ctx, tc.page, tc.size)
		assert.ErrorIs(t, err, common.ErrInvalidPage, "page=%d size=%d", tc.page, tc.size)
	}
}

func TestMarkDeleted_BumpsClientVersion(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 2)))

	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkDeleted(ctx, "s1", at))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.Deleted())
	assert.Equal(t, models.ClientVersion(3), got.Version.Client)
}

func TestMarkDeleted_NotFoundAndDoubleDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	err := s.MarkDeleted(ctx, "missing", time.Now().UTC())
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.Put(ctx, testProfile("s1", 1)))
	require.NoError(t, s.MarkDeleted(ctx, "s1", time.Now().UTC()))
	err = s.MarkDeleted(ctx, "s1", time.Now().UTC())
	assert.ErrorIs(t, err, common.ErrTombstoned)
}

func TestPurge(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 1)))

	err := s.Purge(ctx, "s1")
	assert.ErrorIs(t, err, common.ErrNotTombstoned)

	require.NoError(t, s.MarkDeleted(ctx, "s1", time.Now().UTC()))
	require.NoError(t, s.Purge(ctx, "s1"))

	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = s.Purge(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAdopt_BypassesMonotonicityCheck(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 5)))

	// adoption of a remote copy resets the client counter
	adopted := testProfile("s1", 0)
	adopted.Name = "remote copy"
	adopted.Version = models.VersionPair{Server: 7, Client: 0}
	require.NoError(t, s.Adopt(ctx, adopted))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "remote copy", got.Name)
	assert.Equal(t, models.ServerVersion(7), got.Version.Server)
	assert.Equal(t, models.ClientVersion(0), got.Version.Client)
}

func TestListAll_IncludesTombstones(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testProfile("s1", 1)))
	require.NoError(t, s.Put(ctx, testProfile("s2", 1)))
	require.NoError(t, s.MarkDeleted(ctx, "s1", time.Now().UTC()))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
