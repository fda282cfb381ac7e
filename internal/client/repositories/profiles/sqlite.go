package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/mkarpov/sshvault/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const profileColumns = `id, owner, name, host, port, username, group_name, terminal_type,
	columns, rows, ciphertext, nonce, key_salt, fingerprint,
	server_version, client_version, last_synced_at, created_at, updated_at, deleted_at`

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.SessionProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM session_profiles WHERE id = ?`
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select profile: %w", err)
	}
	return p, nil
}

// Upsert inserts a new profile row or replaces an existing one by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, p *models.SessionProfile) error {
	query := `INSERT INTO session_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			group_name = excluded.group_name,
			terminal_type = excluded.terminal_type,
			columns = excluded.columns,
			rows = excluded.rows,
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			key_salt = excluded.key_salt,
			fingerprint = excluded.fingerprint,
			server_version = excluded.server_version,
			client_version = excluded.client_version,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Owner, p.Name, p.Host, p.Port, p.Username, p.GroupName, p.TerminalType,
		p.Columns, p.Rows, p.Envelope.Ciphertext, p.Envelope.Nonce, p.Envelope.KeySalt, p.Fingerprint,
		int64(p.Version.Server), int64(p.Version.Client),
		nullTime(p.LastSyncedAt), p.CreatedAt, p.UpdatedAt, nullTime(p.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListPage(ctx context.Context, page, pageSize int) (*models.ProfilePage, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM session_profiles WHERE deleted_at IS NULL`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}

	query := `SELECT ` + profileColumns + ` FROM session_profiles
		WHERE deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select profiles: %w", err)
	}
	defer rows.Close()

	result := &models.ProfilePage{Total: total, Page: page, PageSize: pageSize}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result.Profiles = append(result.Profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*models.SessionProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM session_profiles ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select profiles: %w", err)
	}
	defer rows.Close()

	var result []*models.SessionProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkDeleted tombstones a live profile and bumps its client version.
// It expects exactly one row to be affected.
func (r *SQLiteRepository) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE session_profiles
		SET deleted_at = ?, updated_at = ?, client_version = client_version + 1
		WHERE id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, at, at, id)
	if err != nil {
		return fmt.Errorf("failed to tombstone profile: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("profile %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("profile %s: %w", id, common.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.SessionProfile, error) {
	p := &models.SessionProfile{}
	var serverVersion, clientVersion int64
	var lastSyncedAt, deletedAt sql.NullTime

	err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.Host, &p.Port, &p.Username,
		&p.GroupName, &p.TerminalType, &p.Columns, &p.Rows,
		&p.Envelope.Ciphertext, &p.Envelope.Nonce, &p.Envelope.KeySalt, &p.Fingerprint,
		&serverVersion, &clientVersion, &lastSyncedAt, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	p.Version = models.VersionPair{
		Server: models.ServerVersion(serverVersion),
		Client: models.ClientVersion(clientVersion),
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		p.LastSyncedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
