package profiles

import (
	"context"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
)

// Repository describes the persistence operations the local session store
// needs. Implementations are backed by a local SQLite database.
type Repository interface {
	// Get returns a profile by id, including tombstones.
	// Fails with common.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*models.SessionProfile, error)

	// Upsert inserts or replaces a profile row unconditionally. Invariant
	// enforcement happens in the Store, which serializes access per id.
	Upsert(ctx context.Context, p *models.SessionProfile) error

	// ListPage returns one page of live (non-tombstoned) profiles ordered
	// by (created_at, id), plus the total live count.
	ListPage(ctx context.Context, page, pageSize int) (*models.ProfilePage, error)

	// ListAll returns every profile, tombstones included, for the
	// reconciler.
	ListAll(ctx context.Context) ([]*models.SessionProfile, error)

	// MarkDeleted sets deleted_at and bumps the client version.
	MarkDeleted(ctx context.Context, id string, at time.Time) error

	// Delete removes a row permanently.
	Delete(ctx context.Context, id string) error
}
