// Package profiles implements the local session store: a durable client-side
// cache of session profiles keyed by id, with per-record client versions.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
)

// DefaultMaxPageSize bounds ListPage when no explicit maximum is configured.
const DefaultMaxPageSize = 100

// Store enforces the session-store invariants on top of a Repository:
// strict client-version monotonicity, tombstone immutability, and
// single-writer-per-record serialization. Reads and writes to different ids
// proceed concurrently.
type Store struct {
	repo        Repository
	maxPageSize int
	locks       sync.Map // id -> *sync.Mutex
}

// NewStore wraps repo with invariant enforcement. maxPageSize <= 0 selects
// DefaultMaxPageSize.
func NewStore(repo Repository, maxPageSize int) *Store {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Store{repo: repo, maxPageSize: maxPageSize}
}

func (s *Store) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Put upserts a profile by id. When a record already exists, the incoming
// client version must be strictly greater than the stored one; otherwise the
// write fails with common.ErrStaleWrite and the stored record is unchanged.
// This protects against duplicate or out-of-order local writes, such as
// retried requests. Tombstoned records reject all writes with
// common.ErrTombstoned.
func (s *Store) Put(ctx context.Context, p *models.SessionProfile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id is empty: %w", common.ErrInternal)
	}
	defer s.lock(p.ID)()

	existing, err := s.repo.Get(ctx, p.ID)
	if err == nil {
		if existing.Deleted() {
			return fmt.Errorf("profile %s: %w", p.ID, common.ErrTombstoned)
		}
		if p.Version.Client <= existing.Version.Client {
			return fmt.Errorf("profile %s: incoming client version %d <= stored %d: %w",
				p.ID, p.Version.Client, existing.Version.Client, common.ErrStaleWrite)
		}
	} else if !isNotFound(err) {
		return err
	}

	return s.repo.Upsert(ctx, p)
}

// Adopt writes a record produced by the reconciler, bypassing the
// monotonicity check: adoption converges local state onto the remote copy,
// which may carry a lower client version than the discarded local edit.
// Only the sync layer calls this.
func (s *Store) Adopt(ctx context.Context, p *models.SessionProfile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id is empty: %w", common.ErrInternal)
	}
	defer s.lock(p.ID)()
	return s.repo.Upsert(ctx, p)
}

// Get returns a profile by id, tombstones included.
func (s *Store) Get(ctx context.Context, id string) (*models.SessionProfile, error) {
	return s.repo.Get(ctx, id)
}

// ListPage returns one page of live profiles in stable (created_at, id)
// order, so repeated listing with unchanged data is deterministic. page is
// 1-based; pageSize must be positive and within the configured maximum.
func (s *Store) ListPage(ctx context.Context, page, pageSize int) (*models.ProfilePage, error) {
	if page <= 0 || pageSize <= 0 || pageSize > s.maxPageSize {
		return nil, fmt.Errorf("page=%d pageSize=%d (max %d): %w",
			page, pageSize, s.maxPageSize, common.ErrInvalidPage)
	}
	return s.repo.ListPage(ctx, page, pageSize)
}

// ListAll returns every record, tombstones included, for reconciliation.
func (s *Store) ListAll(ctx context.Context) ([]*models.SessionProfile, error) {
	return s.repo.ListAll(ctx)
}

// MarkDeleted tombstones a profile, bumping its client version. Fails with
// common.ErrNotFound when absent and common.ErrTombstoned when the record is
// already deleted (a tombstone must not be mutated further).
func (s *Store) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	defer s.lock(id)()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Deleted() {
		return fmt.Errorf("profile %s: %w", id, common.ErrTombstoned)
	}
	return s.repo.MarkDeleted(ctx, id, at)
}

// Purge permanently removes a tombstoned record. Fails with
// common.ErrNotTombstoned when the record is still live.
func (s *Store) Purge(ctx context.Context, id string) error {
	defer s.lock(id)()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !existing.Deleted() {
		return fmt.Errorf("profile %s: %w", id, common.ErrNotTombstoned)
	}
	return s.repo.Delete(ctx, id)
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
