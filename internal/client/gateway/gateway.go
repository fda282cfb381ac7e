// Package gateway defines the remote sync gateway boundary: the
// request/response API the reconciler pushes to and pulls from. The remote
// service itself is an external collaborator; only this contract is part of
// the core.
package gateway

import (
	"context"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
)

// Gateway is the client-side contract of the remote sync authority.
//
// List pagination follows the same ordering contract as the local store
// (created_at, then id), so pages are stable across repeated calls with
// unchanged data. Update and SoftDelete carry the expected server version;
// a mismatch fails with common.ErrVersionConflict, which is the server-side
// half of conflict detection.
type Gateway interface {
	Close() error

	Register(ctx context.Context, username string, salt []byte, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) error
	Ping(ctx context.Context) error

	List(ctx context.Context, owner string, page, pageSize int) (*models.ProfilePage, error)
	Create(ctx context.Context, p *models.SessionProfile) (*models.SessionProfile, error)
	Update(ctx context.Context, id string, p *models.SessionProfile, expected models.ServerVersion) (*models.SessionProfile, error)
	// SoftDelete tombstones the remote record with the client's deletion
	// time, so both sides converge on the same deleted_at and the
	// tombstone becomes purgeable.
	SoftDelete(ctx context.Context, id string, deletedAt time.Time, expected models.ServerVersion) error
}
