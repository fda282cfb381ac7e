package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/client/repositories/profiles"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/mkarpov/sshvault/internal/cryptox"
)

// ProfileInput carries the user-editable fields of a session profile. The
// Credential is the secret half (password or private key) and is sealed
// before anything touches the store.
type ProfileInput struct {
	Name         string
	Host         string
	Port         int
	Username     string
	GroupName    string
	TerminalType string
	Columns      int
	Rows         int
	Credential   []byte
}

// ProfileService manages session profiles in the local store. All writes go
// through the store's version checks; synchronization with the remote
// authority is the reconciler's job, not this service's.
type ProfileService interface {
	Add(ctx context.Context, owner string, in ProfileInput, masterKey []byte) (*models.SessionProfile, error)
	Update(ctx context.Context, id string, in ProfileInput, masterKey []byte) (*models.SessionProfile, error)
	List(ctx context.Context, page, pageSize int) (*models.ProfilePage, error)
	Get(ctx context.Context, id string) (*models.SessionProfile, error)
	Reveal(ctx context.Context, id string, masterKey []byte) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

type profileService struct {
	store *profiles.Store
	now   func() time.Time
}

func NewProfileService(store *profiles.Store) ProfileService {
	return &profileService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Add seals the credential and stores a new profile with client version 1.
// The record stays local until the next reconciliation pushes it.
func (s *profileService) Add(ctx context.Context, owner string, in ProfileInput, masterKey []byte) (*models.SessionProfile, error) {
	if in.Name == "" || in.Host == "" {
		return nil, fmt.Errorf("%w: name and host are required", common.ErrInternal)
	}

	env, err := cryptox.Seal(in.Credential, masterKey, nil)
	if err != nil {
		return nil, fmt.Errorf("sealing credential: %w", err)
	}

	now := s.now()
	p := &models.SessionProfile{
		ID:           uuid.NewString(),
		Owner:        owner,
		Name:         in.Name,
		Host:         in.Host,
		Port:         in.Port,
		Username:     in.Username,
		GroupName:    in.GroupName,
		TerminalType: in.TerminalType,
		Columns:      in.Columns,
		Rows:         in.Rows,
		Envelope:     env,
		Fingerprint:  cryptox.Fingerprint(in.Credential),
		Version:      models.VersionPair{Client: 1},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Port == 0 {
		p.Port = 22
	}

	if err := s.store.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("storing profile: %w", err)
	}
	return p, nil
}

// Update applies the input on top of the stored record and bumps the client
// version. The credential is re-sealed only when its fingerprint changed;
// an unchanged secret keeps the existing envelope, so a metadata-only edit
// never rewrites ciphertext.
func (s *profileService) Update(ctx context.Context, id string, in ProfileInput, masterKey []byte) (*models.SessionProfile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(in.Credential) > 0 {
		fp := cryptox.Fingerprint(in.Credential)
		if !bytes.Equal(fp, p.Fingerprint) {
			env, err := cryptox.Seal(in.Credential, masterKey, p.Envelope.KeySalt)
			if err != nil {
				return nil, fmt.Errorf("sealing credential: %w", err)
			}
			p.Envelope = env
			p.Fingerprint = fp
		}
	}

	p.Name = in.Name
	p.Host = in.Host
	if in.Port > 0 {
		p.Port = in.Port
	}
	p.Username = in.Username
	p.GroupName = in.GroupName
	p.TerminalType = in.TerminalType
	p.Columns = in.Columns
	p.Rows = in.Rows
	p.UpdatedAt = s.now()
	p.Version = p.Version.Bump()

	if err := s.store.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("storing profile: %w", err)
	}
	return p, nil
}

func (s *profileService) List(ctx context.Context, page, pageSize int) (*models.ProfilePage, error) {
	return s.store.ListPage(ctx, page, pageSize)
}

func (s *profileService) Get(ctx context.Context, id string) (*models.SessionProfile, error) {
	return s.store.Get(ctx, id)
}

// Reveal decrypts and returns the credential plaintext. The caller owns the
// slice and should wipe it once used.
func (s *profileService) Reveal(ctx context.Context, id string, masterKey []byte) ([]byte, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptox.Unseal(p.Envelope, masterKey)
	if err != nil {
		return nil, fmt.Errorf("unsealing credential for %s: %w", id, err)
	}
	return plaintext, nil
}

// Delete tombstones the profile. The record stays listed out of pages but
// remains in the store until the reconciler confirms the deletion has
// propagated and purges it.
func (s *profileService) Delete(ctx context.Context, id string) error {
	return s.store.MarkDeleted(ctx, id, s.now())
}
