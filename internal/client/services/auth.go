// Package services contains the application services behind the CLI: user
// authentication and session profile management. Services own the glue
// between the local store, the credential codec, and the remote gateway;
// they never print and never block on user input.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"

	"github.com/mkarpov/sshvault/internal/client/gateway"
	"github.com/mkarpov/sshvault/internal/client/repositories/metadata"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/mkarpov/sshvault/internal/cryptox"
	"github.com/mkarpov/sshvault/internal/dbx"
)

const authSaltSize = 32

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the remote authority and cache the
//     auth metadata needed for offline login.
//   - OfflineLogin: verify the password against locally cached data; no
//     network.
//   - Register: create a new account on the remote authority.
//   - Ping: check remote liveness.
//   - ClearOfflineData: wipe locally cached auth metadata.
//
// Both login variants return the derived master key, which unlocks the
// credential envelopes. The key never leaves the process.
type AuthService interface {
	OfflineLogin(ctx context.Context, username string, password []byte) ([]byte, error)
	OnlineLogin(ctx context.Context, username string, password []byte) ([]byte, error)
	Register(ctx context.Context, username string, password []byte) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

type authService struct {
	gw gateway.Gateway
	db *sql.DB
}

// NewAuthService constructs an AuthService bound to the given gateway and DB.
func NewAuthService(gw gateway.Gateway, db *sql.DB) AuthService {
	return &authService{gw: gw, db: db}
}

func (a *authService) metadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(a.db)
}

// OfflineLogin derives a master key from the password and the locally cached
// salt, and verifies it against the cached verifier. Returns
// common.ErrLocalDataNotAvailable when no online login ever succeeded on
// this machine, and common.ErrUnauthorized on a wrong password.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) ([]byte, error) {
	repo := a.metadataRepo()

	savedUsername, err := repo.Get(ctx, "auth/username")
	if err != nil {
		return nil, fmt.Errorf("reading cached username: %w", err)
	}
	if savedUsername == nil {
		return nil, common.ErrLocalDataNotAvailable
	}
	if subtle.ConstantTimeCompare(savedUsername, []byte(username)) == 0 {
		return nil, common.ErrUnauthorized
	}

	salt, err := repo.Get(ctx, "auth/salt")
	if err != nil {
		return nil, fmt.Errorf("reading cached salt: %w", err)
	}
	verifier, err := repo.Get(ctx, "auth/verifier")
	if err != nil {
		return nil, fmt.Errorf("reading cached verifier: %w", err)
	}
	if salt == nil || verifier == nil {
		return nil, common.ErrLocalDataNotAvailable
	}

	key, err := cryptox.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(key)) == 0 {
		common.WipeByteArray(key)
		return nil, common.ErrUnauthorized
	}
	return key, nil
}

// OnlineLogin fetches the account salt, derives the master key, presents the
// verifier to the remote authority, and on success caches the auth metadata
// for offline logins.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) ([]byte, error) {
	salt, err := a.gw.GetSalt(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("fetching account salt: %w", err)
	}

	key, err := cryptox.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	verifier := cryptox.MakeVerifier(key)

	if err := a.gw.Login(ctx, username, verifier); err != nil {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := a.saveOfflineData(ctx, username, salt, verifier); err != nil {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("caching auth data: %w", err)
	}
	return key, nil
}

// saveOfflineData persists the minimal auth metadata required for offline
// login in a single transaction.
func (a *authService) saveOfflineData(ctx context.Context, username string, salt, verifier []byte) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, "auth/username", []byte(username)); err != nil {
			return err
		}
		if err := repo.Set(ctx, "auth/salt", salt); err != nil {
			return err
		}
		return repo.Set(ctx, "auth/verifier", verifier)
	})
}

// Register creates a new account on the remote authority. A random account
// salt is generated here; the password never leaves the client, only the
// verifier does.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	salt := common.GenerateRandByteArray(authSaltSize)

	key, err := cryptox.DeriveKey(password, salt)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	return a.gw.Register(ctx, username, salt, cryptox.MakeVerifier(key))
}

func (a *authService) Ping(ctx context.Context) error {
	return a.gw.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.gw.Close()
}

// ClearOfflineData wipes the cached auth metadata, e.g. on logout. Sync
// baselines share the metadata table and must survive, so the auth keys are
// deleted individually rather than clearing the table.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		for _, key := range []string{"auth/username", "auth/salt", "auth/verifier"} {
			if err := repo.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
}
