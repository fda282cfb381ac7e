// Package common contains shared constants and sentinel errors used across
// the sshvault components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Codec errors.
	ErrKeyDerivationFailed  = errors.New("key derivation failed")
	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Store errors.
	ErrStaleWrite    = errors.New("stale write")
	ErrNotFound      = errors.New("not found")
	ErrNotTombstoned = errors.New("not tombstoned")
	ErrTombstoned    = errors.New("record is tombstoned")
	ErrInvalidPage   = errors.New("invalid page")

	// Gateway errors.
	ErrVersionConflict = errors.New("version conflict")
	ErrTransport       = errors.New("transport failure")
	ErrUnavailable     = errors.New("server unavailable")

	// Service-level errors (generic/internal flow control).
	ErrInternal              = errors.New("internal error")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrSyncInProgress        = errors.New("sync already in progress")
	ErrLocalDataNotAvailable = errors.New("local auth data not available")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
