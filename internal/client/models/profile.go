// Package models defines client-side data models for the sshvault catalog.
package models

import "time"

// CredentialEnvelope is the sealed authentication payload of a profile.
// It is opaque to every component except the codec.
type CredentialEnvelope struct {
	// Ciphertext is the AEAD-sealed credential.
	Ciphertext []byte `json:"ciphertext"`
	// Nonce is the AEAD nonce; fresh on every seal.
	Nonce []byte `json:"nonce"`
	// KeySalt is the key-derivation salt. May be empty when the caller
	// supplies an already-derived key.
	KeySalt []byte `json:"key_salt,omitempty"`
}

// SessionProfile is a saved SSH connection configuration plus its encrypted
// credential, versioned for offline synchronization.
type SessionProfile struct {
	// ID is a globally unique identifier, assigned at creation, immutable.
	ID string `json:"id"`

	// Owner identifies the owning user; immutable after creation.
	Owner string `json:"owner"`

	// Connection metadata, mutable by the owner.
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	GroupName    string `json:"group_name,omitempty"`
	TerminalType string `json:"terminal_type,omitempty"`
	Columns      int    `json:"columns,omitempty"`
	Rows         int    `json:"rows,omitempty"`

	// Envelope holds the sealed credential.
	Envelope CredentialEnvelope `json:"envelope"`

	// Fingerprint is a BLAKE3 digest of the credential plaintext, computed
	// at seal time. Ciphertext bytes change on every seal, so this is the
	// only way to detect "credential unchanged" without decryption.
	Fingerprint []byte `json:"fingerprint,omitempty"`

	// Version carries the server- and client-assigned counters.
	Version VersionPair `json:"version"`

	// LastSyncedAt is the time of the last successful reconciliation
	// involving this record; nil if never synced.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is bumped on every local or remote-applied mutation.
	UpdatedAt time.Time `json:"updated_at"`

	// DeletedAt marks the record as a tombstone. Tombstones are retained
	// until both sides have observed the deletion, then purged.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the profile is a tombstone.
func (p *SessionProfile) Deleted() bool {
	return p.DeletedAt != nil
}

// Clone returns a deep copy. Byte slices are copied so mutations of the
// clone never leak into the original.
func (p *SessionProfile) Clone() *SessionProfile {
	c := *p
	c.Envelope.Ciphertext = append([]byte(nil), p.Envelope.Ciphertext...)
	c.Envelope.Nonce = append([]byte(nil), p.Envelope.Nonce...)
	c.Envelope.KeySalt = append([]byte(nil), p.Envelope.KeySalt...)
	c.Fingerprint = append([]byte(nil), p.Fingerprint...)
	if p.LastSyncedAt != nil {
		t := *p.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// ProfilePage is one page of an ordered listing plus the total record count.
type ProfilePage struct {
	Profiles []*SessionProfile `json:"data"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
