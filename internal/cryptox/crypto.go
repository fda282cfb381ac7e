// Package cryptox implements the credential envelope codec: sealing and
// unsealing the authentication secret of a session profile, independent of
// the sync layer. Only this package ever observes credential plaintext, and
// only for the duration of a single call.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

const (
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// SaltSize is the key-derivation salt length in bytes.
	SaltSize = 16
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32

	minSaltSize = 8
)

// MakeVerifier returns a hash of the derived key suitable for sending to the
// remote authority as a login verifier. The key itself never leaves the
// client.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveKey derives a symmetric key from a passphrase and salt using
// argon2id. Same inputs always produce the same key. Fails with
// common.ErrKeyDerivationFailed if the salt is malformed.
func DeriveKey(passphrase []byte, salt []byte) ([]byte, error) {
	if len(salt) < minSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d",
			common.ErrKeyDerivationFailed, minSaltSize, len(salt))
	}
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize), nil
}

// Seal encrypts plaintext under a key derived from passphraseKey and a salt.
// A fresh random nonce is generated on every call, and a fresh random salt
// when existingSalt is empty; passing the envelope's durable salt keeps the
// derived key stable across re-seals of the same record.
//
// Re-sealing identical plaintext still yields different ciphertext, so
// ciphertext bytes are not a usable equality test; use Fingerprint for
// change detection without decryption.
func Seal(plaintext, passphraseKey, existingSalt []byte) (models.CredentialEnvelope, error) {
	salt := existingSalt
	if len(salt) == 0 {
		salt = common.GenerateRandByteArray(SaltSize)
	}

	key, err := DeriveKey(passphraseKey, salt)
	if err != nil {
		return models.CredentialEnvelope{}, err
	}
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return models.CredentialEnvelope{}, fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}

	nonce := common.GenerateRandByteArray(NonceSize)
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return models.CredentialEnvelope{Ciphertext: ciphertext, Nonce: nonce, KeySalt: salt}, nil
}

// Unseal re-derives the key from the envelope's salt and decrypts the
// credential. A failed GCM tag check (wrong key, corrupted ciphertext, or
// tampering) surfaces as common.ErrAuthenticationFailed; garbage plaintext
// is never returned.
//
// The caller owns the returned slice and should wipe it as soon as the
// plaintext is no longer needed.
func Unseal(env models.CredentialEnvelope, passphraseKey []byte) ([]byte, error) {
	key, err := DeriveKey(passphraseKey, env.KeySalt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}

	// gcm.Open panics on a wrong-length nonce, so a length-corrupted
	// envelope must be rejected here rather than handed to the cipher.
	if len(env.Nonce) != aesgcm.NonceSize() || len(env.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: malformed envelope", common.ErrAuthenticationFailed)
	}

	plaintext, err := aesgcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// Fingerprint returns a BLAKE3-256 digest of the credential plaintext.
// Stored alongside the envelope, it lets callers detect whether a credential
// changed without decrypting it.
func Fingerprint(plaintext []byte) []byte {
	sum := blake3.Sum256(plaintext)
	return sum[:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
