// Package crypto implements the Chunk Encryptor: authenticated
// at-rest encryption for chunk text, keyed by a secret the host application
// supplies through a key manager, combined with a per-database random salt.
//
// AES is not used; the crypto surface is `golang.org/x/crypto`,
// which ships chacha20poly1305 for authenticated symmetric encryption and
// scrypt for the deliberately slow key-derivation step.
package crypto

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// KeyManager supplies the secret the Encryptor derives its data key from.
// It is an external collaborator: a process environment variable, an OS
// keychain, or a remote secrets service can all implement it.
type KeyManager interface {
	// GetSecret returns the raw secret material for keyID.
	GetSecret(ctx context.Context, keyID string) ([]byte, error)
}

const (
	saltSize = 32
	keySize  = chacha20poly1305.KeySize
)

// scrypt cost parameters. N must be a power of two; these match the
// parameters golang.org/x/crypto/scrypt's own documentation recommends for
// interactive use (not a bulk key-derivation server).
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrSaltRequired is returned when Decrypt is called without the salt that
// was generated alongside the ciphertext (it must be persisted next to the
// database, not regenerated).
var ErrSaltRequired = errors.New("crypto: salt is required to derive the decryption key")

// Encryptor encrypts and decrypts chunk text using a key derived from a
// key-manager secret and a per-database salt.
type Encryptor struct {
	keyManager KeyManager
	keyID      string
}

// New creates an Encryptor that resolves its secret from keyManager under
// keyID each time Encrypt or Decrypt derives a key, not at construction —
// so the key manager can be unavailable until first use.
func New(keyManager KeyManager, keyID string) *Encryptor {
	return &Encryptor{keyManager: keyManager, keyID: keyID}
}

// NewSalt generates a fresh random salt, to be stored once per database
// alongside the vector store (e.g. in a metadata row) and reused for every
// subsequent encrypt/decrypt call against that database.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey derives a 32-byte AEAD key from the key manager's secret and
// the database's salt via scrypt.
func (e *Encryptor) deriveKey(ctx context.Context, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, ErrSaltRequired
	}

	secret, err := e.keyManager.GetSecret(ctx, e.keyID)
	if err != nil {
		return nil, fmt.Errorf("resolve encryption secret: %w", err)
	}

	key, err := scrypt.Key(secret, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext, returning the ciphertext and the random nonce
// used, both of which vectorstore.Chunk stores alongside the salt's owning
// database.
func (e *Encryptor) Encrypt(ctx context.Context, salt, plaintext []byte) (ciphertext, nonce []byte, err error) {
	key, err := e.deriveKey(ctx, salt)
	if err != nil {
		return nil, nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("init aead: %w", err)
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt, verifying its authentication
// tag. A tampered or truncated ciphertext returns a CorruptionError-class
// error rather than silently returning garbage.
func (e *Encryptor) Decrypt(ctx context.Context, salt, ciphertext, nonce []byte) ([]byte, error) {
	key, err := e.deriveKey(ctx, salt)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk ciphertext failed authentication: %w", ErrCorrupted, err)
	}
	return plaintext, nil
}

// ErrCorrupted marks a chunk whose ciphertext/nonce pair failed
// authentication, matching CorruptionError kind.
var ErrCorrupted = errors.New("crypto: chunk ciphertext is corrupted or was tampered with")
