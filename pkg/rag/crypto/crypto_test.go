package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKeyManager struct {
	secret []byte
}

func (k staticKeyManager) GetSecret(context.Context, string) ([]byte, error) {
	return k.secret, nil
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	t.Parallel()

	enc := New(staticKeyManager{secret: []byte("super-secret")}, "default")
	salt, err := NewSalt()
	require.NoError(t, err)

	ctx := t.Context()
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, nonce, err := enc.Encrypt(ctx, salt, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := enc.Decrypt(ctx, salt, ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	enc := New(staticKeyManager{secret: []byte("super-secret")}, "default")
	salt, err := NewSalt()
	require.NoError(t, err)

	ctx := t.Context()
	ciphertext, nonce, err := enc.Encrypt(ctx, salt, []byte("hello"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xFF

	_, err = enc.Decrypt(ctx, salt, ciphertext, nonce)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestDecryptRequiresSalt(t *testing.T) {
	t.Parallel()

	enc := New(staticKeyManager{secret: []byte("super-secret")}, "default")
	_, err := enc.deriveKey(t.Context(), nil)
	assert.ErrorIs(t, err, ErrSaltRequired)
}

func TestDifferentSecretsProduceDifferentCiphertext(t *testing.T) {
	t.Parallel()

	salt, err := NewSalt()
	require.NoError(t, err)

	enc1 := New(staticKeyManager{secret: []byte("secret-one")}, "default")
	enc2 := New(staticKeyManager{secret: []byte("secret-two")}, "default")

	ct1, nonce1, err := enc1.Encrypt(t.Context(), salt, []byte("same plaintext"))
	require.NoError(t, err)
	ct2, _, err := enc2.Encrypt(t.Context(), salt, []byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2)

	_, err = enc2.Decrypt(t.Context(), salt, ct1, nonce1)
	assert.Error(t, err)
}
