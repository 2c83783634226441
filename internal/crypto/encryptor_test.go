package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"feedback-bot/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"passphrase", "test-encryption-key-32-bytes!!", false},
		{"short key", "short", false},
		{"long key", strings.Repeat("a", 64), false},
		{"empty key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encryptor, err := NewConfigEncryptor(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
				assert.Nil(t, encryptor)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, encryptor)
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	encryptor, err := NewConfigEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"client secret", "s3cr3t~value.with-symbols"},
		{"unicode", "pässwörd ✓"},
		{"long", strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := encryptor.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, sealed)

			opened, err := encryptor.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, opened)
		})
	}
}

func TestEncrypt_Empty(t *testing.T) {
	encryptor, err := NewEphemeralEncryptor()
	require.NoError(t, err)

	sealed, err := encryptor.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := encryptor.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestEncrypt_RandomNonce(t *testing.T) {
	encryptor, err := NewEphemeralEncryptor()
	require.NoError(t, err)

	first, err := encryptor.Encrypt("same")
	require.NoError(t, err)
	second, err := encryptor.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecrypt_Failures(t *testing.T) {
	encryptor, err := NewConfigEncryptor("key-one")
	require.NoError(t, err)
	other, err := NewConfigEncryptor("key-two")
	require.NoError(t, err)

	sealed, err := encryptor.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err, "wrong key must fail authentication")

	_, err = encryptor.Decrypt("not base64 !!")
	assert.Error(t, err)

	_, err = encryptor.Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = encryptor.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err, "tampered ciphertext must fail")
}
