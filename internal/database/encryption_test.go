package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionSecret = "this-is-a-very-long-test-secret-key-for-encryption-testing"

func enableTestEncryption(t *testing.T) {
	t.Helper()
	t.Setenv(encryptionSecretEnv, testEncryptionSecret)
	t.Setenv(encryptionEnableEnv, "true")
}

func disableTestEncryption(t *testing.T) {
	t.Helper()
	t.Setenv(encryptionSecretEnv, "")
	t.Setenv(encryptionEnableEnv, "")
}

func TestFieldCipherRoundTrip(t *testing.T) {
	enableTestEncryption(t)

	cipher, err := newFieldCipher()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"phone number", "+15551234567"},
		{"contact name", "Alice Doe"},
		{"unicode", "Žana čeka — 世界 🌍"},
		{"special characters", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"message body", "Hi, I saw your listing for the 2021 Corolla. Is it still available?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := cipher.EncryptField(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, sealed)

			opened, err := cipher.DecryptField(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, opened)
		})
	}
}

func TestFieldCipherEmptyStringPassthrough(t *testing.T) {
	enableTestEncryption(t)

	cipher, err := newFieldCipher()
	require.NoError(t, err)

	sealed, err := cipher.EncryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed, "empty optional columns must stay empty")

	lookup, err := cipher.EncryptLookupField("")
	require.NoError(t, err)
	assert.Equal(t, "", lookup)

	opened, err := cipher.DecryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", opened)
}

func TestFieldCipherNonceUniqueness(t *testing.T) {
	enableTestEncryption(t)

	cipher, err := newFieldCipher()
	require.NoError(t, err)

	first, err := cipher.EncryptField("repeat lead content")
	require.NoError(t, err)
	second, err := cipher.EncryptField("repeat lead content")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "random nonces must keep equal plaintexts distinct")

	for _, sealed := range []string{first, second} {
		opened, err := cipher.DecryptField(sealed)
		require.NoError(t, err)
		assert.Equal(t, "repeat lead content", opened)
	}
}

func TestLookupFieldDeterminism(t *testing.T) {
	enableTestEncryption(t)

	cipher, err := newFieldCipher()
	require.NoError(t, err)

	first, err := cipher.EncryptLookupField("15551234567")
	require.NoError(t, err)
	second, err := cipher.EncryptLookupField("15551234567")
	require.NoError(t, err)
	assert.Equal(t, first, second, "lookup columns must stay matchable in WHERE clauses")

	other, err := cipher.EncryptLookupField("15557654321")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	opened, err := cipher.DecryptField(first)
	require.NoError(t, err)
	assert.Equal(t, "15551234567", opened)
}

func TestFieldCipherDisabledPassthrough(t *testing.T) {
	disableTestEncryption(t)

	cipher, err := newFieldCipher()
	require.NoError(t, err)

	sealed, err := cipher.EncryptField("plain value")
	require.NoError(t, err)
	assert.Equal(t, "plain value", sealed)

	lookup, err := cipher.EncryptLookupField("plain value")
	require.NoError(t, err)
	assert.Equal(t, "plain value", lookup)

	opened, err := cipher.DecryptField("plain value")
	require.NoError(t, err)
	assert.Equal(t, "plain value", opened)
}

func TestFieldCipherRejectsGarbage(t *testing.T) {
	enableTestEncryption(t)

	cipher, err := newFieldCipher()
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
	}{
		{"not base64", "invalid-base64!@#"},
		{"shorter than a nonce", "dGVzdA=="},
		{"nonce sized but no payload", "YWJjZGVmZ2hpamts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cipher.DecryptField(tt.ciphertext)
			assert.Error(t, err)
		})
	}
}

func TestDeriveKey(t *testing.T) {
	t.Setenv(encryptionSecretEnv, testEncryptionSecret)

	key1, err := deriveKey()
	require.NoError(t, err)
	assert.Len(t, key1, keySize)

	again, err := deriveKey()
	require.NoError(t, err)
	assert.Equal(t, key1, again, "derivation must be stable across restarts")

	t.Setenv(encryptionSecretEnv, "this-is-a-different-very-long-secret-key-for-testing")
	key2, err := deriveKey()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)
}

func TestDeriveKeyMissingSecret(t *testing.T) {
	t.Setenv(encryptionSecretEnv, "")

	_, err := deriveKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), encryptionSecretEnv)
}

func TestDeriveKeyShortSecret(t *testing.T) {
	t.Setenv(encryptionSecretEnv, "too-short")

	_, err := deriveKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestNewFieldCipherRequiresSecretWhenEnabled(t *testing.T) {
	t.Setenv(encryptionSecretEnv, "")
	t.Setenv(encryptionEnableEnv, "true")

	_, err := newFieldCipher()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to derive encryption key")
}
