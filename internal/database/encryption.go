package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"whatscrm/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize          = 32
	gcmNonceSize     = 12
	pbkdf2Iterations = 100000

	encryptionSecretEnv = "WHATSCRM_ENCRYPTION_SECRET"
	encryptionEnableEnv = "WHATSCRM_ENABLE_ENCRYPTION"
)

// fieldCipher encrypts contact fields (phones, names, chat ids,
// message bodies) at rest. With encryption disabled every method is a
// passthrough, so the storage layer never branches on configuration.
type fieldCipher struct {
	gcm cipher.AEAD
}

// newFieldCipher reads the encryption configuration once. Flipping the
// env vars on a running process has no effect until restart; rows
// written under one setting are unreadable under the other anyway.
func newFieldCipher() (*fieldCipher, error) {
	if os.Getenv(encryptionEnableEnv) != "true" {
		return &fieldCipher{}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &fieldCipher{gcm: gcm}, nil
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv(encryptionSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", encryptionSecretEnv)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), pbkdf2Iterations, keySize, sha256.New)
	return key, nil
}

// EncryptField encrypts a value with a random nonce. Equal plaintexts
// produce different ciphertexts, so use EncryptLookupField for columns
// that appear in WHERE clauses.
func (c *fieldCipher) EncryptField(plaintext string) (string, error) {
	if plaintext == "" || c.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// EncryptLookupField derives the nonce from the plaintext, so equal
// values always produce equal ciphertext and stay matchable in WHERE
// clauses. That determinism leaks equality of column values; only
// columns that must be searchable go through it.
// #nosec G407 - deterministic nonce is required for searchable encryption
func (c *fieldCipher) EncryptLookupField(plaintext string) (string, error) {
	if plaintext == "" || c.gcm == nil {
		return plaintext, nil
	}

	hash := sha256.Sum256([]byte(plaintext + constants.EncryptionLookupSalt))
	nonce := hash[:gcmNonceSize]

	// #nosec G407 - deterministic nonce is required for searchable encryption
	sealed := c.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// DecryptField reverses either encryption mode; both store the nonce
// in the first 12 bytes of the decoded value.
func (c *fieldCipher) DecryptField(ciphertext string) (string, error) {
	if ciphertext == "" || c.gcm == nil {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < gcmNonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := c.gcm.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
