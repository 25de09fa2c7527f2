package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"sigclaw/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// encryptor applies optional AES-GCM encryption to cached display names.
// Enabled when SIGCLAW_ENCRYPTION_SECRET is set; plaintext passthrough
// otherwise.
type encryptor struct {
	enabled bool
	key     []byte
}

func newEncryptor() (*encryptor, error) {
	secret := os.Getenv("SIGCLAW_ENCRYPTION_SECRET")
	if secret == "" {
		return &encryptor{enabled: false}, nil
	}
	if len(secret) < constants.MinSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters", constants.MinSecretLength)
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSaltValue),
		constants.PBKDF2Iterations, constants.EncryptionKeySize, sha256.New)
	return &encryptor{enabled: true, key: key}, nil
}

func (e *encryptor) encryptIfEnabled(plaintext string) (string, error) {
	if !e.enabled || plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *encryptor) decryptIfEnabled(stored string) (string, error) {
	if !e.enabled || stored == "" {
		return stored, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
