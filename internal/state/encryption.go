package state

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// EncryptionKeyEnvVar holds the passphrase state is encrypted with.
	EncryptionKeyEnvVar = "QUICKSETUP_STATE_ENCRYPTION_KEY"

	encryptedHeader = "# QUICKSETUP_ENCRYPTED_STATE\n"
)

// ErrNoEncryptionKey is returned when encrypted state is read without a key.
var ErrNoEncryptionKey = errors.New("state is encrypted but " + EncryptionKeyEnvVar + " is not set")

// EncryptState seals content with AES-256-GCM under the key from the
// environment. Without a key the content is returned unchanged.
func EncryptState(content []byte) ([]byte, error) {
	gcm, err := stateCipher()
	if err != nil || gcm == nil {
		return content, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, content, nil)

	var out bytes.Buffer
	out.WriteString(encryptedHeader)
	out.WriteString(base64.StdEncoding.EncodeToString(sealed))
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// DecryptState opens content produced by EncryptState. Plain content is
// returned unchanged.
func DecryptState(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}
	gcm, err := stateCipher()
	if err != nil {
		return nil, err
	}
	if gcm == nil {
		return nil, ErrNoEncryptionKey
	}

	encoded := bytes.TrimSpace(content[len(encryptedHeader):])
	sealed, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted state: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state (wrong key?): %w", err)
	}
	return plaintext, nil
}

// IsEncrypted checks if state content is encrypted.
func IsEncrypted(content []byte) bool {
	return bytes.HasPrefix(content, []byte(encryptedHeader))
}

// stateCipher returns nil when no key is configured. The AES key is the
// SHA-256 of the passphrase.
func stateCipher() (cipher.AEAD, error) {
	passphrase := os.Getenv(EncryptionKeyEnvVar)
	if passphrase == "" {
		return nil, nil
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
