package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// TokenEncryptor provides encryption and decryption for OAuth credentials at rest
type TokenEncryptor struct {
	derivedKey []byte
}

// NewTokenEncryptor creates a new token encryptor with machine-specific key derivation
func NewTokenEncryptor(stateDir string) (*TokenEncryptor, error) {
	salt, err := generateOrLoadSalt(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	machineID, err := getMachineID()
	if err != nil {
		return nil, fmt.Errorf("failed to get machine ID: %w", err)
	}

	// Combine machine ID and state dir for key material so a copied token
	// file is useless on another host
	keyMaterial := fmt.Sprintf("%s:%s", machineID, stateDir)
	derivedKey := pbkdf2.Key([]byte(keyMaterial), salt, 100000, 32, sha256.New)

	return &TokenEncryptor{derivedKey: derivedKey}, nil
}

// Encrypt encrypts plaintext data and returns base64-encoded ciphertext
func (te *TokenEncryptor) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", NewCryptoError("encrypt", "plaintext cannot be empty")
	}

	block, err := aes.NewCipher(te.derivedKey)
	if err != nil {
		return "", NewCryptoError("encrypt", "failed to create cipher").WithCause(err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", NewCryptoError("encrypt", "failed to create GCM").WithCause(err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", NewCryptoError("encrypt", "failed to generate nonce").WithCause(err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext and returns plaintext
func (te *TokenEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, NewCryptoError("decrypt", "ciphertext cannot be empty")
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, NewCryptoError("decrypt", "invalid base64 encoding").WithCause(err)
	}

	block, err := aes.NewCipher(te.derivedKey)
	if err != nil {
		return nil, NewCryptoError("decrypt", "failed to create cipher").WithCause(err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewCryptoError("decrypt", "failed to create GCM").WithCause(err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, NewCryptoError("decrypt", "ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return nil, NewCryptoError("decrypt", "failed to decrypt").WithCause(err)
	}

	return plaintext, nil
}

// generateOrLoadSalt generates a new salt or loads an existing one from the state directory
func generateOrLoadSalt(stateDir string) ([]byte, error) {
	saltPath := filepath.Join(stateDir, ".salt")

	if salt, err := os.ReadFile(saltPath); err == nil && len(salt) == 32 {
		return salt, nil
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate random salt: %w", err)
	}

	if err := os.WriteFile(saltPath, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}

	return salt, nil
}

// getMachineID reads the machine ID from /etc/machine-id or fallback sources
func getMachineID() (string, error) {
	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		return string(data[:min(len(data), 32)]), nil
	}

	if data, err := os.ReadFile("/var/lib/dbus/machine-id"); err == nil {
		return string(data[:min(len(data), 32)]), nil
	}

	// Fallback: hostname + user ID
	hostname, _ := os.Hostname()
	uid := os.Getuid()
	fallback := fmt.Sprintf("%s-%d", hostname, uid)

	if len(fallback) < 8 {
		return "fallback-machine-id", nil
	}

	return fallback, nil
}
