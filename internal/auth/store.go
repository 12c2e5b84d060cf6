package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Govanator12/smart-meeting-sign/internal/logger"
	"github.com/Govanator12/smart-meeting-sign/internal/security"
)

// ExpiryMargin is the safety margin subtracted from the token expiry: an
// access token is only handed out while now < expiry - ExpiryMargin.
const ExpiryMargin = 5 * time.Minute

// Credential is the persisted token record. It is written wholesale after
// every mutation; there is no partial update.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Usable reports whether the access token can still be used at now,
// honoring the safety margin.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return now.Before(c.Expiry.Add(-ExpiryMargin))
}

// Store persists the credential record encrypted on disk. A missing,
// unreadable, or undecryptable file is treated as "no credential", never as
// a fatal error: the recovery path is a fresh device authorization.
type Store struct {
	path      string
	encryptor *security.TokenEncryptor
}

func NewStore(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	encryptor, err := security.NewTokenEncryptor(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token encryption: %w", err)
	}

	return &Store{
		path:      filepath.Join(stateDir, "token.enc"),
		encryptor: encryptor,
	}, nil
}

// Load reads the persisted credential. Returns nil when no usable record
// exists; the reason is logged, not surfaced.
func (s *Store) Load() *Credential {
	encrypted, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("token store unreadable, treating as absent", "error", err)
		}
		return nil
	}

	decrypted, err := s.encryptor.Decrypt(string(encrypted))
	if err != nil {
		logger.Warn("token store undecryptable, treating as absent", "error", err)
		return nil
	}

	var cred Credential
	if err := json.Unmarshal(decrypted, &cred); err != nil {
		logger.Warn("token store corrupt, treating as absent", "error", err)
		return nil
	}

	return &cred
}

// Save encrypts and atomically replaces the credential record. The write
// goes to a temp file in the same directory and is renamed into place, so a
// crash mid-write can never leave a corrupt store behind.
func (s *Store) Save(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return security.NewTokenError("save", "failed to marshal credential").WithCause(err)
	}

	encrypted, err := s.encryptor.Encrypt(data)
	if err != nil {
		return security.NewTokenError("save", "failed to encrypt credential").WithCause(err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "token-*.tmp")
	if err != nil {
		return security.NewTokenError("save", "failed to create temp file").WithCause(err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(encrypted); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return security.NewTokenError("save", "failed to write temp file").WithCause(err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return security.NewTokenError("save", "failed to set permissions").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return security.NewTokenError("save", "failed to close temp file").WithCause(err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return security.NewTokenError("save", "failed to replace token file").WithCause(err)
	}

	return nil
}

// Clear removes the persisted credential
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return security.NewTokenError("clear", "failed to remove token file").WithCause(err)
	}
	return nil
}

// Path returns the token file location
func (s *Store) Path() string {
	return s.path
}
