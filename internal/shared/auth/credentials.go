package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"finboard/internal/infrastructure/crypto"
	"finboard/internal/shared/logging"
)

var (
	ErrNoCredentials      = errors.New("not logged in")
	ErrCredentialsExpired = errors.New("credentials expired")
)

// fileFormat is the on-disk layout of the credentials file.
type fileFormat struct {
	Encrypted bool   `json:"encrypted"`
	Salt      string `json:"salt,omitempty"`
	Token     string `json:"token"`
}

// Store keeps the bearer credential for the API client. The token is held in
// memory and mirrored to a 0600 file, sealed with AES-GCM when a passphrase
// is configured.
type Store struct {
	path       string
	passphrase string
	logger     logrus.FieldLogger
	now        func() time.Time

	mu     sync.RWMutex
	token  string
	loaded bool
}

// NewStore creates a credential store backed by path. An empty path keeps the
// credential in memory only.
func NewStore(path, passphrase string, logger logrus.FieldLogger) *Store {
	return &Store{
		path:       path,
		passphrase: passphrase,
		logger:     logging.Component(logger, "credentials"),
		now:        time.Now,
	}
}

// Load reads the credentials file. A missing file is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if !f.Encrypted {
		s.token = f.Token
		return nil
	}

	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return fmt.Errorf("failed to decode credentials salt: %w", err)
	}
	enc, err := crypto.NewEncryptorFromPassphrase(s.passphrase, salt)
	if err != nil {
		return fmt.Errorf("credentials file is encrypted: %w", err)
	}
	token, err := enc.Decrypt(f.Token)
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	s.token = token
	return nil
}

// Token returns the current bearer token. A JWT whose exp claim has passed is
// cleared and reported as ErrCredentialsExpired without contacting the backend.
func (s *Store) Token() (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoCredentials
	}

	if exp, ok := expiry(token); ok && !s.now().Before(exp) {
		s.logger.WithField("expired_at", exp).Info("Stored credential expired, clearing")
		if err := s.Clear(); err != nil {
			s.logger.WithError(err).Warn("Failed to clear expired credential")
		}
		return "", ErrCredentialsExpired
	}

	return token, nil
}

// Expiry reports the exp claim of the stored token when it is a JWT.
func (s *Store) Expiry() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expiry(s.token)
}

// Save replaces the stored token and persists it.
func (s *Store) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	return s.persist()
}

// Clear forgets the token in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}

	f := fileFormat{Token: s.token}
	if s.passphrase != "" {
		salt, err := crypto.NewSalt()
		if err != nil {
			return err
		}
		enc, err := crypto.NewEncryptorFromPassphrase(s.passphrase, salt)
		if err != nil {
			return err
		}
		sealed, err := enc.Encrypt(s.token)
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		f = fileFormat{
			Encrypted: true,
			Salt:      base64.StdEncoding.EncodeToString(salt),
			Token:     sealed,
		}
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// expiry reads the exp claim without verifying the signature; the backend is
// the authority, this only avoids sending a token known to be dead.
func expiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
