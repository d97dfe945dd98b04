// Package profile holds destructive operations on the user's own account.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"finboard/internal/shared/logging"
)

// ConfirmationPhrase must be typed exactly to delete the account.
const ConfirmationPhrase = "DELETE"

// ErrValidationFailed is returned when the typed confirmation does not match.
// It never involves the network.
var ErrValidationFailed = errors.New("confirmation text does not match")

// API deletes the account on the backend.
type API interface {
	DeleteAccount(ctx context.Context) error
}

// Credentials forgets the local session.
type Credentials interface {
	Clear() error
}

// Resetter discards derived state tied to the deleted account.
type Resetter interface {
	Reset()
}

// Service performs account deletion.
type Service struct {
	api         API
	credentials Credentials
	resetters   []Resetter
	logger      logrus.FieldLogger
}

// NewService creates a profile service. resetters are reset after a
// successful deletion.
func NewService(api API, credentials Credentials, logger logrus.FieldLogger, resetters ...Resetter) *Service {
	return &Service{
		api:         api,
		credentials: credentials,
		resetters:   resetters,
		logger:      logging.Component(logger, "profile"),
	}
}

// DeleteAccount deletes the account when typed equals ConfirmationPhrase
// (case-sensitive, surrounding space ignored). Either the deletion succeeds
// and local state is cleared, or nothing changes.
func (s *Service) DeleteAccount(ctx context.Context, typed string) error {
	if strings.TrimSpace(typed) != ConfirmationPhrase {
		return ErrValidationFailed
	}

	if err := s.api.DeleteAccount(ctx); err != nil {
		s.logger.WithError(err).Warn("Account deletion failed")
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if s.credentials != nil {
		if err := s.credentials.Clear(); err != nil {
			s.logger.WithError(err).Warn("Failed to clear credentials after account deletion")
		}
	}
	for _, r := range s.resetters {
		r.Reset()
	}

	s.logger.Info("Account deleted")
	return nil
}
