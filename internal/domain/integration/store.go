// Package integration owns the client's view of which banks are linked.
package integration

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
)

// StatusFetcher reads the backend's integration status.
type StatusFetcher interface {
	GetIntegrationStatus(ctx context.Context) (*backend.StatusResponse, error)
}

// Status is a snapshot of the linked institutions. Absent integration is
// represented as the zero value, not as an error.
type Status struct {
	IsIntegrated    bool
	BankConnections []backend.BankConnection
}

func (s Status) clone() Status {
	conns := make([]backend.BankConnection, len(s.BankConnections))
	copy(conns, s.BankConnections)
	return Status{IsIntegrated: s.IsIntegrated, BankConnections: conns}
}

// Store is the single writer of Status. Reads return copies.
type Store struct {
	fetcher StatusFetcher
	logger  logrus.FieldLogger

	mu      sync.Mutex
	status  Status
	changed bool
	// generation increments on every local write so a slow Refresh cannot
	// overwrite a newer MarkLinked or Reset.
	generation uint64
}

// NewStore creates an empty store backed by fetcher.
func NewStore(fetcher StatusFetcher, logger logrus.FieldLogger) *Store {
	return &Store{
		fetcher: fetcher,
		logger:  logging.Component(logger, "integration"),
		status:  Status{BankConnections: []backend.BankConnection{}},
	}
}

// Refresh re-queries the backend and returns the new snapshot. It never fails:
// a 404, a network error or any other failure resolves to "not integrated".
func (s *Store) Refresh(ctx context.Context) Status {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	next := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		// Something newer landed while we were fetching; keep it.
		s.logger.Debug("Discarding stale integration status")
		return s.status.clone()
	}

	if next.IsIntegrated != s.status.IsIntegrated || len(next.BankConnections) != len(s.status.BankConnections) {
		s.changed = true
	}
	s.status = next
	s.generation++
	return s.status.clone()
}

func (s *Store) fetch(ctx context.Context) Status {
	absent := Status{BankConnections: []backend.BankConnection{}}

	resp, err := s.fetcher.GetIntegrationStatus(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			s.logger.Debug("No integration configured")
		} else {
			s.logger.WithError(err).Warn("Failed to refresh integration status, treating as not integrated")
		}
		return absent
	}
	if resp == nil {
		return absent
	}

	conns := make([]backend.BankConnection, len(resp.BankConnections))
	copy(conns, resp.BankConnections)

	return Status{
		IsIntegrated:    resp.IsIntegrated || len(conns) > 0,
		BankConnections: conns,
	}
}

// Current returns the latest snapshot.
func (s *Store) Current() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// MarkLinked records a freshly exchanged connection: it is appended, the app
// becomes integrated and the changed flag is raised.
func (s *Store) MarkLinked(conn backend.BankConnection) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.BankConnections = append(s.status.BankConnections, conn)
	s.status.IsIntegrated = true
	s.changed = true
	s.generation++

	s.logger.WithField("institution", conn.InstitutionName).Info("Bank connection added")
	return s.status.clone()
}

// TakeChanged reports whether the status changed since the last call and
// clears the flag. Dependent views use it to decide whether to refetch.
func (s *Store) TakeChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.changed
	s.changed = false
	return changed
}

// Reset discards the snapshot, as on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{BankConnections: []backend.BankConnection{}}
	s.changed = false
	s.generation++
}
