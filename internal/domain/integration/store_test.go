package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
)

// MockFetcher implements StatusFetcher for testing
type MockFetcher struct {
	GetIntegrationStatusFunc func(ctx context.Context) (*backend.StatusResponse, error)
}

func (m *MockFetcher) GetIntegrationStatus(ctx context.Context) (*backend.StatusResponse, error) {
	if m.GetIntegrationStatusFunc != nil {
		return m.GetIntegrationStatusFunc(ctx)
	}
	return &backend.StatusResponse{}, nil
}

func newTestStore(f StatusFetcher) *Store {
	return NewStore(f, logging.Discard())
}

func TestRefresh_NeverFails(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", &backend.APIError{Status: http.StatusNotFound, Message: "no integration configured"}},
		{"server error", &backend.APIError{Status: http.StatusInternalServerError}},
		{"network", fmt.Errorf("%w: dial tcp: connection refused", backend.ErrNetworkUnavailable)},
		{"auth", &backend.APIError{Status: http.StatusUnauthorized}},
		{"context", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(&MockFetcher{
				GetIntegrationStatusFunc: func(context.Context) (*backend.StatusResponse, error) {
					return nil, tt.err
				},
			})

			got := store.Refresh(context.Background())
			assert.False(t, got.IsIntegrated)
			assert.NotNil(t, got.BankConnections)
			assert.Empty(t, got.BankConnections)
			assert.Equal(t, got, store.Current())
		})
	}
}

func TestRefresh_FailureAfterIntegrated(t *testing.T) {
	fail := false
	store := newTestStore(&MockFetcher{
		GetIntegrationStatusFunc: func(context.Context) (*backend.StatusResponse, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return &backend.StatusResponse{
				IsIntegrated:    true,
				BankConnections: []backend.BankConnection{{InstitutionName: "Chase"}},
			}, nil
		},
	})

	require.True(t, store.Refresh(context.Background()).IsIntegrated)

	fail = true
	got := store.Refresh(context.Background())
	assert.Equal(t, Status{BankConnections: []backend.BankConnection{}}, got)
}

func TestRefresh_Integrated(t *testing.T) {
	store := newTestStore(&MockFetcher{
		GetIntegrationStatusFunc: func(context.Context) (*backend.StatusResponse, error) {
			return &backend.StatusResponse{
				IsIntegrated: true,
				BankConnections: []backend.BankConnection{
					{InstitutionName: "Chase", Status: backend.ConnectionConnected},
					{InstitutionName: "Ally", Status: backend.ConnectionError},
				},
			}, nil
		},
	})

	got := store.Refresh(context.Background())
	assert.True(t, got.IsIntegrated)
	require.Len(t, got.BankConnections, 2)
	assert.Equal(t, "Chase", got.BankConnections[0].InstitutionName)
	assert.False(t, got.BankConnections[1].Status.OK())
	assert.True(t, store.TakeChanged())
	assert.False(t, store.TakeChanged(), "changed flag is consumed")
}

func TestCurrent_ReturnsCopy(t *testing.T) {
	store := newTestStore(&MockFetcher{})
	store.MarkLinked(backend.BankConnection{InstitutionName: "Chase"})

	snap := store.Current()
	snap.BankConnections[0].InstitutionName = "mutated"
	snap.BankConnections = append(snap.BankConnections, backend.BankConnection{InstitutionName: "extra"})

	again := store.Current()
	require.Len(t, again.BankConnections, 1)
	assert.Equal(t, "Chase", again.BankConnections[0].InstitutionName)
}

func TestMarkLinked_Appends(t *testing.T) {
	store := newTestStore(&MockFetcher{})
	assert.False(t, store.Current().IsIntegrated)

	store.MarkLinked(backend.BankConnection{InstitutionName: "A"})
	got := store.MarkLinked(backend.BankConnection{InstitutionName: "B"})

	assert.True(t, got.IsIntegrated)
	require.Len(t, got.BankConnections, 2)
	assert.Equal(t, "A", got.BankConnections[0].InstitutionName)
	assert.Equal(t, "B", got.BankConnections[1].InstitutionName)
	assert.True(t, store.TakeChanged())
}

func TestRefresh_DoesNotClobberConcurrentLink(t *testing.T) {
	store := newTestStore(nil)
	store.fetcher = &MockFetcher{
		GetIntegrationStatusFunc: func(context.Context) (*backend.StatusResponse, error) {
			// A link completes while the stale status is in flight.
			store.MarkLinked(backend.BankConnection{InstitutionName: "A"})
			return nil, &backend.APIError{Status: http.StatusNotFound}
		},
	}

	got := store.Refresh(context.Background())
	assert.True(t, got.IsIntegrated)
	require.Len(t, got.BankConnections, 1)
	assert.Equal(t, "A", got.BankConnections[0].InstitutionName)
}

func TestRefresh_StaleIntegratedResultDropped(t *testing.T) {
	store := newTestStore(nil)
	store.MarkLinked(backend.BankConnection{InstitutionName: "A"})
	store.TakeChanged()
	store.fetcher = &MockFetcher{
		GetIntegrationStatusFunc: func(context.Context) (*backend.StatusResponse, error) {
			// B is exchanged after the backend answered with only A.
			store.MarkLinked(backend.BankConnection{InstitutionName: "B"})
			return &backend.StatusResponse{
				IsIntegrated:    true,
				BankConnections: []backend.BankConnection{{InstitutionName: "A"}},
			}, nil
		},
	}

	got := store.Refresh(context.Background())
	require.Len(t, got.BankConnections, 2)
	assert.Equal(t, "B", got.BankConnections[1].InstitutionName)
	assert.Equal(t, got, store.Current())
}

func TestReset(t *testing.T) {
	store := newTestStore(&MockFetcher{})
	store.MarkLinked(backend.BankConnection{InstitutionName: "A"})

	store.Reset()

	assert.Equal(t, Status{BankConnections: []backend.BankConnection{}}, store.Current())
	assert.False(t, store.TakeChanged())
}
