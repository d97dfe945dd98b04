package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
)

// MockAPI implements API for testing
type MockAPI struct {
	DeleteAccountFunc func(ctx context.Context) error
	calls             int
}

func (m *MockAPI) DeleteAccount(ctx context.Context) error {
	m.calls++
	if m.DeleteAccountFunc != nil {
		return m.DeleteAccountFunc(ctx)
	}
	return nil
}

type fakeCredentials struct{ cleared int }

func (f *fakeCredentials) Clear() error {
	f.cleared++
	return nil
}

type fakeResetter struct{ resets int }

func (f *fakeResetter) Reset() { f.resets++ }

func TestDeleteAccount_ValidationFailsLocally(t *testing.T) {
	for _, typed := range []string{"", "delete", "Delete", "DELETE ME", "DELET"} {
		t.Run(typed, func(t *testing.T) {
			api := &MockAPI{}
			creds := &fakeCredentials{}
			svc := NewService(api, creds, logging.Discard())

			err := svc.DeleteAccount(context.Background(), typed)
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Zero(t, api.calls, "validation failures never reach the network")
			assert.Zero(t, creds.cleared)
		})
	}
}

func TestDeleteAccount_Success(t *testing.T) {
	api := &MockAPI{}
	creds := &fakeCredentials{}
	store := &fakeResetter{}
	svc := NewService(api, creds, logging.Discard(), store)

	require.NoError(t, svc.DeleteAccount(context.Background(), "  DELETE\n"))
	assert.Equal(t, 1, api.calls)
	assert.Equal(t, 1, creds.cleared)
	assert.Equal(t, 1, store.resets)
}

func TestDeleteAccount_BackendFailureChangesNothing(t *testing.T) {
	api := &MockAPI{DeleteAccountFunc: func(context.Context) error {
		return backend.ErrNetworkUnavailable
	}}
	creds := &fakeCredentials{}
	store := &fakeResetter{}
	svc := NewService(api, creds, logging.Discard(), store)

	err := svc.DeleteAccount(context.Background(), "DELETE")
	assert.True(t, errors.Is(err, backend.ErrNetworkUnavailable))
	assert.Zero(t, creds.cleared)
	assert.Zero(t, store.resets)
}
