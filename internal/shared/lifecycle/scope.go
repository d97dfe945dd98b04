// Package lifecycle provides scoped teardown for mounted screens.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CleanupFunc releases one resource owned by a scope.
type CleanupFunc func(ctx context.Context) error

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// Scope owns the resources of one mounted screen. Cleanups run once, in
// reverse registration order, when Close is called. Callers defer Close right
// after NewScope so teardown runs on every exit path.
type Scope struct {
	mu       sync.Mutex
	cleanups []namedCleanup
	ctx      context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	closed   bool
	once     sync.Once
	err      error
}

// DefaultTimeout bounds the total time spent in cleanups.
const DefaultTimeout = 10 * time.Second

// NewScope derives a context that is cancelled when the scope closes.
func NewScope(parent context.Context, timeout time.Duration) *Scope {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel, timeout: timeout}
}

// Context is cancelled as the first step of Close.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Defer registers a cleanup. Registering on a closed scope runs it immediately.
func (s *Scope) Defer(name string, fn CleanupFunc) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.cleanups = append(s.cleanups, namedCleanup{name: name, fn: fn})
	}
	s.mu.Unlock()

	if closed {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = fn(ctx)
	}
}

// DeferFunc registers a cleanup that cannot fail.
func (s *Scope) DeferFunc(name string, fn func()) {
	s.Defer(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Close cancels the scope context and runs every cleanup in LIFO order.
// Safe to call more than once; later calls return the first result.
func (s *Scope) Close() error {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		cleanups := s.cleanups
		s.cleanups = nil
		s.closed = true
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if err := c.fn(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}
