// Package link drives the bank-linking handshake: request a token, open the
// aggregator's session with it, exchange the resulting public credential.
package link

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"finboard/internal/domain/integration"
	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
)

var (
	linkMeter     = otel.Meter("finboard/link")
	linkRounds, _ = linkMeter.Int64Counter("link.rounds",
		metric.WithDescription("Link rounds by terminal outcome"),
	)
)

// API is the slice of the backend the handshake needs.
type API interface {
	CreateLinkToken(ctx context.Context) (*backend.LinkTokenResponse, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*backend.BankConnection, error)
}

// Opener runs the aggregator's linking UI for one token and blocks until it
// reports a terminal outcome or ctx ends.
type Opener interface {
	Open(ctx context.Context, token Token) Outcome
}

// StatusRecorder receives the side effects of a successful exchange.
type StatusRecorder interface {
	MarkLinked(conn backend.BankConnection) integration.Status
	Refresh(ctx context.Context) integration.Status
}

// Result is the end of an OpenSession call.
type Result struct {
	Outcome    Outcome
	Connection *backend.BankConnection
}

// Config tunes a Manager.
type Config struct {
	TokenTTL time.Duration
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Manager owns the token lifecycle of the linking handshake. Rounds can be
// repeated to connect more institutions; each is independent.
type Manager struct {
	api    API
	opener Opener
	store  StatusRecorder
	ttl    time.Duration
	now    func() time.Time
	logger logrus.FieldLogger

	// life is cancelled by Close so in-flight calls stop and their results
	// are dropped.
	life     context.Context
	shutdown context.CancelFunc

	mu        sync.Mutex
	state     State
	token     *Token
	exchanged map[string]struct{}
	lastErr   error
	round     string
}

// NewManager wires the handshake to the backend, the widget and the status store.
func NewManager(api API, opener Opener, store StatusRecorder, cfg Config) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	life, shutdown := context.WithCancel(context.Background())

	return &Manager{
		api:       api,
		opener:    opener,
		store:     store,
		ttl:       cfg.TokenTTL,
		now:       cfg.Now,
		logger:    logging.Component(cfg.Logger, "link"),
		life:      life,
		shutdown:  shutdown,
		exchanged: make(map[string]struct{}),
	}
}

// State returns the current handshake state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError is the failure behind StateFailed, nil otherwise.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Round returns the correlation ID of the current round.
func (m *Manager) Round() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

// scoped derives a context that also ends when the manager is closed.
func (m *Manager) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Manager) busy() bool {
	return m.state == StateOpen || m.state == StateExchanging
}

// RequestToken asks the backend for a fresh link token. Any earlier unopened
// token is superseded.
func (m *Manager) RequestToken(ctx context.Context) (Token, error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return Token{}, ErrManagerClosed
	}
	if m.busy() {
		m.mu.Unlock()
		return Token{}, ErrSessionInProgress
	}
	m.mu.Unlock()

	ctx, cancel := m.scoped(ctx)
	defer cancel()

	resp, err := m.api.CreateLinkToken(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return Token{}, ErrManagerClosed
	}
	if err == nil && (resp == nil || resp.LinkToken == "") {
		err = fmt.Errorf("%w: empty link token", backend.ErrRequestFailed)
	}
	if err != nil {
		m.lastErr = err
		m.state = StateFailed
		m.logger.WithError(err).Warn("Failed to create link token")
		return Token{}, fmt.Errorf("failed to create link token: %w", err)
	}

	tok := Token{Value: resp.LinkToken, IssuedAt: m.now()}
	if exp, perr := resp.GetExpiration(); perr != nil {
		m.logger.WithError(perr).Debug("Ignoring link token expiration")
	} else if exp != nil {
		tok.ExpiresAt = *exp
	}
	m.token = &tok
	m.state = StateTokenReady
	m.lastErr = nil
	m.round = uuid.NewString()

	m.logger.WithField("round", m.round).Info("Link token issued")
	return tok, nil
}

// OpenSession runs the aggregator session for tok and, on success, exchanges
// the public credential immediately. tok must be the most recently issued,
// unexpired, unopened token; anything else is rejected before the widget or
// backend is touched. The token is consumed whatever the outcome.
//
// The returned error is non-nil for local rejections and failed exchanges.
// A cancelled or failed widget session is reported through Result.Outcome.
func (m *Manager) OpenSession(ctx context.Context, tok Token) (Result, error) {
	m.mu.Lock()
	switch {
	case m.state == StateClosed:
		m.mu.Unlock()
		return Result{}, ErrManagerClosed
	case m.busy():
		m.mu.Unlock()
		return Result{}, ErrSessionInProgress
	case m.token == nil:
		m.mu.Unlock()
		if tok.Value == "" {
			return Result{}, ErrNoToken
		}
		return Result{}, ErrTokenExpiredOrConsumed
	case m.token.Value != tok.Value:
		m.mu.Unlock()
		return Result{}, ErrTokenExpiredOrConsumed
	}

	current := *m.token
	m.token = nil
	round := m.round
	logger := m.logger.WithField("round", round)

	if current.ExpiredAt(m.now(), m.ttl) {
		m.state = StateFailed
		m.lastErr = ErrTokenExpiredOrConsumed
		m.mu.Unlock()
		logger.Warn("Link token expired before the session was opened")
		return Result{}, ErrTokenExpiredOrConsumed
	}
	m.state = StateOpen
	m.mu.Unlock()

	ctx, cancel := m.scoped(ctx)
	defer cancel()

	outcome := m.opener.Open(ctx, current)
	if outcome.Kind == OutcomeSuccess && strings.TrimSpace(outcome.PublicToken) == "" {
		outcome = Failure("aggregator returned an empty public token")
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return Result{Outcome: outcome}, ErrManagerClosed
	}

	switch outcome.Kind {
	case OutcomeUserCancelled:
		m.state = StateCancelled
		m.lastErr = nil
		m.mu.Unlock()
		linkRounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cancelled")))
		logger.Info("Link session cancelled by user")
		return Result{Outcome: outcome}, nil

	case OutcomeError:
		m.state = StateFailed
		m.lastErr = fmt.Errorf("link session failed: %s", outcome.Reason)
		m.mu.Unlock()
		linkRounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		logger.WithField("reason", outcome.Reason).Warn("Link session failed")
		return Result{Outcome: outcome}, nil
	}

	if _, seen := m.exchanged[outcome.PublicToken]; seen {
		m.state = StateFailed
		m.lastErr = ErrCredentialConsumed
		m.mu.Unlock()
		logger.Warn("Aggregator returned a public token that was already exchanged")
		return Result{Outcome: outcome}, ErrCredentialConsumed
	}
	m.exchanged[outcome.PublicToken] = struct{}{}
	m.state = StateExchanging
	m.mu.Unlock()

	conn, err := m.exchange(ctx, outcome.PublicToken, logger)
	if err != nil {
		return Result{Outcome: outcome}, err
	}
	return Result{Outcome: outcome, Connection: &conn}, nil
}

// exchange trades a public credential for a durable bank connection. It runs
// only inside OpenSession, after the credential was recorded as used, so a
// credential reaches the backend at most once and a failed attempt needs a
// new round. On success the status store records the connection and is
// refreshed.
func (m *Manager) exchange(ctx context.Context, publicToken string, logger logrus.FieldLogger) (backend.BankConnection, error) {
	conn, err := m.api.ExchangePublicToken(ctx, publicToken)
	if err == nil && conn == nil {
		err = fmt.Errorf("%w: empty integration", backend.ErrRequestFailed)
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return backend.BankConnection{}, ErrManagerClosed
	}
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		m.mu.Unlock()
		linkRounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "exchange_failed")))
		logger.WithError(err).Warn("Public token exchange failed")
		return backend.BankConnection{}, fmt.Errorf("failed to exchange public token: %w", err)
	}
	m.state = StateLinked
	m.lastErr = nil
	m.mu.Unlock()

	linkRounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "linked")))
	logger.WithField("institution", conn.InstitutionName).Info("Bank linked")

	if m.store != nil {
		m.store.MarkLinked(*conn)
		if ctx.Err() == nil {
			m.store.Refresh(ctx)
		}
	}
	return *conn, nil
}

// Connect runs one full round: token, session, exchange.
func (m *Manager) Connect(ctx context.Context) (Result, error) {
	tok, err := m.RequestToken(ctx)
	if err != nil {
		return Result{}, err
	}
	return m.OpenSession(ctx, tok)
}

// Close tears the manager down. In-flight calls are cancelled and their
// results are not applied.
func (m *Manager) Close() {
	m.mu.Lock()
	m.state = StateClosed
	m.token = nil
	m.mu.Unlock()
	m.shutdown()
}
