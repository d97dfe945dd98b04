package link

import (
	"errors"
	"time"
)

var (
	ErrNoToken                = errors.New("no link token has been issued")
	ErrTokenExpiredOrConsumed = errors.New("link token expired or already used, request a new one")
	ErrCredentialConsumed     = errors.New("public credential already exchanged")
	ErrSessionInProgress      = errors.New("a link session is already in progress")
	ErrManagerClosed          = errors.New("link manager closed")
)

// DefaultTokenTTL is how long an issued token may be opened.
const DefaultTokenTTL = 30 * time.Minute

// Token is a single-use credential for one link session. ExpiresAt is the
// backend's own deadline, zero when it sent none.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Deadline is the earlier of IssuedAt+ttl and ExpiresAt.
func (t Token) Deadline(ttl time.Duration) time.Time {
	d := t.IssuedAt.Add(ttl)
	if !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(d) {
		d = t.ExpiresAt
	}
	return d
}

// ExpiredAt reports whether the token is past its deadline at now.
func (t Token) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return !now.Before(t.Deadline(ttl))
}

// OutcomeKind is the terminal callback of a link session.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeUserCancelled
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeUserCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Outcome is what the aggregator widget reports when the session ends.
// PublicToken is set for OutcomeSuccess, Reason for OutcomeError.
type Outcome struct {
	Kind        OutcomeKind
	PublicToken string
	Reason      string
}

// Success builds a successful outcome carrying the one-time public credential.
func Success(publicToken string) Outcome {
	return Outcome{Kind: OutcomeSuccess, PublicToken: publicToken}
}

// Cancelled builds the outcome of a user closing the widget.
func Cancelled() Outcome {
	return Outcome{Kind: OutcomeUserCancelled}
}

// Failure builds an error outcome.
func Failure(reason string) Outcome {
	return Outcome{Kind: OutcomeError, Reason: reason}
}

// State is where the manager sits in the handshake.
type State int

const (
	StateIdle State = iota
	StateTokenReady
	StateOpen
	StateExchanging
	StateLinked
	StateCancelled
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateTokenReady:
		return "token_ready"
	case StateOpen:
		return "open"
	case StateExchanging:
		return "exchanging"
	case StateLinked:
		return "linked"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Retryable reports whether the user may start another round ("Try Again").
func (s State) Retryable() bool {
	return s == StateCancelled || s == StateFailed
}
