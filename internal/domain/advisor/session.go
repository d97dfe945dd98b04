// Package advisor manages the conversation with the financial-advice backend.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
	"finboard/internal/shared/messages"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrSendInFlight  = errors.New("a question is already being answered")
	ErrClearInFlight = errors.New("history is being cleared")
	ErrNotLoaded     = errors.New("conversation is still loading")
	ErrSessionClosed = errors.New("conversation closed")
)

var (
	advisorMeter       = otel.Meter("finboard/advisor")
	advisorMessages, _ = advisorMeter.Int64Counter("advisor.messages",
		metric.WithDescription("Conversation messages appended by role"),
	)
)

// API is the slice of the backend the conversation needs.
type API interface {
	GetAdvisorHistory(ctx context.Context) (*backend.HistoryResponse, error)
	AskAdvisor(ctx context.Context, question string) (*backend.AskResponse, error)
	ClearAdvisorHistory(ctx context.Context) error
}

// Confirmer shows a blocking confirmation and reports the user's answer.
type Confirmer interface {
	Confirm(ctx context.Context, prompt messages.MessageText) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt messages.MessageText) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt messages.MessageText) (bool, error) {
	return f(ctx, prompt)
}

// State is the conversation's state machine.
type State int

const (
	StateLoading State = iota
	StateIdle
	StateSending
	StateClearing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateClearing:
		return "clearing"
	case StateClosed:
		return "closed"
	default:
		return "loading"
	}
}

// Config tunes a Session.
type Config struct {
	Messages *messages.Messages
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Session owns one mounted conversation. All mutation goes through its
// methods; readers get copies. At most one request is in flight at a time.
type Session struct {
	api    API
	copy   *messages.Messages
	now    func() time.Time
	logger logrus.FieldLogger

	mu       sync.Mutex
	state    State
	loading  chan struct{} // closed when the history fetch finishes
	messages []Message
	banner   string
	last     time.Time
}

// NewSession creates a session in the Loading state.
func NewSession(api API, cfg Config) *Session {
	if cfg.Messages == nil {
		cfg.Messages = messages.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		api:    api,
		copy:   cfg.Messages,
		now:    cfg.Now,
		logger: logging.Component(cfg.Logger, "advisor"),
	}
}

// stamp returns a timestamp that never precedes the previous one. Callers
// hold s.mu.
func (s *Session) stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func (s *Session) appendLocked(m Message) Message {
	s.messages = append(s.messages, m)
	advisorMessages.Add(context.Background(), 1, metric.WithAttributes(attribute.String("role", string(m.Role))))
	return m
}

func (s *Session) welcomeLocked() Message {
	m := newMessage(RoleAssistant, Text(s.copy.Welcome.Body), s.stamp(time.Time{}))
	m.Suggestions = append([]string(nil), s.copy.SuggestedQuestions...)
	return m
}

// Load fetches the persisted history once. Non-empty history is hydrated in
// server order; empty history or a fetch error both leave the single seeded
// welcome message. Later calls return the current messages without a fetch;
// a call made while the fetch is running waits for it.
func (s *Session) Load(ctx context.Context) []Message {
	s.mu.Lock()
	if s.state != StateLoading {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	if wait := s.loading; wait != nil {
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		return s.Messages()
	}
	done := make(chan struct{})
	s.loading = done
	s.mu.Unlock()
	defer close(done)

	resp, err := s.api.GetAdvisorHistory(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return s.snapshotLocked()
	}

	var history []backend.HistoryMessage
	switch {
	case err != nil:
		s.logger.WithError(err).Warn("Failed to load advisor history, starting fresh")
	case resp != nil:
		history = resp.Data.History
	}

	s.messages = nil
	if len(history) == 0 {
		s.appendLocked(s.welcomeLocked())
	} else {
		for _, h := range history {
			m, dropped := hydrate(h, s.stamp(h.Timestamp.Time))
			if dropped > 0 {
				s.logger.WithFields(logrus.Fields{"id": m.ID, "dropped": dropped}).Debug("Dropped undecodable recommendations")
			}
			s.messages = append(s.messages, m)
		}
		s.logger.WithField("messages", len(history)).Debug("Advisor history loaded")
	}

	s.state = StateIdle
	return s.snapshotLocked()
}

// Send asks a question. The user message is appended immediately; once the
// backend answers exactly one Assistant or Error message follows it. A send
// while another is pending is rejected with ErrSendInFlight and changes
// nothing.
//
// On failure the returned message is the appended Error message and the
// error is also kept as the banner.
func (s *Session) Send(ctx context.Context, question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return Message{}, err
	}
	s.appendLocked(newMessage(RoleUser, Text(question), s.stamp(time.Time{})))
	s.state = StateSending
	s.banner = ""
	s.mu.Unlock()

	resp, err := s.api.AskAdvisor(ctx, question)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty ask response", backend.ErrRequestFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return Message{}, ErrSessionClosed
	}
	s.state = StateIdle

	if err != nil {
		s.banner = err.Error()
		s.logger.WithError(err).Warn("Advisor request failed")
		m := s.appendLocked(newMessage(RoleError, Text(s.copy.SendFailed.Body), s.stamp(time.Time{})))
		return m.clone(), fmt.Errorf("failed to ask advisor: %w", err)
	}

	content, dropped := classifyReply(resp.Data)
	s.logger.WithFields(logrus.Fields{
		"kind":          content.Kind.String(),
		"response_type": resp.Data.ResponseType,
		"dropped":       dropped,
	}).Debug("Advisor replied")

	m := s.appendLocked(newMessage(RoleAssistant, content, s.stamp(time.Time{})))
	return m.clone(), nil
}

// Clear purges the conversation after the user confirms. Declining is a
// no-op and returns (false, nil). On a failed purge the history is left
// untouched and the error is kept as the banner.
func (s *Session) Clear(ctx context.Context, confirm Confirmer) (bool, error) {
	s.mu.Lock()
	err := s.readyLocked()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	ok, err := confirm.Confirm(ctx, s.copy.ClearConfirm)
	if err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.state = StateClearing
	s.mu.Unlock()

	err = s.api.ClearAdvisorHistory(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false, ErrSessionClosed
	}
	s.state = StateIdle

	if err != nil {
		s.banner = err.Error()
		s.logger.WithError(err).Warn("Failed to clear advisor history")
		return false, fmt.Errorf("failed to clear history: %w", err)
	}

	s.messages = nil
	s.banner = ""
	s.appendLocked(s.welcomeLocked())
	s.logger.Info("Advisor history cleared")
	return true, nil
}

func (s *Session) readyLocked() error {
	switch s.state {
	case StateIdle:
		return nil
	case StateSending:
		return ErrSendInFlight
	case StateClearing:
		return ErrClearInFlight
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotLoaded
	}
}

func (s *Session) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Banner is the text of the last failure, empty when there is none.
func (s *Session) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

// DismissBanner clears the banner.
func (s *Session) DismissBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = ""
}

// Close tears the session down. Replies that arrive afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
