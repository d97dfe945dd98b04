// Package health gates the client on backend readiness.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"finboard/internal/shared/logging"
)

const (
	baseDelay = 2000 * time.Millisecond
	stepDelay = 500 * time.Millisecond
	maxDelay  = 5000 * time.Millisecond

	// DefaultCeiling is the attempt count at which the poller reports Degraded.
	DefaultCeiling = 60
	// DefaultRequestTimeout bounds a single probe.
	DefaultRequestTimeout = 10 * time.Second
)

var (
	pollMeter       = otel.Meter("finboard/health")
	pollAttempts, _ = pollMeter.Int64Counter("health.poll.attempts",
		metric.WithDescription("Readiness probes by result"),
	)
)

// Checker probes the backend once.
type Checker interface {
	Health(ctx context.Context) error
}

// EventKind tags a poller event.
type EventKind int

const (
	EventWaiting EventKind = iota
	EventReady
	EventDegraded
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventDegraded:
		return "degraded"
	default:
		return "waiting"
	}
}

// Event is one observation emitted by the poller.
type Event struct {
	Kind    EventKind
	Attempt int
	Message string
	Err     error
}

// Delay returns the wait before the retry that follows failed attempt n:
// min(2000 + n*500, 5000) milliseconds.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := baseDelay + time.Duration(attempt)*stepDelay
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Config tunes a Poller. Zero values take the defaults.
type Config struct {
	Ceiling        int
	RequestTimeout time.Duration
	// Delay overrides the backoff schedule. Tests shrink it.
	Delay  func(attempt int) time.Duration
	Logger logrus.FieldLogger
}

// Poller polls the readiness endpoint until it answers. It never gives up on
// its own; only Stop or the start context end polling before Ready.
type Poller struct {
	checker        Checker
	ceiling        int
	requestTimeout time.Duration
	delay          func(int) time.Duration
	logger         logrus.FieldLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewPoller creates a poller for checker.
func NewPoller(checker Checker, cfg Config) *Poller {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Delay == nil {
		cfg.Delay = Delay
	}
	return &Poller{
		checker:        checker,
		ceiling:        cfg.Ceiling,
		requestTimeout: cfg.RequestTimeout,
		delay:          cfg.Delay,
		logger:         logging.Component(cfg.Logger, "health"),
	}
}

// Start begins polling and returns the event stream. The stream is closed
// after Ready, after Stop, or when ctx ends. A poller starts at most once.
func (p *Poller) Start(ctx context.Context) (<-chan Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil, fmt.Errorf("health poller already started")
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	events := make(chan Event)

	go p.loop(ctx, events)

	return events, nil
}

// Stop cancels any pending retry and waits for the polling goroutine to exit.
// No event is delivered after Stop returns. Safe to call more than once and
// before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, events chan<- Event) {
	defer close(p.done)
	defer close(events)

	attempt := 0
	degraded := false

	for {
		err := p.probe(ctx)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			pollAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ready")))
			p.logger.WithField("attempts", attempt+1).Info("Backend is ready")
			p.emit(ctx, events, Event{Kind: EventReady, Attempt: attempt})
			return
		}

		attempt++
		pollAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "not_ready")))
		p.logger.WithFields(logrus.Fields{"attempt": attempt}).WithError(err).Debug("Backend not ready")

		if !p.emit(ctx, events, Event{Kind: EventWaiting, Attempt: attempt, Err: err}) {
			return
		}

		if attempt >= p.ceiling && !degraded {
			degraded = true
			msg := fmt.Sprintf("backend still unreachable after %d attempts; continuing to retry", attempt)
			p.logger.WithField("attempt", attempt).Warn("Backend degraded, still polling")
			if !p.emit(ctx, events, Event{Kind: EventDegraded, Attempt: attempt, Message: msg, Err: err}) {
				return
			}
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	return p.checker.Health(ctx)
}

// emit delivers ev unless the poller is torn down first.
func (p *Poller) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}

// Wait blocks until the backend is ready, forwarding every event to observe
// when non-nil. Returns ctx.Err() if ctx ends first.
func Wait(ctx context.Context, p *Poller, observe func(Event)) error {
	events, err := p.Start(ctx)
	if err != nil {
		return err
	}
	defer p.Stop()

	for ev := range events {
		if observe != nil {
			observe(ev)
		}
		if ev.Kind == EventReady {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}
