// Package dashboard sequences the client: wait for the backend, decide
// between onboarding and the dashboard, link banks until one is connected,
// then mount the dashboard. Everything it starts is torn down when Mount
// returns.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"finboard/internal/domain/advisor"
	"finboard/internal/domain/health"
	"finboard/internal/domain/integration"
	"finboard/internal/domain/ledger"
	"finboard/internal/domain/link"
	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/lifecycle"
	"finboard/internal/shared/logging"
	"finboard/internal/shared/messages"
)

// ErrAborted is returned when the user leaves onboarding without linking.
var ErrAborted = errors.New("bank linking aborted")

// Backend is every backend call the mounted screens make.
type Backend interface {
	health.Checker
	link.API
	integration.StatusFetcher
	ledger.API
	advisor.API
}

// AuthNotifier reports a rejected credential. The API client implements it.
type AuthNotifier interface {
	OnUnauthorized(fn func())
}

// LinkAttempt is the end of one link round as shown to the user.
type LinkAttempt struct {
	Result link.Result
	Err    error
	State  link.State
}

// Dashboard is handed to the UI once a bank is linked.
type Dashboard struct {
	Status    integration.Status
	Changed   bool
	Ledger    *ledger.Snapshot
	LedgerErr error
	Session   *advisor.Session
	View      *ledger.View
	Links     *link.Manager
	Store     *integration.Store
}

// UI is the front end driven by the orchestrator.
type UI interface {
	// HealthChanged receives every poller event until the backend is ready.
	HealthChanged(ev health.Event)
	// StartLink is asked before each link round while nothing is linked.
	// previous is nil on the first round. Returning false aborts.
	StartLink(ctx context.Context, status integration.Status, previous *LinkAttempt) (bool, error)
	// LinkFinished reports the end of a round.
	LinkFinished(attempt LinkAttempt)
	// Run drives the mounted dashboard until the user leaves or ctx ends.
	Run(ctx context.Context, d *Dashboard) error
}

// Config tunes the mounted components.
type Config struct {
	Health          health.Config
	Link            link.Config
	PageSize        int
	Messages        *messages.Messages
	TeardownTimeout time.Duration
	Logger          logrus.FieldLogger
}

// Orchestrator mounts the client screens in order.
type Orchestrator struct {
	api    Backend
	opener link.Opener
	store  *integration.Store
	auth   AuthNotifier
	cfg    Config
	logger logrus.FieldLogger
}

// New creates an orchestrator. auth may be nil.
func New(api Backend, opener link.Opener, store *integration.Store, auth AuthNotifier, cfg Config) *Orchestrator {
	logger := logging.Component(cfg.Logger, "dashboard")
	if cfg.Health.Logger == nil {
		cfg.Health.Logger = cfg.Logger
	}
	if cfg.Link.Logger == nil {
		cfg.Link.Logger = cfg.Logger
	}
	return &Orchestrator{
		api:    api,
		opener: opener,
		store:  store,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
	}
}

// Mount runs the whole client flow and returns when the UI finishes, the
// context ends, the user aborts linking or the session expires. A rejected
// credential anywhere yields an error matching backend.ErrAuthExpired, which
// callers treat as "go to login".
func (o *Orchestrator) Mount(parent context.Context, ui UI) (err error) {
	mountCtx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	defer func() {
		if errors.Is(context.Cause(mountCtx), backend.ErrAuthExpired) {
			o.store.Reset()
			o.logger.Warn("Session expired, redirecting to login")
			err = fmt.Errorf("redirect to login: %w", backend.ErrAuthExpired)
		}
	}()

	scope := lifecycle.NewScope(mountCtx, o.cfg.TeardownTimeout)
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			o.logger.WithError(cerr).Warn("Teardown finished with errors")
		}
	}()
	ctx := scope.Context()

	if o.auth != nil {
		o.auth.OnUnauthorized(func() { cancel(backend.ErrAuthExpired) })
		scope.DeferFunc("unauthorized hook", func() { o.auth.OnUnauthorized(nil) })
	}

	if err := o.waitReady(ctx, scope, ui); err != nil {
		return err
	}

	status := o.store.Refresh(ctx)
	o.logger.WithFields(logrus.Fields{
		"integrated":  status.IsIntegrated,
		"connections": len(status.BankConnections),
	}).Info("Integration status loaded")

	links := link.NewManager(o.api, o.opener, o.store, o.cfg.Link)
	scope.DeferFunc("link manager", links.Close)

	if !status.IsIntegrated {
		if status, err = o.onboard(ctx, ui, links, status); err != nil {
			return err
		}
	}

	dash := o.mountDashboard(ctx, scope, links, status)
	return ui.Run(ctx, dash)
}

func (o *Orchestrator) waitReady(ctx context.Context, scope *lifecycle.Scope, ui UI) error {
	poller := health.NewPoller(o.api, o.cfg.Health)
	scope.DeferFunc("health poller", poller.Stop)

	events, err := poller.Start(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		ui.HealthChanged(ev)
		if ev.Kind == health.EventReady {
			return nil
		}
	}
	return context.Cause(ctx)
}

// onboard runs link rounds until a bank is connected or the user gives up.
func (o *Orchestrator) onboard(ctx context.Context, ui UI, links *link.Manager, status integration.Status) (integration.Status, error) {
	var previous *LinkAttempt
	for !status.IsIntegrated {
		proceed, err := ui.StartLink(ctx, status, previous)
		if err != nil {
			return status, err
		}
		if !proceed {
			return status, ErrAborted
		}

		res, err := links.Connect(ctx)
		attempt := LinkAttempt{Result: res, Err: err, State: links.State()}
		ui.LinkFinished(attempt)

		if ctx.Err() != nil {
			return status, context.Cause(ctx)
		}
		previous = &attempt
		status = o.store.Current()
	}
	return status, nil
}

func (o *Orchestrator) mountDashboard(ctx context.Context, scope *lifecycle.Scope, links *link.Manager, status integration.Status) *Dashboard {
	session := advisor.NewSession(o.api, advisor.Config{Messages: o.cfg.Messages, Logger: o.cfg.Logger})
	scope.DeferFunc("advisor session", session.Close)
	view := ledger.NewView(o.api, o.cfg.PageSize, o.cfg.Logger)

	dash := &Dashboard{
		Status:  status,
		Changed: o.store.TakeChanged(),
		Session: session,
		View:    view,
		Links:   links,
		Store:   o.store,
	}

	// Ledger failures are shown in place and never block the conversation.
	var g errgroup.Group
	g.Go(func() error {
		dash.Ledger, dash.LedgerErr = view.Load(ctx)
		if dash.LedgerErr != nil {
			o.logger.WithError(dash.LedgerErr).Warn("Failed to load ledger")
		}
		return nil
	})
	g.Go(func() error {
		session.Load(ctx)
		return nil
	})
	_ = g.Wait()

	o.logger.Info("Dashboard mounted")
	return dash
}
