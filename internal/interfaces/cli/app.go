// Package cli is the terminal front end of finboard.
package cli

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"finboard/internal/domain/advisor"
	"finboard/internal/domain/dashboard"
	"finboard/internal/domain/health"
	"finboard/internal/domain/integration"
	"finboard/internal/domain/ledger"
	"finboard/internal/domain/link"
	"finboard/internal/domain/profile"
	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/auth"
	"finboard/internal/shared/config"
	"finboard/internal/shared/messages"
)

// App holds the components commands operate on.
type App struct {
	Config      *config.Config
	Logger      logrus.FieldLogger
	Credentials *auth.Store
	Client      *backend.Client
	Store       *integration.Store
	Messages    *messages.Messages
	Opener      link.Opener

	In  io.Reader
	Out io.Writer

	prompt *Prompter
}

// Builder constructs the App once flags are parsed. The returned cleanup is
// run after the command finishes.
type Builder func(ctx context.Context) (*App, func(), error)

// prompter is shared so buffered input is not lost between prompts.
func (a *App) prompter() *Prompter {
	if a.prompt == nil {
		a.prompt = NewPrompter(a.In, a.Out)
	}
	return a.prompt
}

func (a *App) healthConfig() health.Config {
	return health.Config{
		Ceiling:        a.Config.Health.Ceiling,
		RequestTimeout: a.Config.Health.RequestTimeout,
		Logger:         a.Logger,
	}
}

func (a *App) linkManager() *link.Manager {
	return link.NewManager(a.Client, a.Opener, a.Store, link.Config{
		TokenTTL: a.Config.Link.TokenTTL,
		Logger:   a.Logger,
	})
}

func (a *App) session() *advisor.Session {
	return advisor.NewSession(a.Client, advisor.Config{Messages: a.Messages, Logger: a.Logger})
}

func (a *App) ledgerView() *ledger.View {
	return ledger.NewView(a.Client, a.Config.Ledger.PageSize, a.Logger)
}

func (a *App) profileService() *profile.Service {
	return profile.NewService(a.Client, a.Credentials, a.Logger, a.Store)
}

func (a *App) orchestrator() *dashboard.Orchestrator {
	return dashboard.New(a.Client, a.Opener, a.Store, a.Client, dashboard.Config{
		Health: a.healthConfig(),
		Link: link.Config{
			TokenTTL: a.Config.Link.TokenTTL,
		},
		PageSize: a.Config.Ledger.PageSize,
		Messages: a.Messages,
		Logger:   a.Logger,
	})
}
