package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"finboard/internal/domain/integration"
	"finboard/internal/infrastructure/backend"
	"finboard/internal/infrastructure/linkwidget"
	"finboard/internal/interfaces/cli"
	"finboard/internal/shared/auth"
	"finboard/internal/shared/config"
	"finboard/internal/shared/logging"
	"finboard/internal/shared/messages"
	"finboard/internal/shared/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

// Dependencies holds all initialized application components.
type Dependencies struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Credentials *auth.Store
	Client      *backend.Client
	Store       *integration.Store
	Messages    *messages.Messages
	Opener      *linkwidget.HostedOpener

	shutdownTelemetry func(context.Context) error
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	deps := &Dependencies{Config: cfg, Logger: logger}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  getEnvironment(),
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize telemetry")
		} else {
			deps.shutdownTelemetry = shutdown
		}
	}

	// Load stored credentials
	creds := auth.NewStore(cfg.Credentials.File, cfg.Credentials.Passphrase, logger)
	if err := creds.Load(); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	deps.Credentials = creds

	msgs, err := messages.Load(cfg.Messages.File)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Messages = msgs

	// Initialize backend client and shared status
	deps.Client = backend.NewClient(backend.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		Credentials: creds,
		Logger:      logger,
	})
	deps.Store = integration.NewStore(deps.Client, logger)

	deps.Opener = linkwidget.NewHostedOpener(linkwidget.Config{
		HostedURL:    cfg.Link.HostedURL,
		CallbackAddr: cfg.Link.CallbackAddr,
		Out:          os.Stdout,
		Logger:       logger,
	})

	return deps, nil
}

// App adapts the dependencies to the command line front end.
func (d *Dependencies) App() *cli.App {
	return &cli.App{
		Config:      d.Config,
		Logger:      d.Logger,
		Credentials: d.Credentials,
		Client:      d.Client,
		Store:       d.Store,
		Messages:    d.Messages,
		Opener:      d.Opener,
		In:          os.Stdin,
		Out:         os.Stdout,
	}
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.shutdownTelemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := d.shutdownTelemetry(ctx); err != nil {
		d.Logger.WithError(err).Warn("Telemetry shutdown failed")
	}
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
