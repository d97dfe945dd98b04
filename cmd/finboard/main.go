package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"finboard/internal/interfaces/cli"
	"finboard/internal/shared/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, build, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func build(ctx context.Context) (*cli.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return deps.App(), deps.Close, nil
}
