// Package app initializes and orchestrates the main components of the patch-warden service.
// It wires together the configuration, server, and other services.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/jobs"
	"github.com/sevigo/patch-warden/internal/server"
)

// Cloner prepares the local clones before builds are accepted.
type Cloner interface {
	CloneAll(ctx context.Context) error
}

// App holds the main application components.
type App struct {
	ctx        context.Context
	cfg        *config.Config
	server     *server.Server
	dispatcher jobs.Dispatcher
	repos      Cloner
	logger     *slog.Logger
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, srv *server.Server, dispatcher jobs.Dispatcher, repos Cloner, logger *slog.Logger) *App {
	return &App{
		ctx:        ctx,
		cfg:        cfg,
		server:     srv,
		dispatcher: dispatcher,
		repos:      repos,
		logger:     logger,
	}
}

// Start clones the managed repositories, then runs the HTTP server.
func (a *App) Start() error {
	a.logger.Info("starting patch-warden",
		"server_port", a.cfg.Server.Port,
		"queue_size", a.cfg.Server.QueueSize,
		"repositories", len(a.cfg.Repositories),
		"publish", a.cfg.Phabricator.Publish)

	if err := a.repos.CloneAll(a.ctx); err != nil {
		return fmt.Errorf("failed to prepare repositories: %w", err)
	}

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down patch-warden services")

	// Stop the HTTP server first to prevent new incoming builds.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.dispatcher.Stop()

	if serverErr != nil {
		a.logger.Error("patch-warden stopped with errors", "error", serverErr)
		return serverErr
	}
	a.logger.Info("patch-warden stopped successfully")
	return nil
}
