// Package main is the entry point for the try-on session server.
//
// The main package stays minimal:
//  1. Read configuration (TRYON_* env vars, optionally from .env)
//  2. Create dependencies (logger)
//  3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, internal/tryon, ...).
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/tryon-studio/internal/config"
	"github.com/sakif/tryon-studio/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:         cfg.Port,
		BackendURL:   cfg.BackendURL,
		DBPath:       cfg.DBPath,
		Secret:       cfg.Secret,
		HTTPTimeout:  cfg.HTTPTimeout,
		FeedPageSize: cfg.FeedPageSize,
		SessionIdle:  cfg.SessionIdle,
		SecureCookie: cfg.SecureCookie,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
