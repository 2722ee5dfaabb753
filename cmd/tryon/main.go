// Command tryon is an interactive terminal client for the try-on backend.
//
// It keeps the credential of each profile in the same SQLite database the
// server uses (sealed when TRYON_SECRET is set), so a profile stays logged
// in across runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/backend"
	"github.com/sakif/tryon-studio/internal/cli"
	"github.com/sakif/tryon-studio/internal/config"
	"github.com/sakif/tryon-studio/internal/gallery"
	"github.com/sakif/tryon-studio/internal/repository/sqlite"
	"github.com/sakif/tryon-studio/internal/seal"
	"github.com/sakif/tryon-studio/internal/tryon"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tryon:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	profile := flag.String("profile", cfg.Profile, "credential profile to use")
	redirect := flag.String("login", "", "redirect address (with #token=...) to log in with")
	flag.Parse()

	// Logs go to stderr so they never interleave with the shell's output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	sealer, err := seal.FromSecret(cfg.Secret)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DBPath, sealer)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	be, err := backend.New(cfg.BackendURL, logger, backend.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return err
	}

	nav := auth.NewFragmentNavigator("")
	if *redirect != "" {
		u, err := auth.ParseURLNavigator(*redirect)
		if err != nil {
			return err
		}
		nav.Set(u.Fragment())
	}

	imageBase := strings.TrimRight(cfg.BackendURL, "/")
	provider := auth.NewProvider(auth.NewProfileStore(db, *profile), be, nav, logger)
	ctrl := tryon.New(provider, be, logger, tryon.WithImageBase(imageBase))
	ctrl.Start()
	defer ctrl.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shell := &cli.Shell{
		Controller: ctrl,
		Feed:       gallery.NewFeed(be, cfg.FeedPageSize, imageBase),
		Nav:        nav,
		Profiles:   db,
		LoginURL:   be.LoginURL(),
		ImageBase:  imageBase,
		ReadFile:   os.ReadFile,
		Out:        os.Stdout,
		Logger:     logger,
	}
	// "retry" resolves the stored credential (or the -login address).
	if err := shell.Exec(ctx, "retry"); err != nil {
		return err
	}
	return shell.Run(ctx, os.Stdin)
}
