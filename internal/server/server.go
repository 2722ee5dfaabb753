// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects the backend client, the
// credential database, the session registry, handlers and middleware, and
// decides which URL patterns map to which handler functions.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go reads config.Config → server.New builds:
//	  seal.Sealer → sqlite.DB (credentials at rest)
//	  backend.Client (otelhttp transport)
//	  service.SessionService(backend, sqlite.DB)
//	  handler.SessionHandler / handler.PageHandler
//
// This is the "composition root": every dependency is created here and
// nowhere else.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/tryon-studio/internal/backend"
	"github.com/sakif/tryon-studio/internal/handler"
	"github.com/sakif/tryon-studio/internal/middleware"
	sqliteRepo "github.com/sakif/tryon-studio/internal/repository/sqlite"
	"github.com/sakif/tryon-studio/internal/seal"
	"github.com/sakif/tryon-studio/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port         int
	BackendURL   string
	DBPath       string        // credentials database; ":memory:" keeps nothing on disk
	Secret       string        // seals stored credentials; empty stores them as-is
	HTTPTimeout  time.Duration // per backend request; 0 means none
	FeedPageSize int
	SessionIdle  time.Duration // idle sessions are ended after this long; 0 means 24h
	SecureCookie bool
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and every live session; both are
// released during graceful shutdown in Start.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sessions *service.SessionService
}

// New creates a Server with the given config.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 24 * time.Hour
	}

	sealer, err := seal.FromSecret(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("creating sealer: %w", err)
	}
	if _, plain := sealer.(seal.Plain); plain {
		logger.Warn("TRYON_SECRET not set, credentials are stored unsealed")
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath, sealer)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	be, err := backend.New(cfg.BackendURL, logger, backend.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating backend client: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		sessions: service.NewSessionService(be, service.Options{
			ImageBase:    strings.TrimRight(cfg.BackendURL, "/"),
			FeedPageSize: cfg.FeedPageSize,
			Credentials:  db,
		}, logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                              → try-on page (HTML)
// GET    /login                         → redirect to the backend login
// POST   /api/session                   → new session + cookie
// POST   /api/session/token             → submit the #token= fragment
// POST   /api/session/resolve           → resolve the identity again
// GET    /api/state                     → state snapshot
// PUT    /api/selection/{kind}          → select a photo
// POST   /api/inventory/{kind}/reload   → reload an inventory
// POST   /api/upload/{kind}             → upload a photo
// POST   /api/generate                  → start a try-on
// GET    /api/results                   → session results
// POST   /api/logout                    → log out
// GET    /api/shop/next                 → next garment feed page
//
// Middleware order: request id, real ip, panic recovery, logging, then the
// session lookup so every handler sees the cookie's session.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Session(s.sessions, s.logger))

	pageHandler, err := handler.NewPageHandler(s.sessions, s.config.SecureCookie, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	sessionHandler := handler.NewSessionHandler(s.sessions, s.config.BackendURL, s.config.SecureCookie, s.logger)

	s.router.Get("/", pageHandler.HandlePage)
	s.router.Get("/login", sessionHandler.HandleLogin)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/session", sessionHandler.HandleCreate)
		r.Post("/session/token", sessionHandler.HandleToken)
		r.Post("/session/resolve", sessionHandler.HandleResolve)
		r.Get("/state", sessionHandler.HandleState)
		r.Put("/selection/{kind}", sessionHandler.HandleSelect)
		r.Post("/inventory/{kind}/reload", sessionHandler.HandleReload)
		r.Post("/upload/{kind}", sessionHandler.HandleUpload)
		r.Post("/generate", sessionHandler.HandleGenerate)
		r.Get("/results", sessionHandler.HandleResults)
		r.Post("/logout", sessionHandler.HandleLogout)
		r.Get("/shop/next", sessionHandler.HandleShopNext)
	})

	return nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends every session and closes the database.
func (s *Server) Close() error {
	s.sessions.Shutdown(context.Background())
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. End every session (cancels their backend calls)
//  4. Close the database connection
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go s.expireSessions(janitorCtx, time.Minute)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("backend", s.config.BackendURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// expireSessions ends idle sessions every interval until ctx is done.
func (s *Server) expireSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Expire(ctx, s.config.SessionIdle); n > 0 {
				s.logger.Info("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}
