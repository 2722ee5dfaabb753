// Package service holds the session registry behind the local session API.
//
// Each browser session gets its own try-on controller, credential store and
// garment feed. The HTTP layer only ever talks to a *Session handed out
// here, so it never wires controllers itself.
//
//	SessionHandler (HTTP) → SessionService → tryon.Controller → backend.Client
//	                                       ↘ auth.Provider → CredentialRepository
//
// When a CredentialRepository is configured, a session's credential is
// stored (sealed) under "session:<id>", and a session id the process no
// longer knows about, e.g. after a restart, is restored from it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/gallery"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/repository"
	"github.com/sakif/tryon-studio/internal/tryon"
)

// Backend is everything a session needs from the try-on backend.
// *backend.Client satisfies it.
type Backend interface {
	tryon.Backend
	auth.IdentityFetcher
	gallery.ShopLister
}

// Options tune a SessionService. Zero values are usable.
type Options struct {
	// ImageBase prefixes image paths in state and feed pages.
	ImageBase string
	// FeedPageSize is the number of garments per feed page.
	FeedPageSize int
	// Credentials persists session credentials. Nil keeps them in memory.
	Credentials repository.CredentialRepository
}

// Session is one browser session.
type Session struct {
	ID         string
	Controller *tryon.Controller
	Feed       *gallery.Feed

	nav      *auth.FragmentNavigator
	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionService creates, finds and ends sessions.
type SessionService struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewSessionService(backend Backend, opts Options, logger *slog.Logger) *SessionService {
	return &SessionService{
		backend:  backend,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// ErrClosed is returned once Shutdown has run.
var ErrClosed = errors.New("service/session: closed")

// Create starts a new session and resolves it. A fresh session has no
// credential, so it settles logged out until a token is submitted.
func (s *SessionService) Create(ctx context.Context) (*Session, error) {
	return s.open(ctx, xid.New().String())
}

// Get returns the live session with id, restoring it from the credential
// repository when the process has not seen it yet.
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.touch(s.now())
		return sess, nil
	}

	if _, err := xid.FromString(id); err != nil || s.opts.Credentials == nil {
		return nil, apperror.NotFound("session", id)
	}
	if _, err := s.opts.Credentials.GetCredential(ctx, storeKey(id)); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("service/session: restoring %s: %w", id, err)
	}

	s.logger.Info("restoring session", slog.String("session", id))
	return s.open(ctx, id)
}

func (s *SessionService) open(ctx context.Context, id string) (*Session, error) {
	var store auth.Store = auth.NewMemoryStore("")
	if s.opts.Credentials != nil {
		store = auth.NewProfileStore(s.opts.Credentials, storeKey(id))
	}

	logger := s.logger.With(slog.String("session", id))
	nav := auth.NewFragmentNavigator("")
	provider := auth.NewProvider(store, s.backend, nav, logger)
	ctrl := tryon.New(provider, s.backend, logger, tryon.WithImageBase(s.opts.ImageBase))

	sess := &Session{
		ID:         id,
		Controller: ctrl,
		Feed:       gallery.NewFeed(s.backend, s.opts.FeedPageSize, s.opts.ImageBase),
		nav:        nav,
		lastSeen:   s.now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if existing, ok := s.sessions[id]; ok {
		// Lost a restore race; use the winner.
		s.mu.Unlock()
		ctrl.Stop()
		return existing, nil
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	ctrl.Start()
	if err := ctrl.Resolve(ctx); err != nil {
		s.End(context.WithoutCancel(ctx), id)
		return nil, fmt.Errorf("service/session: resolving %s: %w", id, err)
	}
	s.logger.Info("session started", slog.String("session", id))
	return sess, nil
}

// SubmitToken hands the login redirect's token to the session and resolves
// it again. raw may be the bare token or the whole fragment ("#token=...").
func (s *SessionService) SubmitToken(ctx context.Context, sess *Session, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperror.ValidationFailed("token", "Token is required.")
	}
	fragment := raw
	if _, ok := auth.ExtractFragmentToken(raw); !ok {
		fragment = "token=" + raw
	}
	sess.nav.Set(fragment)
	return sess.Controller.Resolve(ctx)
}

// Logout logs the session out. The session itself stays usable.
func (s *SessionService) Logout(ctx context.Context, sess *Session) error {
	return sess.Controller.Logout(ctx)
}

// End stops the session and forgets it. Its stored credential, if any, is
// kept so the session can be restored; Logout is what removes it.
func (s *SessionService) End(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.Controller.Stop()
	s.logger.Info("session ended", slog.String("session", id))
}

// Expire ends every session idle for longer than maxIdle and returns how
// many it ended.
func (s *SessionService) Expire(ctx context.Context, maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	var stale []string
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.End(ctx, id)
	}
	return len(stale)
}

// ImageBase is the prefix of every image URL the sessions hand out.
func (s *SessionService) ImageBase() string {
	return s.opts.ImageBase
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops every session. Later calls to Create fail with ErrClosed.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.End(ctx, id)
	}
}

// ParseKind turns a path segment into a photo kind, as a validation error.
func ParseKind(raw string) (model.Kind, error) {
	k, err := model.ParseKind(raw)
	if err != nil {
		return "", apperror.ValidationFailed("kind", fmt.Sprintf("Unknown photo kind %q.", raw))
	}
	return k, nil
}

func storeKey(id string) string {
	return "session:" + id
}
