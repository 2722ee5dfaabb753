package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// IdentityFetcher asks the backend who a credential belongs to.
// *backend.Client satisfies it.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, cred model.Credential) (*model.Identity, error)
}

// Resolution is the outcome of one Resolve call.
//
//	Identity != nil              authenticated
//	Identity == nil, Err == nil  unauthenticated (no credential, or it was rejected)
//	Identity == nil, Err != nil  credential kept but the backend could not be reached
type Resolution struct {
	Identity   *model.Identity
	Credential model.Credential
	Err        error
}

// Authenticated reports whether an identity was resolved.
func (r Resolution) Authenticated() bool {
	return r.Identity != nil
}

// rememberer is implemented by stores that can record the user id next to
// the credential (ProfileStore).
type rememberer interface {
	Remember(ctx context.Context, cred model.Credential, userID int64) error
}

// Provider turns the navigation context and the credential store into a
// Resolution. It holds no state of its own between calls.
//
// The Provider is the only writer of the store. Writes are serialized by mu,
// and a write made on behalf of a credential (forgetting it after a 401,
// recording its user) only lands while that credential is still the stored
// one. A Resolve that finishes late therefore never undoes a newer login or
// a logout.
type Provider struct {
	store   Store
	fetcher IdentityFetcher
	nav     Navigator
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewProvider wires a Provider. nav may be nil when there is no page address
// to inspect.
func NewProvider(store Store, fetcher IdentityFetcher, nav Navigator, logger *slog.Logger) *Provider {
	return &Provider{
		store:   store,
		fetcher: fetcher,
		nav:     nav,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve determines the current credential and identity.
//
// A "#token=" fragment wins over the stored credential and is consumed:
// it is saved, then stripped from the navigator. A credential that is
// expired or answered with 401/403 is cleared from the store, and the
// result is unauthenticated rather than an error.
func (p *Provider) Resolve(ctx context.Context) Resolution {
	cred := p.credential(ctx)
	if !cred.Present() {
		return Resolution{}
	}

	if Expired(cred, p.now()) {
		p.logger.Info("stored credential expired, clearing")
		p.forget(ctx, cred)
		return Resolution{}
	}

	id, err := p.fetcher.FetchIdentity(ctx, cred)
	switch {
	case err == nil:
		p.logger.Info("identity resolved",
			slog.Int64("user_id", id.ID),
			slog.String("name", id.DisplayName),
		)
		p.remember(ctx, cred, id.ID)
		return Resolution{Identity: id, Credential: cred}

	case apperror.IsUnauthorized(err):
		p.logger.Info("credential rejected by backend, clearing")
		p.forget(ctx, cred)
		return Resolution{}

	default:
		p.logger.Warn("identity unavailable", slog.String("error", err.Error()))
		return Resolution{Credential: cred, Err: err}
	}
}

// Persist saves cred for later visits.
func (p *Provider) Persist(ctx context.Context, cred model.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Save(ctx, cred)
}

// Clear forgets the stored credential, and a login redirect not yet
// consumed, so a Resolve already under way cannot store it afterwards.
func (p *Provider) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nav != nil {
		p.nav.ClearFragment()
	}
	return p.store.Clear(ctx)
}

// FetchIdentity validates cred against the backend.
func (p *Provider) FetchIdentity(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	if !cred.Present() {
		return nil, apperror.LoginRequired()
	}
	return p.fetcher.FetchIdentity(ctx, cred)
}

// credential picks the fragment token if there is one, else the stored one.
func (p *Provider) credential(ctx context.Context) model.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nav != nil {
		if tok, ok := ExtractFragmentToken(p.nav.Fragment()); ok {
			p.nav.ClearFragment()
			if err := p.store.Save(ctx, tok); err != nil {
				p.logger.Warn("failed to persist credential", slog.String("error", err.Error()))
			}
			p.logger.Info("credential received from login redirect")
			return tok
		}
	}

	cred, err := p.store.Load(ctx)
	if err != nil {
		// An unreadable credential is as good as none.
		p.logger.Warn("failed to load stored credential", slog.String("error", err.Error()))
		if !errors.Is(err, context.Canceled) {
			p.clearLocked(ctx)
		}
		return ""
	}
	return cred
}

// forget clears cred from the store, unless something else replaced it
// while cred was being checked.
func (p *Provider) forget(ctx context.Context, cred model.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stillStored(ctx, cred) {
		p.logger.Debug("credential already replaced, not clearing")
		return
	}
	p.clearLocked(ctx)
}

// remember records the user id next to cred when the store supports it and
// cred is still the stored credential.
func (p *Provider) remember(ctx context.Context, cred model.Credential, userID int64) {
	r, ok := p.store.(rememberer)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stillStored(ctx, cred) {
		return
	}
	if err := r.Remember(ctx, cred, userID); err != nil {
		p.logger.Warn("failed to record user id", slog.String("error", err.Error()))
	}
}

func (p *Provider) stillStored(ctx context.Context, cred model.Credential) bool {
	stored, err := p.store.Load(ctx)
	return err == nil && stored == cred
}

func (p *Provider) clearLocked(ctx context.Context) {
	if err := p.store.Clear(ctx); err != nil {
		p.logger.Warn("failed to clear credential", slog.String("error", err.Error()))
	}
}
