package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/repository"
)

// Store remembers one credential between visits.
type Store interface {
	// Load returns the empty credential and a nil error when nothing is stored.
	Load(ctx context.Context) (model.Credential, error)
	Save(ctx context.Context, cred model.Credential) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the credential for the lifetime of the process.
// The session API uses one per browser session.
type MemoryStore struct {
	mu   sync.Mutex
	cred model.Credential
}

func NewMemoryStore(initial model.Credential) *MemoryStore {
	return &MemoryStore{cred: initial}
}

func (s *MemoryStore) Load(ctx context.Context) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred, nil
}

func (s *MemoryStore) Save(ctx context.Context, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = ""
	return nil
}

// ProfileStore persists the credential in a repository under a profile name,
// so the terminal client stays logged in across runs.
type ProfileStore struct {
	repo    repository.CredentialRepository
	profile string
}

func NewProfileStore(repo repository.CredentialRepository, profile string) *ProfileStore {
	if profile == "" {
		profile = "default"
	}
	return &ProfileStore{repo: repo, profile: profile}
}

func (s *ProfileStore) Load(ctx context.Context) (model.Credential, error) {
	c, err := s.repo.GetCredential(ctx, s.profile)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("auth: loading credential: %w", err)
	}
	return c.Token, nil
}

func (s *ProfileStore) Save(ctx context.Context, cred model.Credential) error {
	if !cred.Present() {
		return s.Clear(ctx)
	}
	if err := s.repo.PutCredential(ctx, &model.StoredCredential{Profile: s.profile, Token: cred}); err != nil {
		return fmt.Errorf("auth: saving credential: %w", err)
	}
	return nil
}

// Remember records which user the stored credential belongs to.
func (s *ProfileStore) Remember(ctx context.Context, cred model.Credential, userID int64) error {
	err := s.repo.PutCredential(ctx, &model.StoredCredential{Profile: s.profile, Token: cred, UserID: userID})
	if err != nil {
		return fmt.Errorf("auth: saving credential: %w", err)
	}
	return nil
}

func (s *ProfileStore) Clear(ctx context.Context) error {
	if err := s.repo.DeleteCredential(ctx, s.profile); err != nil {
		return fmt.Errorf("auth: clearing credential: %w", err)
	}
	return nil
}
