package repository

import (
	"context"

	"github.com/sakif/tryon-studio/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// CredentialRepository persists at most one credential per profile.
type CredentialRepository interface {
	// GetCredential returns apperror.ErrNotFound when the profile has none.
	GetCredential(ctx context.Context, profile string) (*model.StoredCredential, error)
	// PutCredential inserts or replaces the profile's credential.
	PutCredential(ctx context.Context, cred *model.StoredCredential) error
	// DeleteCredential is a no-op when the profile has none.
	DeleteCredential(ctx context.Context, profile string) error
	ListCredentials(ctx context.Context, opts ListOptions) ([]model.StoredCredential, error)
}
