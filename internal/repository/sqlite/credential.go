package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/repository"
)

// compile-time check that *DB implements repository.CredentialRepository
var _ repository.CredentialRepository = (*DB)(nil)

// PutCredential inserts or replaces the credential stored under cred.Profile.
//
// ON CONFLICT ... DO UPDATE keeps the original created_at, which
// INSERT OR REPLACE would reset.
func (db *DB) PutCredential(ctx context.Context, cred *model.StoredCredential) error {
	if cred.Profile == "" {
		return apperror.ValidationFailed("profile", "profile is required")
	}
	if !cred.Token.Present() {
		return apperror.ValidationFailed("token", "token is required")
	}

	sealed, err := db.sealer.Seal(string(cred.Token))
	if err != nil {
		return fmt.Errorf("sqlite: sealing credential for %q: %w", cred.Profile, err)
	}

	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO credentials (profile, token, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(profile) DO UPDATE SET
		   token = excluded.token,
		   user_id = excluded.user_id,
		   updated_at = excluded.updated_at`,
		cred.Profile,
		sealed,
		cred.UserID,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing credential for %q: %w", cred.Profile, err)
	}
	return nil
}

// GetCredential returns the credential stored under profile.
// Returns apperror.ErrNotFound if there is none.
//
// A token that no longer opens (the secret changed) is reported as an error
// rather than handed out as garbage; callers treat it like a missing login.
func (db *DB) GetCredential(ctx context.Context, profile string) (*model.StoredCredential, error) {
	var (
		c      model.StoredCredential
		sealed string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT profile, token, user_id, created_at, updated_at
		 FROM credentials WHERE profile = ?`,
		profile,
	).Scan(&c.Profile, &sealed, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("credential", profile)
		}
		return nil, fmt.Errorf("sqlite: getting credential for %q: %w", profile, err)
	}

	token, err := db.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening credential for %q: %w", profile, err)
	}
	c.Token = model.Credential(token)
	return &c, nil
}

// DeleteCredential removes the profile's credential. Deleting a profile that
// has none is not an error: logout must always succeed.
func (db *DB) DeleteCredential(ctx context.Context, profile string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM credentials WHERE profile = ?`, profile)
	if err != nil {
		return fmt.Errorf("sqlite: deleting credential for %q: %w", profile, err)
	}
	return nil
}

// ListCredentials returns stored profiles, most recently updated first.
// Tokens are left empty: listing is for display, never for authentication.
func (db *DB) ListCredentials(ctx context.Context, opts repository.ListOptions) ([]model.StoredCredential, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT profile, user_id, created_at, updated_at
		 FROM credentials
		 ORDER BY updated_at DESC, profile
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing credentials: %w", err)
	}
	defer rows.Close()

	out := make([]model.StoredCredential, 0, limit)
	for rows.Next() {
		var c model.StoredCredential
		if err := rows.Scan(&c.Profile, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning credential row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating credentials: %w", err)
	}
	return out, nil
}
