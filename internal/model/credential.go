package model

import "time"

// StoredCredential is a credential persisted under a profile name so it
// survives a restart. Token is plaintext in memory; the repository seals it
// before it reaches disk.
type StoredCredential struct {
	Profile   string     `json:"profile"`
	Token     Credential `json:"-"`
	UserID    int64      `json:"user_id,omitempty"` // 0 until the identity is known
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
