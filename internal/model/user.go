// Package model defines the data structures shared by the try-on client.
// In Go, we use structs to represent our data: plain values passed between
// packages, with JSON tags matching the backend's wire format.
package model

// Credential is the opaque bearer token that authenticates the user to the
// backend. The empty string means "no credential".
//
// WHY A NAMED TYPE?
// A bare string is easy to mix up with filenames, ids or URLs. Giving the
// token its own type makes every function signature that takes one
// self-documenting, and the compiler rejects accidental swaps.
type Credential string

// Present reports whether the credential holds a token.
func (c Credential) Present() bool {
	return c != ""
}

// Identity is the resolved profile of the logged-in user, as returned by
// GET /users/me. The backend returns more fields (email, is_active,
// created_at). We only keep what the client displays or sends back.
//
// ID is the number sent as user_id in a try-on request.
type Identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"name"`
	AvatarRef   string `json:"profile_image"`
	Email       string `json:"email,omitempty"`
}
