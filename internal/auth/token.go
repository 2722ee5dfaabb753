// Package auth resolves who the user is before anything else runs.
//
// RESOLUTION FLOW:
//  1. The login redirect lands on the page with "#token=<credential>" in the
//     fragment. If present, the token is persisted and the fragment stripped.
//  2. Otherwise the credential saved by a previous visit is loaded.
//  3. The credential is checked locally (JWT expiry) and then against the
//     backend (GET /users/me). A rejected credential is forgotten.
//
// The credential is an opaque bearer token to this package. It is only
// decoded, without verification, to read its expiry: the signing key lives
// on the backend, which stays the authority on validity.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/tryon-studio/internal/model"
)

// loginPath is the backend route that starts the external login flow.
const loginPath = "/auth/google/login"

// LoginURL returns where the user is sent to log in. The backend redirects
// back to "/#token=<credential>" when the flow completes.
func LoginURL(base string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + loginPath
}

// Claims reads the registered claims of a JWT credential without checking
// its signature. ok is false for opaque (non-JWT) credentials.
func Claims(cred model.Credential) (jwt.RegisteredClaims, bool) {
	var c jwt.RegisteredClaims
	if !cred.Present() {
		return c, false
	}
	if _, _, err := jwt.NewParser().ParseUnverified(string(cred), &c); err != nil {
		return jwt.RegisteredClaims{}, false
	}
	return c, true
}

// Expired reports whether cred is a JWT whose exp claim is at or before now.
// Credentials that are not JWTs, or carry no exp, are never expired locally;
// the backend decides.
func Expired(cred model.Credential, now time.Time) bool {
	c, ok := Claims(cred)
	if !ok || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}
