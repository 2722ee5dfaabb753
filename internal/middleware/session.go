package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/service"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "tryon_session"

// SessionFinder looks a session up by id. *service.SessionService
// satisfies it.
type SessionFinder interface {
	Get(ctx context.Context, id string) (*service.Session, error)
}

type sessionKey struct{}

// Session loads the session named by the cookie into the request context.
// Requests without a usable session pass through untouched; handlers that
// need one call SessionFrom and answer the error themselves.
func Session(finder SessionFinder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(SessionCookie)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := finder.Get(r.Context(), c.Value)
			if err != nil {
				if !errors.Is(err, apperror.ErrNotFound) {
					logger.Warn("failed to load session",
						slog.String("session", c.Value),
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFrom returns the request's session, or nil.
func SessionFrom(ctx context.Context) *service.Session {
	sess, _ := ctx.Value(sessionKey{}).(*service.Session)
	return sess
}

// SetSessionCookie issues the session cookie. It lives as long as the
// browser session.
func SetSessionCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
