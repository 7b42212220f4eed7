package auth

import (
	"context"
	"net/http"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/view"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

// ContextKeyUser is the key for the signed-in user in request context
const ContextKeyUser ContextKey = "user"

func ContextWithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// UserFromContext returns the signed-in user, or nil for visitors.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ContextKeyUser).(*model.User)
	return u
}

// WithUser loads the session's profile into the request context. It runs
// inside the session middleware.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := session.FromContext(r.Context()); s != nil {
			if u := s.User(r.Context()); u != nil {
				r = r.WithContext(ContextWithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser sends visitors to the login page.
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			view.Redirect(w, r, view.LoginURL(view.RequestURL(r)))
			return
		}
		next(w, r)
	}
}

// RequireAuthor admits users allowed to write posts. The backend still
// decides on every write; this only keeps the editor out of reach.
func RequireAuthor(next http.HandlerFunc) http.HandlerFunc {
	return RequireUser(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromContext(r.Context())
		if !config.AppConfig.Features.Editor.Enabled || !config.AppConfig.IsAuthor(u.Username) {
			if view.IsHTMX(r) {
				view.Toast(w, view.ToastError, config.ErrNotAuthor)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			http.Error(w, config.ErrNotAuthor, http.StatusForbidden)
			return
		}
		next(w, r)
	})
}
