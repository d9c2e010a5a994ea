package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
)

type userContextKey struct{}

// UserFrom returns the authenticated user injected by the Auth middleware.
func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

// WithUser injects a user into the context. Exposed for handler tests.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// Auth creates a middleware that resolves the session token to a user. The
// token comes from the Authorization Bearer header or the token cookie.
// Unauthenticated requests are rejected except for the health endpoint.
func Auth(users domain.UserStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}

			user, err := users.UserByToken(ctx, token)
			if err != nil {
				observability.FromContext(ctx).Warn("token resolution failed", zap.Error(err))
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}

			ctx = observability.WithUserID(ctx, user.UserID)
			ctx = WithUser(ctx, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}
