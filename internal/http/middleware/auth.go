package middleware

import (
	"context"
	"net/http"

	"github.com/briangreenhill/chatdeck/internal/dashboard"
)

type contextKey string

const UserKey contextKey = "user"

// WithUser stores the signed-in user on the context
func WithUser(ctx context.Context, u dashboard.User) context.Context {
	return context.WithValue(ctx, UserKey, u)
}

// UserFrom returns the signed-in user, if any
func UserFrom(ctx context.Context) (dashboard.User, bool) {
	u, ok := ctx.Value(UserKey).(dashboard.User)
	return u, ok && u.ID != ""
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"not signed in"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
