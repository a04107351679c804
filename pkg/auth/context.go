package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mahaj/duochat/pkg/model"
)

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFrom(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userKey).(model.User)
	return u, ok
}

// Middleware rejects requests without a valid token and stores the caller in
// the request context.
func (i *Issuer) Middleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := i.Authenticate(r)
		if err != nil {
			log.Debug("Rejected request", "path", r.URL.Path, "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
	})
}
