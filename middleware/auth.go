package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dosada05/pong-tournament/services"
)

// Authenticate resolves the Bearer token of the request into an identity and stores it in
// the request context.
func Authenticate(identities services.IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			id, err := identities.Resolve(token)
			if err != nil {
				logger.Debug("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				if errors.Is(err, services.ErrGuestAliasTaken) {
					http.Error(w, "Conflict", http.StatusConflict)
					return
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
