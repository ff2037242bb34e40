package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Dosada05/pong-tournament/services"
)

type contextKey string

const identityContextKey contextKey = "identity"

func WithIdentity(ctx context.Context, id services.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func GetIdentityFromContext(ctx context.Context) (services.Identity, error) {
	id, ok := ctx.Value(identityContextKey).(services.Identity)
	if !ok {
		return services.Identity{}, errors.New("identity not found in context")
	}
	return id, nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// TokenFromRequest prefers the Authorization header and falls back to the token query
// parameter, which browsers need for websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}
