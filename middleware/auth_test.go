package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/pong-tournament/services"
)

func TestAuthenticate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	identities := services.NewIdentityResolver("secret", clockwork.NewRealClock(), logger)
	token, err := identities.Issue(services.Identity{UserID: 7, Alias: "trinity"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen services.Identity
	handler := Authenticate(identities, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetIdentityFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tournaments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen.UserID != 7 || seen.Alias != "trinity" {
		t.Fatalf("identity in context = %+v", seen)
	}
}

func TestTokenFromRequestFallsBackToQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	if got := TokenFromRequest(req); got != "abc" {
		t.Fatalf("token = %q", got)
	}
	req.Header.Set("Authorization", "Bearer header-token")
	if got := TokenFromRequest(req); got != "header-token" {
		t.Fatalf("token = %q", got)
	}
}
