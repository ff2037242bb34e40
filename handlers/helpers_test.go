package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Dosada05/pong-tournament/services"
)

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrTournamentNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", services.ErrMatchNotFound), http.StatusNotFound},
		{services.ErrInvalidToken, http.StatusUnauthorized},
		{services.ErrNotTournamentOwner, http.StatusForbidden},
		{services.ErrNotParticipant, http.StatusForbidden},
		{services.ErrNotGamePlayer, http.StatusForbidden},
		{services.ErrOpponentOffline, http.StatusNotFound},
		{fmt.Errorf("%w: name is required", services.ErrValidationFailed), http.StatusBadRequest},
		{services.ErrGuestAliasTaken, http.StatusConflict},
		{services.ErrTournamentFull, http.StatusConflict},
		{services.ErrAlreadyJoined, http.StatusConflict},
		{services.ErrIllegalState, http.StatusConflict},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/tournaments/1/start", nil)
			mapServiceErrorToHTTP(rec, req, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("body %q has no error field", rec.Body.String())
			}
		})
	}
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name":"cup"}`, ""},
		{"empty", ``, "body must not be empty"},
		{"unknown field", `{"title":"cup"}`, "unknown key"},
		{"two values", `{"name":"a"}{"name":"b"}`, "single JSON value"},
		{"wrong type", `{"name":5}`, "incorrect JSON type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst createTournamentInput
			err := readJSON(rec, req, &dst)
			if tt.wantErr == "" {
				if err != nil || dst.Name != "cup" {
					t.Fatalf("readJSON = %v, dst %+v", err, dst)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("readJSON err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"listed", []string{"https://pong.example"}, "https://pong.example", true},
		{"unlisted", []string{"https://pong.example"}, "https://evil.example", false},
		{"no origin header", []string{"https://pong.example"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Fatalf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}
