package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dosada05/pong-tournament/realtime"
)

// Pinger проверяет доступность базы данных.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db  Pinger
	hub *realtime.Hub
}

func NewHealthHandler(db Pinger, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// Healthz обрабатывает GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	resp := jsonResponse{"status": status, "sessions": h.hub.Count()}
	if err := writeJSON(w, code, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
