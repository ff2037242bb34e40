package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/pong-tournament/middleware"
	"github.com/Dosada05/pong-tournament/protocol"
	"github.com/Dosada05/pong-tournament/realtime"
	"github.com/Dosada05/pong-tournament/services"
)

type WebSocketHandler struct {
	hub        *realtime.Hub
	dispatcher *services.Dispatcher
	identities services.IdentityResolver
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, dispatcher *services.Dispatcher, identities services.IdentityResolver,
	allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
		identities: identities,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// originChecker разрешает все источники, если в списке есть "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeWs обрабатывает GET /ws?token=<jwt>. Токен проверяется до апгрейда.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		unauthorizedResponse(w, r, "token is required")
		return
	}
	caller, err := h.identities.Resolve(token)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту HTTP-ошибкой
		h.logger.Warn("websocket upgrade failed", slog.Int64("user_id", caller.UserID), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(conn, h.logger)
	if _, err := h.hub.Register(&realtime.Connection{
		Identity: caller.UserID,
		Alias:    caller.Alias,
		Guest:    caller.Guest,
		Session:  client,
	}); err != nil {
		reject(conn, h.hub.Encode(protocol.MsgError, protocol.ErrorPayload{
			Reason:  services.ErrorReason(err),
			Message: err.Error(),
		}))
		return
	}

	go client.WritePump()

	// Контекст запроса отменяется после апгрейда, поэтому команды получают свой.
	ctx := context.WithoutCancel(r.Context())
	client.ReadPump(func(frame []byte) {
		for _, reply := range h.dispatcher.Dispatch(ctx, caller, frame) {
			client.Send(h.hub.Encode(reply.Type, reply.Data))
		}
	})
	h.dispatcher.Disconnect(ctx, caller, client.ID())
}

// reject отправляет ошибку и закрывает соединение, которое так и не попало в хаб.
func reject(conn *websocket.Conn, frame []byte) {
	deadline := time.Now().Add(time.Second)
	conn.SetWriteDeadline(deadline)
	conn.WriteMessage(websocket.TextMessage, frame)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, protocol.ReasonSessionExists), deadline)
	conn.Close()
}
