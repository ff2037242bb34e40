package realtime

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/pong-tournament/protocol"
)

var ErrIdentityAlreadyConnected = errors.New("identity already has an active session")

// Session is one live transport to a client.
type Session interface {
	ID() string
	// Send queues a frame without blocking. It reports false when the frame was dropped.
	Send(frame []byte) bool
	Close()
}

// Connection binds a session to an authenticated identity.
type Connection struct {
	Identity int64
	Alias    string
	Guest    bool
	Session  Session

	currentMatchID string
}

// Hub is the connection registry. An identity holds at most one accepted session.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]*Connection

	clock  clockwork.Clock
	logger *slog.Logger
}

func NewHub(clock clockwork.Clock, logger *slog.Logger) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[int64]*Connection),
		clock:  clock,
		logger: logger,
	}
}

// Register accepts conn unless its identity already has a live session. The existing
// session is never touched.
func (h *Hub) Register(conn *Connection) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.conns[conn.Identity]; exists {
		h.logger.Warn("second session rejected", slog.Int64("user_id", conn.Identity),
			slog.String("session_id", conn.Session.ID()))
		return false, ErrIdentityAlreadyConnected
	}
	h.conns[conn.Identity] = conn
	h.logger.Info("session registered", slog.Int64("user_id", conn.Identity),
		slog.String("alias", conn.Alias), slog.String("session_id", conn.Session.ID()))
	return true, nil
}

// Unregister removes the session and reports whether the identity went offline.
func (h *Hub) Unregister(identity int64, sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[identity]
	if !ok || conn.Session.ID() != sessionID {
		return false
	}
	delete(h.conns, identity)
	h.logger.Info("session unregistered", slog.Int64("user_id", identity), slog.String("session_id", sessionID))
	return true
}

// Encode builds an outbound frame stamped with the hub clock. It returns nil on failure.
func (h *Hub) Encode(msgType string, data any) []byte {
	frame, err := protocol.Encode(msgType, data, h.clock.Now())
	if err != nil {
		h.logger.Error("failed to encode frame", slog.String("type", msgType), slog.Any("error", err))
		return nil
	}
	return frame
}

// SendToIdentity pushes one frame to every session of identity and returns how many
// sessions accepted it.
func (h *Hub) SendToIdentity(identity int64, msgType string, data any) int {
	h.mu.RLock()
	conn, ok := h.conns[identity]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	frame := h.Encode(msgType, data)
	if frame == nil {
		return 0
	}
	if !conn.Session.Send(frame) {
		h.logger.Warn("send buffer full, frame dropped", slog.Int64("user_id", identity), slog.String("type", msgType))
		return 0
	}
	return 1
}

func (h *Hub) BroadcastAll(msgType string, data any) int {
	return h.broadcast(msgType, data, func(int64) bool { return true })
}

func (h *Hub) BroadcastExcept(except int64, msgType string, data any) int {
	return h.broadcast(msgType, data, func(id int64) bool { return id != except })
}

func (h *Hub) broadcast(msgType string, data any, include func(int64) bool) int {
	frame := h.Encode(msgType, data)
	if frame == nil {
		return 0
	}
	h.mu.RLock()
	targets := make([]Session, 0, len(h.conns))
	for id, conn := range h.conns {
		if include(id) {
			targets = append(targets, conn.Session)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if s.Send(frame) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SetCurrentMatch(identity int64, matchID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[identity]
	if !ok {
		return false
	}
	conn.currentMatchID = matchID
	return true
}

// ClearCurrentMatch clears the pointer only if it still refers to matchID.
func (h *Hub) ClearCurrentMatch(identity int64, matchID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[identity]
	if !ok || conn.currentMatchID != matchID {
		return false
	}
	conn.currentMatchID = ""
	return true
}

func (h *Hub) CurrentMatch(identity int64) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[identity]
	if !ok || conn.currentMatchID == "" {
		return "", false
	}
	return conn.currentMatchID, true
}

func (h *Hub) IsOnline(identity int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[identity]
	return ok
}

func (h *Hub) Alias(identity int64) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[identity]
	if !ok {
		return "", false
	}
	return conn.Alias, true
}

// IsGuest reports whether the online identity authenticated as a guest.
func (h *Hub) IsGuest(identity int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[identity]
	return ok && conn.Guest
}

// Count returns the number of online identities.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
