package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeSession struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full || s.closed {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

func newTestHub() *Hub {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	return NewHub(clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func connect(t *testing.T, h *Hub, identity int64, alias, sessionID string) *fakeSession {
	t.Helper()
	s := &fakeSession{id: sessionID}
	first, err := h.Register(&Connection{Identity: identity, Alias: alias, Session: s})
	if err != nil || !first {
		t.Fatalf("Register(%d) = %v, %v", identity, first, err)
	}
	return s
}

func TestRegisterRejectsSecondSession(t *testing.T) {
	h := newTestHub()
	original := connect(t, h, 1, "alice", "s1")

	second := &fakeSession{id: "s2"}
	first, err := h.Register(&Connection{Identity: 1, Alias: "alice", Session: second})
	if !errors.Is(err, ErrIdentityAlreadyConnected) || first {
		t.Fatalf("second Register = %v, %v; want ErrIdentityAlreadyConnected", first, err)
	}

	if n := h.SendToIdentity(1, "ping", map[string]string{}); n != 1 {
		t.Fatalf("SendToIdentity reached %d sessions, want 1", n)
	}
	if got := original.types(); len(got) != 1 || got[0] != "ping" {
		t.Fatalf("original session frames = %v", got)
	}
	if len(second.types()) != 0 {
		t.Fatalf("rejected session received frames")
	}
}

func TestUnregisterOnlyOwnSession(t *testing.T) {
	h := newTestHub()
	connect(t, h, 1, "alice", "s1")

	if h.Unregister(1, "other") {
		t.Fatalf("Unregister with a stale session id must not remove the live one")
	}
	if !h.IsOnline(1) {
		t.Fatalf("identity went offline")
	}
	if !h.Unregister(1, "s1") {
		t.Fatalf("Unregister of the live session reported false")
	}
	if h.IsOnline(1) {
		t.Fatalf("identity still online")
	}
	connect(t, h, 1, "alice", "s3")
}

func TestBroadcastExcept(t *testing.T) {
	h := newTestHub()
	a := connect(t, h, 1, "alice", "s1")
	b := connect(t, h, 2, "bob", "s2")
	c := connect(t, h, 3, "carol", "s3")
	c.full = true

	if n := h.BroadcastExcept(1, "presence", map[string]int{"online": 3}); n != 1 {
		t.Fatalf("BroadcastExcept reached %d, want 1", n)
	}
	if len(a.types()) != 0 || len(b.types()) != 1 {
		t.Fatalf("unexpected fan-out a=%v b=%v", a.types(), b.types())
	}
	if n := h.BroadcastAll("presence", nil); n != 2 {
		t.Fatalf("BroadcastAll reached %d, want 2", n)
	}
}

func TestCurrentMatchPointer(t *testing.T) {
	h := newTestHub()
	connect(t, h, 1, "alice", "s1")

	if !h.SetCurrentMatch(1, "m1") {
		t.Fatalf("SetCurrentMatch failed")
	}
	if h.ClearCurrentMatch(1, "m2") {
		t.Fatalf("clearing a different match must not touch the pointer")
	}
	if id, ok := h.CurrentMatch(1); !ok || id != "m1" {
		t.Fatalf("CurrentMatch = %q, %v", id, ok)
	}
	if !h.ClearCurrentMatch(1, "m1") {
		t.Fatalf("ClearCurrentMatch failed")
	}
	if _, ok := h.CurrentMatch(1); ok {
		t.Fatalf("pointer not cleared")
	}
	if alias, _ := h.Alias(1); alias != "alice" {
		t.Fatalf("alias = %q", alias)
	}
}
