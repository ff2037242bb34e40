package routes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/pong-tournament/game"
	"github.com/Dosada05/pong-tournament/handlers"
	"github.com/Dosada05/pong-tournament/models"
	"github.com/Dosada05/pong-tournament/protocol"
	"github.com/Dosada05/pong-tournament/realtime"
	"github.com/Dosada05/pong-tournament/repositories"
	"github.com/Dosada05/pong-tournament/services"
)

type nopSink struct{}

func (nopSink) RecordGame(context.Context, models.GameRecord) error { return nil }
func (nopSink) RecordTournamentMatch(context.Context, repositories.TournamentMatchResult) error {
	return nil
}
func (nopSink) RecordTournamentResult(context.Context, int, string, int) error { return nil }

type fakeStats struct{}

func (fakeStats) GetUserStats(_ context.Context, userID int64) (*models.UserStats, error) {
	return &models.UserStats{UserID: userID, GamesPlayed: 2, GamesWon: 1, GamesLost: 1}, nil
}

func (fakeStats) GetTournamentResults(_ context.Context, tournamentID int) ([]*models.TournamentResult, error) {
	if tournamentID != 1 {
		return nil, services.ErrTournamentNotFound
	}
	return []*models.TournamentResult{{TournamentID: 1, Alias: "alice", FinalPosition: 1}}, nil
}

type testServer struct {
	srv        *httptest.Server
	hub        *realtime.Hub
	identities services.IdentityResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	hub := realtime.NewHub(clock, logger)
	engine := game.NewEngine(game.Config{TickRate: 60, MaxScore: 1}, clock, logger)
	identities := services.NewIdentityResolver("test-secret", clock, logger)
	games := services.NewMatchService(engine, hub, nopSink{}, time.Second, logger)
	tournaments := services.NewTournamentService(services.TournamentConfig{Size: 4}, services.TournamentDeps{
		Launcher:   games,
		Notifier:   hub,
		Directory:  services.NewParticipantDirectory(),
		Identities: identities,
		Locker:     services.NewMemoryLocker(),
		Sink:       nopSink{},
		Clock:      clock,
		Logger:     logger,
	})
	games.AttachTournaments(tournaments)
	dispatcher := services.NewDispatcher(hub, games, tournaments, identities, logger)

	router := chi.NewRouter()
	SetupRoutes(router, identities, []string{"*"},
		handlers.NewHealthHandler(nil, hub),
		handlers.NewTournamentHandler(tournaments),
		handlers.NewStatsHandler(fakeStats{}),
		handlers.NewWebSocketHandler(hub, dispatcher, identities, []string{"*"}, logger),
		logger)

	ts := &testServer{srv: httptest.NewServer(router), hub: hub, identities: identities}
	t.Cleanup(ts.srv.Close)
	return ts
}

func (s *testServer) token(t *testing.T, id services.Identity) string {
	t.Helper()
	tok, err := s.identities.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("Issue(%s): %v", id.Alias, err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func decodeTournament(t *testing.T, body map[string]json.RawMessage) models.Tournament {
	t.Helper()
	var tour models.Tournament
	if err := json.Unmarshal(body["tournament"], &tour); err != nil {
		t.Fatalf("decode tournament: %v (body %v)", err, body)
	}
	return tour
}

var (
	alice = services.Identity{UserID: 1, Alias: "alice"}
	bob   = services.Identity{UserID: 2, Alias: "bob"}
	carol = services.Identity{UserID: 3, Alias: "carol"}
	dave  = services.Identity{UserID: 4, Alias: "dave"}
	erin  = services.Identity{UserID: 5, Alias: "erin"}
)

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/healthz", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if string(body["status"]) != `"ok"` {
		t.Fatalf("body = %v", body)
	}
}

func TestTournamentRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"list is public", http.MethodGet, "/tournaments", "", http.StatusOK},
		{"create without token", http.MethodPost, "/tournaments", "", http.StatusUnauthorized},
		{"join without token", http.MethodPost, "/tournaments/1/join", "", http.StatusUnauthorized},
		{"garbage token", http.MethodPost, "/tournaments/1/start", "not-a-jwt", http.StatusUnauthorized},
		{"unknown tournament", http.MethodGet, "/tournaments/42", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/tournaments/abc", "", http.StatusBadRequest},
		{"results are public", http.MethodGet, "/tournaments/1/results", "", http.StatusOK},
		{"results of unknown tournament", http.MethodGet, "/tournaments/9/results", "", http.StatusNotFound},
		{"user stats are public", http.MethodGet, "/users/3/stats", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, tt.method, tt.path, tt.token, "")
			if status != tt.want {
				t.Fatalf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestTournamentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, alice)

	status, body := s.do(t, http.MethodPost, "/tournaments", owner, `{"name":"Friday cup"}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", status, body)
	}
	tour := decodeTournament(t, body)
	if tour.OwnerAlias != "alice" || len(tour.Participants) != 1 {
		t.Fatalf("created tournament = %+v", tour)
	}
	base := "/tournaments/" + jsonInt(tour.ID)

	if status, _ := s.do(t, http.MethodPost, base+"/start", owner, ""); status != http.StatusConflict {
		t.Fatalf("start with one player: status = %d, want 409", status)
	}

	for _, id := range []services.Identity{bob, carol, dave} {
		if status, body := s.do(t, http.MethodPost, base+"/join", s.token(t, id), ""); status != http.StatusOK {
			t.Fatalf("join %s: status = %d, body %v", id.Alias, status, body)
		}
	}
	if status, _ := s.do(t, http.MethodPost, base+"/join", s.token(t, erin), ""); status != http.StatusConflict {
		t.Fatalf("join full tournament: status = %d, want 409", status)
	}
	if status, _ := s.do(t, http.MethodPost, base+"/start", s.token(t, bob), ""); status != http.StatusForbidden {
		t.Fatalf("start by non-owner: status = %d, want 403", status)
	}

	status, body = s.do(t, http.MethodPost, base+"/start", owner, "")
	if status != http.StatusOK {
		t.Fatalf("start status = %d, body %v", status, body)
	}
	tour = decodeTournament(t, body)
	if tour.Status != models.TournamentStatusActive || tour.CurrentRound != 1 || len(tour.Matches) != 2 {
		t.Fatalf("started tournament = %+v", tour)
	}

	status, body = s.do(t, http.MethodPost, base+"/forfeit", s.token(t, bob), `{"reason":"forfeit"}`)
	if status != http.StatusOK {
		t.Fatalf("forfeit status = %d, body %v", status, body)
	}
	if status, _ := s.do(t, http.MethodPost, base+"/forfeit", s.token(t, bob), ""); status != http.StatusConflict {
		t.Fatalf("second forfeit: status = %d, want 409", status)
	}
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func wsURL(s *testServer, token string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + token
}

func dial(t *testing.T, s *testServer, id services.Identity) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(s, s.token(t, id)), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", id.Alias, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitOnline ждёт, пока обработчик зарегистрирует сессию в хабе.
func waitOnline(t *testing.T, s *testServer, id int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !s.hub.IsOnline(id) {
		if time.Now().After(deadline) {
			t.Fatalf("identity %d never came online", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
	return msg
}

func TestWebSocketRejectsSecondSession(t *testing.T) {
	s := newTestServer(t)
	first := dial(t, s, alice)
	waitOnline(t, s, alice.UserID)

	second := dial(t, s, alice)
	msg := readFrame(t, second)
	if msg.Type != protocol.MsgError {
		t.Fatalf("frame type = %q, want error", msg.Type)
	}
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Reason != protocol.ReasonSessionExists {
		t.Fatalf("reason = %q, want %q", payload.Reason, protocol.ReasonSessionExists)
	}

	// Первая сессия продолжает работать.
	if !s.hub.IsOnline(alice.UserID) {
		t.Fatalf("first session was dropped")
	}
	if err := first.WriteMessage(websocket.TextMessage, []byte(`{"type":"game:join","data":{"matchId":"missing"}}`)); err != nil {
		t.Fatalf("write on first session: %v", err)
	}
	if msg := readFrame(t, first); msg.Type != protocol.MsgError {
		t.Fatalf("first session reply = %q, want error", msg.Type)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	s := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.srv.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatalf("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}
}

func TestWebSocketCasualGame(t *testing.T) {
	s := newTestServer(t)
	a := dial(t, s, alice)
	b := dial(t, s, bob)
	waitOnline(t, s, alice.UserID)
	waitOnline(t, s, bob.UserID)

	create := `{"type":"game:create","data":{"opponentId":2,"opponentName":"bob"}}`
	if err := a.WriteMessage(websocket.TextMessage, []byte(create)); err != nil {
		t.Fatalf("write create: %v", err)
	}
	if msg := readFrame(t, a); msg.Type != protocol.MsgGameStarted {
		t.Fatalf("creator got %q, want %q", msg.Type, protocol.MsgGameStarted)
	}
	if msg := readFrame(t, b); msg.Type != protocol.MsgGameStarted {
		t.Fatalf("opponent got %q, want %q", msg.Type, protocol.MsgGameStarted)
	}
	if _, ok := s.hub.CurrentMatch(alice.UserID); !ok {
		t.Fatalf("creator has no current match")
	}

	// Отключение создателя уведомляет соперника.
	a.Close()
	if msg := readFrame(t, b); msg.Type != protocol.MsgGamePlayerDisconnected {
		t.Fatalf("opponent got %q, want %q", msg.Type, protocol.MsgGamePlayerDisconnected)
	}
}
