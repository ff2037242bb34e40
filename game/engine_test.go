package game

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestEngine(t *testing.T) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	e := NewEngine(Config{
		TickRate:      60,
		MaxScore:      3,
		FinishedGrace: time.Minute,
		IdleTimeout:   10 * time.Minute,
	}, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.nudge = noNudge
	return e, clock
}

var (
	alice = Player{ID: 1, Name: "alice"}
	bob   = Player{ID: 2, Name: "bob"}
)

func mustCreate(t *testing.T, e *Engine, id string) string {
	t.Helper()
	got, ok := e.Create(id, alice, bob)
	if !ok {
		t.Fatalf("Create(%q) rejected", id)
	}
	return got
}

// forceScore puts the ball across the left boundary with side B one point from winning.
func forceScore(t *testing.T, e *Engine, id string, scoreB int) {
	t.Helper()
	m, ok := e.get(id)
	if !ok {
		t.Fatalf("match %s not found", id)
	}
	m.mu.Lock()
	m.state.PaddleB.Score = scoreB
	m.state.Ball.X = 0
	m.state.Ball.VX = -ServeSpeed
	m.mu.Unlock()
}

func TestCreateRejectsDuplicateAndGeneratesIDs(t *testing.T) {
	e, _ := newTestEngine(t)

	mustCreate(t, e, "m1")
	if _, ok := e.Create("m1", alice, bob); ok {
		t.Fatalf("duplicate id accepted")
	}
	generated := mustCreate(t, e, "")
	if generated == "" || generated == "m1" {
		t.Fatalf("unexpected generated id %q", generated)
	}
	if e.Count() != 2 {
		t.Fatalf("count = %d, want 2", e.Count())
	}

	snap, _ := e.Snapshot("m1")
	if snap.Status != StatusWaiting {
		t.Fatalf("status = %q, want waiting", snap.Status)
	}
	if snap.Players[0].Connected || snap.Players[1].Connected {
		t.Fatalf("players must start disconnected")
	}
}

func TestStartOnlyFromWaiting(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")

	if !e.Start(id) {
		t.Fatalf("first Start failed")
	}
	if e.Start(id) {
		t.Fatalf("second Start must be rejected")
	}
	if e.Start("missing") {
		t.Fatalf("Start on unknown match must be rejected")
	}
	e.Cancel(id)
}

func TestTickerAdvancesBall(t *testing.T) {
	e, clock := newTestEngine(t)
	id := mustCreate(t, e, "m1")
	e.Start(id)
	defer e.Cancel(id)

	before, _ := e.Snapshot(id)
	clock.Advance(e.TickInterval())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, _ := e.Snapshot(id)
		if snap.Ball.X != before.Ball.X {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ball did not move after a tick")
}

func TestTickFinishesAtMaxScore(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")
	e.Start(id)

	forceScore(t, e, id, 2)
	if !e.Tick(id) {
		t.Fatalf("Tick on playing match returned false")
	}

	snap, _ := e.Snapshot(id)
	if snap.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", snap.Status)
	}
	if snap.WinnerSide != SideB || snap.PaddleB.Score != 3 {
		t.Fatalf("winner=%q scoreB=%d, want B/3", snap.WinnerSide, snap.PaddleB.Score)
	}
	if e.Tick(id) {
		t.Fatalf("Tick on finished match must be a no-op")
	}
}

func TestDrainFinishedReportsOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")
	e.Start(id)
	forceScore(t, e, id, 2)
	e.Tick(id)
	e.End(id)

	drained := e.DrainFinished()
	if len(drained) != 1 {
		t.Fatalf("drained %d matches, want 1", len(drained))
	}
	sum := drained[0].Summary
	if sum.WinnerID != bob.ID || sum.WinnerName != "bob" || sum.ScoreB != 3 || sum.ScoreA != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(e.DrainFinished()) != 0 {
		t.Fatalf("second drain must be empty")
	}
}

func TestCancelEmitsNoSummary(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")
	e.Start(id)

	if !e.Cancel(id) {
		t.Fatalf("Cancel failed")
	}
	if e.Cancel(id) {
		t.Fatalf("second Cancel must report false")
	}
	if len(e.DrainFinished()) != 0 {
		t.Fatalf("cancelled match must not be drained")
	}
	if _, ok := e.Snapshot(id); ok {
		t.Fatalf("cancelled match must be gone")
	}
}

func TestResetForRematch(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")

	if e.ResetForRematch(id) {
		t.Fatalf("rematch before finish must be rejected")
	}
	e.Start(id)
	forceScore(t, e, id, 2)
	e.Tick(id)
	e.DrainFinished()

	if !e.ResetForRematch(id) {
		t.Fatalf("rematch after finish rejected")
	}
	snap, _ := e.Snapshot(id)
	if snap.Status != StatusWaiting || snap.PaddleA.Score != 0 || snap.PaddleB.Score != 0 || snap.WinnerSide != SideNone {
		t.Fatalf("rematch did not reset state: %+v", snap)
	}

	e.Start(id)
	forceScore(t, e, id, 2)
	e.Tick(id)
	if len(e.DrainFinished()) != 1 {
		t.Fatalf("rematch finish must be drained again")
	}
}

func TestRematchWaitsForDrain(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")
	e.Start(id)
	forceScore(t, e, id, 2)
	e.Tick(id)

	if e.ResetForRematch(id) {
		t.Fatalf("rematch accepted before the finish was drained")
	}
	if e.Start(id) {
		t.Fatalf("finished match restarted")
	}
	drained := e.DrainFinished()
	if len(drained) != 1 || drained[0].MatchID != id || drained[0].Summary.ScoreB != 3 {
		t.Fatalf("drained %+v, want the finished match with score 3", drained)
	}
	if !e.ResetForRematch(id) {
		t.Fatalf("rematch after drain rejected")
	}
}

func TestApplyInput(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")

	if e.ApplyInput(id, alice.ID, ActionUp) {
		t.Fatalf("input on waiting match must be rejected")
	}
	e.Start(id)
	defer e.Cancel(id)

	if e.ApplyInput(id, 99, ActionUp) {
		t.Fatalf("input from a stranger must be rejected")
	}
	if !e.ApplyInput(id, bob.ID, ActionDown) {
		t.Fatalf("input from player B rejected")
	}
	m, _ := e.get(id)
	m.mu.Lock()
	vy := m.state.PaddleB.VY
	m.mu.Unlock()
	if vy != PaddleSpeed {
		t.Fatalf("paddle B VY = %v, want %v", vy, PaddleSpeed)
	}
}

func TestSetConnectedKeepsStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	id := mustCreate(t, e, "m1")
	e.Start(id)
	defer e.Cancel(id)

	e.SetConnected(id, alice.ID, true)
	if !e.SetConnected(id, alice.ID, false) {
		t.Fatalf("SetConnected rejected a known player")
	}
	snap, _ := e.Snapshot(id)
	if snap.Status != StatusPlaying {
		t.Fatalf("status = %q, want playing", snap.Status)
	}
	if snap.Players[0].Connected {
		t.Fatalf("player A still connected")
	}
	if e.SetConnected(id, 42, true) {
		t.Fatalf("SetConnected accepted an unknown player")
	}
}

func TestCleanupHonoursGraceAndIdleWindows(t *testing.T) {
	e, clock := newTestEngine(t)

	finished := mustCreate(t, e, "finished")
	e.Start(finished)
	forceScore(t, e, finished, 2)
	e.Tick(finished)

	idle := mustCreate(t, e, "idle")

	clock.Advance(30 * time.Second)
	if n := len(e.Cleanup()); n != 0 {
		t.Fatalf("cleanup removed %d matches inside the grace window", n)
	}

	clock.Advance(time.Minute)
	if n := len(e.Cleanup()); n != 0 {
		t.Fatalf("undrained finished match must survive cleanup, removed %d", n)
	}
	e.DrainFinished()
	if got := e.Cleanup(); len(got) != 1 || got[0].MatchID != finished || got[0].Status != StatusFinished {
		t.Fatalf("cleanup removed %+v, want the drained finished match", got)
	}

	clock.Advance(10 * time.Minute)
	got := e.Cleanup()
	if len(got) != 1 || got[0].MatchID != idle || got[0].Status != StatusWaiting {
		t.Fatalf("cleanup removed %+v, want the idle match", got)
	}
	if got[0].Players[0].ID != alice.ID || got[0].Players[1].ID != bob.ID {
		t.Fatalf("removed snapshot lost its players: %+v", got[0].Players)
	}
	if _, ok := e.Snapshot(idle); ok {
		t.Fatalf("idle match still present")
	}
}

func TestPlayingSnapshotsOnlyListsPlaying(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreate(t, e, "waiting")
	playing := mustCreate(t, e, "playing")
	e.Start(playing)
	defer e.Cancel(playing)

	snaps := e.PlayingSnapshots()
	if len(snaps) != 1 || snaps[0].MatchID != playing {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
}
