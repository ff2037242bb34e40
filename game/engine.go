package game

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	TickRate      int
	MaxScore      int
	FinishedGrace time.Duration
	IdleTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = 60
	}
	if c.MaxScore <= 0 {
		c.MaxScore = DefaultMaxScore
	}
	if c.FinishedGrace <= 0 {
		c.FinishedGrace = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return c
}

type match struct {
	mu    sync.Mutex
	state *MatchState
	stop  chan struct{}
}

// Engine owns every live match. Matches are independent: each one has its own lock and
// its own tick timer, the registry map is only locked to look entries up.
type Engine struct {
	cfg    Config
	ideal  time.Duration
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	matches map[string]*match

	queueMu  sync.Mutex
	finished []string

	nudge func() float64
}

func NewEngine(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		ideal:   time.Second / time.Duration(cfg.TickRate),
		clock:   clock,
		logger:  logger,
		matches: make(map[string]*match),
		nudge: func() float64 {
			return (rand.Float64()*2 - 1) * ServeNudge
		},
	}
}

// TickInterval is the ideal duration between two physics ticks.
func (e *Engine) TickInterval() time.Duration {
	return e.ideal
}

func (e *Engine) get(id string) (*match, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.matches[id]
	return m, ok
}

// Create allocates a waiting match. An empty id is replaced by a generated one; an id that
// is already in use is rejected.
func (e *Engine) Create(id string, a, b Player) (string, bool) {
	if id == "" {
		id = uuid.NewString()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.matches[id]; exists {
		return "", false
	}
	e.matches[id] = &match{state: newMatchState(id, a, b, e.cfg.MaxScore, e.clock.Now())}
	e.logger.Info("match created", slog.String("match_id", id),
		slog.Int64("player_a", a.ID), slog.Int64("player_b", b.ID))
	return id, true
}

// Start moves a waiting match to playing and registers its tick timer.
func (e *Engine) Start(id string) bool {
	m, ok := e.get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusWaiting {
		return false
	}
	now := e.clock.Now()
	m.state.Status = StatusPlaying
	m.state.LastUpdateAt = now
	m.state.LastActivityAt = now

	stop := make(chan struct{})
	m.stop = stop
	ticker := e.clock.NewTicker(e.ideal)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				e.Tick(id)
			}
		}
	}()
	e.logger.Info("match started", slog.String("match_id", id))
	return true
}

// Tick advances physics for a playing match. It reports whether the match advanced.
// A panic inside one match is logged and never reaches other matches.
func (e *Engine) Tick(id string) (advanced bool) {
	m, ok := e.get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick panicked", slog.String("match_id", id), slog.Any("panic", r))
			advanced = false
		}
	}()
	if m.state.Status != StatusPlaying {
		return false
	}

	now := e.clock.Now()
	factor := tickFactor(now.Sub(m.state.LastUpdateAt).Seconds(), e.ideal.Seconds())
	m.state.LastUpdateAt = now

	if scorer := advance(m.state, factor, e.nudge); scorer != SideNone {
		if m.state.PaddleA.Score >= m.state.MaxScore || m.state.PaddleB.Score >= m.state.MaxScore {
			finishedAt := now
			m.state.FinishedAt = &finishedAt
			m.state.WinnerSide = scorer
			e.endLocked(m)
		}
	}
	return true
}

// End finishes a match. Only the transition into finished enqueues it for draining.
func (e *Engine) End(id string) bool {
	m, ok := e.get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.endLocked(m)
	return true
}

func (e *Engine) endLocked(m *match) {
	e.stopTimer(m)
	if m.state.Status == StatusFinished {
		return
	}
	m.state.Status = StatusFinished
	if m.state.FinishedAt == nil {
		now := e.clock.Now()
		m.state.FinishedAt = &now
	}
	e.queueMu.Lock()
	e.finished = append(e.finished, m.state.ID)
	e.queueMu.Unlock()
	e.logger.Info("match finished", slog.String("match_id", m.state.ID),
		slog.Int("score_a", m.state.PaddleA.Score), slog.Int("score_b", m.state.PaddleB.Score),
		slog.String("winner_side", string(m.state.WinnerSide)))
}

func (e *Engine) stopTimer(m *match) {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// ResetForRematch returns a finished match to waiting with fresh scores. The caller must
// Start it again. A finish that has not been drained yet cannot be reset.
func (e *Engine) ResetForRematch(id string) bool {
	m, ok := e.get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusFinished || !m.state.FinishedNotified {
		return false
	}
	s := m.state
	s.resetPaddles()
	toward := SideA
	if rand.IntN(2) == 1 {
		toward = SideB
	}
	serve(&s.Ball, toward, e.nudge)
	s.FinishedAt = nil
	s.WinnerSide = SideNone
	s.FinishedNotified = false
	s.Status = StatusWaiting
	now := e.clock.Now()
	s.LastUpdateAt = now
	s.LastActivityAt = now
	return true
}

// ApplyInput sets the vertical velocity of the paddle owned by playerID.
func (e *Engine) ApplyInput(id string, playerID int64, action Action) bool {
	m, ok := e.get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusPlaying {
		return false
	}
	side := m.state.sideOf(playerID)
	if side == SideNone {
		return false
	}
	p := m.state.paddle(side)
	switch action {
	case ActionUp:
		p.VY = -PaddleSpeed
	case ActionDown:
		p.VY = PaddleSpeed
	case ActionStop:
		p.VY = 0
	default:
		return false
	}
	m.state.LastActivityAt = e.clock.Now()
	return true
}

// SetConnected updates a player's liveness flag. It never changes the match status.
func (e *Engine) SetConnected(id string, playerID int64, connected bool) bool {
	m, ok := e.get(id)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.state.Players {
		if m.state.Players[i].ID == playerID {
			m.state.Players[i].Connected = connected
			if connected {
				m.state.LastActivityAt = e.clock.Now()
			}
			return true
		}
	}
	return false
}

// DrainFinished pops every finished match that has not been reported yet. Each match is
// returned at most once per finish.
func (e *Engine) DrainFinished() []FinishedMatch {
	e.queueMu.Lock()
	ids := e.finished
	e.finished = nil
	e.queueMu.Unlock()

	var out []FinishedMatch
	for _, id := range ids {
		m, ok := e.get(id)
		if !ok {
			continue
		}
		m.mu.Lock()
		if m.state.Status == StatusFinished && !m.state.FinishedNotified {
			m.state.FinishedNotified = true
			out = append(out, FinishedMatch{
				MatchID: id,
				State:   m.state.snapshot(),
				Summary: m.state.summary(),
			})
		}
		m.mu.Unlock()
	}
	return out
}

// Cleanup removes finished matches past the rematch grace window and unfinished matches
// idle past the inactivity window. It returns the final snapshot of every removed match.
func (e *Engine) Cleanup() []Snapshot {
	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	var removed []Snapshot
	for id, m := range e.matches {
		m.mu.Lock()
		s := m.state
		var expired bool
		if s.Status == StatusFinished {
			expired = s.FinishedNotified && s.FinishedAt != nil && now.Sub(*s.FinishedAt) > e.cfg.FinishedGrace
		} else {
			expired = now.Sub(s.LastActivityAt) > e.cfg.IdleTimeout
		}
		if expired {
			e.stopTimer(m)
			delete(e.matches, id)
			removed = append(removed, s.snapshot())
			e.logger.Info("match removed by cleanup", slog.String("match_id", id), slog.String("status", string(s.Status)))
		}
		m.mu.Unlock()
	}
	return removed
}

// Cancel voids a match: it is removed without a summary.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	m, ok := e.matches[id]
	if ok {
		delete(e.matches, id)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	m.mu.Lock()
	e.stopTimer(m)
	m.mu.Unlock()
	e.logger.Info("match cancelled", slog.String("match_id", id))
	return true
}

// Snapshot returns the current wire view of a match.
func (e *Engine) Snapshot(id string) (Snapshot, bool) {
	m, ok := e.get(id)
	if !ok {
		return Snapshot{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot(), true
}

// PlayingSnapshots returns a snapshot of every match currently playing.
func (e *Engine) PlayingSnapshots() []Snapshot {
	e.mu.RLock()
	entries := make([]*match, 0, len(e.matches))
	for _, m := range e.matches {
		entries = append(entries, m)
	}
	e.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, m := range entries {
		m.mu.Lock()
		if m.state.Status == StatusPlaying {
			out = append(out, m.state.snapshot())
		}
		m.mu.Unlock()
	}
	return out
}

// Players returns both player slots of a match.
func (e *Engine) Players(id string) ([2]Player, bool) {
	m, ok := e.get(id)
	if !ok {
		return [2]Player{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Players, true
}

// Count returns the number of matches held by the engine.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.matches)
}

func (e *Engine) String() string {
	return fmt.Sprintf("game.Engine{matches: %d, tick: %s}", e.Count(), e.ideal)
}
