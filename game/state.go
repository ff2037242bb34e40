package game

import "time"

// Playfield geometry in abstract units. Velocities are units per ideal tick.
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 10.0
	PaddleHeight = 100.0
	PaddleMargin = 20.0
	PaddleSpeed  = 6.0

	BallRadius = 8.0
	ServeSpeed = 5.0
	// ServeNudge bounds the random vertical component of a serve.
	ServeNudge = 2.0
	// SpinFactor is the vertical speed given to a ball hitting a paddle edge.
	SpinFactor = 5.0

	DefaultMaxScore = 5
	// MaxTickFactor caps how many ideal ticks a single late tick may integrate.
	MaxTickFactor = 3.0
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

type Action string

const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
	ActionStop Action = "stop"
)

// ParseAction validates a client-supplied paddle action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionUp, ActionDown, ActionStop:
		return a, true
	}
	return "", false
}

type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`
}

type Paddle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	VY     float64 `json:"vy"`
	Score  int     `json:"score"`
}

func (p *Paddle) centerY() float64 {
	return p.Y + p.Height/2
}

// Player occupies one side of a match.
type Player struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Guest     bool   `json:"guest"`
	Connected bool   `json:"connected"`
}

// MatchState is the authoritative state of one match. It is only mutated by the Engine
// while holding the owning match lock.
type MatchState struct {
	ID               string
	Ball             Ball
	PaddleA          Paddle
	PaddleB          Paddle
	Status           Status
	Players          [2]Player
	MaxScore         int
	CreatedAt        time.Time
	LastUpdateAt     time.Time
	LastActivityAt   time.Time
	FinishedAt       *time.Time
	WinnerSide       Side
	FinishedNotified bool
}

func newMatchState(id string, a, b Player, maxScore int, now time.Time) *MatchState {
	a.Connected = false
	b.Connected = false
	s := &MatchState{
		ID:             id,
		Players:        [2]Player{a, b},
		MaxScore:       maxScore,
		Status:         StatusWaiting,
		CreatedAt:      now,
		LastUpdateAt:   now,
		LastActivityAt: now,
	}
	s.resetPaddles()
	s.Ball = Ball{
		X:      FieldWidth / 2,
		Y:      FieldHeight / 2,
		VX:     ServeSpeed,
		VY:     ServeSpeed / 5,
		Radius: BallRadius,
	}
	return s
}

func (s *MatchState) resetPaddles() {
	y := (FieldHeight - PaddleHeight) / 2
	s.PaddleA = Paddle{X: PaddleMargin, Y: y, Width: PaddleWidth, Height: PaddleHeight}
	s.PaddleB = Paddle{X: FieldWidth - PaddleMargin - PaddleWidth, Y: y, Width: PaddleWidth, Height: PaddleHeight}
}

// sideOf returns which paddle belongs to playerID.
func (s *MatchState) sideOf(playerID int64) Side {
	switch playerID {
	case s.Players[0].ID:
		return SideA
	case s.Players[1].ID:
		return SideB
	}
	return SideNone
}

func (s *MatchState) paddle(side Side) *Paddle {
	if side == SideA {
		return &s.PaddleA
	}
	return &s.PaddleB
}

// Snapshot is the wire view of a match.
type Snapshot struct {
	MatchID    string    `json:"matchId"`
	Status     Status    `json:"status"`
	Ball       Ball      `json:"ball"`
	PaddleA    Paddle    `json:"paddleA"`
	PaddleB    Paddle    `json:"paddleB"`
	Players    [2]Player `json:"players"`
	MaxScore   int       `json:"maxScore"`
	WinnerSide Side      `json:"winnerSide,omitempty"`
}

func (s *MatchState) snapshot() Snapshot {
	return Snapshot{
		MatchID:    s.ID,
		Status:     s.Status,
		Ball:       s.Ball,
		PaddleA:    s.PaddleA,
		PaddleB:    s.PaddleB,
		Players:    s.Players,
		MaxScore:   s.MaxScore,
		WinnerSide: s.WinnerSide,
	}
}

// Summary describes the outcome of a finished match.
type Summary struct {
	WinnerSide Side      `json:"winnerSide"`
	WinnerID   int64     `json:"winnerId"`
	WinnerName string    `json:"winnerName"`
	ScoreA     int       `json:"scoreA"`
	ScoreB     int       `json:"scoreB"`
	Players    [2]Player `json:"players"`
	FinishedAt time.Time `json:"finishedAt"`
}

// FinishedMatch is one drained terminal match.
type FinishedMatch struct {
	MatchID string
	State   Snapshot
	Summary Summary
}

func (s *MatchState) summary() Summary {
	sum := Summary{
		WinnerSide: s.WinnerSide,
		ScoreA:     s.PaddleA.Score,
		ScoreB:     s.PaddleB.Score,
		Players:    s.Players,
	}
	if s.FinishedAt != nil {
		sum.FinishedAt = *s.FinishedAt
	}
	switch s.WinnerSide {
	case SideA:
		sum.WinnerID, sum.WinnerName = s.Players[0].ID, s.Players[0].Name
	case SideB:
		sum.WinnerID, sum.WinnerName = s.Players[1].ID, s.Players[1].Name
	}
	return sum
}
