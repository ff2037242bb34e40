package models

import "time"

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusFinished  MatchStatus = "finished"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// TournamentMatch is one bracket slot. PlayerB is nil for a bye.
type TournamentMatch struct {
	ID            int         `json:"id" db:"id"`
	TournamentID  int         `json:"tournament_id" db:"tournament_id"`
	Round         int         `json:"round" db:"round"`
	PlayerA       string      `json:"player_a" db:"player_a"`
	PlayerB       *string     `json:"player_b,omitempty" db:"player_b"`
	Winner        *string     `json:"winner,omitempty" db:"winner"`
	Status        MatchStatus `json:"status" db:"status"`
	ReadyA        bool        `json:"ready_a" db:"ready_a"`
	ReadyB        bool        `json:"ready_b" db:"ready_b"`
	ReadyDeadline *time.Time  `json:"ready_deadline,omitempty" db:"ready_deadline"`
	ScoreA        int         `json:"score_a" db:"score_a"`
	ScoreB        int         `json:"score_b" db:"score_b"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty" db:"finished_at"`

	// FinishedSeq orders terminal matches inside a round; winners advance in this order.
	FinishedSeq int  `json:"-" db:"-"`
	Launched    bool `json:"launched" db:"-"`
}

// IsTerminal reports whether the match is finished or cancelled.
func (m *TournamentMatch) IsTerminal() bool {
	return m.Status == MatchStatusFinished || m.Status == MatchStatusCancelled
}

// IsBye reports whether the match has no opposing player.
func (m *TournamentMatch) IsBye() bool {
	return m.PlayerB == nil
}

// Involves reports whether alias plays in this match.
func (m *TournamentMatch) Involves(alias string) bool {
	return m.PlayerA == alias || (m.PlayerB != nil && *m.PlayerB == alias)
}

// Opponent returns the other participant of the match, if any.
func (m *TournamentMatch) Opponent(alias string) (string, bool) {
	switch {
	case m.PlayerA == alias && m.PlayerB != nil:
		return *m.PlayerB, true
	case m.PlayerB != nil && *m.PlayerB == alias:
		return m.PlayerA, true
	}
	return "", false
}

func (m TournamentMatch) Clone() TournamentMatch {
	cp := m
	cp.PlayerB = cloneString(m.PlayerB)
	cp.Winner = cloneString(m.Winner)
	cp.ReadyDeadline = cloneTime(m.ReadyDeadline)
	cp.FinishedAt = cloneTime(m.FinishedAt)
	return cp
}
