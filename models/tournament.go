package models

import "time"

// TournamentStatus представляет статусы турнира.
type TournamentStatus string

const (
	TournamentStatusWaiting   TournamentStatus = "waiting"
	TournamentStatusActive    TournamentStatus = "active"
	TournamentStatusFinished  TournamentStatus = "finished"
	TournamentStatusCancelled TournamentStatus = "cancelled"
)

// TournamentSize is the only bracket size the orchestrator runs.
const TournamentSize = 4

// Tournament представляет турнир на выбывание.
type Tournament struct {
	ID            int              `json:"id" db:"id"`
	Name          string           `json:"name" db:"name"`
	OwnerAlias    string           `json:"owner_alias" db:"owner_alias"`
	Status        TournamentStatus `json:"status" db:"status"`
	CurrentRound  int              `json:"current_round" db:"current_round"`
	ChampionAlias *string          `json:"champion_alias,omitempty" db:"champion_alias"`
	CancelReason  *string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty" db:"finished_at"`

	Participants []Participant     `json:"participants" db:"-"`
	Matches      []TournamentMatch `json:"matches,omitempty" db:"-"`
}

// IsTerminal reports whether the tournament can no longer change.
func (t *Tournament) IsTerminal() bool {
	return t.Status == TournamentStatusFinished || t.Status == TournamentStatusCancelled
}

// Participant returns the registered participant with the given alias.
func (t *Tournament) Participant(alias string) (*Participant, bool) {
	for i := range t.Participants {
		if t.Participants[i].Alias == alias {
			return &t.Participants[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy safe to hand out of the orchestrator.
func (t *Tournament) Clone() *Tournament {
	cp := *t
	cp.ChampionAlias = cloneString(t.ChampionAlias)
	cp.CancelReason = cloneString(t.CancelReason)
	cp.StartedAt = cloneTime(t.StartedAt)
	cp.FinishedAt = cloneTime(t.FinishedAt)
	cp.Participants = append([]Participant(nil), t.Participants...)
	cp.Matches = make([]TournamentMatch, len(t.Matches))
	for i := range t.Matches {
		cp.Matches[i] = t.Matches[i].Clone()
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
