package models

import "time"

// TournamentResult is the final placing of one alias in a tournament.
type TournamentResult struct {
	ID            int       `json:"id" db:"id"`
	TournamentID  int       `json:"tournament_id" db:"tournament_id"`
	Alias         string    `json:"alias" db:"alias"`
	FinalPosition int       `json:"final_position" db:"final_position"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
