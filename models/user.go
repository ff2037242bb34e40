package models

import "time"

// UserStats aggregates the finished games of one permanent identity.
type UserStats struct {
	UserID      int64     `json:"user_id" db:"user_id"`
	GamesPlayed int       `json:"games_played" db:"games_played"`
	GamesWon    int       `json:"games_won" db:"games_won"`
	GamesLost   int       `json:"games_lost" db:"games_lost"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
