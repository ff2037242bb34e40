package models

import "time"

// Participant is one seat in a tournament, identified by its alias.
type Participant struct {
	Alias    string    `json:"alias"`
	UserID   int64     `json:"user_id"`
	Guest    bool      `json:"guest"`
	JoinedAt time.Time `json:"joined_at"`
}
