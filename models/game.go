package models

import "time"

type GameMode string

const (
	GameModeCasual     GameMode = "casual"
	GameModeTournament GameMode = "tournament"
)

// GameRecord is a finished game as handed to the history store.
type GameRecord struct {
	ID         int       `json:"id" db:"id"`
	MatchID    string    `json:"match_id" db:"match_id"`
	Player1ID  int64     `json:"player1_id" db:"player1_id"`
	Player2ID  int64     `json:"player2_id" db:"player2_id"`
	Score1     int       `json:"score1" db:"score1"`
	Score2     int       `json:"score2" db:"score2"`
	WinnerID   int64     `json:"winner_id" db:"winner_id"`
	Mode       GameMode  `json:"mode" db:"mode"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
