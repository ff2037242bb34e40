package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/pong-tournament/models"
)

var (
	ErrGameRecordDuplicate = errors.New("game already recorded")
	ErrGameRecordInvalid   = errors.New("game record violates a constraint")
	ErrUserStatsNotFound   = errors.New("user stats not found")
)

type GameRepository interface {
	Create(ctx context.Context, exec SQLExecutor, game *models.GameRecord) error
	// AddResult counts one finished game for userID.
	AddResult(ctx context.Context, exec SQLExecutor, userID int64, won bool, at time.Time) error
	GetStats(ctx context.Context, exec SQLExecutor, userID int64) (*models.UserStats, error)
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresGameRepository) Create(ctx context.Context, exec SQLExecutor, game *models.GameRecord) error {
	query := `
		INSERT INTO games (match_id, player1_id, player2_id, score1, score2, winner_id, mode, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		game.MatchID, game.Player1ID, game.Player2ID, game.Score1, game.Score2,
		game.WinnerID, game.Mode, game.FinishedAt,
	).Scan(&game.ID, &game.CreatedAt)
	if err != nil {
		return mapConstraintError(err, map[string]error{
			"games_match_finished_key": ErrGameRecordDuplicate,
			"games_scores_check":       ErrGameRecordInvalid,
			"games_mode_check":         ErrGameRecordInvalid,
		})
	}
	return nil
}

func (r *postgresGameRepository) AddResult(ctx context.Context, exec SQLExecutor, userID int64, won bool, at time.Time) error {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}
	query := `
		INSERT INTO user_stats (user_id, games_played, games_won, games_lost, updated_at)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			games_played = user_stats.games_played + 1,
			games_won    = user_stats.games_won + EXCLUDED.games_won,
			games_lost   = user_stats.games_lost + EXCLUDED.games_lost,
			updated_at   = EXCLUDED.updated_at`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, userID, wins, losses, at)
	if err != nil {
		return fmt.Errorf("failed to update stats for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrUserStatsNotFound)
}

func (r *postgresGameRepository) GetStats(ctx context.Context, exec SQLExecutor, userID int64) (*models.UserStats, error) {
	query := `
		SELECT user_id, games_played, games_won, games_lost, updated_at
		FROM user_stats
		WHERE user_id = $1`
	var s models.UserStats
	err := r.getExecutor(exec).QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.GamesPlayed, &s.GamesWon, &s.GamesLost, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserStatsNotFound
		}
		return nil, err
	}
	return &s, nil
}
