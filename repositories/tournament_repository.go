package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Dosada05/pong-tournament/models"
)

var (
	ErrTournamentMatchAlreadyRecorded = errors.New("tournament match result already recorded")
	ErrTournamentResultConflict       = errors.New("tournament result already recorded for alias")
	ErrTournamentResultInvalid        = errors.New("tournament result position is invalid")
)

// TournamentMatchResult is the persisted outcome of one bracket slot.
type TournamentMatchResult struct {
	TournamentID int
	MatchID      int
	Round        int
	WinnerAlias  string
	ScoreA       int
	ScoreB       int
	RecordedAt   time.Time
}

type TournamentRepository interface {
	CreateMatchResult(ctx context.Context, exec SQLExecutor, res *TournamentMatchResult) error
	CreateResult(ctx context.Context, exec SQLExecutor, res *models.TournamentResult) error
	ListResults(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.TournamentResult, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) CreateMatchResult(ctx context.Context, exec SQLExecutor, res *TournamentMatchResult) error {
	query := `
		INSERT INTO tournament_match_results (tournament_id, match_id, round, winner_alias, score_a, score_b, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if res.RecordedAt.IsZero() {
		res.RecordedAt = time.Now()
	}
	_, err := r.getExecutor(exec).ExecContext(ctx, query,
		res.TournamentID, res.MatchID, res.Round, res.WinnerAlias, res.ScoreA, res.ScoreB, res.RecordedAt,
	)
	if err != nil {
		return mapConstraintError(err, map[string]error{
			"tournament_match_results_pkey": ErrTournamentMatchAlreadyRecorded,
		})
	}
	return nil
}

func (r *postgresTournamentRepository) CreateResult(ctx context.Context, exec SQLExecutor, res *models.TournamentResult) error {
	query := `
		INSERT INTO tournament_results (tournament_id, alias, final_position)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		res.TournamentID, res.Alias, res.FinalPosition,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return mapConstraintError(err, map[string]error{
			"tournament_results_tournament_id_alias_key": ErrTournamentResultConflict,
			"tournament_results_final_position_check":    ErrTournamentResultInvalid,
		})
	}
	return nil
}

func (r *postgresTournamentRepository) ListResults(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.TournamentResult, error) {
	query := `
		SELECT id, tournament_id, alias, final_position, created_at
		FROM tournament_results
		WHERE tournament_id = $1
		ORDER BY final_position, alias`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.TournamentResult
	for rows.Next() {
		var res models.TournamentResult
		if err := rows.Scan(&res.ID, &res.TournamentID, &res.Alias, &res.FinalPosition, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}
