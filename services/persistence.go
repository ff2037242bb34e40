package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Dosada05/pong-tournament/models"
	"github.com/Dosada05/pong-tournament/repositories"
)

// PersistenceSink receives final results. Callers log failures and never roll back
// in-memory state because of them.
type PersistenceSink interface {
	RecordGame(ctx context.Context, game models.GameRecord) error
	RecordTournamentMatch(ctx context.Context, res repositories.TournamentMatchResult) error
	RecordTournamentResult(ctx context.Context, tournamentID int, alias string, position int) error
}

type repositoryPersistence struct {
	db          *sql.DB
	games       repositories.GameRepository
	tournaments repositories.TournamentRepository
	logger      *slog.Logger
}

func NewPersistenceSink(db *sql.DB, games repositories.GameRepository, tournaments repositories.TournamentRepository, logger *slog.Logger) PersistenceSink {
	return &repositoryPersistence{db: db, games: games, tournaments: tournaments, logger: logger}
}

// RecordGame stores the game and counts it for both players in one transaction.
func (p *repositoryPersistence) RecordGame(ctx context.Context, game models.GameRecord) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				p.logger.Error("rollback failed", slog.Any("error", rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit game %s: %w", game.MatchID, cErr)
		}
	}()

	if err = p.games.Create(ctx, tx, &game); err != nil {
		return fmt.Errorf("failed to record game %s: %w", game.MatchID, err)
	}
	for _, player := range []int64{game.Player1ID, game.Player2ID} {
		if err = p.games.AddResult(ctx, tx, player, player == game.WinnerID, game.FinishedAt); err != nil {
			return err
		}
	}
	return nil
}

func (p *repositoryPersistence) RecordTournamentMatch(ctx context.Context, res repositories.TournamentMatchResult) error {
	if err := p.tournaments.CreateMatchResult(ctx, nil, &res); err != nil {
		return fmt.Errorf("failed to record tournament %d match %d: %w", res.TournamentID, res.MatchID, err)
	}
	return nil
}

func (p *repositoryPersistence) RecordTournamentResult(ctx context.Context, tournamentID int, alias string, position int) error {
	res := &models.TournamentResult{TournamentID: tournamentID, Alias: alias, FinalPosition: position}
	if err := p.tournaments.CreateResult(ctx, nil, res); err != nil {
		return fmt.Errorf("failed to record result of %q in tournament %d: %w", alias, tournamentID, err)
	}
	return nil
}
