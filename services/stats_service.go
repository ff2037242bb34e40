package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/pong-tournament/models"
	"github.com/Dosada05/pong-tournament/repositories"
)

// StatsService reads persisted game statistics and tournament placings.
type StatsService interface {
	GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	GetTournamentResults(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error)
}

type statsService struct {
	games       repositories.GameRepository
	tournaments repositories.TournamentRepository
}

func NewStatsService(games repositories.GameRepository, tournaments repositories.TournamentRepository) StatsService {
	return &statsService{games: games, tournaments: tournaments}
}

// GetUserStats возвращает нулевую статистику для пользователя без сыгранных игр.
func (s *statsService) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrValidationFailed)
	}
	stats, err := s.games.GetStats(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserStatsNotFound) {
			return &models.UserStats{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to load stats for user %d: %w", userID, err)
	}
	return stats, nil
}

func (s *statsService) GetTournamentResults(ctx context.Context, tournamentID int) ([]*models.TournamentResult, error) {
	results, err := s.tournaments.ListResults(ctx, nil, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for tournament %d: %w", tournamentID, err)
	}
	if len(results) == 0 {
		return nil, ErrTournamentNotFound
	}
	return results, nil
}
