package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/pong-tournament/game"
	"github.com/Dosada05/pong-tournament/models"
	"github.com/Dosada05/pong-tournament/protocol"
	"github.com/Dosada05/pong-tournament/realtime"
)

// MatchService runs the game:* intents on top of the engine and launches tournament
// matches for the orchestrator.
type MatchService interface {
	MatchLauncher

	CreateGame(ctx context.Context, caller Identity, cmd protocol.CreateGame) (game.Snapshot, error)
	JoinGame(ctx context.Context, caller Identity, matchID string) (game.Snapshot, error)
	Input(ctx context.Context, caller Identity, matchID, action string) error
	Rematch(ctx context.Context, caller Identity, matchID string) (game.Snapshot, error)
	Leave(ctx context.Context, caller Identity, matchID string) error

	// HandleDisconnect only flags the player offline and tells the opponent.
	HandleDisconnect(ctx context.Context, userID int64, matchID string)

	BroadcastStates() int
	DrainFinished(ctx context.Context) int
	// Cleanup reaps expired games. A tournament game reaped before it finished voids its bracket match.
	Cleanup(ctx context.Context) int

	AttachTournaments(tournaments TournamentService)
}

type FinishedPayload struct {
	State   game.Snapshot `json:"state"`
	Summary game.Summary  `json:"summary"`
}

type PlayerDisconnectedPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID int64  `json:"playerId"`
}

// GameCancelReasonIdle is reported when a game is reaped for inactivity.
const GameCancelReasonIdle = "idle"

type GameCancelledPayload struct {
	MatchID string `json:"matchId"`
	Reason  string `json:"reason"`
}

type matchService struct {
	engine         *game.Engine
	hub            *realtime.Hub
	sink           PersistenceSink
	persistTimeout time.Duration
	logger         *slog.Logger

	mu          sync.RWMutex
	tournaments TournamentService
}

func NewMatchService(engine *game.Engine, hub *realtime.Hub, sink PersistenceSink, persistTimeout time.Duration, logger *slog.Logger) MatchService {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &matchService{
		engine:         engine,
		hub:            hub,
		sink:           sink,
		persistTimeout: persistTimeout,
		logger:         logger,
	}
}

// AttachTournaments closes the cycle between the launcher and the orchestrator.
func (s *matchService) AttachTournaments(tournaments TournamentService) {
	s.mu.Lock()
	s.tournaments = tournaments
	s.mu.Unlock()
}

func (s *matchService) orchestrator() TournamentService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tournaments
}

// players returns both slots of a match and fails unless userID holds one of them.
func (s *matchService) players(matchID string, userID int64) ([2]game.Player, error) {
	players, ok := s.engine.Players(matchID)
	if !ok {
		return players, fmt.Errorf("%w: %s", ErrGameNotFound, matchID)
	}
	if players[0].ID != userID && players[1].ID != userID {
		return players, ErrNotGamePlayer
	}
	return players, nil
}

func opponentOf(players [2]game.Player, userID int64) game.Player {
	if players[0].ID == userID {
		return players[1]
	}
	return players[0]
}

func (s *matchService) snapshot(matchID string) (game.Snapshot, error) {
	snap, ok := s.engine.Snapshot(matchID)
	if !ok {
		return game.Snapshot{}, fmt.Errorf("%w: %s", ErrGameNotFound, matchID)
	}
	return snap, nil
}

func (s *matchService) CreateGame(ctx context.Context, caller Identity, cmd protocol.CreateGame) (game.Snapshot, error) {
	if cmd.TournamentID != nil && cmd.MatchID != nil {
		key := MatchKey(*cmd.TournamentID, *cmd.MatchID)
		if _, ok := s.engine.Players(key); !ok {
			return game.Snapshot{}, ErrMatchNotLaunched
		}
		return s.JoinGame(ctx, caller, key)
	}

	if cmd.OpponentID == caller.UserID {
		return game.Snapshot{}, ErrSelfChallenge
	}
	if !s.hub.IsOnline(cmd.OpponentID) {
		return game.Snapshot{}, fmt.Errorf("%w: %d", ErrOpponentOffline, cmd.OpponentID)
	}
	opponentName, ok := s.hub.Alias(cmd.OpponentID)
	if !ok || opponentName == "" {
		opponentName = cmd.OpponentName
	}

	a := game.Player{ID: caller.UserID, Name: caller.Alias, Guest: caller.Guest}
	b := game.Player{ID: cmd.OpponentID, Name: opponentName, Guest: s.hub.IsGuest(cmd.OpponentID)}
	id, ok := s.engine.Create("", a, b)
	if !ok {
		return game.Snapshot{}, fmt.Errorf("%w: could not allocate a match", ErrIllegalState)
	}
	s.engine.SetConnected(id, a.ID, true)
	s.engine.SetConnected(id, b.ID, true)
	s.engine.Start(id)
	s.hub.SetCurrentMatch(a.ID, id)
	s.hub.SetCurrentMatch(b.ID, id)

	snap, err := s.snapshot(id)
	if err != nil {
		return game.Snapshot{}, err
	}
	s.hub.SendToIdentity(b.ID, protocol.MsgGameStarted, snap)
	s.logger.Info("casual game created", slog.String("match_id", id), slog.Int64("player_a", a.ID), slog.Int64("player_b", b.ID))
	return snap, nil
}

func (s *matchService) JoinGame(ctx context.Context, caller Identity, matchID string) (game.Snapshot, error) {
	if _, err := s.players(matchID, caller.UserID); err != nil {
		return game.Snapshot{}, err
	}
	s.engine.SetConnected(matchID, caller.UserID, true)
	s.hub.SetCurrentMatch(caller.UserID, matchID)
	return s.snapshot(matchID)
}

func (s *matchService) Input(ctx context.Context, caller Identity, matchID, action string) error {
	a, ok := game.ParseAction(action)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if _, err := s.players(matchID, caller.UserID); err != nil {
		return err
	}
	if !s.engine.ApplyInput(matchID, caller.UserID, a) {
		return ErrGameNotPlaying
	}
	return nil
}

func (s *matchService) Rematch(ctx context.Context, caller Identity, matchID string) (game.Snapshot, error) {
	if _, _, ok := ParseMatchKey(matchID); ok {
		return game.Snapshot{}, fmt.Errorf("%w: tournament matches cannot be replayed", ErrForbiddenOperation)
	}
	players, err := s.players(matchID, caller.UserID)
	if err != nil {
		return game.Snapshot{}, err
	}
	if !s.engine.ResetForRematch(matchID) {
		if snap, ok := s.engine.Snapshot(matchID); ok && snap.Status == game.StatusFinished {
			return game.Snapshot{}, ErrGameResultPending
		}
		return game.Snapshot{}, ErrGameNotFinished
	}
	for _, p := range players {
		s.engine.SetConnected(matchID, p.ID, s.hub.IsOnline(p.ID))
		s.hub.SetCurrentMatch(p.ID, matchID)
	}
	s.engine.Start(matchID)

	snap, err := s.snapshot(matchID)
	if err != nil {
		return game.Snapshot{}, err
	}
	s.hub.SendToIdentity(opponentOf(players, caller.UserID).ID, protocol.MsgGameStarted, snap)
	s.logger.Info("rematch started", slog.String("match_id", matchID), slog.Int64("requested_by", caller.UserID))
	return snap, nil
}

func (s *matchService) Leave(ctx context.Context, caller Identity, matchID string) error {
	players, err := s.players(matchID, caller.UserID)
	if err != nil {
		return err
	}
	s.engine.SetConnected(matchID, caller.UserID, false)

	if tid, _, ok := ParseMatchKey(matchID); ok {
		orch := s.orchestrator()
		if orch == nil {
			return fmt.Errorf("%w: tournaments are not available", ErrIllegalState)
		}
		return orch.DeclareForfeit(ctx, tid, caller.Alias, ForfeitReasonLeft)
	}

	if !s.engine.Cancel(matchID) {
		return fmt.Errorf("%w: %s", ErrGameNotFound, matchID)
	}
	payload := GameCancelledPayload{MatchID: matchID, Reason: ForfeitReasonLeft}
	for _, p := range players {
		s.hub.ClearCurrentMatch(p.ID, matchID)
		s.hub.SendToIdentity(p.ID, protocol.MsgGameCancelled, payload)
	}
	return nil
}

func (s *matchService) Launch(ctx context.Context, t *models.Tournament, m models.TournamentMatch) error {
	pa, okA := t.Participant(m.PlayerA)
	pb, okB := t.Participant(derefString(m.PlayerB))
	if !okA || !okB {
		return fmt.Errorf("%w: match %d has no two participants", ErrIllegalState, m.ID)
	}
	key := MatchKey(t.ID, m.ID)
	a := game.Player{ID: pa.UserID, Name: pa.Alias, Guest: pa.Guest}
	b := game.Player{ID: pb.UserID, Name: pb.Alias, Guest: pb.Guest}
	if _, ok := s.engine.Create(key, a, b); !ok {
		return fmt.Errorf("%w: game %s already exists", ErrIllegalState, key)
	}
	for _, p := range []game.Player{a, b} {
		s.engine.SetConnected(key, p.ID, s.hub.IsOnline(p.ID))
		s.hub.SetCurrentMatch(p.ID, key)
	}
	s.engine.Start(key)

	snap, err := s.snapshot(key)
	if err != nil {
		return err
	}
	s.hub.SendToIdentity(a.ID, protocol.MsgGameStarted, snap)
	s.hub.SendToIdentity(b.ID, protocol.MsgGameStarted, snap)
	return nil
}

func (s *matchService) Abort(ctx context.Context, tournamentID, matchID int) {
	key := MatchKey(tournamentID, matchID)
	players, ok := s.engine.Players(key)
	if !ok || !s.engine.Cancel(key) {
		return
	}
	payload := GameCancelledPayload{MatchID: key, Reason: ForfeitReasonRequested}
	for _, p := range players {
		s.hub.ClearCurrentMatch(p.ID, key)
		s.hub.SendToIdentity(p.ID, protocol.MsgGameCancelled, payload)
	}
}

func (s *matchService) HandleDisconnect(ctx context.Context, userID int64, matchID string) {
	players, err := s.players(matchID, userID)
	if err != nil {
		return
	}
	s.engine.SetConnected(matchID, userID, false)
	s.hub.SendToIdentity(opponentOf(players, userID).ID, protocol.MsgGamePlayerDisconnected,
		PlayerDisconnectedPayload{MatchID: matchID, PlayerID: userID})
	s.logger.Info("player disconnected from game", slog.String("match_id", matchID), slog.Int64("user_id", userID))
}

// BroadcastStates pushes the current state of every playing match to its players.
func (s *matchService) BroadcastStates() int {
	snaps := s.engine.PlayingSnapshots()
	for _, snap := range snaps {
		for _, p := range snap.Players {
			s.hub.SendToIdentity(p.ID, protocol.MsgGameStateUpdate, snap)
		}
	}
	return len(snaps)
}

// DrainFinished reports every newly finished match and returns how many were handled.
func (s *matchService) DrainFinished(ctx context.Context) int {
	finished := s.engine.DrainFinished()
	for _, fm := range finished {
		s.handleFinished(ctx, fm)
	}
	return len(finished)
}

func (s *matchService) handleFinished(ctx context.Context, fm game.FinishedMatch) {
	payload := FinishedPayload{State: fm.State, Summary: fm.Summary}
	for _, p := range fm.Summary.Players {
		s.hub.SendToIdentity(p.ID, protocol.MsgGameFinished, payload)
	}

	if tid, mid, ok := ParseMatchKey(fm.MatchID); ok {
		if orch := s.orchestrator(); orch != nil {
			err := orch.RecordMatchResult(ctx, tid, mid, fm.Summary.WinnerName, fm.Summary.ScoreA, fm.Summary.ScoreB)
			if err != nil {
				s.logger.Error("failed to record tournament game", slog.String("match_id", fm.MatchID), slog.Any("error", err))
			}
		}
	} else if a, b := fm.Summary.Players[0], fm.Summary.Players[1]; !a.Guest && !b.Guest && s.sink != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
		err := s.sink.RecordGame(pctx, models.GameRecord{
			MatchID:    fm.MatchID,
			Player1ID:  a.ID,
			Player2ID:  b.ID,
			Score1:     fm.Summary.ScoreA,
			Score2:     fm.Summary.ScoreB,
			WinnerID:   fm.Summary.WinnerID,
			Mode:       models.GameModeCasual,
			FinishedAt: fm.Summary.FinishedAt,
		})
		cancel()
		if err != nil {
			s.logger.Error("failed to record casual game", slog.String("match_id", fm.MatchID), slog.Any("error", err))
		}
	}

	for _, p := range fm.Summary.Players {
		s.hub.ClearCurrentMatch(p.ID, fm.MatchID)
	}
}

func (s *matchService) Cleanup(ctx context.Context) int {
	removed := s.engine.Cleanup()
	for _, snap := range removed {
		for _, p := range snap.Players {
			s.hub.ClearCurrentMatch(p.ID, snap.MatchID)
		}
		if snap.Status == game.StatusFinished {
			continue
		}
		payload := GameCancelledPayload{MatchID: snap.MatchID, Reason: GameCancelReasonIdle}
		for _, p := range snap.Players {
			s.hub.SendToIdentity(p.ID, protocol.MsgGameCancelled, payload)
		}
		s.logger.Info("idle game reaped", slog.String("match_id", snap.MatchID), slog.String("status", string(snap.Status)))

		tid, mid, ok := ParseMatchKey(snap.MatchID)
		if !ok {
			continue
		}
		orch := s.orchestrator()
		if orch == nil {
			continue
		}
		if err := orch.AbandonMatch(ctx, tid, mid); err != nil {
			s.logger.Error("failed to void reaped tournament match", slog.String("match_id", snap.MatchID), slog.Any("error", err))
		}
	}
	return len(removed)
}
