package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/pong-tournament/brackets"
	"github.com/Dosada05/pong-tournament/models"
	"github.com/Dosada05/pong-tournament/protocol"
	"github.com/Dosada05/pong-tournament/repositories"
)

// Forfeit reasons reported in tournament:forfeit events.
const (
	ForfeitReasonRequested    = "forfeit"
	ForfeitReasonLeft         = "left"
	ForfeitReasonDisconnect   = "disconnect"
	ForfeitReasonReadyTimeout = "ready_timeout"
)

// MatchLauncher turns an active tournament match into a live game.
type MatchLauncher interface {
	Launch(ctx context.Context, t *models.Tournament, m models.TournamentMatch) error
	// Abort voids the live game of a match without a result.
	Abort(ctx context.Context, tournamentID, matchID int)
}

// Notifier pushes one event to an identity.
type Notifier interface {
	SendToIdentity(identity int64, msgType string, data any) int
}

type TournamentService interface {
	CreateTournament(ctx context.Context, owner Identity, name string) (*models.Tournament, error)
	JoinTournament(ctx context.Context, tournamentID int, who Identity) (*models.Tournament, error)
	GetTournament(ctx context.Context, tournamentID int) (*models.Tournament, error)
	ListTournaments(ctx context.Context) ([]*models.Tournament, error)

	StartTournament(ctx context.Context, tournamentID int, callerAlias string) (*models.Tournament, error)
	MarkReady(ctx context.Context, tournamentID, matchID int, alias string) (*models.TournamentMatch, error)
	GenerateNextRound(ctx context.Context, tournamentID, completedRound int) error
	DeclareForfeit(ctx context.Context, tournamentID int, alias, reason string) error
	CheckExpiredReadyDeadlines(ctx context.Context) error
	RecordMatchResult(ctx context.Context, tournamentID, matchID int, winnerAlias string, scoreA, scoreB int) error
	// AbandonMatch voids a launched match whose game was reaped without a result.
	AbandonMatch(ctx context.Context, tournamentID, matchID int) error

	// HandleDisconnect applies the tournament disconnect policy for a user who went offline.
	HandleDisconnect(ctx context.Context, userID int64)
}

type TournamentConfig struct {
	Size            int
	ReadyTimeout    time.Duration
	LaunchCountdown time.Duration
	PersistTimeout  time.Duration
	LockTimeout     time.Duration
}

func (c TournamentConfig) withDefaults() TournamentConfig {
	if c.Size <= 0 {
		c.Size = models.TournamentSize
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 60 * time.Second
	}
	if c.LaunchCountdown < 0 {
		c.LaunchCountdown = 0
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	return c
}

type TournamentDeps struct {
	Launcher   MatchLauncher
	Notifier   Notifier
	Directory  ParticipantDirectory
	Identities IdentityResolver
	Locker     RoundLocker
	Sink       PersistenceSink
	Archiver   BracketArchiver // optional
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// tournamentEntry is one tournament row. mu guards t and finishSeq.
type tournamentEntry struct {
	mu        sync.Mutex
	t         *models.Tournament
	finishSeq int
}

type notice struct {
	alias   string
	msgType string
	data    any
}

type abortRequest struct {
	tournamentID int
	matchID      int
}

type tournamentService struct {
	cfg       TournamentConfig
	generator brackets.BracketGenerator
	deps      TournamentDeps
	logger    *slog.Logger

	mu               sync.RWMutex
	tournaments      map[int]*tournamentEntry
	nextTournamentID int
	nextMatchID      atomic.Int64
}

func NewTournamentService(cfg TournamentConfig, deps TournamentDeps) TournamentService {
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Locker == nil {
		deps.Locker = NewMemoryLocker()
	}
	return &tournamentService{
		cfg:         cfg,
		generator:   brackets.NewSingleEliminationGenerator(cfg.Size),
		deps:        deps,
		logger:      deps.Logger,
		tournaments: make(map[int]*tournamentEntry),
	}
}

// Payloads of tournament events.

type MatchPayload struct {
	TournamentID  int                `json:"tournamentId"`
	MatchID       int                `json:"matchId"`
	Round         int                `json:"round"`
	PlayerA       string             `json:"playerA"`
	PlayerB       *string            `json:"playerB,omitempty"`
	Winner        *string            `json:"winner,omitempty"`
	Status        models.MatchStatus `json:"status"`
	ScoreA        int                `json:"scoreA"`
	ScoreB        int                `json:"scoreB"`
	ReadyDeadline *time.Time         `json:"readyDeadline,omitempty"`
	GameID        string             `json:"gameId,omitempty"`
}

type ReadyPayload struct {
	TournamentID int    `json:"tournamentId"`
	MatchID      int    `json:"matchId"`
	Alias        string `json:"alias"`
	Active       bool   `json:"active"`
}

type ForfeitPayload struct {
	TournamentID int    `json:"tournamentId"`
	MatchID      int    `json:"matchId,omitempty"`
	Alias        string `json:"alias"`
	Winner       string `json:"winner,omitempty"`
	Reason       string `json:"reason"`
}

type RoundCompletePayload struct {
	TournamentID   int            `json:"tournamentId"`
	CompletedRound int            `json:"completedRound"`
	NextRound      int            `json:"nextRound"`
	Matches        []MatchPayload `json:"matches"`
}

type Standing struct {
	Alias    string `json:"alias"`
	Position int    `json:"position"`
}

type TournamentFinishedPayload struct {
	TournamentID int        `json:"tournamentId"`
	Champion     string     `json:"champion"`
	Standings    []Standing `json:"standings"`
}

type TournamentCancelledPayload struct {
	TournamentID int    `json:"tournamentId"`
	Reason       string `json:"reason"`
}

func matchPayload(m *models.TournamentMatch) MatchPayload {
	p := MatchPayload{
		TournamentID:  m.TournamentID,
		MatchID:       m.ID,
		Round:         m.Round,
		PlayerA:       m.PlayerA,
		PlayerB:       m.PlayerB,
		Winner:        m.Winner,
		Status:        m.Status,
		ScoreA:        m.ScoreA,
		ScoreB:        m.ScoreB,
		ReadyDeadline: m.ReadyDeadline,
	}
	if m.Launched {
		p.GameID = MatchKey(m.TournamentID, m.ID)
	}
	return p
}

func toPlayers(m *models.TournamentMatch, msgType string, data any) []notice {
	out := []notice{{alias: m.PlayerA, msgType: msgType, data: data}}
	if m.PlayerB != nil {
		out = append(out, notice{alias: *m.PlayerB, msgType: msgType, data: data})
	}
	return out
}

func toParticipants(t *models.Tournament, msgType string, data any) []notice {
	out := make([]notice, 0, len(t.Participants))
	for _, p := range t.Participants {
		out = append(out, notice{alias: p.Alias, msgType: msgType, data: data})
	}
	return out
}

func roundLockKey(tournamentID int) string {
	return fmt.Sprintf("tournament:%d:rounds", tournamentID)
}

func (s *tournamentService) entry(id int) (*tournamentEntry, error) {
	s.mu.RLock()
	e, ok := s.tournaments[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTournamentNotFound, id)
	}
	return e, nil
}

// deliver sends notices after every lock has been released.
func (s *tournamentService) deliver(tournamentID int, notices []notice) {
	if s.deps.Notifier == nil {
		return
	}
	for _, n := range notices {
		id, ok := s.deps.Directory.IdentityOf(tournamentID, n.alias)
		if !ok {
			continue
		}
		s.deps.Notifier.SendToIdentity(id, n.msgType, n.data)
	}
}

func (s *tournamentService) CreateTournament(ctx context.Context, owner Identity, name string) (*models.Tournament, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	if owner.UserID <= 0 || owner.Alias == "" {
		return nil, fmt.Errorf("%w: owner identity is incomplete", ErrValidationFailed)
	}
	now := s.deps.Clock.Now()

	s.mu.Lock()
	s.nextTournamentID++
	t := &models.Tournament{
		ID:         s.nextTournamentID,
		Name:       name,
		OwnerAlias: owner.Alias,
		Status:     models.TournamentStatusWaiting,
		CreatedAt:  now,
		Participants: []models.Participant{
			{Alias: owner.Alias, UserID: owner.UserID, Guest: owner.Guest, JoinedAt: now},
		},
	}
	view := t.Clone()
	s.tournaments[t.ID] = &tournamentEntry{t: t}
	s.mu.Unlock()

	s.deps.Directory.Bind(t.ID, owner.Alias, owner.UserID)
	s.logger.Info("tournament created", slog.Int("tournament_id", t.ID), slog.String("owner", owner.Alias))
	return view, nil
}

func (s *tournamentService) JoinTournament(ctx context.Context, tournamentID int, who Identity) (*models.Tournament, error) {
	e, err := s.entry(tournamentID)
	if err != nil {
		return nil, err
	}
	if who.UserID <= 0 || who.Alias == "" {
		return nil, fmt.Errorf("%w: identity is incomplete", ErrValidationFailed)
	}

	e.mu.Lock()
	t := e.t
	switch {
	case t.Status != models.TournamentStatusWaiting:
		e.mu.Unlock()
		return nil, ErrTournamentNotWaiting
	case len(t.Participants) >= s.cfg.Size:
		e.mu.Unlock()
		return nil, ErrTournamentFull
	}
	for _, p := range t.Participants {
		if p.Alias == who.Alias || p.UserID == who.UserID {
			e.mu.Unlock()
			return nil, ErrAlreadyJoined
		}
	}
	t.Participants = append(t.Participants, models.Participant{
		Alias: who.Alias, UserID: who.UserID, Guest: who.Guest, JoinedAt: s.deps.Clock.Now(),
	})
	view := t.Clone()
	e.mu.Unlock()

	s.deps.Directory.Bind(tournamentID, who.Alias, who.UserID)
	s.logger.Info("participant joined", slog.Int("tournament_id", tournamentID), slog.String("alias", who.Alias),
		slog.Int("participants", len(view.Participants)))
	return view, nil
}

func (s *tournamentService) GetTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	e, err := s.entry(tournamentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.Clone(), nil
}

func (s *tournamentService) ListTournaments(ctx context.Context) ([]*models.Tournament, error) {
	s.mu.RLock()
	entries := make([]*tournamentEntry, 0, len(s.tournaments))
	for _, e := range s.tournaments {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.Tournament, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.t.Clone())
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *models.Tournament) int { return a.ID - b.ID })
	return out, nil
}

// addRoundLocked appends the matches of a new round. Byes finish immediately; every other
// match gets a fresh ready deadline.
func (s *tournamentService) addRoundLocked(e *tournamentEntry, round int, pairings []brackets.Pairing, now time.Time) []notice {
	t := e.t
	var notices []notice
	for _, p := range pairings {
		m := models.TournamentMatch{
			ID:           int(s.nextMatchID.Add(1)),
			TournamentID: t.ID,
			Round:        round,
			PlayerA:      p.PlayerA,
			PlayerB:      p.PlayerB,
			Status:       models.MatchStatusPending,
		}
		if p.IsBye() {
			m.Status = models.MatchStatusFinished
			m.Winner = stringPtr(p.PlayerA)
			m.FinishedAt = &now
			e.finishSeq++
			m.FinishedSeq = e.finishSeq
		} else {
			deadline := now.Add(s.cfg.ReadyTimeout)
			m.ReadyDeadline = &deadline
		}
		t.Matches = append(t.Matches, m)

		msgType := protocol.MsgTournamentMatchReady
		if m.IsBye() {
			msgType = protocol.MsgTournamentMatchFinished
		}
		notices = append(notices, toPlayers(&m, msgType, matchPayload(&m))...)
	}
	return notices
}

func (s *tournamentService) StartTournament(ctx context.Context, tournamentID int, callerAlias string) (*models.Tournament, error) {
	e, err := s.entry(tournamentID)
	if err != nil {
		return nil, err
	}

	view, notices, err := func() (*models.Tournament, []notice, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		t := e.t
		if t.Status != models.TournamentStatusWaiting {
			return nil, nil, ErrTournamentNotWaiting
		}
		if callerAlias != t.OwnerAlias {
			return nil, nil, ErrNotTournamentOwner
		}
		seeds := make([]string, 0, len(t.Participants))
		for _, p := range t.Participants {
			seeds = append(seeds, p.Alias)
		}
		pairings, err := s.generator.FirstRound(seeds)
		if err != nil {
			if errors.Is(err, brackets.ErrWrongParticipantCount) {
				return nil, nil, fmt.Errorf("%w: %v", ErrNotEnoughParticipants, err)
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}

		now := s.deps.Clock.Now()
		t.Status = models.TournamentStatusActive
		t.CurrentRound = 1
		t.StartedAt = &now
		notices := s.addRoundLocked(e, 1, pairings, now)
		return t.Clone(), notices, nil
	}()
	if err != nil {
		return nil, err
	}

	s.deliver(tournamentID, notices)
	s.logger.Info("tournament started", slog.Int("tournament_id", tournamentID), slog.Int("matches", len(view.Matches)))
	return view, nil
}

func findMatch(t *models.Tournament, matchID int) *models.TournamentMatch {
	for i := range t.Matches {
		if t.Matches[i].ID == matchID {
			return &t.Matches[i]
		}
	}
	return nil
}

// currentMatchOf returns the non-terminal match alias plays in the current round.
func currentMatchOf(t *models.Tournament, alias string) *models.TournamentMatch {
	for i := range t.Matches {
		m := &t.Matches[i]
		if m.Round == t.CurrentRound && !m.IsTerminal() && m.Involves(alias) {
			return m
		}
	}
	return nil
}

func roundComplete(t *models.Tournament, round int) bool {
	found := false
	for i := range t.Matches {
		if t.Matches[i].Round != round {
			continue
		}
		found = true
		if !t.Matches[i].IsTerminal() {
			return false
		}
	}
	return found
}

func (s *tournamentService) finishMatchLocked(e *tournamentEntry, m *models.TournamentMatch, winner string, scoreA, scoreB int, now time.Time) {
	m.Status = models.MatchStatusFinished
	m.Winner = stringPtr(winner)
	m.ScoreA = scoreA
	m.ScoreB = scoreB
	m.FinishedAt = &now
	e.finishSeq++
	m.FinishedSeq = e.finishSeq
}

// cancelLocked voids the tournament and every match still open in it.
func (s *tournamentService) cancelLocked(t *models.Tournament, reason string, now time.Time) ([]abortRequest, []notice) {
	var aborts []abortRequest
	t.Status = models.TournamentStatusCancelled
	t.CancelReason = stringPtr(reason)
	t.FinishedAt = &now
	for i := range t.Matches {
		m := &t.Matches[i]
		if m.IsTerminal() {
			continue
		}
		if m.Status == models.MatchStatusActive && m.Launched {
			aborts = append(aborts, abortRequest{tournamentID: t.ID, matchID: m.ID})
		}
		m.Status = models.MatchStatusCancelled
		m.FinishedAt = &now
	}
	s.logger.Warn("tournament cancelled", slog.Int("tournament_id", t.ID), slog.String("reason", reason))
	return aborts, toParticipants(t, protocol.MsgTournamentCancelled, TournamentCancelledPayload{TournamentID: t.ID, Reason: reason})
}

func (s *tournamentService) abortAll(ctx context.Context, aborts []abortRequest) {
	if s.deps.Launcher == nil {
		return
	}
	for _, a := range aborts {
		s.deps.Launcher.Abort(ctx, a.tournamentID, a.matchID)
	}
}

func (s *tournamentService) launch(ctx context.Context, t *models.Tournament, m models.TournamentMatch) {
	if s.deps.Launcher == nil {
		return
	}
	if err := s.deps.Launcher.Launch(ctx, t, m); err != nil {
		s.logger.Error("failed to launch tournament match", slog.Int("tournament_id", t.ID),
			slog.Int("match_id", m.ID), slog.Any("error", err))
		return
	}
	s.deliver(t.ID, toPlayers(&m, protocol.MsgTournamentMatchStarted, matchPayload(&m)))
	s.logger.Info("tournament match launched", slog.Int("tournament_id", t.ID), slog.Int("match_id", m.ID))
}

func (s *tournamentService) MarkReady(ctx context.Context, tournamentID, matchID int, alias string) (*models.TournamentMatch, error) {
	e, err := s.entry(tournamentID)
	if err != nil {
		return nil, err
	}

	var launchT *models.Tournament
	view, notices, err := func() (*models.TournamentMatch, []notice, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		t := e.t
		if t.Status != models.TournamentStatusActive {
			return nil, nil, ErrTournamentNotActive
		}
		m := findMatch(t, matchID)
		if m == nil {
			return nil, nil, fmt.Errorf("%w: %d", ErrMatchNotFound, matchID)
		}
		if m.Status != models.MatchStatusPending {
			return nil, nil, ErrMatchNotPending
		}
		switch {
		case m.PlayerA == alias:
			m.ReadyA = true
		case m.PlayerB != nil && *m.PlayerB == alias:
			m.ReadyB = true
		default:
			return nil, nil, ErrNotMatchParticipant
		}

		if m.ReadyA && m.ReadyB {
			// Обратный отсчёт перед стартом; при нулевом отсчёте матч запускается сразу.
			deadline := s.deps.Clock.Now().Add(s.cfg.LaunchCountdown)
			m.Status = models.MatchStatusActive
			m.ReadyDeadline = &deadline
			if s.cfg.LaunchCountdown == 0 {
				m.Launched = true
				launchT = t.Clone()
			}
		}
		cp := m.Clone()
		payload := ReadyPayload{TournamentID: tournamentID, MatchID: matchID, Alias: alias, Active: m.Status == models.MatchStatusActive}
		return &cp, toPlayers(m, protocol.MsgTournamentReady, payload), nil
	}()
	if err != nil {
		return nil, err
	}

	s.deliver(tournamentID, notices)
	if launchT != nil {
		s.launch(ctx, launchT, *view)
	}
	return view, nil
}

type generationResult struct {
	notices   []notice
	aborts    []abortRequest
	finished  *models.Tournament
	standings []Standing
	terminal  bool
}

func (s *tournamentService) GenerateNextRound(ctx context.Context, tournamentID, completedRound int) error {
	e, err := s.entry(tournamentID)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	unlock, err := s.deps.Locker.Lock(lockCtx, roundLockKey(tournamentID))
	if err != nil {
		return fmt.Errorf("round generation for tournament %d: %w", tournamentID, err)
	}

	var res generationResult
	func() {
		defer unlock()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("round generation panicked", slog.Int("tournament_id", tournamentID), slog.Any("panic", r))
				err = fmt.Errorf("round generation for tournament %d panicked: %v", tournamentID, r)
			}
		}()
		res = s.generateLocked(e, completedRound)
	}()
	if err != nil {
		return err
	}

	s.deliver(tournamentID, res.notices)
	s.abortAll(ctx, res.aborts)
	if res.terminal {
		s.deps.Directory.Forget(tournamentID)
	}
	if res.finished != nil {
		s.finalize(ctx, res.finished, res.standings)
	}
	return nil
}

// generateLocked runs under the round lock.
func (s *tournamentService) generateLocked(e *tournamentEntry, completedRound int) generationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.t

	var res generationResult
	if t.Status != models.TournamentStatusActive || t.CurrentRound != completedRound {
		return res
	}
	var round []*models.TournamentMatch
	for i := range t.Matches {
		m := &t.Matches[i]
		if m.Round == completedRound+1 {
			return res
		}
		if m.Round == completedRound {
			round = append(round, m)
		}
	}
	if len(round) == 0 {
		return res
	}
	for _, m := range round {
		if !m.IsTerminal() {
			return res
		}
	}

	finished := make([]*models.TournamentMatch, 0, len(round))
	for _, m := range round {
		if m.Status == models.MatchStatusFinished && m.Winner != nil {
			finished = append(finished, m)
		}
	}
	slices.SortFunc(finished, func(a, b *models.TournamentMatch) int { return a.FinishedSeq - b.FinishedSeq })
	winners := make([]string, 0, len(finished))
	for _, m := range finished {
		winners = append(winners, *m.Winner)
	}

	plan := s.generator.NextRound(completedRound, winners)
	now := s.deps.Clock.Now()
	switch plan.Outcome {
	case brackets.OutcomeChampion:
		t.Status = models.TournamentStatusFinished
		t.ChampionAlias = stringPtr(plan.Champion)
		t.FinishedAt = &now
		res.standings = computeStandings(t)
		res.finished = t.Clone()
		res.terminal = true
		res.notices = toParticipants(t, protocol.MsgTournamentFinished, TournamentFinishedPayload{
			TournamentID: t.ID, Champion: plan.Champion, Standings: res.standings,
		})
		s.logger.Info("tournament finished", slog.Int("tournament_id", t.ID), slog.String("champion", plan.Champion))

	case brackets.OutcomeNextRound:
		t.CurrentRound = completedRound + 1
		matchNotices := s.addRoundLocked(e, t.CurrentRound, plan.Pairings, now)
		payload := RoundCompletePayload{TournamentID: t.ID, CompletedRound: completedRound, NextRound: t.CurrentRound}
		for i := range t.Matches {
			if t.Matches[i].Round == t.CurrentRound {
				payload.Matches = append(payload.Matches, matchPayload(&t.Matches[i]))
			}
		}
		res.notices = append(toParticipants(t, protocol.MsgTournamentRoundComplete, payload), matchNotices...)
		s.logger.Info("round generated", slog.Int("tournament_id", t.ID), slog.Int("round", t.CurrentRound),
			slog.Int("matches", len(plan.Pairings)))

	default:
		res.aborts, res.notices = s.cancelLocked(t, plan.Reason, now)
		res.terminal = true
	}
	return res
}

// computeStandings ranks the champion first, the final loser second and the losers of the
// round before the final third.
func computeStandings(t *models.Tournament) []Standing {
	champion := derefString(t.ChampionAlias)
	out := []Standing{{Alias: champion, Position: 1}}
	for i := range t.Matches {
		m := &t.Matches[i]
		if m.Status != models.MatchStatusFinished || m.IsBye() || m.Winner == nil {
			continue
		}
		switch {
		case m.Round == t.CurrentRound && *m.Winner == champion:
			if loser, ok := m.Opponent(champion); ok {
				out = append(out, Standing{Alias: loser, Position: 2})
			}
		case m.Round == t.CurrentRound-1:
			if loser, ok := m.Opponent(*m.Winner); ok {
				out = append(out, Standing{Alias: loser, Position: 3})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Standing) int { return a.Position - b.Position })
	return out
}

func (s *tournamentService) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
}

// finalize persists standings and archives the bracket. Failures are only logged.
func (s *tournamentService) finalize(ctx context.Context, t *models.Tournament, standings []Standing) {
	pctx, cancel := s.persistContext(ctx)
	defer cancel()

	var g errgroup.Group
	for _, st := range standings {
		g.Go(func() error {
			return s.deps.Sink.RecordTournamentResult(pctx, t.ID, st.Alias, st.Position)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to persist tournament standings", slog.Int("tournament_id", t.ID), slog.Any("error", err))
	}

	if s.deps.Archiver == nil {
		return
	}
	url, err := s.deps.Archiver.Archive(pctx, t)
	if err != nil {
		s.logger.Error("failed to archive bracket", slog.Int("tournament_id", t.ID), slog.Any("error", err))
		return
	}
	s.logger.Info("bracket archived", slog.Int("tournament_id", t.ID), slog.String("url", url))
}

// persistResult writes the match result and the game stats concurrently.
func (s *tournamentService) persistResult(ctx context.Context, rec *repositories.TournamentMatchResult, game *models.GameRecord) {
	if rec == nil && game == nil {
		return
	}
	pctx, cancel := s.persistContext(ctx)
	defer cancel()

	var g errgroup.Group
	if rec != nil {
		g.Go(func() error { return s.deps.Sink.RecordTournamentMatch(pctx, *rec) })
	}
	if game != nil {
		g.Go(func() error { return s.deps.Sink.RecordGame(pctx, *game) })
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to persist tournament match", slog.Any("error", err))
	}
}

func matchResultRecord(m *models.TournamentMatch, now time.Time) *repositories.TournamentMatchResult {
	return &repositories.TournamentMatchResult{
		TournamentID: m.TournamentID,
		MatchID:      m.ID,
		Round:        m.Round,
		WinnerAlias:  derefString(m.Winner),
		ScoreA:       m.ScoreA,
		ScoreB:       m.ScoreB,
		RecordedAt:   now,
	}
}

type forfeitResult struct {
	notices  []notice
	aborts   []abortRequest
	record   *repositories.TournamentMatchResult
	removed  bool
	terminal bool
	guest    bool
	userID   int64
	round    int
	complete bool
}

func (s *tournamentService) DeclareForfeit(ctx context.Context, tournamentID int, alias, reason string) error {
	e, err := s.entry(tournamentID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = ForfeitReasonRequested
	}

	res, err := func() (forfeitResult, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		t := e.t
		var res forfeitResult
		if t.IsTerminal() {
			return res, ErrTournamentNotActive
		}
		p, ok := t.Participant(alias)
		if !ok {
			return res, ErrNotParticipant
		}
		res.guest, res.userID = p.Guest, p.UserID
		now := s.deps.Clock.Now()

		// Владелец, покинувший турнир до старта, отменяет его для всех.
		if alias == t.OwnerAlias && t.Status == models.TournamentStatusWaiting {
			res.aborts, res.notices = s.cancelLocked(t, "owner withdrew before start", now)
			res.terminal = true
			return res, nil
		}

		if m := currentMatchOf(t, alias); m != nil {
			winner, hasOpponent := m.Opponent(alias)
			if !hasOpponent {
				return res, fmt.Errorf("%w: match %d has no opponent", ErrIllegalState, m.ID)
			}
			if m.Status == models.MatchStatusActive && m.Launched {
				res.aborts = []abortRequest{{tournamentID: t.ID, matchID: m.ID}}
			}
			s.finishMatchLocked(e, m, winner, 0, 0, now)
			payload := ForfeitPayload{TournamentID: t.ID, MatchID: m.ID, Alias: alias, Winner: winner, Reason: reason}
			res.notices = append(toPlayers(m, protocol.MsgTournamentForfeit, payload),
				toPlayers(m, protocol.MsgTournamentMatchFinished, matchPayload(m))...)
			res.record = matchResultRecord(m, now)
			res.round = t.CurrentRound
			res.complete = roundComplete(t, t.CurrentRound)
			return res, nil
		}

		if t.Status == models.TournamentStatusWaiting {
			res.notices = toParticipants(t, protocol.MsgTournamentForfeit, ForfeitPayload{TournamentID: t.ID, Alias: alias, Reason: reason})
			t.Participants = slices.DeleteFunc(t.Participants, func(p models.Participant) bool { return p.Alias == alias })
			res.removed = true
			return res, nil
		}
		return res, fmt.Errorf("%w: %q has no open match", ErrIllegalState, alias)
	}()
	if err != nil {
		return err
	}

	s.logger.Info("forfeit declared", slog.Int("tournament_id", tournamentID), slog.String("alias", alias),
		slog.String("reason", reason))
	s.deliver(tournamentID, res.notices)
	if res.removed {
		s.deps.Directory.Unbind(tournamentID, alias)
	}
	s.abortAll(ctx, res.aborts)
	if res.terminal {
		s.deps.Directory.Forget(tournamentID)
	}
	s.persistResult(ctx, res.record, nil)
	if res.guest && s.deps.Identities != nil {
		s.deps.Identities.ReleaseGuest(res.userID)
	}
	if res.complete {
		if err := s.GenerateNextRound(ctx, tournamentID, res.round); err != nil {
			s.logger.Error("round generation after forfeit failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		}
	}
	return nil
}

type sweepResult struct {
	notices  []notice
	records  []*repositories.TournamentMatchResult
	launches []models.TournamentMatch
	t        *models.Tournament
	round    int
	complete bool
}

func (s *tournamentService) CheckExpiredReadyDeadlines(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]int, 0, len(s.tournaments))
	for id := range s.tournaments {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		e, err := s.entry(id)
		if err != nil {
			continue
		}
		res := s.sweepLocked(e, s.deps.Clock.Now())

		s.deliver(id, res.notices)
		for _, rec := range res.records {
			s.persistResult(ctx, rec, nil)
		}
		for _, m := range res.launches {
			s.launch(ctx, res.t, m)
		}
		if res.complete {
			if err := s.GenerateNextRound(ctx, id, res.round); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *tournamentService) sweepLocked(e *tournamentEntry, now time.Time) sweepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.t
	var res sweepResult
	if t.Status != models.TournamentStatusActive {
		return res
	}

	for i := range t.Matches {
		m := &t.Matches[i]
		if m.ReadyDeadline == nil || now.Before(*m.ReadyDeadline) {
			continue
		}
		switch m.Status {
		case models.MatchStatusPending:
			var winner, loser string
			switch {
			case m.ReadyA && !m.ReadyB:
				winner, loser = m.PlayerA, derefString(m.PlayerB)
			case m.ReadyB && !m.ReadyA:
				winner, loser = derefString(m.PlayerB), m.PlayerA
			}
			if winner != "" {
				s.finishMatchLocked(e, m, winner, 0, 0, now)
				payload := ForfeitPayload{TournamentID: t.ID, MatchID: m.ID, Alias: loser, Winner: winner, Reason: ForfeitReasonReadyTimeout}
				res.notices = append(res.notices, toPlayers(m, protocol.MsgTournamentForfeit, payload)...)
				res.records = append(res.records, matchResultRecord(m, now))
			} else {
				m.Status = models.MatchStatusCancelled
				m.FinishedAt = &now
			}
			res.notices = append(res.notices, toPlayers(m, protocol.MsgTournamentMatchFinished, matchPayload(m))...)
			s.logger.Info("ready deadline expired", slog.Int("tournament_id", t.ID), slog.Int("match_id", m.ID),
				slog.String("status", string(m.Status)), slog.String("winner", winner))

		case models.MatchStatusActive:
			if !m.Launched {
				m.Launched = true
				res.launches = append(res.launches, m.Clone())
			}
		}
	}
	if len(res.launches) > 0 {
		res.t = t.Clone()
	}
	res.round = t.CurrentRound
	res.complete = roundComplete(t, t.CurrentRound)
	return res
}

func (s *tournamentService) RecordMatchResult(ctx context.Context, tournamentID, matchID int, winnerAlias string, scoreA, scoreB int) error {
	e, err := s.entry(tournamentID)
	if err != nil {
		return err
	}

	var (
		notices  []notice
		rec      *repositories.TournamentMatchResult
		game     *models.GameRecord
		round    int
		complete bool
	)
	err = func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		t := e.t
		if t.Status != models.TournamentStatusActive {
			return ErrTournamentNotActive
		}
		m := findMatch(t, matchID)
		if m == nil {
			return fmt.Errorf("%w: %d", ErrMatchNotFound, matchID)
		}
		if m.Status != models.MatchStatusActive {
			return ErrMatchNotActive
		}
		if !m.Involves(winnerAlias) {
			return ErrNotMatchParticipant
		}
		now := s.deps.Clock.Now()
		s.finishMatchLocked(e, m, winnerAlias, scoreA, scoreB, now)
		notices = toPlayers(m, protocol.MsgTournamentMatchFinished, matchPayload(m))
		rec = matchResultRecord(m, now)

		pa, okA := t.Participant(m.PlayerA)
		pb, okB := t.Participant(derefString(m.PlayerB))
		if okA && okB && !pa.Guest && !pb.Guest {
			winnerID := pa.UserID
			if winnerAlias != m.PlayerA {
				winnerID = pb.UserID
			}
			game = &models.GameRecord{
				MatchID:    MatchKey(tournamentID, matchID),
				Player1ID:  pa.UserID,
				Player2ID:  pb.UserID,
				Score1:     scoreA,
				Score2:     scoreB,
				WinnerID:   winnerID,
				Mode:       models.GameModeTournament,
				FinishedAt: now,
			}
		}
		round = t.CurrentRound
		complete = roundComplete(t, round)
		return nil
	}()
	if err != nil {
		return err
	}

	s.logger.Info("tournament match recorded", slog.Int("tournament_id", tournamentID), slog.Int("match_id", matchID),
		slog.String("winner", winnerAlias), slog.Int("score_a", scoreA), slog.Int("score_b", scoreB))
	s.deliver(tournamentID, notices)
	s.persistResult(ctx, rec, game)
	if complete {
		return s.GenerateNextRound(ctx, tournamentID, round)
	}
	return nil
}

func (s *tournamentService) AbandonMatch(ctx context.Context, tournamentID, matchID int) error {
	e, err := s.entry(tournamentID)
	if err != nil {
		return err
	}

	var (
		notices  []notice
		round    int
		complete bool
	)
	err = func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		t := e.t
		if t.Status != models.TournamentStatusActive {
			return ErrTournamentNotActive
		}
		m := findMatch(t, matchID)
		if m == nil {
			return fmt.Errorf("%w: %d", ErrMatchNotFound, matchID)
		}
		if m.Status != models.MatchStatusActive {
			return ErrMatchNotActive
		}
		now := s.deps.Clock.Now()
		m.Status = models.MatchStatusCancelled
		m.FinishedAt = &now
		notices = toPlayers(m, protocol.MsgTournamentMatchFinished, matchPayload(m))
		round = t.CurrentRound
		complete = roundComplete(t, round)
		return nil
	}()
	if err != nil {
		return err
	}

	s.logger.Warn("tournament match abandoned", slog.Int("tournament_id", tournamentID), slog.Int("match_id", matchID))
	s.deliver(tournamentID, notices)
	if complete {
		return s.GenerateNextRound(ctx, tournamentID, round)
	}
	return nil
}

func (s *tournamentService) HandleDisconnect(ctx context.Context, userID int64) {
	ids := s.deps.Directory.TournamentsOf(userID)
	slices.Sort(ids)
	for _, tid := range ids {
		alias, ok := s.deps.Directory.AliasOf(tid, userID)
		if !ok {
			continue
		}
		e, err := s.entry(tid)
		if err != nil {
			continue
		}
		e.mu.Lock()
		t := e.t
		forfeit := t.Status == models.TournamentStatusWaiting ||
			(t.Status == models.TournamentStatusActive && currentMatchOf(t, alias) != nil)
		e.mu.Unlock()
		if !forfeit {
			continue
		}
		if err := s.DeclareForfeit(ctx, tid, alias, ForfeitReasonDisconnect); err != nil {
			s.logger.Warn("disconnect forfeit failed", slog.Int("tournament_id", tid), slog.String("alias", alias),
				slog.Any("error", err))
		}
	}
}
