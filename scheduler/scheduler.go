package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// GameLoop is the part of the gameplay service driven by timers.
type GameLoop interface {
	BroadcastStates() int
	DrainFinished(ctx context.Context) int
	Cleanup(ctx context.Context) int
}

// DeadlineSweeper resolves expired tournament ready deadlines.
type DeadlineSweeper interface {
	CheckExpiredReadyDeadlines(ctx context.Context) error
}

type Config struct {
	BroadcastInterval time.Duration
	DrainInterval     time.Duration
	DeadlineInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = time.Second / 60
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 100 * time.Millisecond
	}
	if c.DeadlineInterval <= 0 {
		c.DeadlineInterval = 5 * time.Second
	}
	return c
}

// Scheduler owns the three periodic loops of the server: state broadcast, finished-match
// drain and the deadline sweep. A loop never overlaps with itself.
type Scheduler struct {
	cfg         Config
	games       GameLoop
	tournaments DeadlineSweeper
	sched       gocron.Scheduler
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, games GameLoop, tournaments DeadlineSweeper, clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:         cfg,
		games:       games,
		tournaments: tournaments,
		sched:       sched,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"broadcast", cfg.BroadcastInterval, func() { s.BroadcastStates() }},
		{"drain", cfg.DrainInterval, func() { s.DrainFinished(s.ctx) }},
		{"deadlines", cfg.DeadlineInterval, func() {
			if err := s.SweepDeadlines(s.ctx); err != nil {
				s.logger.Error("deadline sweep failed", slog.Any("error", err))
			}
		}},
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to register %s job: %w", j.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info("scheduler started",
		slog.Duration("broadcast", s.cfg.BroadcastInterval),
		slog.Duration("drain", s.cfg.DrainInterval),
		slog.Duration("deadlines", s.cfg.DeadlineInterval))
}

// Stop cancels in-flight steps and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// BroadcastStates runs one broadcast step.
func (s *Scheduler) BroadcastStates() int {
	return s.games.BroadcastStates()
}

// DrainFinished runs one drain step.
func (s *Scheduler) DrainFinished(ctx context.Context) int {
	n := s.games.DrainFinished(ctx)
	if n > 0 {
		s.logger.Debug("finished matches drained", slog.Int("count", n))
	}
	return n
}

// SweepDeadlines runs one deadline step: tournament ready deadlines, then engine cleanup.
func (s *Scheduler) SweepDeadlines(ctx context.Context) error {
	err := s.tournaments.CheckExpiredReadyDeadlines(ctx)
	if removed := s.games.Cleanup(ctx); removed > 0 {
		s.logger.Info("stale matches removed", slog.Int("count", removed))
	}
	return err
}
