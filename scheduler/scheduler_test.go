package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type countingLoop struct {
	broadcasts atomic.Int32
	drains     atomic.Int32
	cleanups   atomic.Int32
}

func (l *countingLoop) BroadcastStates() int {
	l.broadcasts.Add(1)
	return 0
}

func (l *countingLoop) DrainFinished(ctx context.Context) int {
	l.drains.Add(1)
	return 0
}

func (l *countingLoop) Cleanup(ctx context.Context) int {
	l.cleanups.Add(1)
	return 0
}

type countingSweeper struct {
	sweeps atomic.Int32
	err    error
}

func (s *countingSweeper) CheckExpiredReadyDeadlines(ctx context.Context) error {
	s.sweeps.Add(1)
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepDeadlinesRunsCleanupEvenOnError(t *testing.T) {
	loop := &countingLoop{}
	sweeper := &countingSweeper{err: errors.New("db down")}
	s, err := New(Config{}, loop, sweeper, clockwork.NewFakeClock(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	if err := s.SweepDeadlines(context.Background()); !errors.Is(err, sweeper.err) {
		t.Fatalf("err = %v, want sweeper error", err)
	}
	if sweeper.sweeps.Load() != 1 || loop.cleanups.Load() != 1 {
		t.Fatalf("sweeps=%d cleanups=%d", sweeper.sweeps.Load(), loop.cleanups.Load())
	}
}

func TestJobsFireOnClock(t *testing.T) {
	loop := &countingLoop{}
	sweeper := &countingSweeper{}
	clock := clockwork.NewFakeClock()
	s, err := New(Config{
		BroadcastInterval: 10 * time.Millisecond,
		DrainInterval:     20 * time.Millisecond,
		DeadlineInterval:  time.Second,
	}, loop, sweeper, clock, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		clock.Advance(10 * time.Millisecond)
		if loop.broadcasts.Load() > 0 && loop.drains.Load() > 0 && sweeper.sweeps.Load() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("jobs did not fire: broadcasts=%d drains=%d sweeps=%d",
		loop.broadcasts.Load(), loop.drains.Load(), sweeper.sweeps.Load())
}
