package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Runner executes one trigger. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, t engine.Trigger) (any, error)
}

// LockFactory returns a fresh lock for key. Locks are not shared between
// goroutines, so every run asks for its own.
type LockFactory func(key string) distlock.DistLock

// Scheduler runs each configured trigger on its own ticker. Every run takes
// a distributed lock first so that several worker replicas never execute
// the same trigger at once; a replica that loses the race skips the tick.
type Scheduler struct {
	runner  Runner
	newLock LockFactory
	loops   map[engine.Trigger]time.Duration
	timeout time.Duration
	log     *logger.Logger
}

// NewScheduler creates a scheduler. Triggers with a non-positive interval
// are not scheduled. A nil LockFactory runs without cross-process locking.
func NewScheduler(runner Runner, intervals map[engine.Trigger]time.Duration, newLock LockFactory) *Scheduler {
	loops := make(map[engine.Trigger]time.Duration)
	for t, d := range intervals {
		if d > 0 {
			loops[t] = d
		}
	}
	return &Scheduler{
		runner:  runner,
		newLock: newLock,
		loops:   loops,
		timeout: 10 * time.Minute,
		log:     logger.With("component", "scheduler"),
	}
}

// WithRunTimeout bounds a single trigger run.
func (s *Scheduler) WithRunTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Start runs every loop until ctx is cancelled. It blocks.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for t, interval := range s.loops {
		wg.Add(1)
		go func(t engine.Trigger, interval time.Duration) {
			defer wg.Done()
			s.loop(ctx, t, interval)
		}(t, interval)
	}
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t engine.Trigger, interval time.Duration) {
	s.log.Info("trigger loop started", "trigger", string(t), "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, t); err != nil && ctx.Err() == nil {
				s.log.Error("trigger failed", "trigger", string(t), "error", err)
			}
		}
	}
}

// RunOnce runs t if this process can take its lock. It reports whether the
// trigger ran.
func (s *Scheduler) RunOnce(ctx context.Context, t engine.Trigger) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.newLock != nil {
		lock := s.newLock("outreach:trigger:" + string(t))
		ok, err := lock.Acquire(runCtx)
		if err != nil {
			return false, fmt.Errorf("acquire %s lock: %w", t, err)
		}
		if !ok {
			s.log.Debug("trigger held elsewhere, skipping", "trigger", string(t))
			return false, nil
		}
		defer func() {
			// Release with a fresh context so a cancelled run still unlocks.
			relCtx, relCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer relCancel()
			if err := lock.Release(relCtx); err != nil {
				s.log.Warn("release trigger lock failed", "trigger", string(t), "error", err)
			}
		}()
	}

	start := time.Now()
	out, err := s.runner.Run(runCtx, t)
	if err != nil {
		return true, fmt.Errorf("run %s: %w", t, err)
	}
	s.log.Info("trigger completed", "trigger", string(t), "elapsed", time.Since(start).String(), "result", out)
	return true, nil
}
