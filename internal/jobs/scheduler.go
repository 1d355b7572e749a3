// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/epgsync/internal/log"
)

// RunFunc executes one sync.
type RunFunc func(ctx context.Context) (*Status, error)

// Scheduler repeats a sync on a fixed interval. Runs never overlap: a run
// that outlasts the interval delays the next one instead of racing it on
// the same output files.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	after    func(*Status, error)
	last     atomic.Pointer[Status]
}

// NewScheduler creates a scheduler. after, when non-nil, is called once per
// finished run.
func NewScheduler(interval time.Duration, run RunFunc, after func(*Status, error)) *Scheduler {
	return &Scheduler{interval: interval, run: run, after: after}
}

// Start runs immediately and then on every tick. It blocks until ctx is
// canceled and returns nil; run failures are logged and the loop goes on.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := xglog.WithComponent("scheduler")
	logger.Info().
		Str(xglog.FieldEvent, "scheduler.start").
		Dur("interval", s.interval).
		Msg("sync scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(xglog.FieldEvent, "scheduler.stop").Msg("sync scheduler stopped")
			return nil
		case <-ticker.C:
			// The ticker drops ticks while a run blocks here.
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	st, err := s.run(ctx)
	if st != nil {
		s.last.Store(st)
	}
	if s.after != nil {
		s.after(st, err)
	}
}

// Last returns the status of the most recent run, or nil before the first
// run finished.
func (s *Scheduler) Last() *Status {
	return s.last.Load()
}
