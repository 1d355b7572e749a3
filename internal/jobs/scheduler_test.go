// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestScheduler_RunsSequentiallyUntilCanceled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		runs     atomic.Int32
		inflight atomic.Int32
		overlap  atomic.Bool
		afters   atomic.Int32
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := func(context.Context) (*Status, error) {
		if inflight.Add(1) > 1 {
			overlap.Store(true)
		}
		defer inflight.Add(-1)
		// Outlast the interval so ticks pile up.
		time.Sleep(15 * time.Millisecond)
		n := runs.Add(1)
		if n%2 == 0 {
			return &Status{Outcome: OutcomeFailed}, errors.New("mirror down")
		}
		return &Status{Outcome: OutcomeUpdated}, nil
	}
	s := NewScheduler(5*time.Millisecond, run, func(*Status, error) { afters.Add(1) })
	assert.Nil(t, s.Last())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.False(t, overlap.Load())
	assert.Equal(t, runs.Load(), afters.Load())
	require.NotNil(t, s.Last())
}

func TestScheduler_CanceledBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs atomic.Int32
	s := NewScheduler(time.Hour, func(context.Context) (*Status, error) {
		runs.Add(1)
		return &Status{}, nil
	}, nil)

	require.NoError(t, s.Start(ctx))
	assert.Zero(t, runs.Load())
	assert.Nil(t, s.Last())
}
