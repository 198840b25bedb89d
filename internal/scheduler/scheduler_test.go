package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtMostOneCycleInFlight(t *testing.T) {
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32
	var skips atomic.Int32
	release := make(chan struct{})

	sched := New(Options{
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
		OnSkip:     func() { skips.Add(1) },
	}, zerolog.Nop())

	sched.Start(func(ctx context.Context) error {
		current := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if current <= prev || maxInFlight.CompareAndSwap(prev, current) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return nil
	})

	// Let several ticks land while the first cycle blocks.
	time.Sleep(40 * time.Millisecond)
	close(release)
	sched.Stop()

	assert.Equal(t, int32(1), maxInFlight.Load(), "concurrent cycles must never exceed 1")
	assert.Greater(t, skips.Load(), int32(0), "overlapping fires should be skipped, not queued")
}

func TestStartIsIdempotent(t *testing.T) {
	var runs atomic.Int32
	sched := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())

	tick := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}
	sched.Start(tick)
	sched.Start(tick)
	sched.Start(tick)

	require.Eventually(t, func() bool {
		return runs.Load() == 1 && sched.State() == StateScheduled
	}, time.Second, time.Millisecond)

	sched.Stop()
	assert.Equal(t, int32(1), runs.Load())
}

func TestStopIsIdempotentAndDrains(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	sched := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())
	sched.Start(func(ctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		close(finished)
		return nil
	})

	<-started
	sched.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop must wait for the in-flight cycle to finish")
	}

	assert.Equal(t, StateStopped, sched.State())
	sched.Stop() // no-op
	assert.Equal(t, StateStopped, sched.State())
}

func TestStopBeforeStart(t *testing.T) {
	sched := New(Options{Interval: time.Hour}, zerolog.Nop())
	sched.Stop()
	assert.Equal(t, StateStopped, sched.State())

	// A stopped scheduler does not rearm.
	sched.Start(func(ctx context.Context) error { return nil })
	assert.Equal(t, StateStopped, sched.State())
}

func TestTickContextCancelledOnStop(t *testing.T) {
	observed := make(chan error, 1)
	sched := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())
	sched.Start(func(ctx context.Context) error {
		<-ctx.Done()
		observed <- ctx.Err()
		return nil
	})

	sched.Stop()
	require.ErrorIs(t, <-observed, context.Canceled)
}
