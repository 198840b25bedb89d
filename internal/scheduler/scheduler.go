// Package scheduler fires the monitoring cycle on a fixed cadence. It is an
// explicit object owned by the composition root rather than process-global
// timer state, with an idempotent Start/Stop lifecycle.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one monitoring cycle. The context is cancelled when the
// scheduler stops; implementations observe it at their own safe boundaries.
type TickFunc func(ctx context.Context) error

// State names the scheduler lifecycle phases.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
)

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// RunOnStart fires one cycle immediately instead of waiting a full interval.
	RunOnStart bool
	// OnSkip is invoked when a fire is dropped because a cycle is in flight.
	OnSkip func()
}

// Scheduler drives periodic execution of a tick function. At most one cycle
// is ever in flight: a fire that lands while the previous cycle is still
// running is skipped, not queued.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		state:  StateIdle,
	}
}

// State reports the current lifecycle phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start arms the periodic timer. Starting an already-started scheduler is a
// no-op; a stopped scheduler stays stopped.
func (s *Scheduler) Start(tick TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		s.logger.Debug().Str("state", string(s.state)).Msg("start ignored")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateScheduled

	s.logger.Info().Dur("interval", s.opts.Interval).Msg("scheduler started")
	go s.loop(ctx, tick)
}

// Stop cancels the pending timer and waits for an in-flight cycle to drain.
// The cycle observes cancellation only at its next event boundary; nothing is
// interrupted mid-event. Stopping twice is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateIdle {
		s.state = StateStopped
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.state = StateStopped
	s.mu.Unlock()

	cancel()
	<-done
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, tick TickFunc) {
	defer close(s.done)

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.fire(ctx, tick)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, tick)
		}
	}
}

// fire starts one cycle unless one is already running. A fire that lands
// mid-cycle is dropped, not queued.
func (s *Scheduler) fire(ctx context.Context, tick TickFunc) {
	s.mu.Lock()
	if s.state != StateScheduled {
		s.mu.Unlock()
		s.logger.Warn().Msg("tick skipped; previous cycle still running")
		if s.opts.OnSkip != nil {
			s.opts.OnSkip()
		}
		return
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Debug().Msg("executing scheduled tick")
		if err := tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("tick execution failed")
		}

		s.mu.Lock()
		if s.state == StateRunning {
			s.state = StateScheduled
		}
		s.mu.Unlock()
	}()
}
