package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one monitoring cycle.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the fetch-sleep cadence: the first cycle runs immediately
// (after any startup delay), then each subsequent cycle after a full
// interval. Cancellation is observed between cycles, never mid-tick.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick until ctx is cancelled. Tick errors are logged
// and treated as transient; only cancellation stops the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		at := time.Now().UTC()
		if err := s.runTick(ctx, tick, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("cycle failed")
		}

		if err := s.sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

// runTick converts a panicking cycle into an ordinary tick error, so one bad
// cycle never takes the loop down.
func (s *Scheduler) runTick(ctx context.Context, tick TickFunc, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return tick(ctx, at)
}

// Interval reports the configured cycle interval.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
