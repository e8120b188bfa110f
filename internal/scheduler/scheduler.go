package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RoundFunc runs one distribution round. The passed time identifies the
// round, truncated to the interval boundary when alignment is on.
type RoundFunc func(ctx context.Context, round time.Time) error

// Options tune the round cadence.
type Options struct {
	// Interval between rounds.
	Interval time.Duration
	// AlignToStart snaps round times to interval boundaries, so an hourly
	// schedule fires on the hour regardless of when the process started.
	AlignToStart bool
	// StartupDelay defers the first wait, giving dependencies time to settle.
	StartupDelay time.Duration
}

// Scheduler drives recurring distribution rounds at a fixed interval.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New panics on a non-positive interval; config validation rejects that
// before a Scheduler is ever built.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking round once per interval until ctx is cancelled. A
// failed round is logged and the loop carries on; only cancellation ends it.
func (s *Scheduler) Run(ctx context.Context, round RoundFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextRound(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextRound(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_round", next).Msg("waiting for next round")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		start := s.roundStart(next)
		s.logger.Info().Time("round", start).Msg("executing scheduled round")

		if err := round(ctx, start); err != nil {
			s.logger.Error().Err(err).Time("round", start).Msg("round execution failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextRound(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	round := now.Truncate(s.opts.Interval)
	if !round.After(now) {
		round = round.Add(s.opts.Interval)
	}
	return round
}

func (s *Scheduler) roundStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
