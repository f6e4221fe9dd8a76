package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunFunc is invoked once per scheduled slot.
type RunFunc func(ctx context.Context, slot time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	// Immediate runs once right away before waiting for the first slot.
	Immediate bool
	// MaxRuns stops the loop after that many runs; zero means unbounded.
	MaxRuns int
}

// Scheduler repeats cache-mode runs on a fixed cadence.
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

// Run blocks, invoking fn at each slot until ctx is cancelled or MaxRuns is
// reached. A failing run is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context, fn RunFunc) error {
	runs := 0
	invoke := func(slot time.Time) bool {
		s.logger.Info().Time("slot", slot).Int("run", runs+1).Msg("starting scheduled run")
		if err := fn(ctx, slot); err != nil {
			s.logger.Error().Err(err).Time("slot", slot).Msg("scheduled run failed")
		}
		runs++
		return s.opts.MaxRuns > 0 && runs >= s.opts.MaxRuns
	}

	if s.opts.Immediate {
		if invoke(time.Now().UTC()) {
			return nil
		}
	}

	next := s.nextSlot(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextSlot(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_slot", next).Msg("waiting for next slot")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if invoke(s.slotStart(next)) {
			return nil
		}
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextSlot(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func (s *Scheduler) slotStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
