package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"price-window-averager/internal/aggregator"
	"price-window-averager/internal/alerting"
	"price-window-averager/internal/feed"
	"price-window-averager/internal/report"
	"price-window-averager/internal/sampler"
	"price-window-averager/internal/scheduler"
	"price-window-averager/internal/storage"
)

// Options describe one cache-mode run.
type Options struct {
	Workers        int
	Window         time.Duration
	CollectTimeout time.Duration
	NotifySuccess  bool
	// Source is copied into notifications.
	Source         string
}

// RunResult is what a completed cache-mode run hands back to the caller.
type RunResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Global   report.GlobalReport
}

// Service orchestrates workers, the aggregator, persistence and alerting.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	client    feed.Client
	records   storage.RecordWriter
	global    storage.GlobalWriter
	notifier  alerting.Notifier
	logger    zerolog.Logger

	// inflight counts workers across runs, including ones a timed-out
	// collection stopped waiting for.
	inflight sync.WaitGroup
}

// New constructs the cache-mode service. sched, records, global and notifier may be nil.
func New(opts Options, sched *scheduler.Scheduler, client feed.Client, records storage.RecordWriter, global storage.GlobalWriter, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		opts:      opts,
		scheduler: sched,
		client:    client,
		records:   records,
		global:    global,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run repeats RunOnce on the configured schedule until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, slot time.Time) error {
		_, err := s.RunOnce(ctx)
		return err
	})
}

// RunOnce dispatches every worker at once, waits for the aggregator and
// returns its result. report.ErrNoSuccessfulWorkers is returned when no
// worker produced an average.
func (s *Service) RunOnce(ctx context.Context) (RunResult, error) {
	if s.opts.Workers < 1 {
		return RunResult{}, fmt.Errorf("worker count must be positive, got %d", s.opts.Workers)
	}

	// Stragglers from a timed-out run must finish writing before new
	// workers reuse their ids.
	s.inflight.Wait()

	result := RunResult{RunID: uuid.NewString(), Started: time.Now().UTC()}
	logger := s.logger.With().Str("run_id", result.RunID).Logger()

	// One slot per worker: a send never blocks, even after the aggregator gave up.
	reports := make(chan report.WorkerReport, s.opts.Workers)

	agg := aggregator.New(aggregator.Options{
		CollectTimeout: s.opts.CollectTimeout,
		RunID:          result.RunID,
	}, s.global, logger)

	type collected struct {
		global report.GlobalReport
		err    error
	}
	done := make(chan collected, 1)
	go func() {
		global, err := agg.Collect(ctx, s.opts.Workers, reports)
		done <- collected{global: global, err: err}
	}()

	logger.Info().Int("workers", s.opts.Workers).Dur("window", s.opts.Window).Msg("dispatching workers")

	var wg sync.WaitGroup
	for id := 1; id <= s.opts.Workers; id++ {
		w := sampler.New(sampler.Options{ID: id, Window: s.opts.Window, RunID: result.RunID}, s.client, s.records, logger)
		wg.Add(1)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer wg.Done()
			w.Run(ctx, reports)
		}()
	}

	out := <-done
	if errors.Is(out.err, aggregator.ErrCollectTimeout) {
		logger.Warn().Msg("collection timed out; not waiting for outstanding workers")
	} else {
		// Worker record writes run after each report is sent.
		wg.Wait()
	}

	result.Finished = time.Now().UTC()
	result.Global = out.global
	s.notify(ctx, result, out.err)

	if out.err != nil {
		return result, out.err
	}
	return result, nil
}

// Drain blocks until every dispatched worker has returned, including workers
// left running after a collection timeout. Call it before closing the stores.
func (s *Service) Drain() {
	s.inflight.Wait()
}

func (s *Service) notify(ctx context.Context, result RunResult, runErr error) {
	if s.notifier == nil {
		return
	}
	if runErr == nil && !s.opts.NotifySuccess {
		return
	}

	note := alerting.Notification{
		Source:         s.opts.Source,
		RunID:          result.RunID,
		Finished:       result.Finished,
		Workers:        s.opts.Workers,
		Succeeded:      result.Global.Succeeded,
		Failed:         result.Global.Failed,
		ClientAverages: result.Global.ClientAverages,
		GlobalAverage:  result.Global.GlobalAverage,
		Err:            runErr,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("failed to dispatch notification")
	}
}
