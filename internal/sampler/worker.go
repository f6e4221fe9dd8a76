package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-window-averager/internal/feed"
	"price-window-averager/internal/report"
	"price-window-averager/internal/storage"
)

const persistTimeout = 10 * time.Second

// Options configure one sampling worker.
type Options struct {
	ID     int
	Window time.Duration
	RunID  string
}

// Worker listens to its own feed connection for one window and reports a
// local average. Workers share nothing with each other.
type Worker struct {
	opts    Options
	client  feed.Client
	records storage.RecordWriter
	logger  zerolog.Logger
}

// New constructs a worker. records may be nil to skip persistence.
func New(opts Options, client feed.Client, records storage.RecordWriter, logger zerolog.Logger) *Worker {
	return &Worker{
		opts:    opts,
		client:  client,
		records: records,
		logger: logger.With().
			Str("component", "worker").
			Int("worker_id", opts.ID).
			Logger(),
	}
}

// Run samples one window, sends the report on reports exactly once, then
// attempts the worker record write exactly once. reports must have room for
// the send; the aggregator never waits on the write.
func (w *Worker) Run(ctx context.Context, reports chan<- report.WorkerReport) report.WorkerReport {
	rep := w.Sample(ctx)
	reports <- rep
	w.persist(ctx, rep)
	return rep
}

// Sample opens a connection, accumulates prices until the window closes or
// the stream ends, and returns the outcome. It has no side effects.
func (w *Worker) Sample(ctx context.Context) report.WorkerReport {
	stream, err := w.client.Connect(ctx)
	if err != nil {
		if !errors.Is(err, report.ErrConnection) {
			err = fmt.Errorf("%w: %w", report.ErrConnection, err)
		}
		w.logger.Error().Err(err).Msg("failed to connect to feed")
		return report.Failed(w.opts.ID, err)
	}
	defer stream.Close()

	w.logger.Info().Dur("window", w.opts.Window).Msg("connected, sampling")

	windowCtx, cancel := context.WithTimeout(ctx, w.opts.Window)
	defer cancel()

	var (
		samples []float64
		skipped int
	)
	for {
		event, err := stream.Next(windowCtx)
		if err == nil {
			samples = append(samples, event.Price)
			continue
		}
		if feed.IsDecodeError(err) {
			skipped++
			w.logger.Warn().Err(err).Msg("skipping malformed message")
			continue
		}
		switch {
		case ctx.Err() != nil:
			w.logger.Warn().Err(ctx.Err()).Int("samples", len(samples)).Msg("sampling cancelled")
		case windowCtx.Err() != nil:
			w.logger.Debug().Int("samples", len(samples)).Msg("window elapsed")
		default:
			w.logger.Warn().Err(err).Int("samples", len(samples)).Msg("stream ended before window closed")
		}
		break
	}

	rep := report.Succeeded(w.opts.ID, samples)
	if !rep.OK() {
		w.logger.Error().Int("skipped", skipped).Msg("no data points collected")
		return rep
	}

	w.logger.Info().
		Int("samples", len(rep.Samples)).
		Int("skipped", skipped).
		Str("average", decimal.NewFromFloat(rep.Average).StringFixed(4)).
		Msg("local average computed")
	return rep
}

func (w *Worker) persist(ctx context.Context, rep report.WorkerReport) {
	if w.records == nil || !rep.OK() {
		return
	}

	// The write is attempted even when the run is being torn down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	rec := storage.WorkerRecord{
		WorkerID:  rep.WorkerID,
		RunID:     w.opts.RunID,
		Prices:    rep.Samples,
		Average:   rep.Average,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.records.WriteWorker(ctx, rec); err != nil {
		w.logger.Error().Err(err).Msg("failed to save worker record")
		return
	}
	w.logger.Debug().Msg("worker record saved")
}
