package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-window-averager/internal/report"
	"price-window-averager/internal/storage"
)

var (
	// ErrDuplicateReport is returned when one worker id reports twice.
	ErrDuplicateReport = errors.New("duplicate worker report")
	// ErrChannelClosed is returned when the report channel closes early.
	ErrChannelClosed = errors.New("report channel closed before all workers reported")
	// ErrCollectTimeout is returned when Options.CollectTimeout elapses first.
	ErrCollectTimeout = errors.New("report collection deadline exceeded")
)

const persistTimeout = 10 * time.Second

// Options tune the aggregator.
type Options struct {
	// CollectTimeout bounds the wait for all reports. Zero waits forever.
	CollectTimeout time.Duration
	RunID          string
}

// Aggregator waits for one report per worker and combines the local averages.
type Aggregator struct {
	opts   Options
	global storage.GlobalWriter
	logger zerolog.Logger
}

// New constructs an aggregator. global may be nil to skip persistence.
func New(opts Options, global storage.GlobalWriter, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		opts:   opts,
		global: global,
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// Collect blocks until exactly expected reports have arrived, then combines
// them and writes the global record once. Arrival order does not matter.
func (a *Aggregator) Collect(ctx context.Context, expected int, reports <-chan report.WorkerReport) (report.GlobalReport, error) {
	if expected < 1 {
		return report.GlobalReport{}, fmt.Errorf("expected report count must be positive, got %d", expected)
	}

	waitCtx := ctx
	if a.opts.CollectTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.opts.CollectTimeout)
		defer cancel()
	}

	received := make(map[int]report.WorkerReport, expected)
	for len(received) < expected {
		select {
		case <-waitCtx.Done():
			if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return report.GlobalReport{}, fmt.Errorf("%w: %d of %d reports after %s: %w",
					ErrCollectTimeout, len(received), expected, a.opts.CollectTimeout, waitCtx.Err())
			}
			return report.GlobalReport{}, fmt.Errorf("collect reports: %w", waitCtx.Err())
		case rep, ok := <-reports:
			if !ok {
				return report.GlobalReport{}, fmt.Errorf("%w: %d of %d", ErrChannelClosed, len(received), expected)
			}
			if _, dup := received[rep.WorkerID]; dup {
				return report.GlobalReport{}, fmt.Errorf("%w: worker %d", ErrDuplicateReport, rep.WorkerID)
			}
			received[rep.WorkerID] = rep
			a.logReceived(rep)
		}
	}

	all := make([]report.WorkerReport, 0, len(received))
	for _, rep := range received {
		all = append(all, rep)
	}

	global, err := Combine(all)
	if err != nil {
		a.logger.Error().Ints("failed", global.Failed).Msg("every worker failed; no global average")
		return global, err
	}

	a.logger.Info().
		Ints("succeeded", global.Succeeded).
		Ints("failed", global.Failed).
		Str("global_average", decimal.NewFromFloat(global.GlobalAverage).StringFixed(4)).
		Msg("global average computed")

	a.persist(ctx, global)
	return global, nil
}

// Combine partitions reports and computes the mean of the successful local
// averages. Client averages are ordered by worker id regardless of input order.
// With no successes it returns report.ErrNoSuccessfulWorkers and no average.
func Combine(reports []report.WorkerReport) (report.GlobalReport, error) {
	sorted := make([]report.WorkerReport, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].WorkerID < sorted[j].WorkerID })

	var global report.GlobalReport
	for _, rep := range sorted {
		if rep.OK() {
			global.ClientAverages = append(global.ClientAverages, rep.Average)
			global.Succeeded = append(global.Succeeded, rep.WorkerID)
			continue
		}
		global.Failed = append(global.Failed, rep.WorkerID)
	}

	avg, ok := report.Mean(global.ClientAverages)
	if !ok {
		return global, report.ErrNoSuccessfulWorkers
	}
	global.GlobalAverage = avg
	return global, nil
}

func (a *Aggregator) logReceived(rep report.WorkerReport) {
	if rep.OK() {
		a.logger.Info().
			Int("worker_id", rep.WorkerID).
			Str("average", decimal.NewFromFloat(rep.Average).StringFixed(4)).
			Msg("received average from worker")
		return
	}
	a.logger.Warn().
		Int("worker_id", rep.WorkerID).
		AnErr("reason", rep.Reason).
		Msg("worker failed")
}

func (a *Aggregator) persist(ctx context.Context, global report.GlobalReport) {
	if a.global == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	rec := storage.GlobalRecord{
		RunID:          a.opts.RunID,
		ClientAverages: global.ClientAverages,
		GlobalAverage:  global.GlobalAverage,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.global.WriteGlobal(ctx, rec); err != nil {
		a.logger.Error().Err(err).Msg("failed to save global record")
	}
}
