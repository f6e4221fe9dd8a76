package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"price-window-averager/internal/feed"
	"price-window-averager/internal/report"
	"price-window-averager/internal/scheduler"
	"price-window-averager/internal/service"
)

// Cache runs the workers and the aggregator once, or repeatedly when an
// interval is configured, persisting every result.
func (a *App) Cache(ctx context.Context, opts CacheOptions) error {
	return a.cache(ctx, opts, a.newFeedClient())
}

func (a *App) cache(ctx context.Context, opts CacheOptions, client feed.Client) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	window := opts.Window
	if window <= 0 {
		window = a.Config.Run.Window
	}
	workers := a.resolveWorkers(opts.Workers)
	every := opts.Every
	if every <= 0 {
		every = a.Config.Run.Every
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svcOpts := service.Options{
		Workers:        workers,
		Window:         window,
		CollectTimeout: a.Config.Run.CollectTimeout,
		NotifySuccess:  a.Config.Alerting.NotifySuccess,
		Source:         a.Config.Source(),
	}

	fmt.Fprintln(a.Out, "Mode: cache")
	fmt.Fprintf(a.Out, "Will listen for %s with %d workers.\n", window, workers)

	if every > 0 {
		sched := scheduler.New(scheduler.Options{
			Interval:     every,
			AlignToStart: a.Config.Run.AlignToBucket,
			Immediate:    true,
		}, a.Logger)
		svc := service.New(svcOpts, sched, client, store, store, a.newNotifier(), a.Logger)
		defer svc.Drain()

		a.Logger.Info().Dur("every", every).Msg("starting scheduled cache runs")
		err := svc.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		a.Logger.Info().Msg("scheduled cache runs stopped")
		return nil
	}

	svc := service.New(svcOpts, nil, client, store, store, a.newNotifier(), a.Logger)
	defer svc.Drain()
	result, err := svc.RunOnce(ctx)
	if errors.Is(err, report.ErrNoSuccessfulWorkers) {
		fmt.Fprintf(a.Out, "\n!!! Cache run %s FAILED: none of the %d workers produced an average. Nothing was cached. !!!\n", result.RunID, workers)
		return err
	}
	if err != nil {
		return err
	}

	printRunSummary(a, result, workers)
	return nil
}

func printRunSummary(a *App, result service.RunResult, workers int) {
	g := result.Global
	fmt.Fprintf(a.Out, "\nRun %s: %d/%d workers succeeded", result.RunID, len(g.Succeeded), workers)
	if len(g.Failed) > 0 {
		fmt.Fprintf(a.Out, " (failed: %s)", joinIDs(g.Failed))
	}
	fmt.Fprintln(a.Out)
	fmt.Fprintf(a.Out, "Client Averages: %s\n", fixedList(g.ClientAverages, 4))
	fmt.Fprintf(a.Out, "Global Average: %s\n", decimal.NewFromFloat(g.GlobalAverage).StringFixed(4))
}

func fixedList(values []float64, places int32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = decimal.NewFromFloat(v).StringFixed(places)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
