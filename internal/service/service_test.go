package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-window-averager/internal/aggregator"
	"price-window-averager/internal/alerting"
	"price-window-averager/internal/feed"
	"price-window-averager/internal/report"
	"price-window-averager/internal/scheduler"
	"price-window-averager/internal/storage"
)

// listStream yields fixed prices and then ends.
type listStream struct {
	prices []float64
	pos    int
}

func (s *listStream) Next(ctx context.Context) (report.PriceEvent, error) {
	if s.pos >= len(s.prices) {
		return report.PriceEvent{}, feed.ErrStreamClosed
	}
	p := s.prices[s.pos]
	s.pos++
	return report.PriceEvent{Price: p}, nil
}

func (s *listStream) Close() error { return nil }

type fixedClient struct {
	prices  []float64
	err     error
	connect atomic.Int32
}

func (c *fixedClient) Connect(ctx context.Context) (feed.Stream, error) {
	c.connect.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &listStream{prices: c.prices}, nil
}

type captureNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (n *captureNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func TestRunOncePersistsEverything(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	client := &fixedClient{prices: []float64{10, 20}}
	svc := New(Options{Workers: 3, Window: time.Second}, nil, client, store, store, nil, zerolog.Nop())

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("run id should be assigned")
	}
	if result.Global.GlobalAverage != 15 || len(result.Global.ClientAverages) != 3 {
		t.Fatalf("unexpected global report %+v", result.Global)
	}
	if got := client.connect.Load(); got != 3 {
		t.Fatalf("each worker should open its own connection, got %d", got)
	}

	ctx := context.Background()
	for id := 1; id <= 3; id++ {
		rec, err := store.ReadWorker(ctx, id)
		if err != nil {
			t.Fatalf("worker %d record: %v", id, err)
		}
		if rec.Average != 15 {
			t.Fatalf("worker %d average %v", id, rec.Average)
		}
	}
	global, err := store.ReadGlobal(ctx)
	if err != nil {
		t.Fatalf("global record: %v", err)
	}
	if global.GlobalAverage != 15 {
		t.Fatalf("unexpected global record %+v", global)
	}
}

func TestRunOnceAllFailed(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	notifier := &captureNotifier{}
	client := &fixedClient{err: errors.New("refused")}
	svc := New(Options{Workers: 5, Window: time.Second, Source: "windowavg/test"}, nil, client, store, store, notifier, zerolog.Nop())

	result, err := svc.RunOnce(context.Background())
	if !errors.Is(err, report.ErrNoSuccessfulWorkers) {
		t.Fatalf("expected ErrNoSuccessfulWorkers, got %v", err)
	}
	if len(result.Global.Failed) != 5 {
		t.Fatalf("expected 5 failed workers, got %v", result.Global.Failed)
	}
	if _, err := store.ReadGlobal(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("global record must not be written, got %v", err)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Err == nil {
		t.Fatalf("total failure should be notified once, got %+v", notifier.notes)
	}
	if notifier.notes[0].Source != "windowavg/test" {
		t.Fatalf("notification should carry the source, got %q", notifier.notes[0].Source)
	}
}

func TestRunOnceSuccessNotificationOptIn(t *testing.T) {
	notifier := &captureNotifier{}
	client := &fixedClient{prices: []float64{1}}

	svc := New(Options{Workers: 2, Window: time.Second}, nil, client, nil, nil, notifier, zerolog.Nop())
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("successful runs are silent unless NotifySuccess is set")
	}

	svc = New(Options{Workers: 2, Window: time.Second, NotifySuccess: true}, nil, client, nil, nil, notifier, zerolog.Nop())
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].GlobalAverage != 1 {
		t.Fatalf("expected one success notification, got %+v", notifier.notes)
	}
}

func TestRunScheduled(t *testing.T) {
	client := &fixedClient{prices: []float64{5}}
	sched := scheduler.New(scheduler.Options{Interval: 5 * time.Millisecond, Immediate: true, MaxRuns: 2}, zerolog.Nop())
	svc := New(Options{Workers: 2, Window: time.Second}, sched, client, nil, nil, nil, zerolog.Nop())

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("scheduled run: %v", err)
	}
	if got := client.connect.Load(); got != 4 {
		t.Fatalf("expected 2 runs x 2 workers = 4 connections, got %d", got)
	}
}

func TestRunWithoutScheduler(t *testing.T) {
	svc := New(Options{Workers: 1, Window: time.Second}, nil, &fixedClient{}, nil, nil, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run without scheduler should fail")
	}
}

// tickingStream yields a price every few milliseconds until its context ends.
type tickingStream struct{}

func (tickingStream) Next(ctx context.Context) (report.PriceEvent, error) {
	select {
	case <-ctx.Done():
		return report.PriceEvent{}, ctx.Err()
	case <-time.After(2 * time.Millisecond):
		return report.PriceEvent{Price: 42}, nil
	}
}

func (tickingStream) Close() error { return nil }

type tickingClient struct{}

func (tickingClient) Connect(ctx context.Context) (feed.Stream, error) {
	return tickingStream{}, nil
}

func TestDrainWaitsForWorkersAfterCollectTimeout(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	svc := New(Options{Workers: 2, Window: 150 * time.Millisecond, CollectTimeout: 10 * time.Millisecond}, nil, tickingClient{}, store, store, nil, zerolog.Nop())

	_, err = svc.RunOnce(context.Background())
	if !errors.Is(err, aggregator.ErrCollectTimeout) {
		t.Fatalf("expected ErrCollectTimeout, got %v", err)
	}

	ctx := context.Background()
	if _, err := store.ReadWorker(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("worker should still be sampling when collection gives up, got %v", err)
	}

	svc.Drain()
	for id := 1; id <= 2; id++ {
		rec, err := store.ReadWorker(ctx, id)
		if err != nil {
			t.Fatalf("worker %d record should be written before Drain returns: %v", id, err)
		}
		if rec.Average != 42 {
			t.Fatalf("worker %d average %v", id, rec.Average)
		}
	}
	if _, err := store.ReadGlobal(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("timed-out run must not write a global record, got %v", err)
	}
}

func TestRunOnceWaitsForStragglers(t *testing.T) {
	client := tickingClient{}
	svc := New(Options{Workers: 1, Window: 100 * time.Millisecond, CollectTimeout: 10 * time.Millisecond}, nil, client, nil, nil, nil, zerolog.Nop())

	start := time.Now()
	if _, err := svc.RunOnce(context.Background()); !errors.Is(err, aggregator.ErrCollectTimeout) {
		t.Fatalf("expected ErrCollectTimeout, got %v", err)
	}

	// The second run may only dispatch once the first run's worker is done.
	svc.opts.CollectTimeout = 0
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("second run overlapped the straggler, both finished in %s", elapsed)
	}
}
