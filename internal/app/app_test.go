package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-window-averager/internal/config"
	"price-window-averager/internal/feed"
	"price-window-averager/internal/report"
	"price-window-averager/internal/storage"
)

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

type listClient struct {
	prices []float64
	err    error
}

func (c listClient) Connect(ctx context.Context) (feed.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &listStream{prices: c.prices}, nil
}

func newTestApp(t *testing.T, workers int) (*App, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Run:         config.RunConfig{Workers: workers, Window: time.Second},
		Persistence: config.PersistenceConfig{Backend: config.BackendFile, Dir: dir},
		Export:      config.ExportConfig{MaxDataPoints: 100},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out, dir
}

func TestCacheThenRead(t *testing.T) {
	a, out, _ := newTestApp(t, 2)

	if err := a.cache(context.Background(), CacheOptions{}, listClient{prices: []float64{10, 20.5}}); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if !strings.Contains(out.String(), "Global Average: 15.2500") {
		t.Fatalf("summary missing global average:\n%s", out.String())
	}

	out.Reset()
	if err := a.Read(context.Background(), ReadOptions{}); err != nil {
		t.Fatalf("read: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Worker 1", "Worker 2", "Average: 15.2500", "Prices: [10.0000, 20.5000]", "Client Averages: [15.2500, 15.2500]", "Global Average: 15.2500"} {
		if !strings.Contains(text, want) {
			t.Fatalf("read output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "missing") {
		t.Fatalf("no record should be missing:\n%s", text)
	}
}

func TestCacheAllWorkersFailed(t *testing.T) {
	a, out, dir := newTestApp(t, 3)

	err := a.cache(context.Background(), CacheOptions{}, listClient{err: errors.New("refused")})
	if !errors.Is(err, report.ErrNoSuccessfulWorkers) {
		t.Fatalf("expected ErrNoSuccessfulWorkers, got %v", err)
	}
	if !strings.Contains(out.String(), "FAILED") {
		t.Fatalf("total failure should be printed prominently:\n%s", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "global_data.txt")); !os.IsNotExist(err) {
		t.Fatalf("global record must not be written, stat err %v", err)
	}
}

func TestReadReportsMissingAndUnreadable(t *testing.T) {
	a, out, dir := newTestApp(t, 3)
	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ctx := context.Background()
	if err := store.WriteWorker(ctx, storage.WorkerRecord{WorkerID: 1, Prices: []float64{1, 2}, Average: 1.5}); err != nil {
		t.Fatalf("write worker: %v", err)
	}
	if err := os.WriteFile(store.WorkerPath(2), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	if err := a.Read(ctx, ReadOptions{}); err != nil {
		t.Fatalf("read should not fail on absent records: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Average: 1.5000", "Worker 2: unreadable", "Worker 3: missing", "Global: missing"} {
		if !strings.Contains(text, want) {
			t.Fatalf("read output missing %q:\n%s", want, text)
		}
	}
}

func TestExportCSV(t *testing.T) {
	a, _, dir := newTestApp(t, 2)
	if err := a.cache(context.Background(), CacheOptions{}, listClient{prices: []float64{4, 6}}); err != nil {
		t.Fatalf("cache: %v", err)
	}

	path := filepath.Join(dir, "out", "records.csv")
	if err := a.Export(context.Background(), ExportOptions{CSVPath: path}); err != nil {
		t.Fatalf("export: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header + 4 rows, got %d", len(rows))
	}
	if rows[1][0] != "1" || rows[1][2] != "4" || rows[1][3] != "5" || rows[1][4] != "5" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
}

func TestExportRequiresTarget(t *testing.T) {
	a, _, _ := newTestApp(t, 1)
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("export without --csv or --png should fail")
	}
}

func TestDownsample(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	xs, ys := downsample(values, 4)
	if len(xs) != 4 || xs[0] != 0 || xs[3] != 9 || ys[3] != 9 {
		t.Fatalf("unexpected downsample %v %v", xs, ys)
	}

	xs, ys = downsample(values[:3], 4)
	if len(xs) != 3 || len(ys) != 3 {
		t.Fatalf("short input should pass through, got %v", xs)
	}
}

func TestExportPNG(t *testing.T) {
	a, _, dir := newTestApp(t, 2)
	if err := a.cache(context.Background(), CacheOptions{}, listClient{prices: []float64{7, 7, 7}}); err != nil {
		t.Fatalf("cache: %v", err)
	}

	path := filepath.Join(dir, "chart.png")
	if err := a.Export(context.Background(), ExportOptions{PNGPath: path}); err != nil {
		t.Fatalf("export flat window: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}
