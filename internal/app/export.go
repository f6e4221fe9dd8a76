package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"

	"price-window-averager/internal/storage"
)

// Export renders persisted worker samples as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	workers := a.resolveWorkers(opts.Workers)
	records := make([]storage.WorkerRecord, 0, workers)
	for id := 1; id <= workers; id++ {
		rec, err := store.ReadWorker(ctx, id)
		if err != nil {
			a.Logger.Warn().Err(err).Int("worker_id", id).Msg("skipping worker record")
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no worker records found for export")
		return nil
	}

	var global *storage.GlobalRecord
	if rec, err := store.ReadGlobal(ctx); err == nil {
		global = &rec
	} else {
		a.Logger.Warn().Err(err).Msg("global record unavailable for export")
	}

	a.Logger.Info().Int("records", len(records)).Int("max_points", opts.MaxPoints).Msg("exporting records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, records, global); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, records, global, opts.MaxPoints); err != nil {
			return err
		}
	}

	return nil
}

// downsample keeps at most max evenly spaced samples, returning their
// source indices alongside the values.
func downsample(values []float64, max int) ([]float64, []float64) {
	n := len(values)
	if max <= 1 || n <= max {
		xs := make([]float64, n)
		for i := range values {
			xs[i] = float64(i)
		}
		return xs, values
	}

	xs := make([]float64, 0, max)
	ys := make([]float64, 0, max)
	step := float64(n-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= n {
			idx = n - 1
		}
		xs = append(xs, float64(idx))
		ys = append(ys, values[idx])
	}
	return xs, ys
}

func writeRecordsCSV(path string, records []storage.WorkerRecord, global *storage.GlobalRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"worker_id", "sample_index", "price", "worker_average", "global_average"}
	if err := writer.Write(header); err != nil {
		return err
	}

	globalAvg := ""
	if global != nil {
		globalAvg = formatCSVFloat(global.GlobalAverage)
	}
	for _, rec := range records {
		for i, price := range rec.Prices {
			row := []string{
				strconv.Itoa(rec.WorkerID),
				strconv.Itoa(i),
				formatCSVFloat(price),
				formatCSVFloat(rec.Average),
				globalAvg,
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordsPNG(path string, records []storage.WorkerRecord, global *storage.GlobalRecord, maxPoints int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	longest := 0
	series := make([]chart.Series, 0, len(records)+1)
	for _, rec := range records {
		if len(rec.Prices) == 0 {
			continue
		}
		xs, ys := downsample(rec.Prices, maxPoints)
		for _, y := range ys {
			lo, hi = math.Min(lo, y), math.Max(hi, y)
		}
		if len(rec.Prices) > longest {
			longest = len(rec.Prices)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("Worker %d", rec.WorkerID),
			XValues: xs,
			YValues: ys,
		})
	}
	if len(series) == 0 {
		return errors.New("no samples to chart")
	}

	xMax := float64(longest - 1)
	if xMax < 1 {
		xMax = 1
	}
	if global != nil {
		lo, hi = math.Min(lo, global.GlobalAverage), math.Max(hi, global.GlobalAverage)
		series = append(series, chart.ContinuousSeries{
			Name:    "Global average",
			XValues: []float64{0, xMax},
			YValues: []float64{global.GlobalAverage, global.GlobalAverage},
			Style: chart.Style{
				StrokeColor:     chart.ColorRed,
				StrokeDashArray: []float64{5, 5},
			},
		})
	}

	// go-chart refuses zero-width ranges, which a flat price window produces.
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.0005, 0.01)
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:  "Sample",
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: lo - pad, Max: hi + pad},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func formatCSVFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
