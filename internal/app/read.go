package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-window-averager/internal/storage"
)

// Read prints every persisted worker record followed by the global record.
// Missing or unreadable records are reported in place and never abort the listing.
func (a *App) Read(ctx context.Context, opts ReadOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	workers := a.resolveWorkers(opts.Workers)
	fmt.Fprintln(a.Out, "Mode: read")

	for id := 1; id <= workers; id++ {
		title := fmt.Sprintf("Worker %d", id)
		rec, err := store.ReadWorker(ctx, id)
		if err != nil {
			a.printUnavailable(title, err)
			continue
		}
		fmt.Fprintf(a.Out, "\n%s%s\n", title, savedAt(rec.CreatedAt))
		fmt.Fprintf(a.Out, "Prices: %s\n", fixedList(rec.Prices, 4))
		fmt.Fprintf(a.Out, "Average: %s\n", fixed(rec.Average))
	}

	global, err := store.ReadGlobal(ctx)
	if err != nil {
		a.printUnavailable("Global", err)
		return nil
	}
	fmt.Fprintf(a.Out, "\nGlobal%s\n", savedAt(global.CreatedAt))
	fmt.Fprintf(a.Out, "Client Averages: %s\n", fixedList(global.ClientAverages, 4))
	fmt.Fprintf(a.Out, "Global Average: %s\n", fixed(global.GlobalAverage))
	return nil
}

func (a *App) printUnavailable(title string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(a.Out, "\n%s: missing\n", title)
		return
	}
	a.Logger.Warn().Err(err).Str("record", title).Msg("record unreadable")
	writeInline(a.Out, fmt.Sprintf("\n%s: unreadable: ", title), err.Error())
}

func writeInline(w io.Writer, prefix, text string) {
	cleaned := strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	fmt.Fprintf(w, "%s%s\n", prefix, cleaned)
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func savedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return " (saved " + t.UTC().Format(time.RFC3339) + ")"
}
