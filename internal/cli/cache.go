package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"price-window-averager/internal/app"
)

var (
	cacheWorkers int
	cacheEvery   time.Duration
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Sample the trade stream and persist worker and global averages",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheWorkers < 0 {
			return fmt.Errorf("--workers must not be negative")
		}
		if cacheEvery < 0 {
			return fmt.Errorf("--every must not be negative")
		}
		return runCache(cmd, cacheWorkers, cacheEvery)
	},
}

func init() {
	cacheCmd.Flags().IntVar(&cacheWorkers, "workers", 0, "Number of sampling workers (defaults to config)")
	cacheCmd.Flags().DurationVar(&cacheEvery, "every", 0, "Repeat the run on this interval until interrupted (defaults to config)")
}

// runCache applies --times only when given, so run.window from config still
// wins over the flag default.
func runCache(cmd *cobra.Command, workers int, every time.Duration) error {
	a := getApp()
	opts := app.CacheOptions{Workers: workers, Every: every}

	if cmd.Flags().Changed("times") {
		if seconds < 1 {
			return fmt.Errorf("--times must be at least one second")
		}
		opts.Window = a.Config.ResolveWindow(seconds)
	}

	return a.Cache(cmd.Context(), opts)
}
