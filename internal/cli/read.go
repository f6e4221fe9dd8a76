package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-window-averager/internal/app"
)

var readWorkers int

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Print persisted worker and global records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if readWorkers < 0 {
			return fmt.Errorf("--workers must not be negative")
		}
		return getApp().Read(cmd.Context(), app.ReadOptions{Workers: readWorkers})
	},
}

func init() {
	readCmd.Flags().IntVar(&readWorkers, "workers", 0, "Number of worker records to look up (defaults to config)")
}
