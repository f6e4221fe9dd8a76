package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"price-window-averager/internal/app"
	"price-window-averager/internal/config"
	"price-window-averager/internal/logging"
)

// Modes accepted by --mode.
const (
	modeCache = "cache"
	modeRead  = "read"
)

var (
	cfgFile   string
	logLevel  string
	mode      string
	seconds   int
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:          "windowavg",
	Short:        "Average live trade prices over a fixed window with concurrent workers",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging).With().
			Str("app", cfg.App.Name).
			Str("env", cfg.App.Environment).
			Logger()
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch mode {
		case modeCache:
			return runCache(cmd, 0, 0)
		case modeRead:
			return getApp().Read(cmd.Context(), app.ReadOptions{})
		default:
			return fmt.Errorf("invalid mode %q: expected %q or %q", mode, modeCache, modeRead)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().IntVarP(&seconds, "times", "t", 1, "Listening window in whole seconds (cache mode)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", modeCache, "Mode to run: cache or read")

	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
