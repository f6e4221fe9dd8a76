package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"price-window-averager/internal/alerting"
	"price-window-averager/internal/config"
	"price-window-averager/internal/feed"
	"price-window-averager/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable output; logs go through Logger.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFeedClient() feed.Client {
	return feed.NewWebsocket(feed.WebsocketOptions{
		URL:              a.Config.Feed.URL,
		HandshakeTimeout: a.Config.Feed.HandshakeTimeout,
		ReadBuffer:       a.Config.Feed.ReadBuffer,
		UserAgent:        a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close store")
		}
	}
	return store, closer, nil
}

// CacheOptions configure a cache-mode run. Zero values fall back to config.
type CacheOptions struct {
	Window  time.Duration
	Workers int
	Every   time.Duration
}

// ReadOptions configure read mode.
type ReadOptions struct {
	Workers int
}

// ExportOptions hold parameters for exporting persisted records.
type ExportOptions struct {
	Workers   int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

func (a *App) resolveWorkers(override int) int {
	if override > 0 {
		return override
	}
	return a.Config.Run.Workers
}
