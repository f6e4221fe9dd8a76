package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"price-window-averager/internal/logging"
)

// Persistence backends understood by storage.Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Run         RunConfig         `mapstructure:"run"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Database    DatabaseConfig    `mapstructure:"database"`
	SQLite      SQLiteConfig      `mapstructure:"sqlite"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig describes the trade stream endpoint.
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadBuffer       int           `mapstructure:"read_buffer"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// RunConfig governs a cache-mode run.
type RunConfig struct {
	Workers        int           `mapstructure:"workers"`
	Window         time.Duration `mapstructure:"window"`
	CollectTimeout time.Duration `mapstructure:"collect_timeout"`
	Every          time.Duration `mapstructure:"every"`
	AlignToBucket  bool          `mapstructure:"align_to_bucket"`
}

// PersistenceConfig selects where worker and global records live.
type PersistenceConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig covers the redis record backend.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// AlertingConfig defines run outcome notifications.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	NotifySuccess bool           `mapstructure:"notify_success"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WINDOWAVG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "windowavg")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("feed.url", "wss://stream.binance.com:9443/ws/btcusdt@trade")
	v.SetDefault("feed.handshake_timeout", "10s")
	v.SetDefault("feed.read_buffer", 64)
	v.SetDefault("feed.user_agent", "windowavg/1.0")

	v.SetDefault("run.workers", 5)
	v.SetDefault("run.window", "1s")
	v.SetDefault("run.collect_timeout", "0s")
	v.SetDefault("run.every", "0s")
	v.SetDefault("run.align_to_bucket", true)

	v.SetDefault("persistence.backend", BackendFile)
	v.SetDefault("persistence.dir", ".")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("sqlite.path", "windowavg.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "windowavg")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_success", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1")
	}
	if c.Run.Window <= 0 {
		return fmt.Errorf("run.window must be greater than zero")
	}
	if c.Run.CollectTimeout < 0 {
		return fmt.Errorf("run.collect_timeout cannot be negative")
	}
	if c.Run.Every < 0 {
		return fmt.Errorf("run.every cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	switch strings.ToLower(c.Persistence.Backend) {
	case BackendFile:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown persistence.backend %q", c.Persistence.Backend)
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// Source names this deployment as "<app.name>/<app.environment>", dropping
// empty parts.
func (c *Config) Source() string {
	name, env := strings.TrimSpace(c.App.Name), strings.TrimSpace(c.App.Environment)
	switch {
	case name == "":
		return env
	case env == "":
		return name
	default:
		return name + "/" + env
	}
}

// ResolveWindow returns the CLI override in whole seconds, or the configured window.
func (c *Config) ResolveWindow(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return c.Run.Window
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
