package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
	// Output is "stderr" (default) or "stdout". Read mode prints records on
	// stdout, so logs stay off it unless asked.
	Output string `mapstructure:"output"`
}

// NewLogger constructs a zerolog logger from config.
func NewLogger(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	ctx := zerolog.New(logWriter(cfg, outputStream(cfg.Output))).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func outputStream(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

func logWriter(cfg Config, out io.Writer) io.Writer {
	if !cfg.PrettyPrint && !strings.EqualFold(cfg.Format, "console") {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
}
