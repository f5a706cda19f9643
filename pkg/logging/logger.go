// Package logging configures the zerolog logger shared by the offline cache.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelTrace adds per-key store operations.
	LevelTrace LogLevel = "trace"

	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Generation is added to every line when set, usually the static
	// bucket name.
	Generation string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Generation != "" {
		ctx = ctx.Str("generation", cfg.Generation)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown levels fall back
// to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hit/miss per bucket scope
//   - Strategy decisions (fallback chain, passthrough)
//   - Lifecycle transitions
//
// Info: Normal operation events
//   - Install and activation complete
//   - Controller claimed clients
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Network failures answered from cache or placeholder
//   - Background cache write failures
//   - Stale bucket deletion failures
//
// Error: Error conditions requiring attention
//   - Install failed (manifest not fetchable)
//   - Store backend unavailable at startup
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (strategy, lifecycle, interceptor, ...)
//   - url: request URL
//   - key: cache key ("METHOD url")
//   - bucket / static_bucket: bucket names
//   - class: request class (bypass, remote_asset, navigation, generic)
//   - status: HTTP status code
//   - controller_id: lifecycle controller instance
//   - from / to / event: lifecycle transition
