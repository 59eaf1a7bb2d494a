// Package logger provides a slog-based structured logger used across the gateway.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// instanceID identifies this gateway process. Used to correlate logs across
// distributed deployments (e.g. multiple gateway replicas behind a load balancer).
var instanceID string

func init() {
	instanceID = os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = os.Getenv("HOSTNAME")
	}
	if instanceID == "" {
		b := make([]byte, 4)
		_, _ = rand.Read(b)
		instanceID = hex.EncodeToString(b)
	}
}

// GetInstanceID returns the instance ID for this gateway process.
func GetInstanceID() string {
	return instanceID
}

// Config holds logger construction options.
type Config struct {
	Level  slog.Level
	Format string // "text" or "json"
}

type contextKey string

const (
	// ContextKeyClientRequestID is the key for a Client Call's request ID in the context.
	ContextKeyClientRequestID contextKey = "client_request_id"
	// ContextKeyModelID is the key for the model being dispatched to.
	ContextKeyModelID contextKey = "model_id"
	// ContextKeySource is the key for the upstream source (ollama/open_code_zen/openrouter).
	ContextKeySource contextKey = "source"
)

// Logger wraps slog.Logger with gateway-specific context helpers.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from Config.
func New(config Config) *Logger {
	if config.Format == "json" {
		opts := &slog.HandlerOptions{
			Level: config.Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format(time.RFC3339))}
				}
				return a
			},
		}
		return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(slog.String("instance_id", instanceID))}
	}

	opts := &tint.Options{
		Level:      config.Level,
		TimeFormat: time.Kitchen,
	}
	return &Logger{Logger: slog.New(tint.NewHandler(os.Stdout, opts)).With(slog.String("instance_id", instanceID))}
}

// FromLevelAndFormat builds a Config from string level/format names, defaulting
// to JSON in production (APP_ENV=production) the way the rest of the config
// layer resolves environment-conditioned defaults.
func FromLevelAndFormat(level, format string) Config {
	cfg := Config{Level: slog.LevelInfo, Format: "text"}

	switch level {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "info":
		cfg.Level = slog.LevelInfo
	case "warn":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	}

	if format != "" {
		cfg.Format = format
	}

	if os.Getenv("APP_ENV") == "production" {
		cfg.Format = "json"
	}

	return cfg
}

// WithContext attaches request-scoped attributes pulled from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if id, ok := ctx.Value(ContextKeyClientRequestID).(string); ok && id != "" {
		logger = logger.With(slog.String("client_request_id", id))
	}
	if model, ok := ctx.Value(ContextKeyModelID).(string); ok && model != "" {
		logger = logger.With(slog.String("model_id", model))
	}
	if source, ok := ctx.Value(ContextKeySource).(string); ok && source != "" {
		logger = logger.With(slog.String("source", source))
	}

	return &Logger{Logger: logger}
}

// WithComponent tags all records from this logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}
