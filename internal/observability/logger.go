package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the console logger from LOG_LEVEL (DEBUG, INFO, WARN, ERROR; default INFO)
// and LOG_FORMAT (json, the default, or console for a human-readable terminal encoding).
// Every entry carries service=weather-console.
func NewLogger() (*zap.Logger, error) {
	return buildLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func buildLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = parseLogLevel(level)
	cfg.InitialFields = map[string]interface{}{"service": "weather-console"}

	return cfg.Build()
}

func parseLogLevel(s string) zap.AtomicLevel {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil || lvl > zapcore.ErrorLevel {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zap.NewAtomicLevelAt(lvl)
}

// LoggerFrom returns the request-scoped logger placed by the correlation middleware,
// or fallback when none is present. A nil fallback yields a no-op logger.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}
