package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hdshop/api/internal/platform/requestctx"
)

const (
	envLogLevel     = "LOG_LEVEL"
	defaultLogLevel = zapcore.InfoLevel
)

// NewLogger constructs the process-wide zap logger emitting structured JSON
// with Cloud Logging compatible keys. LOG_LEVEL selects the minimum level;
// unset or invalid values fall back to info.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(defaultLogLevel)
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv(envLogLevel))); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level.SetLevel(parsed)
		}
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",
			TimeKey:    "timestamp",
			LevelKey:   "severity",
			EncodeTime: zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(l.String()))
			},
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// WithRequestFields augments the logger with request-scoped fields.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}
