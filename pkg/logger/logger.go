// Package logger provides structured logging with context support.
package logger

import (
	"context"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "possync/internal/core/context"
)

// Logger wraps zap.SugaredLogger with context-aware logging.
type Logger struct {
	*zap.SugaredLogger
}

type loggerKey struct{}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder with colours
	OutputPaths []string
	// Fields are attached to every entry, e.g. the terminal id.
	Fields map[string]any
}

// New creates a Logger from configuration. An unknown level falls back to info.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if len(cfg.Fields) > 0 {
		zc.InitialFields = cfg.Fields
	}

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return FromZap(z), nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the process logger. Until SetDefault is called it is a
// production logger writing JSON to stdout.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stdout"}
	z, err := zc.Build()
	if err != nil {
		z = zap.NewNop()
	}
	l := FromZap(z)
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	return defaultLogger.Load()
}

// SetDefault replaces the process logger. Safe to call while other goroutines log.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// WithContext adds trace and terminal fields from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var kv []any

	if trace := appctx.GetTrace(ctx); trace != nil {
		kv = append(kv, "trace_id", trace.TraceID, "request_id", trace.RequestID)
	}
	if t := appctx.GetTerminal(ctx); t != nil {
		kv = append(kv,
			"company_id", t.CompanyID,
			"store_id", t.StoreID,
			"terminal_id", t.TerminalID,
		)
		if t.CashierID != "" {
			kv = append(kv, "cashier_id", t.CashierID)
		}
	}

	if len(kv) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(kv...)}
}

// With adds key-value pairs to logger.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// WithComponent adds component name to logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.SugaredLogger.With("component", name)}
}

// WithLogger adds Logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the Logger stored in ctx, or the default one, enriched
// with the context fields.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l.WithContext(ctx)
	}
	return Default().WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}

// Fatal logs at fatal level and exits.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Fatalw(msg, keysAndValues...)
	os.Exit(1)
}
