// Package logging provides a small context-scoped logging facade over
// zap, adapted from kopia's repo/logging package. Production code never
// imports zap directly; it calls a module-scoped logger obtained through
// a LoggerFactory threaded on the context.
package logging

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sugared logging surface used throughout the uploader.
type Logger interface {
	Debug(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// LoggerFactory produces a module's Logger given a context.
type LoggerFactory func(ctx context.Context) Logger

type loggerKey struct{}

var nullLoggerFactory LoggerFactory = func(ctx context.Context) Logger { //nolint:gochecknoglobals
	return zapLogger{zap.NewNop().Sugar()}
}

// Module returns a LoggerFactory scoped to the given module name. When
// the context carries no logger (via WithLogger) the returned factory
// produces a no-op Logger, matching kopia's "safe by default" behavior.
func Module(module string) LoggerFactory {
	return func(ctx context.Context) Logger {
		base := loggerFromContext(ctx)
		if base == nil {
			return nullLoggerFactory(ctx)
		}

		return base.module(module)
	}
}

// WithLogger attaches a LoggerFactory-producing base logger to ctx. All
// Module(...)(ctx) calls derived from the returned context will use it.
func WithLogger(ctx context.Context, factory func(module string) Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, &rootLogger{factory: factory})
}

// WithAdditionalLogger fans out log calls to both the existing logger (if
// any) attached to ctx and the additional one produced by factory.
func WithAdditionalLogger(ctx context.Context, factory func(module string) Logger) context.Context {
	existing := loggerFromContext(ctx)
	if existing == nil {
		return WithLogger(ctx, factory)
	}

	return context.WithValue(ctx, loggerKey{}, &rootLogger{
		factory: func(module string) Logger {
			return Broadcast(existing.module(module), factory(module))
		},
	})
}

type rootLogger struct {
	factory func(module string) Logger
}

func (r *rootLogger) module(name string) Logger {
	return r.factory(name)
}

func loggerFromContext(ctx context.Context) *rootLogger {
	v, _ := ctx.Value(loggerKey{}).(*rootLogger)
	return v
}

// ToWriter returns a factory that builds module loggers writing
// plain-text lines (no timestamp, no caller, for deterministic tests) to w.
func ToWriter(w io.Writer) func(module string) Logger {
	return func(module string) Logger {
		enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey:  "msg",
			NameKey:     "logger",
			LineEnding:  "\n",
			EncodeLevel: zapcore.CapitalLevelEncoder,
		})
		core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel)

		return zapLogger{zap.New(core).Named(module).Sugar()}
	}
}

// Broadcast returns a Logger that forwards every call to all of loggers.
func Broadcast(loggers ...Logger) Logger {
	return broadcastLogger(loggers)
}

type broadcastLogger []Logger

func (b broadcastLogger) Debug(args ...interface{}) {
	for _, l := range b {
		l.Debug(args...)
	}
}

func (b broadcastLogger) Debugw(msg string, kv ...interface{}) {
	for _, l := range b {
		l.Debugw(msg, kv...)
	}
}

func (b broadcastLogger) Info(args ...interface{}) {
	for _, l := range b {
		l.Info(args...)
	}
}

func (b broadcastLogger) Infow(msg string, kv ...interface{}) {
	for _, l := range b {
		l.Infow(msg, kv...)
	}
}

func (b broadcastLogger) Warn(args ...interface{}) {
	for _, l := range b {
		l.Warn(args...)
	}
}

func (b broadcastLogger) Warnw(msg string, kv ...interface{}) {
	for _, l := range b {
		l.Warnw(msg, kv...)
	}
}

func (b broadcastLogger) Error(args ...interface{}) {
	for _, l := range b {
		l.Error(args...)
	}
}

func (b broadcastLogger) Errorw(msg string, kv ...interface{}) {
	for _, l := range b {
		l.Errorw(msg, kv...)
	}
}

// zapLogger adapts *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	*zap.SugaredLogger
}

// NewProductionFactory builds module loggers backed by a zap production
// logger (JSON, leveled, one line per entry). Pass it to WithLogger to
// attach it to a context; nothing in this repository does so on its own.
func NewProductionFactory() func(module string) Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}

	return func(module string) Logger {
		return zapLogger{base.Named(module).Sugar()}
	}
}
