package logger

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is the zap-backed LogManager. Formatted methods do no fmt work
// when the level is disabled.
type logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

func (l *logger) Debug(args ...any) { l.sugar.Debug(args...) }
func (l *logger) Info(args ...any)  { l.sugar.Info(args...) }
func (l *logger) Warn(args ...any)  { l.sugar.Warn(args...) }
func (l *logger) Error(args ...any) { l.sugar.Error(args...) }

func (l *logger) DebugF(format string, args ...any) { l.logf(nil, zapcore.DebugLevel, format, args) }
func (l *logger) InfoF(format string, args ...any)  { l.logf(nil, zapcore.InfoLevel, format, args) }
func (l *logger) WarnF(format string, args ...any)  { l.logf(nil, zapcore.WarnLevel, format, args) }
func (l *logger) ErrorF(format string, args ...any) { l.logf(nil, zapcore.ErrorLevel, format, args) }

func (l *logger) DebugFCtx(ctx context.Context, format string, args ...any) {
	l.logf(ctx, zapcore.DebugLevel, format, args)
}
func (l *logger) InfoFCtx(ctx context.Context, format string, args ...any) {
	l.logf(ctx, zapcore.InfoLevel, format, args)
}
func (l *logger) WarnFCtx(ctx context.Context, format string, args ...any) {
	l.logf(ctx, zapcore.WarnLevel, format, args)
}
func (l *logger) ErrorFCtx(ctx context.Context, format string, args ...any) {
	l.logf(ctx, zapcore.ErrorLevel, format, args)
}

func (l *logger) logf(ctx context.Context, lvl zapcore.Level, format string, args []any) {
	if !l.sugar.Desugar().Core().Enabled(lvl) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	s := l.sugar.WithOptions(zap.AddCallerSkip(1))
	if ctx != nil {
		if fields := ctxFields(ctx); len(fields) > 0 {
			s = s.With(fields...)
		}
	}
	s.Logf(lvl, "%s", msg)
}

// ctxFields collects the registered context values present in ctx, ordered
// by field name so entries are stable across calls.
func ctxFields(ctx context.Context) []any {
	registryMu.RLock()
	names := make([]string, 0, len(contextKeyRegistry))
	byName := make(map[string]any, len(contextKeyRegistry))
	for key, name := range contextKeyRegistry {
		if val := ctx.Value(key); val != nil {
			names = append(names, name)
			byName[name] = val
		}
	}
	registryMu.RUnlock()

	sort.Strings(names)
	fields := make([]any, 0, len(names)*2)
	for _, name := range names {
		fields = append(fields, name, byName[name])
	}
	return fields
}

func (l *logger) With(fields ...any) LogManager {
	return &logger{sugar: l.sugar.With(fields...), level: l.level}
}

func (l *logger) Sync() error {
	return l.sugar.Sync()
}

// SetLogLevel changes the level of this logger and every logger derived
// from it with With.
func (l *logger) SetLogLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}
