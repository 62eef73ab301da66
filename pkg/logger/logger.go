// Package logger is the zap-backed LogManager used across the module.
// Library types default to NewNop so nothing is printed unless a caller
// passes a real logger in.
package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/milan604/sessionhttp/pkg/config"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "requestID"
	SessionIDKey ContextKey = "sessionID"
)

func init() {
	RegisterContextKey(SessionIDKey, "session_id")
	RegisterContextKey(RequestIDKey, "request_id")
}

type LogManager interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	DebugF(format string, args ...any)
	InfoF(format string, args ...any)
	WarnF(format string, args ...any)
	ErrorF(format string, args ...any)

	DebugFCtx(ctx context.Context, format string, args ...any)
	InfoFCtx(ctx context.Context, format string, args ...any)
	WarnFCtx(ctx context.Context, format string, args ...any)
	ErrorFCtx(ctx context.Context, format string, args ...any)

	With(keyValues ...any) LogManager

	Sync() error
	SetLogLevel(level string) error
}

// LoggerOptions configure NewLogger. Zero values pick console output on
// stdout at info level.
type LoggerOptions struct {
	Level    string
	Encoding string // "json" or "console"
	// OutputPaths and ErrorPaths accept zap sinks: "stdout", "stderr" or file paths.
	OutputPaths  []string
	ErrorPaths   []string
	EnableCaller bool
	// EnableStack adds stack traces from warn level; errors always carry one.
	EnableStack bool
	TimeFormat  string
}

func (o LoggerOptions) withDefaults() LoggerOptions {
	if o.Level == "" {
		o.Level = "info"
	}
	if o.Encoding == "" {
		o.Encoding = "console"
	}
	if o.TimeFormat == "" {
		o.TimeFormat = time.RFC3339
	}
	if len(o.OutputPaths) == 0 {
		o.OutputPaths = []string{"stdout"}
	}
	if len(o.ErrorPaths) == 0 {
		o.ErrorPaths = []string{"stderr"}
	}
	return o
}

func (o LoggerOptions) encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(o.TimeFormat)
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	if o.Encoding == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if !o.EnableCaller {
		enc.CallerKey = zapcore.OmitKey
	}
	return enc
}

// NewLogger builds a zap-backed LogManager whose level can change at runtime
// through SetLogLevel. An unknown level falls back to info.
func NewLogger(opts LoggerOptions) (LogManager, error) {
	opts = opts.withDefaults()

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	_ = level.UnmarshalText([]byte(opts.Level))

	zl, err := zap.Config{
		Level:            level,
		Development:      level.Level() == zap.DebugLevel,
		Encoding:         opts.Encoding,
		EncoderConfig:    opts.encoderConfig(),
		OutputPaths:      opts.OutputPaths,
		ErrorOutputPaths: opts.ErrorPaths,
	}.Build(zap.AddStacktrace(stackLevel(opts.EnableStack)), zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}

	return &logger{sugar: zl.Sugar(), level: level}, nil
}

func stackLevel(enabled bool) zapcore.Level {
	if enabled {
		return zap.WarnLevel
	}
	return zap.ErrorLevel
}

// Config keys read by FromConfig.
const (
	KeyLevel    = "log.level"
	KeyEncoding = "log.encoding"
	KeyCaller   = "log.caller"
	KeyOutputs  = "log.outputs"
)

// FromConfig builds a logger from the log.* keys.
func FromConfig(cfg *config.Config) (LogManager, error) {
	return NewLogger(LoggerOptions{
		Level:        cfg.GetStringD(KeyLevel, "info"),
		Encoding:     cfg.GetStringD(KeyEncoding, "console"),
		OutputPaths:  cfg.GetStringSlice(KeyOutputs),
		EnableCaller: cfg.GetBoolD(KeyCaller, true),
	})
}

// MustNewDefaultLogger returns an info-level console logger or exits.
func MustNewDefaultLogger() LogManager {
	l, err := NewLogger(LoggerOptions{EnableCaller: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	return l
}

// New wraps an existing zap logger. SetLogLevel on the result does not
// reach the wrapped core.
func New(l *zap.Logger) LogManager {
	return &logger{
		sugar: l.Sugar(),
		level: zap.NewAtomicLevelAt(zap.DebugLevel),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() LogManager {
	return New(zap.NewNop())
}
