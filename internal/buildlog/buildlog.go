// Package buildlog provides the compiler's build logger. Warnings never
// abort a compilation; they are counted so the CLI can print a summary and
// decide the exit code.
package buildlog

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger and keeps shared warning/error counters.
// Loggers derived with With share the counters of their parent.
type Logger struct {
	sugar    *zap.SugaredLogger
	warnings *atomic.Int64
	errors   *atomic.Int64
}

// New creates a Logger writing to stderr.
// Mode "prod" uses JSON output; "quiet" and "verbose" adjust the console
// level; anything else uses the console encoder at info level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	case "quiet":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "verbose", "debug":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	zl, err := cfg.Build(zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return nil, err
	}
	return &Logger{
		sugar:    zl.Sugar(),
		warnings: &atomic.Int64{},
		errors:   &atomic.Int64{},
	}, nil
}

// NewNop returns a Logger that discards all output. Counters still work,
// which lets tests assert on warning counts without capturing output.
func NewNop() *Logger {
	return &Logger{
		sugar:    zap.NewNop().Sugar(),
		warnings: &atomic.Int64{},
		errors:   &atomic.Int64{},
	}
}

// With returns a Logger with additional structured context (e.g. course id).
// The returned Logger shares counters with the receiver.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{
		sugar:    l.sugar.With(keysAndValues...),
		warnings: l.warnings,
		errors:   l.errors,
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

// Warnf logs a recoverable problem and increments the shared warning count.
func (l *Logger) Warnf(format string, args ...any) {
	l.warnings.Add(1)
	l.sugar.Warnf(format, args...)
}

// Errorf logs a fatal compilation problem and increments the error count.
func (l *Logger) Errorf(format string, args ...any) {
	l.errors.Add(1)
	l.sugar.Errorf(format, args...)
}

// Warnings returns the number of warnings logged so far.
func (l *Logger) Warnings() int { return int(l.warnings.Load()) }

// Errors returns the number of errors logged so far.
func (l *Logger) Errors() int { return int(l.errors.Load()) }

// Sync flushes buffered log entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
