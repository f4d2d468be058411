package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/user/drivecap/pkg/ports"
)

// StructuredLogger writes JSON log lines through zap.
// Messages are not translated so that log processors see stable text.
type StructuredLogger struct {
	log *zap.SugaredLogger
}

// NewStructured creates a JSON logger writing to w at the given level.
func NewStructured(level ports.LogLevel, w io.Writer) *StructuredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(w),
		zapLevel(level),
	)
	return &StructuredLogger{log: zap.New(core).Sugar()}
}

func zapLevel(level ports.LogLevel) zapcore.LevelEnabler {
	switch level {
	case ports.LevelDebug:
		return zapcore.DebugLevel
	case ports.LevelWarn:
		return zapcore.WarnLevel
	case ports.LevelError:
		return zapcore.ErrorLevel
	case ports.LevelQuiet:
		return zap.LevelEnablerFunc(func(zapcore.Level) bool { return false })
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs a debug message.
func (l *StructuredLogger) Debug(msg string, args ...interface{}) {
	l.log.Debugf(msg, args...)
}

// Info logs an informational message.
func (l *StructuredLogger) Info(msg string, args ...interface{}) {
	l.log.Infof(msg, args...)
}

// Warn logs a warning message.
func (l *StructuredLogger) Warn(msg string, args ...interface{}) {
	l.log.Warnf(msg, args...)
}

// Error logs an error message.
func (l *StructuredLogger) Error(msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}

// WithComponent returns a logger that adds a "component" field.
func (l *StructuredLogger) WithComponent(component string) ports.Logger {
	return &StructuredLogger{log: l.log.With("component", component)}
}

// Sync flushes buffered entries.
func (l *StructuredLogger) Sync() error {
	return l.log.Sync()
}

var _ ports.Logger = (*StructuredLogger)(nil)
