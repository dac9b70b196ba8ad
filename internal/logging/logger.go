// Package logging wraps zap with the call-site convention this repo's
// components expect: Info/Warn/Error take a message and alternating
// key/value pairs, rather than zap's Field builders directly.
package logging

import (
	"go.uber.org/zap"
)

// Logger provides structured logging scoped to a component name.
type Logger struct {
	z *zap.SugaredLogger
}

// NewLogger builds a production-configured logger scoped to the given
// component.
func NewLogger(component string) *Logger {
	z, err := zap.NewProduction()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.Sugar().With("component", component)}
}

// NewNop builds a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop().Sugar()}
}

// With returns a child logger with additional fields attached to every
// subsequent call.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{z: l.z.With(keysAndValues...)}
}

// Info logs an informational message with key-value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.z.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.z.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.z.Errorw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
