package logging

import "testing"

// TestLoggerCreation verifies a nop logger can be created without depending
// on the production zap sink.
func TestLoggerCreation(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("logger creation failed")
	}
}

func TestLoggerInfo(t *testing.T) {
	logger := NewNop()
	logger.Info("test message", "key", "value")
}

func TestLoggerWarn(t *testing.T) {
	logger := NewNop()
	logger.Warn("test warning", "key", "value")
}

func TestLoggerError(t *testing.T) {
	logger := NewNop()
	logger.Error("test error", "key", "value")
}

func TestLoggerMultipleKeyValues(t *testing.T) {
	logger := NewNop()
	logger.Info("request processed", "id", "abc123", "status", 200, "duration", "45ms")
}

func TestLoggerWith(t *testing.T) {
	logger := NewNop()
	scoped := logger.With("backend", "ollama-1:11434")
	scoped.Info("routed request")
}
