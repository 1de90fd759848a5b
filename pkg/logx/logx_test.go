package logx

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-agent")

	if logger.GetAgentID() != "test-agent" {
		t.Errorf("Expected agent ID 'test-agent', got '%s'", logger.GetAgentID())
	}

	if logger.logger == nil {
		t.Error("Expected logger to be initialized")
	}
}

func TestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("runner")
	logger.logger = log.New(&buf, "", 0)

	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[runner]") {
		t.Errorf("Expected agent ID in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test-agent")
	logger.logger = log.New(&buf, "", 0)

	tests := []struct {
		level    Level
		logFunc  func(string, ...interface{})
		expected string
	}{
		{LevelDebug, logger.Debug, "DEBUG"},
		{LevelInfo, logger.Info, "INFO"},
		{LevelWarn, logger.Warn, "WARN"},
		{LevelError, logger.Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf.Reset()
			tt.logFunc("test message")

			output := buf.String()
			if !strings.Contains(output, tt.expected) {
				t.Errorf("Expected level '%s' in output, got: %s", tt.expected, output)
			}
		})
	}
}

func TestWithAgentID(t *testing.T) {
	originalLogger := NewLogger("original-agent")
	newLogger := originalLogger.WithAgentID("new-agent")

	if newLogger.GetAgentID() != "new-agent" {
		t.Errorf("Expected new agent ID 'new-agent', got '%s'", newLogger.GetAgentID())
	}
	if originalLogger.GetAgentID() != "original-agent" {
		t.Errorf("Expected original agent ID unchanged, got '%s'", originalLogger.GetAgentID())
	}
	if newLogger.logger != originalLogger.logger {
		t.Error("Expected loggers to share the same underlying log.Logger")
	}
}

func TestMultipleAgents(t *testing.T) {
	var buf bytes.Buffer

	bus := NewLogger("bus")
	bus.logger = log.New(&buf, "", 0)

	runner := NewLogger("taskrunner")
	runner.logger = log.New(&buf, "", 0)

	bus.Info("Routing message")
	runner.Info("Executing task")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")

	if len(lines) != 2 {
		t.Errorf("Expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[bus]") {
		t.Errorf("Expected first line to contain [bus], got: %s", lines[0])
	}
	if !strings.Contains(lines[1], "[taskrunner]") {
		t.Errorf("Expected second line to contain [taskrunner], got: %s", lines[1])
	}
}

func TestLogLevelConstants(t *testing.T) {
	expectedLevels := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}

	for level, expected := range expectedLevels {
		if string(level) != expected {
			t.Errorf("Expected level constant %s to equal '%s', got '%s'",
				expected, expected, string(level))
		}
	}
}
