package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// =============================================================================
// Test Logger
// =============================================================================

// TestLogger_SlogLogger tests the slog-backed logger
// Main test items:
// 1. Fields are written as slog attributes
// 2. Records below the handler level are skipped
func TestLogger_SlogLogger(t *testing.T) {
	// Given: A text handler at Info level
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	// When: Logging at Debug and Warn
	logger.Debug("hidden", F("k", 1))
	logger.Warn("pool resized", F("pool", "io"), F("ceiling", 3))

	// Then: Only the Warn record is written, with its fields
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written: %q", out)
	}
	if !strings.Contains(out, "pool resized") || !strings.Contains(out, "pool=io") || !strings.Contains(out, "ceiling=3") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLogger_NoOpLogger(t *testing.T) {
	// Given: A NoOpLogger
	logger := NewNoOpLogger()

	// When/Then: Logging does not panic
	logger.Debug("test")
	logger.Info("test", F("key", "value"))
	logger.Warn("test")
	logger.Error("test")
}

// =============================================================================
// Test PanicHandler
// =============================================================================

func TestLoggingPanicHandler(t *testing.T) {
	// Given: A LoggingPanicHandler writing to a buffer
	var buf bytes.Buffer
	handler := &LoggingPanicHandler{Logger: NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-pool", 42, "test panic", []byte("stack trace"))

	// Then: The panic is logged at Error level
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "test panic") || !strings.Contains(out, "worker=42") {
		t.Errorf("unexpected output: %q", out)
	}
}

// =============================================================================
// Test Errors
// =============================================================================

// TestExecutionError tests error wrapping
// Main test items:
// 1. ExecutionError unwraps to the work's error
// 2. IsExecutionError sees through further wrapping
func TestExecutionError(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("loading: %w", &ExecutionError{Err: cause})

	if !IsExecutionError(err) {
		t.Error("IsExecutionError() = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the cause")
	}
	if IsExecutionError(cause) {
		t.Error("IsExecutionError(cause) = true")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() = %q", err.Error())
	}
}

// =============================================================================
// Test Context Helpers
// =============================================================================

func TestGetCurrentTaskRunner(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	//nolint:staticcheck // nil context is part of the contract
	if GetCurrentTaskRunner(nil) != nil {
		t.Error("GetCurrentTaskRunner(nil) != nil")
	}
	ctx := WithTaskRunner(context.Background(), runner)
	if GetCurrentTaskRunner(ctx) != runner {
		t.Error("GetCurrentTaskRunner did not return the tagged runner")
	}
	if !runner.BelongsToCurrentThread(ctx) {
		t.Error("BelongsToCurrentThread(tagged ctx) = false")
	}
}
