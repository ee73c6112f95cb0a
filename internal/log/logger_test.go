package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentApp,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})

	logger.WithComponent(ComponentEngine).Info("drain finished", FieldPending, 0)

	out := buf.String()
	if !strings.Contains(out, "component=engine") || !strings.Contains(out, "pending=0") {
		t.Errorf("unexpected output %q", out)
	}
	if logger.WithComponent(ComponentQueue).Component() != ComponentQueue {
		t.Error("WithComponent should record the component name")
	}
}

func TestLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.log")
	logger := New(Config{
		Level:     slog.LevelInfo,
		Component: ComponentDaemon,
		File:      &FileConfig{Path: path, MaxSizeMB: 1},
	})
	logger.Debug("hidden")
	logger.Info("visible")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := New(DefaultConfig()).Close(); err != nil {
		t.Errorf("closing a stdout logger should be a no-op, got %v", err)
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("expected fallback logger, got component %q", got.Component())
	}
	logger := New(Config{Component: ComponentCLI, Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)})
	ctx := NewContext(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("FromContext should return the stored logger")
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentQueue).
		WithOperation(OpDrain).
		WithChange("transaction", "t1").
		WithError(errors.New("boom")).
		WithError(nil)

	if len(fields) != 5 {
		t.Fatalf("expected 5 fields, got %d: %v", len(fields), fields)
	}
	if len(fields.ToSlice()) != 10 {
		t.Errorf("ToSlice should flatten key/value pairs")
	}
}
