package main

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		skipped slog.Level
	}{
		{"DEBUG", slog.LevelDebug, slog.LevelDebug - 1},
		{"INFO", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"ERROR", slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		for _, format := range []string{"json", "text"} {
			t.Run(tt.level+"/"+format, func(t *testing.T) {
				logger := newLogger(tt.level, format)
				if !logger.Enabled(context.Background(), tt.enabled) {
					t.Errorf("expected level %v to be enabled", tt.enabled)
				}
				if logger.Enabled(context.Background(), tt.skipped) {
					t.Errorf("expected level %v to be disabled", tt.skipped)
				}
			})
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	if _, ok := newLogger("INFO", "text").Handler().(*slog.TextHandler); !ok {
		t.Error("expected a text handler")
	}
	if _, ok := newLogger("INFO", "json").Handler().(*slog.JSONHandler); !ok {
		t.Error("expected a json handler")
	}
}
