package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("PORT", "9100")
	if cfg, err := LoadConfig(); err != nil || cfg.Port != "9100" {
		t.Fatalf("LoadConfig() = %v, %v", cfg, err)
	}

	t.Setenv("PORT", "nope")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestShutdown(t *testing.T) {
	tests := []struct {
		name    string
		cleanup func(context.Context) error
		want    string
	}{
		{"clean", func(context.Context) error { return nil }, "Shutdown complete"},
		{"error", func(context.Context) error { return errors.New("boom") }, "Shutdown error"},
		{"timeout", func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }, "Shutdown timeout reached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			Shutdown(logger, 10*time.Millisecond, tt.cleanup)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(context.Background(), slog.Default())
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}
