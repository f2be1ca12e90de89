package bootstrap

import (
	"log/slog"
	"testing"

	"github.com/siprak/portal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":  slog.LevelDebug,
		" WARN ": slog.LevelWarn,
		"error":  slog.LevelError,
		"info":   slog.LevelInfo,
		"":       slog.LevelInfo,
		"trace":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadConfigRejectsInvalidAuth(t *testing.T) {
	t.Setenv("AUTH_MODE", "local")
	t.Setenv("LOCAL_AUTH_JWT_SECRET", "short")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected short local auth secret to be rejected")
	}
}

func TestLoadConfigMockMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("NOTIFICATIONS_FETCH_LIMIT", "20")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.Mode != config.AuthModeMock {
		t.Fatalf("unexpected auth mode %q", cfg.Auth.Mode)
	}
	if cfg.Notifications.FetchLimit != 20 {
		t.Fatalf("unexpected fetch limit %d", cfg.Notifications.FetchLimit)
	}
}

func TestBuildMetricsDisabled(t *testing.T) {
	if c := BuildMetrics(config.ObservabilityMetricsConfig{}, config.AuthModeMock, nil); c != nil {
		t.Fatal("expected no client when metrics are disabled")
	}
}
