package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BindAddr != ":8080" {
		t.Fatalf("Server.BindAddr = %q, want :8080", cfg.Server.BindAddr)
	}
	if cfg.TTS.DefaultBackend != "edge" {
		t.Fatalf("TTS.DefaultBackend = %q, want edge", cfg.TTS.DefaultBackend)
	}
	if cfg.Sensor.AlertCooldown != 300*time.Second {
		t.Fatalf("Sensor.AlertCooldown = %v, want 300s", cfg.Sensor.AlertCooldown)
	}
}

func TestLoadNestedEnvOverride(t *testing.T) {
	t.Setenv("WALLACE_SERVER__BIND_ADDR", ":9191")
	t.Setenv("WALLACE_LLM__URL", "http://localhost:7777/custom")
	t.Setenv("WALLACE_CARE__PUSH_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BindAddr != ":9191" {
		t.Fatalf("Server.BindAddr = %q, want :9191", cfg.Server.BindAddr)
	}
	if cfg.LLM.URL != "http://localhost:7777/custom" {
		t.Fatalf("LLM.URL = %q, want explicit value", cfg.LLM.URL)
	}
	if cfg.Care.PushTimeout != 5*time.Second {
		t.Fatalf("Care.PushTimeout = %v, want 5s", cfg.Care.PushTimeout)
	}
}

func TestLoadRejectsHeartbeatTimeoutBelowInterval(t *testing.T) {
	t.Setenv("WALLACE_SERVER__HEARTBEAT_INTERVAL", "60s")
	t.Setenv("WALLACE_SERVER__HEARTBEAT_TIMEOUT", "30s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want validation error")
	}
}
