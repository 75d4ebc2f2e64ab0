package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvAppEnv, "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if !cfg.App.IsProd() {
		t.Fatalf("expected App.Env to be prod, got %q", cfg.App.Env)
	}
	if got := cfg.Sync.BackoffFloor; got != 30*time.Second {
		t.Fatalf("expected backoff floor 30s, got %v", got)
	}
	if got := cfg.Sync.BackoffCeiling; got != 5*time.Minute {
		t.Fatalf("expected backoff ceiling 5m, got %v", got)
	}
	if got := cfg.Sync.RequestTimeout; got != 15*time.Second {
		t.Fatalf("expected request timeout 15s, got %v", got)
	}
	if cfg.Orders.MoneyScale != 3 {
		t.Fatalf("expected money scale 3, got %d", cfg.Orders.MoneyScale)
	}
	if cfg.Orders.NumberStyle != "short" {
		t.Fatalf("unexpected number style %q", cfg.Orders.NumberStyle)
	}
}

func TestLoad_RejectsInvertedBackoff(t *testing.T) {
	t.Setenv(EnvSyncBackoffFloor, "10m")
	t.Setenv(EnvSyncBackoffCeiling, "1m")

	if _, err := Load(); err == nil {
		t.Fatal("expected inverted backoff window to return an error")
	}
}

func TestLoad_RedisSecretsRequireEndpoint(t *testing.T) {
	t.Setenv(EnvSecretsBackend, "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected redis secrets backend without endpoint to fail")
	}

	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.Redis.Enabled() {
		t.Fatal("expected redis to be enabled")
	}
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}
}
