package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "postgres://localhost/ratatouille")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.QuotaBackend != "postgres" {
			t.Errorf("expected postgres quota backend, got %q", cfg.QuotaBackend)
		}
		if cfg.QuotaService != "Enterprise" {
			t.Errorf("expected Enterprise service, got %q", cfg.QuotaService)
		}
		if cfg.SyncWorkers != 1 {
			t.Errorf("expected 1 worker, got %d", cfg.SyncWorkers)
		}
		if cfg.SyncInterval != 24*time.Hour {
			t.Errorf("expected 24h interval, got %v", cfg.SyncInterval)
		}
		limits, err := cfg.Limits()
		if err != nil {
			t.Fatalf("expected default limits to parse, got %v", err)
		}
		if l, _ := limits.Lookup("Essential"); l != 10000 {
			t.Errorf("expected Essential limit 10000, got %d", l)
		}
	})

	t.Run("Missing Postgres URL", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "")

		if _, err := Load(); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Invalid Values", func(t *testing.T) {
		cases := map[string][2]string{
			"unknown backend": {"QUOTA_BACKEND", "etcd"},
			"zero workers":    {"SYNC_WORKERS", "0"},
			"bad limits":      {"QUOTA_LIMITS", "Essential"},
			"zero rps":        {"PLACES_RPS", "0"},
		}
		for name, kv := range cases {
			t.Run(name, func(t *testing.T) {
				t.Setenv("POSTGRES_URL", "postgres://localhost/ratatouille")
				t.Setenv(kv[0], kv[1])

				if _, err := Load(); err == nil {
					t.Fatalf("expected an error for %s=%s", kv[0], kv[1])
				}
			})
		}
	})
}
