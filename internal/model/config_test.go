package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loading missing config: %v", err)
	}
	if cfg.Sync.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Sync.Workers)
	}
	if cfg.Sync.FailingThreshold != 3 {
		t.Errorf("failing threshold = %d, want 3", cfg.Sync.FailingThreshold)
	}
	if cfg.Sync.BackoffMaxMinutes != 360 {
		t.Errorf("backoff max = %d, want 360", cfg.Sync.BackoffMaxMinutes)
	}
	if cfg.Cache.TTLSeconds != 60 {
		t.Errorf("cache ttl = %d, want 60", cfg.Cache.TTLSeconds)
	}
}

func TestLoadConfigProviderEnabledDefaultsTrue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
db_path: /tmp/inboxsync-test.db
providers:
  - id: mail-1
    provider: mail
    name: Personal mail
    settings:
      host: imap.example.com
      username: me@example.com
  - id: tm-1
    provider: task_manager
    base_url: https://api.example.com
    enabled: false
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(cfg.Providers))
	}
	if !cfg.Providers[0].Enabled {
		t.Error("provider without an enabled key should default to enabled")
	}
	if cfg.Providers[1].Enabled {
		t.Error("explicitly disabled provider should stay disabled")
	}
	if cfg.Providers[0].Settings["host"] != "imap.example.com" {
		t.Errorf("settings host = %q", cfg.Providers[0].Settings["host"])
	}
}

func TestSaveThenLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	cfg.Sync.Workers = 8

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("saving config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}
	if loaded.Sync.Workers != 8 {
		t.Errorf("workers = %d after round trip, want 8", loaded.Sync.Workers)
	}
}
