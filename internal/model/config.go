package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ProviderConfig holds the configuration for a single provider
// connection.
type ProviderConfig struct {
	// ID is the unique identifier for this connection instance.
	ID string `mapstructure:"id" yaml:"id"`

	// Provider identifies the provider kind (e.g., "task_manager",
	// "mail", "tracker").
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Name is the user-defined label for this connection.
	Name string `mapstructure:"name" yaml:"name"`

	// BaseURL is the root URL of the provider API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Enabled controls whether this connection is scheduled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Scopes are the OAuth scopes granted at handshake time.
	Scopes []string `mapstructure:"scopes" yaml:"scopes"`

	// Settings holds provider-specific key-value settings
	// (e.g., IMAP host/port, project filters).
	Settings map[string]string `mapstructure:"settings" yaml:"settings"`
}

// SyncConfig holds scheduling and backoff settings for the engine.
type SyncConfig struct {
	// Workers is the size of the sync worker pool.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// MinNotificationsIntervalMinutes is the minimum spacing between
	// scheduled notification syncs for one connection.
	MinNotificationsIntervalMinutes int `mapstructure:"min_notifications_interval_minutes" yaml:"min_notifications_interval_minutes"`

	// MinTasksIntervalMinutes is the minimum spacing between scheduled
	// task syncs for one connection.
	MinTasksIntervalMinutes int `mapstructure:"min_tasks_interval_minutes" yaml:"min_tasks_interval_minutes"`

	// BackoffBaseMinutes is the delay after the first transient
	// failure; it doubles per consecutive failure.
	BackoffBaseMinutes int `mapstructure:"backoff_base_minutes" yaml:"backoff_base_minutes"`

	// BackoffMaxMinutes caps the backoff delay.
	BackoffMaxMinutes int `mapstructure:"backoff_max_minutes" yaml:"backoff_max_minutes"`

	// FailingThreshold is how many consecutive transient failures move
	// a stream's connection to Failing.
	FailingThreshold int `mapstructure:"failing_threshold" yaml:"failing_threshold"`
}

// CacheConfig holds settings for the provider lookup cache.
type CacheConfig struct {
	// TTLSeconds is how long a cached lookup stays valid.
	TTLSeconds int `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`

	// Size caps the number of cached entries.
	Size int `mapstructure:"size" yaml:"size"`
}

// AppConfig is the top-level daemon configuration.
type AppConfig struct {
	DBPath    string           `mapstructure:"db_path" yaml:"db_path"`
	Providers []ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Sync      SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Cache     CacheConfig      `mapstructure:"cache" yaml:"cache"`
}

// DefaultConfigPath returns the default path for the configuration
// file, located at ~/.config/inboxsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "inboxsync", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	return &AppConfig{
		DBPath: filepath.Join(home, ".local", "share", "inboxsync", "inboxsync.db"),
		Sync: SyncConfig{
			Workers:                         4,
			MinNotificationsIntervalMinutes: 5,
			MinTasksIntervalMinutes:         5,
			BackoffBaseMinutes:              5,
			BackoffMaxMinutes:               360,
			FailingThreshold:                3,
		},
		Cache: CacheConfig{
			TTLSeconds: 60,
			Size:       256,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns a default
// configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.min_notifications_interval_minutes", 5)
	v.SetDefault("sync.min_tasks_interval_minutes", 5)
	v.SetDefault("sync.backoff_base_minutes", 5)
	v.SetDefault("sync.backoff_max_minutes", 360)
	v.SetDefault("sync.failing_threshold", 3)
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.size", 256)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Providers {
		if !cfg.Providers[i].Enabled {
			// Viper unmarshals missing bools as false; treat unset as
			// true so listing a provider is enough to enable it.
			key := fmt.Sprintf("providers.%d.enabled", i)
			if !v.IsSet(key) {
				cfg.Providers[i].Enabled = true
			}
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("db_path", cfg.DBPath)
	v.Set("providers", cfg.Providers)
	v.Set("sync", cfg.Sync)
	v.Set("cache", cfg.Cache)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
