// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sources SourcesConfig `mapstructure:"sources"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourcesConfig holds the per-feed settings.
type SourcesConfig struct {
	ContractsFinder SourceConfig `mapstructure:"contracts_finder"`
	FindATender     SourceConfig `mapstructure:"find_a_tender"`
}

// SourceConfig governs one upstream feed.
type SourceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// RefreshConfig governs the refresh cycle schedule and filtering.
type RefreshConfig struct {
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	BudgetSeconds   int     `mapstructure:"budget_seconds"`
	MinValueGBP     float64 `mapstructure:"min_value_gbp"`
}

// StorageConfig selects and configures the snapshot store provider.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TENDERFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("sources.contracts_finder.enabled", true)
	v.SetDefault("sources.contracts_finder.page_size", 100)
	v.SetDefault("sources.contracts_finder.max_pages", 10)
	v.SetDefault("sources.find_a_tender.enabled", true)
	v.SetDefault("sources.find_a_tender.page_size", 100)
	v.SetDefault("sources.find_a_tender.max_pages", 10)
	v.SetDefault("http.user_agent", "tenderfeed/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("refresh.interval_seconds", 900)
	v.SetDefault("refresh.budget_seconds", 300)
	v.SetDefault("refresh.min_value_gbp", 0)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.table", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Refresh.BudgetSeconds < 0 {
		return fmt.Errorf("refresh.budget_seconds must be >= 0")
	}
	if c.Refresh.MinValueGBP < 0 {
		return fmt.Errorf("refresh.min_value_gbp must be >= 0")
	}
	switch c.Storage.Provider {
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when provider is gcs")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must be set when provider is postgres")
		}
	default:
		return fmt.Errorf("storage.provider must be memory, gcs, or postgres")
	}
	if !c.Sources.ContractsFinder.Enabled && !c.Sources.FindATender.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// CycleBudget converts the refresh budget into a duration. Zero disables
// the budget.
func (c Config) CycleBudget() time.Duration {
	return time.Duration(c.Refresh.BudgetSeconds) * time.Second
}

// RefreshInterval converts the schedule interval into a duration. Zero
// disables the scheduler.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

// HTTPTimeout converts the client timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
