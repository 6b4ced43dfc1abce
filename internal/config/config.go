// Package config loads runtime configuration from defaults, an
// optional YAML file, and SATCHEL_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration surface. Nothing here is
// hard-coded at call sites; components receive the values they need at
// construction.
type Config struct {
	// APIBaseURL is the remote learning platform endpoint.
	APIBaseURL string `mapstructure:"api_base_url"`

	// DataDir holds the local database, netstate file, and logs.
	DataDir string `mapstructure:"data_dir"`

	// SchemaVersion pins the local store's migration target; 0 means
	// latest.
	SchemaVersion int `mapstructure:"schema_version"`

	// Request governor tuning.
	DefaultTTL         time.Duration            `mapstructure:"default_ttl"`
	EndpointTTLs       map[string]time.Duration `mapstructure:"endpoint_ttls"`
	MaxRetries         int                      `mapstructure:"max_retries"`
	BackoffBase        time.Duration            `mapstructure:"backoff_base"`
	BackoffCap         time.Duration            `mapstructure:"backoff_cap"`
	RetryAfterFallback time.Duration            `mapstructure:"retry_after_fallback"`
	HTTPTimeout        time.Duration            `mapstructure:"http_timeout"`

	// Full-pass sync retry wrapper tuning.
	SyncRetryAttempts int           `mapstructure:"sync_retry_attempts"`
	SyncRetryDelay    time.Duration `mapstructure:"sync_retry_delay"`

	// Daemon settings.
	NetstateFile string        `mapstructure:"netstate_file"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	LogFile      string        `mapstructure:"log_file"`

	// DashboardPort is where the local monitoring server listens.
	DashboardPort int `mapstructure:"dashboard_port"`
}

// DBPath returns the location of the local SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "satchel.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".satchel"
	}
	return filepath.Join(home, ".satchel")
}

// Load reads configuration. When configFile is empty, satchel.yaml is
// searched for in the working directory and the data dir; a missing
// file is not an error, the defaults and environment still apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	dataDir := defaultDataDir()
	v.SetDefault("api_base_url", "https://api.satchel.app")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("schema_version", 0)
	v.SetDefault("default_ttl", time.Minute)
	v.SetDefault("endpoint_ttls", map[string]time.Duration{
		"/api/notifications": 15 * time.Second,
		"/api/groups":        5 * time.Minute,
		"/api/quizzes":       2 * time.Minute,
		"/api/flashcards":    2 * time.Minute,
	})
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base", 500*time.Millisecond)
	v.SetDefault("backoff_cap", 8*time.Second)
	v.SetDefault("retry_after_fallback", 5*time.Second)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("sync_retry_attempts", 3)
	v.SetDefault("sync_retry_delay", 2*time.Second)
	v.SetDefault("netstate_file", filepath.Join(dataDir, "netstate"))
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("log_file", "")
	v.SetDefault("dashboard_port", 8477)

	v.SetEnvPrefix("SATCHEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("satchel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(dataDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
