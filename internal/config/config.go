// Package config loads application configuration, adapted from the
// teacher's internal/config package: same viper.New/SetConfigFile/
// ReadInConfig/Unmarshal idiom, repurposed from a process-supervision
// manifest to the job queue's store/log/metrics settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/jobq/internal/idfactory"
)

// Config is the top-level application configuration surface.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig configures the backing relational store and the manager's
// polling behavior.
type StoreConfig struct {
	DSN                 string        `mapstructure:"dsn"`
	Schema              string        `mapstructure:"schema"`
	ExpireCheckInterval time.Duration `mapstructure:"expire_check_interval"`
	NewJobCheckInterval time.Duration `mapstructure:"new_job_check_interval"`
	IDKind              string        `mapstructure:"id_kind"` // "v1" or "v4"
}

// LogConfig configures the application's rotating log file.
type LogConfig struct {
	Path       string `mapstructure:"path"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Color      bool   `mapstructure:"color"`
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

func (c Config) withDefaults() Config {
	if c.Store.Schema == "" {
		c.Store.Schema = "jobq"
	}
	if c.Store.ExpireCheckInterval <= 0 {
		c.Store.ExpireCheckInterval = 30 * time.Second
	}
	if c.Store.NewJobCheckInterval <= 0 {
		c.Store.NewJobCheckInterval = 2 * time.Second
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	return c
}

// IDFactoryKind maps the configured id_kind string to idfactory.Kind,
// defaulting to V4 for an empty or unrecognized value.
func (c Config) IDFactoryKind() idfactory.Kind {
	switch strings.ToLower(strings.TrimSpace(c.Store.IDKind)) {
	case "v1":
		return idfactory.V1
	default:
		return idfactory.V4
	}
}

// Load reads configPath (toml/yaml/json, sniffed by extension) into a
// Config and applies defaults for unset fields.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg = cfg.withDefaults()

	if strings.TrimSpace(cfg.Store.DSN) == "" {
		return nil, fmt.Errorf("config: store.dsn must not be empty")
	}
	return &cfg, nil
}
