// Package config loads the application configuration from a YAML or
// TOML file, fills defaults from struct tags, and applies environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/clarioncrm/clarion/api"
	"github.com/clarioncrm/clarion/cache"
	"github.com/clarioncrm/clarion/eventstore"
	"github.com/clarioncrm/clarion/healthcheck"
	"github.com/clarioncrm/clarion/mailer"
	"github.com/clarioncrm/clarion/messaging"
	"github.com/clarioncrm/clarion/monitor"
)

// Static errors for the config package
var (
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)

// LogConfig controls log output and rotation.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string `yaml:"level" toml:"level" env:"LOG_LEVEL" default:"info"`

	// Format selects the handler: "text" or "json".
	Format string `yaml:"format" toml:"format" env:"LOG_FORMAT" default:"text"`

	// File enables rotated file output when set; stdout otherwise.
	File       string `yaml:"file" toml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" env:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" env:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days" env:"LOG_MAX_AGE_DAYS" default:"30"`
}

// Config is the root application configuration.
type Config struct {
	Log         LogConfig          `yaml:"log" toml:"log"`
	EventStore  eventstore.Config  `yaml:"event_store" toml:"event_store"`
	Messaging   messaging.Config   `yaml:"messaging" toml:"messaging"`
	Mail        mailer.Config      `yaml:"mail" toml:"mail"`
	Cache       cache.Config       `yaml:"cache" toml:"cache"`
	HealthCheck healthcheck.Config `yaml:"health_check" toml:"health_check"`
	Monitor     monitor.Config     `yaml:"monitor" toml:"monitor"`
	HTTP        api.Config         `yaml:"http" toml:"http"`
}

// Load reads the file at path (YAML or TOML, by extension), applies
// tag defaults for everything the file leaves unset, then applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing TOML config %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
		}
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-section consistency the individual sections
// cannot see on their own.
func (c *Config) Validate() error {
	if err := c.Messaging.Validate(); err != nil {
		return fmt.Errorf("messaging config: %w", err)
	}
	if c.EventStore.DSN == "" {
		return fmt.Errorf("event store config: %w", eventstore.ErrEmptyDSN)
	}
	if c.HealthCheck.TestNumber == "" {
		c.HealthCheck.TestNumber = c.Messaging.TestNumber
	}
	return nil
}
