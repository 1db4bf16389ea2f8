// Package config holds the server settings read from YAML and overridden by
// command-line flags or GROUPCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultListenAddr        = ":8080"
	DefaultDBPath            = "groupchat.db"
	DefaultLogLevel          = "info"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultTimelineMaxWindow = 1000
	DefaultGinMode           = "release"
)

// Config is the server configuration
type Config struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"required"`
	DBPath     string `yaml:"db_path" json:"db_path" validate:"required"`
	LogLevel   string `yaml:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`
	LogFile    string `yaml:"log_file" json:"log_file"`
	LogJSON    bool   `yaml:"log_json" json:"log_json"`
	GinMode    string `yaml:"gin_mode" json:"gin_mode" validate:"oneof=debug release test"`

	JWTSecret string        `yaml:"jwt_secret" json:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" json:"token_ttl" validate:"gte=0"`

	// TimelineMaxWindow caps num_before and num_after on the timeline
	TimelineMaxWindow int `yaml:"timeline_max_window" json:"timeline_max_window" validate:"gte=1"`

	Bootstrap BootstrapConfig `yaml:"bootstrap" json:"bootstrap"`
}

// BootstrapConfig names the admin account created when none exists
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email" json:"admin_email" validate:"omitempty,email"`
	AdminPassword string `yaml:"admin_password" json:"admin_password" validate:"required_with=AdminEmail,omitempty,min=8"`
}

// Default returns a Config with every default applied
func Default() *Config {
	return &Config{
		ListenAddr:        DefaultListenAddr,
		DBPath:            DefaultDBPath,
		LogLevel:          DefaultLogLevel,
		GinMode:           DefaultGinMode,
		TokenTTL:          DefaultTokenTTL,
		TimelineMaxWindow: DefaultTimelineMaxWindow,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial file
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.GinMode == "" {
		c.GinMode = DefaultGinMode
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.TimelineMaxWindow == 0 {
		c.TimelineMaxWindow = DefaultTimelineMaxWindow
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	return apperr.ValidateStruct(c)
}
