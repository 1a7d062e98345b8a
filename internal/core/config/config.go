// Package config handles configuration loading and validation for deepguard.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverJSONFile = "jsonfile"
	DriverRedis    = "redis"
)

// DefaultBaseURL is the address of a locally running detection backend.
const DefaultBaseURL = "http://localhost:5001"

// Config holds the application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	History HistoryConfig `yaml:"history"`
	Storage StorageConfig `yaml:"storage"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Hooks   HooksConfig   `yaml:"hooks"`
	DataDir string        `yaml:"-"` // set by caller, not from config file
}

// APIConfig configures the detection API client.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds a single request. Zero leaves requests bounded only by cancellation.
	Timeout time.Duration `yaml:"timeout"`
	// Workers is the number of concurrent uploads for batch checks.
	Workers int `yaml:"workers"`
	// MaxImageBytes caps images fetched from a URL.
	MaxImageBytes int64 `yaml:"max_image_bytes"`
}

// HistoryConfig configures the history list.
type HistoryConfig struct {
	PopupCap       int `yaml:"popup_cap"`
	ContextMenuCap int `yaml:"context_menu_cap"`
	DisplayLimit   int `yaml:"display_limit"`
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// BridgeConfig configures the local messaging bridge.
type BridgeConfig struct {
	Addr           string   `yaml:"addr"`
	RatePerMinute  int      `yaml:"rate_per_minute"`
	Burst          int      `yaml:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HooksConfig holds commands run after analyses.
type HooksConfig struct {
	OnResult []Hook `yaml:"on_result"`
}

// Hook defines commands to run when a result matches.
type Hook struct {
	// Pattern matches against the result class (regex). Empty matches all results.
	Pattern string `yaml:"pattern"`
	// Commands are shell templates rendered with ResultTemplateData.
	Commands []string `yaml:"commands"`
}

// ResultTemplateData defines available fields for on_result hook templates.
type ResultTemplateData struct {
	ID         string
	Class      string
	Label      string
	Confidence string
	Source     string
	ImageRef   string
	Filename   string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:       DefaultBaseURL,
			Workers:       3,
			MaxImageBytes: 20 << 20,
		},
		History: HistoryConfig{
			PopupCap:       12,
			ContextMenuCap: 20,
			DisplayLimit:   8,
		},
		Storage: StorageConfig{
			Driver:      DriverJSONFile,
			RedisPrefix: "deepguard",
		},
		Bridge: BridgeConfig{
			Addr:          "127.0.0.1:5050",
			RatePerMinute: 30,
			Burst:         5,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.Workers == 0 {
		c.API.Workers = defaults.API.Workers
	}
	if c.API.MaxImageBytes == 0 {
		c.API.MaxImageBytes = defaults.API.MaxImageBytes
	}
	if c.History.PopupCap == 0 {
		c.History.PopupCap = defaults.History.PopupCap
	}
	if c.History.ContextMenuCap == 0 {
		c.History.ContextMenuCap = defaults.History.ContextMenuCap
	}
	if c.History.DisplayLimit == 0 {
		c.History.DisplayLimit = defaults.History.DisplayLimit
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = defaults.Storage.RedisPrefix
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = defaults.Bridge.Addr
	}
	if c.Bridge.RatePerMinute == 0 {
		c.Bridge.RatePerMinute = defaults.Bridge.RatePerMinute
	}
	if c.Bridge.Burst == 0 {
		c.Bridge.Burst = defaults.Bridge.Burst
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if err := validateBaseURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}

	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout cannot be negative")
	}

	if c.API.Workers < 1 {
		return fmt.Errorf("api.workers must be at least 1")
	}

	if c.History.PopupCap < 1 || c.History.ContextMenuCap < 1 {
		return fmt.Errorf("history caps must be at least 1")
	}

	switch c.Storage.Driver {
	case DriverJSONFile:
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	return nil
}

// HistoryFile returns the path to the history JSON file.
func (c *Config) HistoryFile() string {
	return filepath.Join(c.DataDir, "history.json")
}

// StateFile returns the path to the persistent state JSON file.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, "state.json")
}

// SessionFile returns the path to the web session state file.
func (c *Config) SessionFile() string {
	return filepath.Join(c.DataDir, "session.json")
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
