// Package config loads daemon configuration from environment variables.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Storage     StorageConfig
	Capture     CaptureConfig
	Browser     BrowserConfig
	Interceptor InterceptorConfig
	Logging     LogConfig
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path string `envconfig:"WORKSNAP_DB" default:"worksnap.db"`
}

// CaptureConfig holds capture-run configuration.
type CaptureConfig struct {
	RetentionLimit int    `envconfig:"CAPTURE_RETENTION" default:"50"`
	AutoCapture    bool   `envconfig:"AUTO_CAPTURE" default:"true"`
	UserTimezone   string `envconfig:"USER_TIMEZONE" default:""`
	EditorDir      string `envconfig:"EDITOR_SESSION_DIR" default:""`
	NotesDir       string `envconfig:"NOTES_DIR" default:""`
}

// BrowserConfig holds debugging-protocol discovery configuration.
type BrowserConfig struct {
	PortRangeStart int `envconfig:"DEBUG_PORT_START" default:"9222"`
	PortRangeEnd   int `envconfig:"DEBUG_PORT_END" default:"9232"`
	ProbeTimeoutMs int `envconfig:"DEBUG_PROBE_TIMEOUT_MS" default:"1500"`
}

// InterceptorConfig holds launch-interceptor configuration.
type InterceptorConfig struct {
	Enabled        bool `envconfig:"INTERCEPTOR_ENABLED" default:"true"`
	TickIntervalMs int  `envconfig:"INTERCEPTOR_TICK_MS" default:"5000"`
	SettleDelayMs  int  `envconfig:"INTERCEPTOR_SETTLE_MS" default:"2000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Path: "worksnap.db"},
		Capture: CaptureConfig{
			RetentionLimit: 50,
			AutoCapture:    true,
		},
		Browser: BrowserConfig{
			PortRangeStart: 9222,
			PortRangeEnd:   9232,
			ProbeTimeoutMs: 1500,
		},
		Interceptor: InterceptorConfig{
			Enabled:        true,
			TickIntervalMs: 5000,
			SettleDelayMs:  2000,
		},
		Logging: LogConfig{Level: "info", Development: false},
	}
}
