package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// App is the application configuration. Values are defaults overridable
// by the config file and then by command-line flags.
type App struct {
	Network NetworkConfig `yaml:"network"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig holds transport settings
type NetworkConfig struct {
	// Port is the TCP port used for listening and connecting
	Port int `yaml:"port"`
	// BandwidthLimit caps outgoing transfer bandwidth in bytes per
	// second (0 = unlimited)
	BandwidthLimit int64 `yaml:"bandwidth_limit"`
}

// SyncConfig holds sync engine settings
type SyncConfig struct {
	// Workers is the number of parallel sync workers
	Workers int `yaml:"workers"`
	// TransferTimeout is the per-file transfer timeout in seconds
	TransferTimeout int `yaml:"transfer_timeout"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	// File is the log file path (empty disables logging)
	File string `yaml:"file"`
	// Format is "json" or "text"
	Format string `yaml:"format"`
	// Level is "debug", "info", "warn" or "error"
	Level string `yaml:"level"`
}

// DefaultApp returns the default application configuration
func DefaultApp() *App {
	return &App{
		Network: NetworkConfig{
			Port:           4512,
			BandwidthLimit: 0,
		},
		Sync: SyncConfig{
			Workers:         8,
			TransferTimeout: 300,
		},
		Logging: LoggingConfig{
			File:   "",
			Format: "text",
			Level:  "info",
		},
	}
}

// Validate checks the configuration for usable values
func (a *App) Validate() error {
	if a.Network.Port < 1 || a.Network.Port > 65535 {
		return &ValidationError{Field: "network.port", Message: "must be between 1 and 65535"}
	}
	if a.Sync.Workers < 1 {
		return &ValidationError{Field: "sync.workers", Message: "must be at least 1"}
	}
	if a.Sync.TransferTimeout < 1 {
		return &ValidationError{Field: "sync.transfer_timeout", Message: "must be at least 1 second"}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[a.Logging.Format] {
		return &ValidationError{Field: "logging.format", Message: "must be 'json' or 'text'"}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[a.Logging.Level] {
		return &ValidationError{Field: "logging.level", Message: "must be 'debug', 'info', 'warn' or 'error'"}
	}
	return nil
}

// ValidationError reports an invalid configuration value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// AppConfigPath returns the default application config file location
func AppConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fmerge", "config.yaml"), nil
}

// LoadApp loads the application configuration from the given path, or
// from the default location when path is empty. A missing file yields
// the defaults.
func LoadApp(path string) (*App, error) {
	if path == "" {
		defaultPath, err := AppConfigPath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return DefaultApp(), nil
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultApp()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SaveApp writes the application configuration as YAML
func SaveApp(cfg *App, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
