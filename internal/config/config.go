// Package config loads the bankline server configuration from a JSON
// file, falling back to defaults when the file or individual fields are
// absent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wlfb/bankline/internal/consts"
)

// Config represents the server configuration
type Config struct {
	// ListenAddr is the TCP address the server listens on
	ListenAddr string `json:"listen_addr"`
	// InitialBalance is the starting balance of every configured account
	InitialBalance float64 `json:"initial_balance"`
	// ClientIDs is the fixed allow-list of account identifiers; the
	// handshake matches against it case-sensitively
	ClientIDs []string `json:"client_ids"`
	// LockPollIntervalMs is the delay between ledger lock poll attempts
	LockPollIntervalMs int `json:"lock_poll_interval_ms"`
	// MaxConnections caps concurrently connected clients
	MaxConnections int `json:"max_connections"`
	// LogLevel is one of debug, info, warn, error, none
	LogLevel string `json:"log_level"`
	// LogPath is the log file path; empty logs to stderr
	LogPath string `json:"log_path,omitempty"`
	// PidPath is the PID file path; empty disables the PID file
	PidPath string `json:"pid_path,omitempty"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		ListenAddr:         ":4545",
		InitialBalance:     1000,
		ClientIDs:          []string{"CLIENT_A", "CLIENT_B", "CLIENT_C"},
		LockPollIntervalMs: int(consts.DefaultLockPollInterval / time.Millisecond),
		MaxConnections:     16,
		LogLevel:           "info",
	}
}

// Load reads the configuration from path. A missing file yields the
// defaults; a present but malformed file is an error. Zero-valued fields
// are filled in from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	defaults := Default()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	if len(cfg.ClientIDs) == 0 {
		cfg.ClientIDs = defaults.ClientIDs
	}
	if cfg.LockPollIntervalMs <= 0 {
		cfg.LockPollIntervalMs = defaults.LockPollIntervalMs
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaults.MaxConnections
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	return cfg, nil
}

// Save writes the configuration to path as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(path, append(data, '\n'), 0644)
}

// LockPollInterval returns the lock poll interval as a duration.
func (c *Config) LockPollInterval() time.Duration {
	return time.Duration(c.LockPollIntervalMs) * time.Millisecond
}

// AllowsClient reports whether id is on the allow-list. The match is
// case-sensitive.
func (c *Config) AllowsClient(id string) bool {
	for _, allowed := range c.ClientIDs {
		if allowed == id {
			return true
		}
	}
	return false
}
