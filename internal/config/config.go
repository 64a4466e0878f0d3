// Package config loads and persists mdwatch settings.
//
// Settings live in a JSON file under ~/.mdwatch. Every field can be
// overridden by a command-line flag; the file only provides defaults so a
// user does not have to repeat the same flags on every invocation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treykane/mdwatch/internal/logging"
)

const (
	configDirName  = ".mdwatch"
	configFileName = "config.json"

	// DefaultWatchInterval is the poll interval used when the config file
	// and flags leave it unset (or set it to a non-positive value).
	DefaultWatchInterval = 350 * time.Millisecond

	// DefaultShutdownGrace bounds how long a closing watch session waits
	// for an in-flight poll tick to finish.
	DefaultShutdownGrace = 2 * time.Second
)

var ErrNotConfigured = errors.New("mdwatch is not configured")

var log = logging.New("config")

// Config stores user-defined mdwatch settings.
type Config struct {
	// Source is the markdown file or directory to watch and render.
	Source string `json:"source"`

	// OutputDir is where rendered HTML is written. Empty means terminal
	// mode: the source is rendered as ANSI to stdout instead.
	OutputDir string `json:"output_dir,omitempty"`

	// WatchIntervalMillis is the delay between poll ticks.
	WatchIntervalMillis int `json:"watch_interval_ms,omitempty"`

	// ShutdownGraceMillis bounds the wait for the poller to stop on exit.
	ShutdownGraceMillis int `json:"shutdown_grace_ms,omitempty"`

	// Listen is the preview server address (e.g. "127.0.0.1:8080").
	// Empty disables the preview server.
	Listen string `json:"listen,omitempty"`

	// Theme is the glamour style used in terminal mode.
	Theme string `json:"theme,omitempty"`
}

// WatchInterval returns the configured poll interval, falling back to
// DefaultWatchInterval when unset or non-positive.
func (c Config) WatchInterval() time.Duration {
	if c.WatchIntervalMillis <= 0 {
		return DefaultWatchInterval
	}
	return time.Duration(c.WatchIntervalMillis) * time.Millisecond
}

// ShutdownGrace returns the configured shutdown grace period, falling back
// to DefaultShutdownGrace when unset or non-positive.
func (c Config) ShutdownGrace() time.Duration {
	if c.ShutdownGraceMillis <= 0 {
		return DefaultShutdownGrace
	}
	return time.Duration(c.ShutdownGraceMillis) * time.Millisecond
}

// ConfigPath returns the configuration file path.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// Exists reports whether the config file exists.
func Exists() (bool, error) {
	path, err := ConfigPath()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads and validates the saved configuration.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ErrNotConfigured
		}
		return Config{}, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Source != "" {
		source, err := NormalizePath(cfg.Source)
		if err != nil {
			return Config{}, fmt.Errorf("invalid source: %w", err)
		}
		cfg.Source = source
	}
	if cfg.OutputDir != "" {
		outDir, err := NormalizePath(cfg.OutputDir)
		if err != nil {
			return Config{}, fmt.Errorf("invalid output_dir: %w", err)
		}
		cfg.OutputDir = outDir
	}

	log.Debug("loaded config", "path", path)
	return cfg, nil
}

// Save writes configuration to disk.
func Save(cfg Config) error {
	if cfg.Source != "" {
		source, err := NormalizePath(cfg.Source)
		if err != nil {
			return fmt.Errorf("invalid source: %w", err)
		}
		cfg.Source = source
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	log.Debug("saved config", "path", path)
	return nil
}

// NormalizePath expands and normalizes a user-supplied path.
func NormalizePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is required")
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}

	return filepath.Clean(abs), nil
}

func expandHome(path string) (string, error) {
	if path == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}
