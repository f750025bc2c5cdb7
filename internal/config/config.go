// Package config loads the settings of the memvfs command.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/kmrgirish/memvfs"
	"github.com/kmrgirish/memvfs/internal/vfslog"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
)

// Config holds the settings of a session.
type Config struct {
	MaxDescriptors int    `json:"max_descriptors"`
	MaxFileSize    int64  `json:"max_file_size"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	HistoryFile    string `json:"history_file"`

	// Source is the config file that was loaded, if any.
	Source string `json:"-"`
}

// fileConfig tells unset keys apart from zero values.
type fileConfig struct {
	MaxDescriptors *int    `json:"max_descriptors"`
	MaxFileSize    *int64  `json:"max_file_size"`
	LogLevel       *string `json:"log_level"`
	LogFormat      *string `json:"log_format"`
	HistoryFile    *string `json:"history_file"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		MaxDescriptors: memvfs.DefaultMaxDescriptors,
		LogLevel:       "info",
		LogFormat:      vfslog.FormatPretty,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/memvfs/config.json, falling back to
// ~/.config. It returns "" if neither variable is set.
func DefaultPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "memvfs", "config.json")
	}
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "memvfs", "config.json")
	}
	return ""
}

// DefaultHistoryPath returns ~/.memvfs_history, or "" without a home.
func DefaultHistoryPath(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".memvfs_history")
	}
	return ""
}

// Load returns the defaults overlaid with a config file. An explicit path
// must exist; otherwise the file at DefaultPath is used if present.
func Load(path string, env map[string]string) (Config, error) {
	cfg := Default()

	mustExist := path != ""
	if !mustExist {
		path = DefaultPath(env)
	}
	if path != "" {
		file, loaded, err := loadFile(path, mustExist)
		if err != nil {
			return Config{}, err
		}
		if loaded {
			cfg = merge(cfg, file)
			cfg.Source = path
		}
	}

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryPath(env)
	}

	if err := cfg.Validate(); err != nil {
		if cfg.Source != "" {
			return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, cfg.Source, err)
		}
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err) && mustExist:
			return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		case os.IsNotExist(err):
			return fileConfig{}, false, nil
		default:
			return fileConfig{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
		}
	}

	file, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	return file, true, nil
}

// parse accepts JSON with comments and trailing commas.
func parse(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var file fileConfig
	if err := json.Unmarshal(standardized, &file); err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return file, nil
}

func merge(base Config, file fileConfig) Config {
	if file.MaxDescriptors != nil {
		base.MaxDescriptors = *file.MaxDescriptors
	}
	if file.MaxFileSize != nil {
		base.MaxFileSize = *file.MaxFileSize
	}
	if file.LogLevel != nil {
		base.LogLevel = *file.LogLevel
	}
	if file.LogFormat != nil {
		base.LogFormat = *file.LogFormat
	}
	if file.HistoryFile != nil {
		base.HistoryFile = *file.HistoryFile
	}
	return base
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	if c.MaxDescriptors <= 0 {
		return fmt.Errorf("max_descriptors must be positive, got %d", c.MaxDescriptors)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize)
	}
	if _, err := vfslog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case vfslog.FormatJSON, vfslog.FormatText, vfslog.FormatPretty:
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Level returns the parsed log level. It assumes a validated config.
func (c Config) Level() slog.Level {
	level, _ := vfslog.ParseLevel(c.LogLevel)
	return level
}

// Options returns filesystem options for the configured limits.
func (c Config) Options(logger *slog.Logger) memvfs.Options {
	return memvfs.Options{
		MaxDescriptors: c.MaxDescriptors,
		MaxFileSize:    c.MaxFileSize,
		Logger:         logger,
	}
}
