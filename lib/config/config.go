// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "PARLOR_CONFIG"

// Config is the parlor configuration.
type Config struct {
	// DataDirectory holds the session database and, by default, the
	// keystore. Default: $XDG_DATA_HOME/parlor, or
	// ~/.local/share/parlor when XDG_DATA_HOME is unset.
	DataDirectory string `yaml:"data_directory"`

	// Homeserver is the default homeserver for login, used when the
	// login command is not given one.
	Homeserver string `yaml:"homeserver"`

	// Keystore configures where the device key is kept.
	Keystore KeystoreConfig `yaml:"keystore"`

	// HTTP configures requests to the homeserver.
	HTTP HTTPConfig `yaml:"http"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`
}

// KeystoreConfig configures the sealed key directory.
type KeystoreConfig struct {
	// Directory holds sealed key records.
	// Default: ${PARLOR_DATA}/keys
	Directory string `yaml:"directory"`

	// KeyName identifies the device key. Default: parlor.session
	KeyName string `yaml:"key_name"`

	// IdentityFile is the age identity that seals key records.
	// Empty means the keystore's own default inside Directory.
	IdentityFile string `yaml:"identity_file"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	// Timeout bounds each request, as a Go duration string.
	// Default: 30s
	Timeout string `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: warn
	Level string `yaml:"level"`
}

// Default returns the default configuration. Variables are already
// expanded.
func Default() *Config {
	cfg := defaults()
	cfg.expandVariables()
	return cfg
}

func defaults() *Config {
	return &Config{
		DataDirectory: defaultDataDirectory(),
		Keystore: KeystoreConfig{
			Directory: "${PARLOR_DATA}/keys",
			KeyName:   "parlor.session",
		},
		HTTP: HTTPConfig{
			Timeout: "30s",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

func defaultDataDirectory() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "parlor")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "parlor")
}

// Load loads configuration from the file named by PARLOR_CONFIG, or
// returns [Default] when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Fields the
// file does not set keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.DataDirectory = expandVars(c.DataDirectory, vars)
	vars["PARLOR_DATA"] = c.DataDirectory // Update for dependent paths.

	c.Keystore.Directory = expandVars(c.Keystore.Directory, vars)
	c.Keystore.IdentityFile = expandVars(c.Keystore.IdentityFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDirectory == "" {
		errs = append(errs, fmt.Errorf("data_directory is required"))
	}
	if c.Keystore.KeyName == "" {
		errs = append(errs, fmt.Errorf("keystore.key_name is required"))
	}

	if c.Homeserver != "" {
		parsed, err := url.Parse(c.Homeserver)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("homeserver must be an http or https URL, got %q", c.Homeserver))
		}
	}

	if timeout, err := time.ParseDuration(c.HTTP.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("http.timeout: %w", err))
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout))
	}

	if _, ok := logLevels[c.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RequestTimeout returns http.timeout as a duration. Call [Validate]
// first; an unparseable value yields 30s.
func (c *Config) RequestTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil || timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

// LogLevel returns log.level as a slog level. An unknown value yields
// slog.LevelWarn.
func (c *Config) LogLevel() slog.Level {
	if level, ok := logLevels[c.Log.Level]; ok {
		return level
	}
	return slog.LevelWarn
}
