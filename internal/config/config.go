// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/tombee/agctl/internal/lifecycle"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete agctl configuration.
type Config struct {
	// App identifies the application being controlled.
	App AppConfig `yaml:"app"`

	// Shutdown configures the stop protocol.
	Shutdown ShutdownConfig `yaml:"shutdown"`

	// Launch configures the start strategy.
	Launch LaunchConfig `yaml:"launch"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`

	// StateDir holds the operation lock and the lifecycle audit log.
	// Environment: AGCTL_STATE_DIR
	// Default: $XDG_STATE_HOME/agctl
	StateDir string `yaml:"state_dir"`

	// Metrics configures outcome metrics export.
	Metrics MetricsConfig `yaml:"metrics"`
}

// AppConfig identifies the target application.
type AppConfig struct {
	// Name is the application name used for matching and quit requests.
	// Environment: AGCTL_APP_NAME
	// Default: Antigravity
	Name string `yaml:"name"`

	// Scheme is the URI scheme the application registers.
	// Default: lower-cased name
	Scheme string `yaml:"scheme,omitempty"`

	// Command is the executable looked up on PATH on Linux.
	// Default: lower-cased name
	Command string `yaml:"command,omitempty"`

	// Executable is an explicit install path tried first on Windows.
	Executable string `yaml:"executable,omitempty"`
}

// ShutdownConfig configures how the application is stopped.
type ShutdownConfig struct {
	// TimeoutSeconds is how long to wait for a cooperative exit.
	// Environment: AGCTL_SHUTDOWN_TIMEOUT
	// Default: 10
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// ForceKill allows killing processes that ignore the termination request.
	// Environment: AGCTL_FORCE_KILL
	// Default: true
	ForceKill bool `yaml:"force_kill"`

	// PollInterval is the liveness check interval while waiting.
	// Default: 500ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// ProtectedPaths are doublestar globs of executables that are never
	// stopped even when they match the application.
	ProtectedPaths []string `yaml:"protected_paths,omitempty"`
}

// LaunchConfig configures how the application is started.
type LaunchConfig struct {
	// PreferURI tries the registered URI handler before a native launch.
	// Environment: AGCTL_PREFER_URI
	// Default: true
	PreferURI bool `yaml:"prefer_uri"`

	// WaitTimeout bounds "start --wait".
	// Default: 30s
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after every operation when set, for the node
	// exporter textfile collector.
	// Environment: AGCTL_METRICS_TEXTFILE
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: lifecycle.DefaultApp.Name,
		},
		Shutdown: ShutdownConfig{
			TimeoutSeconds: lifecycle.DefaultTimeoutSeconds,
			ForceKill:      true,
			PollInterval:   lifecycle.DefaultShutdownOptions().PollInterval,
		},
		Launch: LaunchConfig{
			PreferURI:   true,
			WaitTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables take precedence over the file. An empty
// configPath reads the default config file when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			configPath = p
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, &ConfigError{
					Key:    "config_file",
					Reason: fmt.Sprintf("failed to load from %s", configPath),
					Cause:  err,
				}
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values a minimal file leaves behind.
func (c *Config) applyDefaults() {
	def := Default()

	if c.App.Name == "" {
		c.App.Name = def.App.Name
	}
	if c.Shutdown.PollInterval == 0 {
		c.Shutdown.PollInterval = def.Shutdown.PollInterval
	}
	if c.Launch.WaitTimeout == 0 {
		c.Launch.WaitTimeout = def.Launch.WaitTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.StateDir == "" {
		if dir, err := StateDir(); err == nil {
			c.StateDir = dir
		}
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("AGCTL_APP_NAME"); val != "" {
		c.App.Name = val
	}

	if val := os.Getenv("AGCTL_SHUTDOWN_TIMEOUT"); val != "" {
		seconds, err := strconv.Atoi(val)
		if err != nil {
			return &ConfigError{Key: "AGCTL_SHUTDOWN_TIMEOUT", Reason: fmt.Sprintf("not an integer: %q", val), Cause: err}
		}
		c.Shutdown.TimeoutSeconds = seconds
	}

	if val := os.Getenv("AGCTL_FORCE_KILL"); val != "" {
		force, err := strconv.ParseBool(val)
		if err != nil {
			return &ConfigError{Key: "AGCTL_FORCE_KILL", Reason: fmt.Sprintf("not a boolean: %q", val), Cause: err}
		}
		c.Shutdown.ForceKill = force
	}

	if val := os.Getenv("AGCTL_PREFER_URI"); val != "" {
		prefer, err := strconv.ParseBool(val)
		if err != nil {
			return &ConfigError{Key: "AGCTL_PREFER_URI", Reason: fmt.Sprintf("not a boolean: %q", val), Cause: err}
		}
		c.Launch.PreferURI = prefer
	}

	if val := os.Getenv("AGCTL_STATE_DIR"); val != "" {
		c.StateDir = val
	}
	if val := os.Getenv("AGCTL_METRICS_TEXTFILE"); val != "" {
		c.Metrics.Textfile = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}

	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.App.Name) == "" {
		errs = append(errs, "app.name must not be empty")
	}

	if c.Shutdown.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("shutdown.timeout_seconds must not be negative, got %d", c.Shutdown.TimeoutSeconds))
	}
	if c.Shutdown.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("shutdown.poll_interval must be positive, got %v", c.Shutdown.PollInterval))
	}
	for _, p := range c.Shutdown.ProtectedPaths {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			errs = append(errs, fmt.Sprintf("shutdown.protected_paths contains an invalid pattern %q", p))
		}
	}

	if c.Launch.WaitTimeout < 0 {
		errs = append(errs, fmt.Sprintf("launch.wait_timeout must not be negative, got %v", c.Launch.WaitTimeout))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// AppSpec converts the app section to the lifecycle description.
func (c *Config) AppSpec() lifecycle.AppSpec {
	key := strings.ToLower(c.App.Name)
	spec := lifecycle.AppSpec{
		Name:       c.App.Name,
		Scheme:     c.App.Scheme,
		Command:    c.App.Command,
		Executable: c.App.Executable,
	}
	if spec.Scheme == "" {
		spec.Scheme = key
	}
	if spec.Command == "" {
		spec.Command = key
	}
	return spec
}

// ShutdownOptions returns the protocol timings with the configured poll interval.
func (c *Config) ShutdownOptions() lifecycle.ShutdownOptions {
	opts := lifecycle.DefaultShutdownOptions()
	opts.PollInterval = c.Shutdown.PollInterval
	return opts
}

// LockPath is the operation lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "agctl.lock")
}

// LifecycleLogPath is the JSON-lines audit log.
func (c *Config) LifecycleLogPath() string {
	return filepath.Join(c.StateDir, "lifecycle.log")
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
