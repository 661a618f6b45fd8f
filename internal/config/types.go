// Package config provides configuration loading and management for storyflow.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The defaults work out of the box against a project with a
// .storyflow directory.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//
// Configuration priority (highest to lowest):
//  1. Environment variables (STORYFLOW_ prefix, dots become underscores,
//     e.g. STORYFLOW_REFRESH_INTERVAL)
//  2. Config file specified by STORYFLOW_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/storyflow/config.yaml
//     - macOS: ~/Library/Application Support/storyflow/config.yaml
//     - Windows: %APPDATA%\storyflow\config.yaml
//  4. ./storyflow.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"fmt"
	"time"

	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// Config represents the root configuration structure.
type Config struct {
	// Snapshots locates the YAML stories file.
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`

	// Store locates the SQLite event database.
	Store StoreConfig `mapstructure:"store"`

	// Pipeline customizes the step catalog.
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Refresh controls the watch and serve refresh loop.
	Refresh RefreshConfig `mapstructure:"refresh"`

	// Server contains HTTP API settings.
	Server ServerConfig `mapstructure:"server"`

	// Notify contains transition webhook settings.
	Notify NotifyConfig `mapstructure:"notify"`

	// Log contains logger settings.
	Log LogConfig `mapstructure:"log"`

	// Output contains terminal rendering settings.
	Output OutputConfig `mapstructure:"output"`
}

// SnapshotsConfig locates the stories file.
type SnapshotsConfig struct {
	// Path is the stories file. Empty means auto-discovery under the
	// working directory. STORYFLOW_SNAPSHOTS_PATH always wins.
	Path string `mapstructure:"path"`
}

// StoreConfig locates the event database.
type StoreConfig struct {
	// Path is the SQLite file. Default: .storyflow/events.db
	Path string `mapstructure:"path"`
}

// PipelineConfig customizes the step catalog.
type PipelineConfig struct {
	// Template is used for stories whose snapshot names no template.
	// Empty means the full pipeline.
	Template string `mapstructure:"template"`

	// ManifestPath is an optional CSV template manifest.
	ManifestPath string `mapstructure:"manifest_path"`

	// Timeouts replaces default stage timeouts, keyed by stage id.
	// A zero duration disables the stage's timeout.
	Timeouts map[string]time.Duration `mapstructure:"timeouts"`
}

// RefreshConfig controls the fixed-cadence refresh loop.
type RefreshConfig struct {
	// Interval between refreshes. Default: 15s
	Interval time.Duration `mapstructure:"interval"`

	// EventLimit caps the events replayed per story. Default: 200
	EventLimit int `mapstructure:"event_limit"`

	// Stories limits the loop to these ids. Empty means every story in
	// the stories file.
	Stories []string `mapstructure:"stories"`

	// Concurrency caps parallel projections per refresh. Default: 4
	Concurrency int `mapstructure:"concurrency"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	// ListenAddr is the address the API binds. Default: 127.0.0.1:8088
	ListenAddr string `mapstructure:"listen_addr"`
}

// NotifyConfig contains transition webhook settings.
type NotifyConfig struct {
	// WebhookURL receives a JSON POST per transition. Empty disables
	// notifications.
	WebhookURL string `mapstructure:"webhook_url"`

	// Statuses are the target statuses that trigger a notification.
	// Default: failed, timed_out, awaiting_approval
	Statuses []string `mapstructure:"statuses"`

	// MaxRetries bounds delivery retries per notification. Default: 3
	MaxRetries int `mapstructure:"max_retries"`

	// Timeout bounds a single delivery attempt. Default: 5s
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `mapstructure:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `mapstructure:"development"`
}

// OutputConfig contains terminal rendering settings.
type OutputConfig struct {
	// ShowActions lists each stage's permissible actions. Default: true
	ShowActions bool `mapstructure:"show_actions"`

	// ShowSubsteps lists stage substeps. Default: true
	ShowSubsteps bool `mapstructure:"show_substeps"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: ".storyflow/events.db",
		},
		Pipeline: PipelineConfig{
			Timeouts: map[string]time.Duration{},
		},
		Refresh: RefreshConfig{
			Interval:    15 * time.Second,
			EventLimit:  200,
			Concurrency: 4,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8088",
		},
		Notify: NotifyConfig{
			Statuses: []string{
				string(status.StatusFailed),
				string(status.StatusTimedOut),
				string(status.StatusAwaitingApproval),
			},
			MaxRetries: 3,
			Timeout:    5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Output: OutputConfig{
			ShowActions:  true,
			ShowSubsteps: true,
		},
	}
}

// StageTimeouts resolves [PipelineConfig.Timeouts] keys to canonical stage
// ids. Legacy aliases are accepted.
func (c *Config) StageTimeouts() (map[pipeline.StageID]time.Duration, error) {
	out := make(map[pipeline.StageID]time.Duration, len(c.Pipeline.Timeouts))
	for raw, d := range c.Pipeline.Timeouts {
		id, ok := pipeline.Canonical(raw)
		if !ok {
			return nil, fmt.Errorf("pipeline.timeouts: unknown stage %q", raw)
		}
		if d < 0 {
			return nil, fmt.Errorf("pipeline.timeouts.%s: negative duration %s", raw, d)
		}
		out[id] = d
	}
	return out, nil
}

// NotifyStatuses parses [NotifyConfig.Statuses].
func (c *Config) NotifyStatuses() ([]status.Status, error) {
	out := make([]status.Status, 0, len(c.Notify.Statuses))
	for _, raw := range c.Notify.Statuses {
		st, ok := status.Parse(raw)
		if !ok {
			return nil, fmt.Errorf("notify.statuses: unknown status %q", raw)
		}
		out = append(out, st)
	}
	return out, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.Concurrency < 1 {
		return fmt.Errorf("refresh.concurrency must be at least 1, got %d", c.Refresh.Concurrency)
	}
	if c.Notify.MaxRetries < 0 {
		return fmt.Errorf("notify.max_retries must not be negative, got %d", c.Notify.MaxRetries)
	}
	if _, err := c.StageTimeouts(); err != nil {
		return err
	}
	if _, err := c.NotifyStatuses(); err != nil {
		return err
	}
	return nil
}
