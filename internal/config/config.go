package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "STORYFLOW"

// ConfigPathEnv names an explicit config file.
const ConfigPathEnv = "STORYFLOW_CONFIG_PATH"

const appName = "storyflow"

// Loader handles Viper-based configuration loading.
//
// Each Loader owns a private Viper instance, so loaders never share state.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a [Loader] with defaults and environment overrides
// registered.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// setDefaults registers every key so AutomaticEnv can override it and
// Unmarshal sees it even when no config file is present.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("snapshots.path", d.Snapshots.Path)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("pipeline.template", d.Pipeline.Template)
	v.SetDefault("pipeline.manifest_path", d.Pipeline.ManifestPath)
	v.SetDefault("refresh.interval", d.Refresh.Interval)
	v.SetDefault("refresh.event_limit", d.Refresh.EventLimit)
	v.SetDefault("refresh.stories", d.Refresh.Stories)
	v.SetDefault("refresh.concurrency", d.Refresh.Concurrency)
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("notify.webhook_url", d.Notify.WebhookURL)
	v.SetDefault("notify.statuses", d.Notify.Statuses)
	v.SetDefault("notify.max_retries", d.Notify.MaxRetries)
	v.SetDefault("notify.timeout", d.Notify.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("output.show_actions", d.Output.ShowActions)
	v.SetDefault("output.show_substeps", d.Output.ShowSubsteps)
}

// Load discovers and reads the config file, applies environment overrides,
// and validates the result. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if path := discover(); path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadFromFile reads the given config file. The file type is taken from its
// extension, so JSON and TOML work as well as YAML.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		l.v.SetConfigType(ext)
	}
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// discover returns the first existing config file in priority order, or "".
func discover() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	if p, err := DefaultConfigPath(); err == nil {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat("storyflow.yaml"); err == nil {
		return "storyflow.yaml"
	}
	return ""
}

// ConfigDir returns the platform-standard storyflow config directory.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigPath returns the user-level config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
