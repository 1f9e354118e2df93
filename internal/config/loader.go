package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "SWITCHYARD",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "SWITCHYARD",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (SWITCHYARD_*)
// 3. Project config (.switchyard/config.yaml in current directory)
// 4. User config (~/.config/switchyard/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config (first found
		// wins).
		l.v.AddConfigPath(ConfigDirName)
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "switchyard"))
		}
	}

	// A missing config file is fine; defaults and environment still apply.
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Unknown keys are rejected so a typo'd section fails loudly instead
	// of silently falling back to defaults.
	var cfg Config
	strict := func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
	if err := l.v.Unmarshal(&cfg, strict); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.no_color", false)

	// Definitions defaults (unified under .switchyard/)
	l.v.SetDefault("definitions.dir", filepath.Join(ConfigDirName, "definitions"))
	l.v.SetDefault("definitions.git.url", "")
	l.v.SetDefault("definitions.git.ref", "")
	l.v.SetDefault("definitions.git.subdir", "")
	l.v.SetDefault("definitions.git.cache_dir", filepath.Join(ConfigDirName, "cache", "definitions"))
	l.v.SetDefault("definitions.watch", false)
	l.v.SetDefault("definitions.watch_debounce", "500ms")

	// Runner defaults. An empty path means the kind name is used as the
	// binary name.
	l.v.SetDefault("runner.kind", "claude")
	l.v.SetDefault("runner.path", "")
	l.v.SetDefault("runner.model", "")
	l.v.SetDefault("runner.timeout", "30m")
	l.v.SetDefault("runner.reasoning_effort", "")

	// Platform defaults
	l.v.SetDefault("platform.name", "github")
	l.v.SetDefault("platform.repo", "")
	l.v.SetDefault("platform.bin", "")

	// State defaults
	l.v.SetDefault("state.backend", "json")
	l.v.SetDefault("state.path", filepath.Join(ConfigDirName, "state"))

	// Serve defaults
	l.v.SetDefault("serve.addr", "127.0.0.1:8787")
	l.v.SetDefault("serve.cors_origins", []string{"*"})

	// Approval defaults
	l.v.SetDefault("approval.mode", ApprovalInteractive)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
