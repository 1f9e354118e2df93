package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Runner      RunnerConfig      `mapstructure:"runner"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	State       StateConfig       `mapstructure:"state"`
	Serve       ServeConfig       `mapstructure:"serve"`
	Approval    ApprovalConfig    `mapstructure:"approval"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// DefinitionsConfig configures where workflow definitions come from.
// With an empty git URL, definitions are read from the local Dir; otherwise
// the git checkout under Git.CacheDir is the source of truth and Dir is
// ignored.
type DefinitionsConfig struct {
	Dir           string               `mapstructure:"dir"`
	Git           GitDefinitionsConfig `mapstructure:"git"`
	Watch         bool                 `mapstructure:"watch"`
	WatchDebounce string               `mapstructure:"watch_debounce"`
}

// GitDefinitionsConfig configures a git-backed definitions source.
type GitDefinitionsConfig struct {
	URL      string `mapstructure:"url"`
	Ref      string `mapstructure:"ref"`
	Subdir   string `mapstructure:"subdir"`
	CacheDir string `mapstructure:"cache_dir"`
}

// RunnerConfig configures the agent CLI used for selection and step
// execution.
type RunnerConfig struct {
	Kind            string `mapstructure:"kind"`
	Path            string `mapstructure:"path"`
	Model           string `mapstructure:"model"`
	Timeout         string `mapstructure:"timeout"`
	ReasoningEffort string `mapstructure:"reasoning_effort"`
}

// PlatformConfig configures the issue tracker integration.
type PlatformConfig struct {
	Name string `mapstructure:"name"`
	Repo string `mapstructure:"repo"`
	Bin  string `mapstructure:"bin"`
}

// StateConfig configures session persistence. For the json backend Path is
// a directory; for sqlite it is the database file.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ApprovalConfig configures the approval gate for steps that require it.
type ApprovalConfig struct {
	Mode string `mapstructure:"mode"`
}

// Approval modes.
const (
	ApprovalInteractive = "interactive"
	ApprovalAuto        = "auto"
)

// HasGitSource reports whether definitions are fetched from a remote
// repository.
func (c *DefinitionsConfig) HasGitSource() bool {
	return c.Git.URL != ""
}

// Debounce returns the parsed watch debounce interval. Call after
// validation; an unparseable value yields zero and the watcher falls back
// to its own default.
func (c *DefinitionsConfig) Debounce() time.Duration {
	d, _ := time.ParseDuration(c.WatchDebounce)
	return d
}

// StepTimeout returns the parsed per-step timeout. Call after validation;
// an unparseable value yields zero and the runner falls back to its own
// default.
func (c *RunnerConfig) StepTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}
