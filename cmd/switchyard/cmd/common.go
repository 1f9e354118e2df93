package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/switchyard-dev/switchyard/internal/adapters/git"
	"github.com/switchyard-dev/switchyard/internal/adapters/issue"
	"github.com/switchyard-dev/switchyard/internal/adapters/runner"
	"github.com/switchyard-dev/switchyard/internal/adapters/state"
	"github.com/switchyard-dev/switchyard/internal/config"
	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/definitions"
	"github.com/switchyard-dev/switchyard/internal/diagnostics"
	"github.com/switchyard-dev/switchyard/internal/logging"
	"github.com/switchyard-dev/switchyard/internal/registry"
	"github.com/switchyard-dev/switchyard/internal/selector"
)

// loadConfig loads and validates configuration through the global viper so
// bound flags take precedence over file and environment values.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config. --quiet drops everything
// below errors; logs go to stderr so command output stays parseable.
func newLogger(cfg *config.Config) *logging.Logger {
	return newLoggerAt(cfg, cfg.Log.Level)
}

// newLoggerAt builds the logger with an explicit level, for commands that
// own the terminal and push routine logging down to errors.
func newLoggerAt(cfg *config.Config, level string) *logging.Logger {
	if cfg.Log.NoColor {
		// lipgloss, glamour, and the pretty handler all honor NO_COLOR.
		os.Setenv("NO_COLOR", "1")
	}
	if quiet {
		level = "error"
	}
	return logging.New(logging.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// engine bundles the components shared by run, select, and serve: the
// built-in registry, the definitions loader with its current snapshot, and
// the agent runner.
type engine struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *registry.Registry
	loader   *definitions.Loader
	snapshot *definitions.Snapshot
	agent    runner.Runner
	monitor  *diagnostics.ResourceMonitor
}

// buildEngine wires the selection engine. A failed definitions sync is
// reported but not fatal; the loader falls back to whatever is on disk plus
// the built-ins.
func buildEngine(ctx context.Context, cfg *config.Config, log *logging.Logger) (*engine, error) {
	reg := registry.New()
	loader := buildDefinitionsLoader(cfg, reg, log)

	snap, err := loader.Load(ctx)
	if err != nil {
		log.Warn("definitions source sync failed, using last local state", "error", err)
	}
	for file, ferr := range snap.Errors() {
		log.Warn("definition file rejected", "file", file, "error", ferr)
	}

	agent, err := buildRunner(cfg, reg, log)
	if err != nil {
		return nil, err
	}
	monitor := attachDiagnostics(agent, log)

	return &engine{
		cfg:      cfg,
		log:      log,
		registry: reg,
		loader:   loader,
		snapshot: snap,
		agent:    agent,
		monitor:  monitor,
	}, nil
}

// attachDiagnostics wraps runner execution with resource preflight checks
// and crash dumps. The returned monitor samples nothing until Start is
// called; long-running commands start it themselves.
func attachDiagnostics(agent runner.Runner, log *logging.Logger) *diagnostics.ResourceMonitor {
	monitor := diagnostics.NewResourceMonitor(diagnostics.MonitorConfig{}, log)
	dumps := diagnostics.NewCrashDumpWriter(diagnostics.DumpConfig{IncludeStack: true}, log, monitor)
	safe := diagnostics.NewSafeExecutor(diagnostics.DefaultExecConfig(), monitor, dumps, log)

	if d, ok := agent.(interface {
		WithDiagnostics(*diagnostics.SafeExecutor, *diagnostics.CrashDumpWriter)
	}); ok {
		d.WithDiagnostics(safe, dumps)
	}
	return monitor
}

// newSelector builds the three-tier selector over the engine's registry and
// runner.
func (e *engine) newSelector() *selector.Selector {
	return selector.New(e.registry, e.agent, selector.Options{Logger: e.log})
}

// buildDefinitionsLoader wires the external definitions source. With a git
// URL configured the local dir is replaced by a cached checkout keyed by the
// URL.
func buildDefinitionsLoader(cfg *config.Config, reg *registry.Registry, log *logging.Logger) *definitions.Loader {
	opts := definitions.Options{
		Dir:    cfg.Definitions.Dir,
		Logger: log,
	}
	if cfg.Definitions.HasGitSource() {
		syncer := git.NewSyncer(git.Options{Logger: log})
		checkout := definitions.CheckoutDir(cfg.Definitions.Git.CacheDir, cfg.Definitions.Git.URL)
		opts.Source = definitions.NewGitSource(
			cfg.Definitions.Git.URL, cfg.Definitions.Git.Ref, checkout, syncer, log)
		opts.Subdir = cfg.Definitions.Git.Subdir
	}
	return definitions.NewLoader(reg, opts)
}

// buildRunner creates the configured agent CLI adapter. Step instruction
// references resolve through the definition files first, then the embedded
// registry prompts.
func buildRunner(cfg *config.Config, reg *registry.Registry, log *logging.Logger) (runner.Runner, error) {
	rcfg := runner.Config{
		Name:            cfg.Runner.Kind,
		Path:            cfg.Runner.Path,
		Model:           cfg.Runner.Model,
		Timeout:         cfg.Runner.StepTimeout(),
		ReasoningEffort: cfg.Runner.ReasoningEffort,
	}
	agent, err := runner.New(cfg.Runner.Kind, rcfg, runner.NewChainResolver(reg), log)
	if err != nil {
		return nil, fmt.Errorf("creating runner: %w", err)
	}
	return agent, nil
}

// buildTracker creates the issue tracker client for the configured platform.
func buildTracker(cfg *config.Config, log *logging.Logger) (*issue.Client, core.Platform) {
	platform := core.PlatformOrDefault(cfg.Platform.Name)
	client := issue.NewClient(platform, issue.Options{
		Repo:    cfg.Platform.Repo,
		BinPath: cfg.Platform.Bin,
		Logger:  log,
	})
	return client, platform
}

// buildStore creates the session store from config.
func buildStore(cfg *config.Config, log *logging.Logger) (core.SessionStore, error) {
	store, err := state.NewStore(state.Backend(cfg.State.Backend), cfg.State.Path, log)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	return store, nil
}

// stdoutIsTerminal reports whether stdout is attached to a TTY.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// outputJSON writes the given value to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
