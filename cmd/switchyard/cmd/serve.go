package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/definitions"
	"github.com/switchyard-dev/switchyard/internal/logging"
	"github.com/switchyard-dev/switchyard/internal/metrics"
	"github.com/switchyard-dev/switchyard/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the selection HTTP server",
	Long: `Serve exposes the routing engine over HTTP: selection requests, the
merged workflow catalog, definition refresh, health, and prometheus
metrics.

With definitions.watch enabled the definitions directory is watched and
the catalog reloads on changes.

Examples:
  # Start with defaults (127.0.0.1:8787)
  switchyard serve

  # Bind elsewhere
  switchyard serve --addr 0.0.0.0:9000`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default from config: 127.0.0.1:8787)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	eng.monitor.Start(ctx)

	m := metrics.New()
	m.RecordDefinitionLoad(len(eng.snapshot.Errors()))
	recordCatalogGauges(m, eng.snapshot)

	if cfg.Definitions.Watch {
		watcher := startDefinitionsWatch(ctx, eng, m, log)
		if watcher != nil {
			defer func() { _ = watcher.Stop() }()
		}
	}

	webCfg := web.DefaultConfig()
	webCfg.Addr = cfg.Serve.Addr
	if serveAddr != "" {
		webCfg.Addr = serveAddr
	}
	webCfg.CORSOrigins = cfg.Serve.CORSOrigins

	server := web.New(webCfg, web.Deps{
		Selector: eng.newSelector(),
		Loader:   eng.loader,
		Metrics:  m,
		Platform: core.PlatformOrDefault(cfg.Platform.Name),
		Logger:   log,
	})

	log.Info("server starting", "addr", server.Addr())
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// startDefinitionsWatch reloads the catalog when definition files change.
// Watch problems are logged, not fatal; the server still works with manual
// refresh.
func startDefinitionsWatch(ctx context.Context, eng *engine, m *metrics.Metrics, log *logging.Logger) *definitions.Watcher {
	watcher := definitions.NewWatcher(eng.loader.Dir(), eng.cfg.Definitions.Debounce(), func() {
		snap, err := eng.loader.Load(ctx)
		if err != nil {
			log.Warn("definitions reload after change failed", "error", err)
			return
		}
		m.RecordDefinitionLoad(len(snap.Errors()))
		recordCatalogGauges(m, snap)
		log.Info("definitions reloaded", "external", snap.ExternalCount(), "errors", len(snap.Errors()))
	}, log)

	if err := watcher.Start(); err != nil {
		log.Warn("definitions watch unavailable", "error", err)
		return nil
	}
	return watcher
}

// recordCatalogGauges updates the loaded-definitions gauges from the merged
// view, where external definitions have already replaced same-named
// builtins.
func recordCatalogGauges(m *metrics.Metrics, snap *definitions.Snapshot) {
	builtin, external := 0, 0
	for _, p := range snap.Procedures() {
		if p.Source == core.SourceExternal {
			external++
		} else {
			builtin++
		}
	}
	m.SetLoadedDefinitions(metrics.SourceBuiltin, builtin)
	m.SetLoadedDefinitions(metrics.SourceExternal, external)
}
