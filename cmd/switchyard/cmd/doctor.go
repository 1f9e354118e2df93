package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/switchyard-dev/switchyard/internal/adapters/git"
	"github.com/switchyard-dev/switchyard/internal/adapters/state"
	"github.com/switchyard-dev/switchyard/internal/config"
	"github.com/switchyard-dev/switchyard/internal/diagnostics"
	"github.com/switchyard-dev/switchyard/internal/logging"
	"github.com/switchyard-dev/switchyard/internal/registry"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check required tools and configuration",
	Long: `Verify that git, the agent runner, and the tracker CLI are usable,
that the configuration and workflow definitions load, and that the state
directory is writable. Also prints a host summary and the last crash
dump, if one exists.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	name     string
	err      error
	required bool
}

func runDoctor(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, configIssues := doctorConfig()

	// Probes record their results and never abort the group; the report
	// covers everything it can reach even when one check fails.
	log := logging.NewNop()
	var (
		gitVersion   string
		gitErr       error
		runnerErr    error
		trackerErr   error
		defsExternal int
		defsFileErrs int
		defsSyncErr  error
		stateErr     error
	)

	var trackerName string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gitVersion, gitErr = git.NewSyncer(git.Options{Logger: log}).Version(gctx)
		return nil
	})
	if cfg != nil {
		g.Go(func() error {
			agent, err := buildRunner(cfg, registry.New(), log)
			if err == nil {
				err = agent.Ping(gctx)
			}
			runnerErr = err
			return nil
		})
		tracker, platform := buildTracker(cfg, log)
		trackerName = fmt.Sprintf("%s tracker CLI", platform)
		g.Go(func() error {
			trackerErr = tracker.VerifyAuth(gctx)
			return nil
		})
		g.Go(func() error {
			loader := buildDefinitionsLoader(cfg, registry.New(), log)
			snap, err := loader.Load(gctx)
			defsSyncErr = err
			defsExternal = snap.ExternalCount()
			defsFileErrs = len(snap.Errors())
			return nil
		})
		g.Go(func() error {
			stateErr = probeStateDir(cfg.State)
			return nil
		})
	}
	_ = g.Wait()

	fmt.Println("Checking environment...")
	fmt.Println()

	gitName := "git"
	if gitErr == nil {
		gitName = "git " + gitVersion
	}
	checks := []doctorCheck{{name: gitName, err: gitErr, required: true}}

	if cfg != nil {
		checks = append(checks, doctorCheck{
			name:     fmt.Sprintf("%s runner", cfg.Runner.Kind),
			err:      runnerErr,
			required: true,
		})
		checks = append(checks, doctorCheck{name: trackerName, err: trackerErr})

		defs := doctorCheck{name: fmt.Sprintf("definitions: %d external loaded", defsExternal)}
		switch {
		case defsFileErrs > 0:
			defs.name = "definitions"
			defs.err = fmt.Errorf("%d definition files failed validation, run 'switchyard definitions validate'", defsFileErrs)
			defs.required = true
		case defsSyncErr != nil:
			defs.name = "definitions source"
			defs.err = defsSyncErr
		}
		checks = append(checks, defs)

		checks = append(checks, doctorCheck{
			name:     fmt.Sprintf("state dir writable (%s)", cfg.State.Path),
			err:      stateErr,
			required: true,
		})
	}

	allOk := true
	requiredOk := true
	for _, c := range checks {
		switch {
		case c.err == nil:
			fmt.Printf("  ✓ %s\n", c.name)
		case c.required:
			fmt.Printf("  ✗ %s: %v\n", c.name, c.err)
			requiredOk = false
			allOk = false
		default:
			fmt.Printf("  ○ %s (optional): %v\n", c.name, c.err)
			allOk = false
		}
	}
	if cfg == nil {
		fmt.Println("  ○ runner, tracker, definitions, and state checks skipped: config failed to load")
	}
	fmt.Println()

	fmt.Println("Validating configuration...")
	fmt.Println()
	if len(configIssues) > 0 {
		for _, issue := range configIssues {
			fmt.Printf("  ✗ %s\n", issue)
		}
		fmt.Println()
		fmt.Printf("Edit %s to fix the issues above.\n", filepath.Join(config.ConfigDirName, "config.yaml"))
		requiredOk = false
		allOk = false
	} else {
		fmt.Println("  ✓ configuration valid")
	}
	fmt.Println()

	printSystemInfo(cfg)
	printLastCrash()

	if !requiredOk {
		fmt.Println("Some required checks failed")
		return fmt.Errorf("environment check failed")
	}
	if allOk {
		fmt.Println("All checks passed")
	} else {
		fmt.Println("Required checks passed, some optional ones reported problems")
	}
	return nil
}

// doctorConfig loads and validates configuration without aborting the other
// probes; findings come back as printable issues.
func doctorConfig() (*config.Config, []string) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, []string{fmt.Sprintf("cannot load config: %v", err)}
	}
	if err := config.ValidateConfig(cfg); err != nil {
		if verrs, ok := err.(config.ValidationErrors); ok {
			issues := make([]string, 0, len(verrs))
			for _, verr := range verrs {
				issues = append(issues, verr.Error())
			}
			return cfg, issues
		}
		return cfg, []string{err.Error()}
	}
	return cfg, nil
}

// probeStateDir verifies the session store location is writable before a run
// depends on it.
func probeStateDir(sc config.StateConfig) error {
	dir := sc.Path
	if state.Backend(sc.Backend) == state.BackendSQLite {
		dir = filepath.Dir(sc.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}

func printSystemInfo(cfg *config.Config) {
	statePath := ""
	if cfg != nil {
		statePath = cfg.State.Path
	}
	info := diagnostics.CollectSystemInfo(statePath)

	fmt.Println("System:")
	fmt.Printf("  %s %s/%s\n", info.GoVersion, info.GOOS, info.GOARCH)
	if info.CPUModel != "" {
		fmt.Printf("  CPU: %s (%d cores, %d threads)\n", info.CPUModel, info.CPUCores, info.CPUThreads)
	}
	if info.MemTotalMB > 0 {
		fmt.Printf("  Memory: %.0f MB available of %.0f MB (%.0f%% used)\n",
			info.MemAvailableMB, info.MemTotalMB, info.MemUsedPercent)
	}
	if info.StateDiskTotalGB > 0 {
		fmt.Printf("  State disk: %.1f GB free of %.1f GB\n", info.StateDiskFreeGB, info.StateDiskTotalGB)
	}
	if info.LoadAvg1 > 0 {
		fmt.Printf("  Load: %.2f %.2f %.2f\n", info.LoadAvg1, info.LoadAvg5, info.LoadAvg15)
	}
	if len(info.GPUs) > 0 {
		fmt.Printf("  GPU: %s\n", strings.Join(info.GPUs, ", "))
	}
	fmt.Println()
}

// printLastCrash surfaces the newest crash dump, if any. Absence is the
// normal case and prints nothing.
func printLastCrash() {
	dir := filepath.Join(config.ConfigDirName, "crashdumps")
	dump, err := diagnostics.LoadLatestCrashDump(dir)
	if err != nil {
		return
	}
	fmt.Printf("Last crash: %s\n", dump.Timestamp.Format(time.RFC3339))
	if dump.PanicValue != "" {
		line, _, _ := strings.Cut(dump.PanicValue, "\n")
		fmt.Printf("  panic: %s\n", line)
	}
	fmt.Printf("  Full dump in %s\n", dir)
	fmt.Println()
}
