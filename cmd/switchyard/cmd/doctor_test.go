package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/switchyard-dev/switchyard/internal/config"
)

// --- probeStateDir ---

func TestProbeStateDir_JSONBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	sc := config.StateConfig{Backend: "json", Path: dir}

	if err := probeStateDir(sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state dir should have been created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".doctor-probe")); !os.IsNotExist(err) {
		t.Error("probe file should have been removed")
	}
}

func TestProbeStateDir_SQLiteUsesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "sessions.db")
	sc := config.StateConfig{Backend: "sqlite", Path: dbPath}

	if err := probeStateDir(sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Errorf("parent dir should have been created: %v", err)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Error("the database file itself should not be created by the probe")
	}
}

func TestProbeStateDir_PathBlockedByFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sc := config.StateConfig{Backend: "json", Path: filepath.Join(blocker, "state")}
	if err := probeStateDir(sc); err == nil {
		t.Error("expected error when the state path is blocked by a file")
	}
}

// --- doctorConfig ---

func TestDoctorConfig_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	oldCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = oldCfgFile }()

	cfg, issues := doctorConfig()
	if cfg == nil {
		t.Fatal("expected config to load")
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got: %v", issues)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level from file, got %q", cfg.Log.Level)
	}
}

func TestDoctorConfig_InvalidRunnerKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("runner:\n  kind: grok\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	oldCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = oldCfgFile }()

	cfg, issues := doctorConfig()
	if cfg == nil {
		t.Fatal("validation findings should still return the config")
	}
	found := false
	for _, issue := range issues {
		if strings.Contains(issue, "runner.kind") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected a runner.kind finding, got: %v", issues)
	}
}

func TestDoctorConfig_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("runnr:\n  kind: claude\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	oldCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = oldCfgFile }()

	cfg, issues := doctorConfig()
	if cfg != nil {
		t.Error("a typo'd section should fail the load, not fall back to defaults")
	}
	if len(issues) == 0 || !strings.Contains(issues[0], "cannot load config") {
		t.Errorf("expected a load failure issue, got: %v", issues)
	}
}

func TestDoctorConfig_MissingExplicitFile(t *testing.T) {
	oldCfgFile := cfgFile
	cfgFile = filepath.Join(t.TempDir(), "nope.yaml")
	defer func() { cfgFile = oldCfgFile }()

	cfg, issues := doctorConfig()
	if cfg != nil {
		t.Error("expected nil config for a missing explicit file")
	}
	if len(issues) == 0 {
		t.Error("expected a load failure issue")
	}
}
