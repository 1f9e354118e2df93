package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateHome points the user config search path at an empty directory so
// a developer's real ~/.config/switchyard cannot leak into assertions.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoader_Defaults(t *testing.T) {
	isolateHome(t)

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}

	if cfg.Definitions.Dir != filepath.Join(".switchyard", "definitions") {
		t.Errorf("Definitions.Dir = %q, want %q", cfg.Definitions.Dir, ".switchyard/definitions")
	}
	if cfg.Definitions.HasGitSource() {
		t.Error("Definitions.HasGitSource() = true, want false (default)")
	}
	if cfg.Definitions.Watch {
		t.Error("Definitions.Watch = true, want false (default)")
	}
	if cfg.Definitions.Debounce() != 500*time.Millisecond {
		t.Errorf("Definitions.Debounce() = %v, want %v", cfg.Definitions.Debounce(), 500*time.Millisecond)
	}

	if cfg.Runner.Kind != "claude" {
		t.Errorf("Runner.Kind = %q, want %q", cfg.Runner.Kind, "claude")
	}
	if cfg.Runner.StepTimeout() != 30*time.Minute {
		t.Errorf("Runner.StepTimeout() = %v, want %v", cfg.Runner.StepTimeout(), 30*time.Minute)
	}
	// Model has no default; an empty value lets the CLI pick.
	if cfg.Runner.Model != "" {
		t.Errorf("Runner.Model = %q, want empty (no default)", cfg.Runner.Model)
	}

	if cfg.Platform.Name != "github" {
		t.Errorf("Platform.Name = %q, want %q", cfg.Platform.Name, "github")
	}

	if cfg.State.Backend != "json" {
		t.Errorf("State.Backend = %q, want %q", cfg.State.Backend, "json")
	}
	if cfg.State.Path != filepath.Join(".switchyard", "state") {
		t.Errorf("State.Path = %q, want %q", cfg.State.Path, ".switchyard/state")
	}

	if cfg.Serve.Addr != "127.0.0.1:8787" {
		t.Errorf("Serve.Addr = %q, want %q", cfg.Serve.Addr, "127.0.0.1:8787")
	}

	if cfg.Approval.Mode != ApprovalInteractive {
		t.Errorf("Approval.Mode = %q, want %q", cfg.Approval.Mode, ApprovalInteractive)
	}
}

func TestLoader_DefaultsAreValid(t *testing.T) {
	isolateHome(t)

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, defaults should be valid", err)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("SWITCHYARD_LOG_LEVEL", "debug")
	t.Setenv("SWITCHYARD_RUNNER_KIND", "codex")
	t.Setenv("SWITCHYARD_STATE_BACKEND", "sqlite")

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Runner.Kind != "codex" {
		t.Errorf("Runner.Kind = %q, want %q", cfg.Runner.Kind, "codex")
	}
	if cfg.State.Backend != "sqlite" {
		t.Errorf("State.Backend = %q, want %q", cfg.State.Backend, "sqlite")
	}
}

func TestLoader_MissingConfig(t *testing.T) {
	isolateHome(t)

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil (should use defaults)", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q (default)", cfg.Log.Level, "info")
	}
}

func TestLoader_ConfigFileOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
log:
  level: warn
  format: json
definitions:
  git:
    url: git@github.com:acme/workflows.git
    ref: main
    subdir: workflows
  watch: true
runner:
  kind: codex
  model: o3
  timeout: "1h"
serve:
  cors_origins:
    - https://app.example.com
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if !cfg.Definitions.HasGitSource() {
		t.Error("Definitions.HasGitSource() = false, want true")
	}
	if cfg.Definitions.Git.Subdir != "workflows" {
		t.Errorf("Definitions.Git.Subdir = %q, want %q", cfg.Definitions.Git.Subdir, "workflows")
	}
	if !cfg.Definitions.Watch {
		t.Error("Definitions.Watch = false, want true")
	}
	if cfg.Runner.Kind != "codex" {
		t.Errorf("Runner.Kind = %q, want %q", cfg.Runner.Kind, "codex")
	}
	if cfg.Runner.Model != "o3" {
		t.Errorf("Runner.Model = %q, want %q", cfg.Runner.Model, "o3")
	}
	if cfg.Runner.StepTimeout() != time.Hour {
		t.Errorf("Runner.StepTimeout() = %v, want %v", cfg.Runner.StepTimeout(), time.Hour)
	}
	if len(cfg.Serve.CORSOrigins) != 1 || cfg.Serve.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("Serve.CORSOrigins = %v, want [https://app.example.com]", cfg.Serve.CORSOrigins)
	}
}

func TestLoader_Precedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	// Config file sets level to "warn"
	configContent := `
log:
  level: warn
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Environment sets level to "debug" (should override file)
	t.Setenv("SWITCHYARD_LOG_LEVEL", "debug")

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (env should override file)", cfg.Log.Level, "debug")
	}
}

func TestLoader_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid-config.yaml")

	invalidContent := `
log:
  level: [invalid yaml
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	_, err := loader.Load()
	if err == nil {
		t.Error("Load() with invalid config should return error")
	}
}

func TestLoader_UnknownKeyRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	// "runners" is a typo for "runner" and must not be silently ignored.
	configContent := `
runners:
  kind: codex
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	_, err := loader.Load()
	if err == nil {
		t.Fatal("Load() with unknown key should return error")
	}
	if !strings.Contains(err.Error(), "runners") {
		t.Errorf("error = %v, want mention of the unknown key", err)
	}
}

func TestLoader_ConfigFileUsed(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `log:
  level: info
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	_, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	usedFile := loader.ConfigFile()
	if usedFile != configPath {
		t.Errorf("ConfigFile() = %q, want %q", usedFile, configPath)
	}
}

func TestLoader_ProjectConfigDiscovered(t *testing.T) {
	isolateHome(t)

	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ConfigDirName), 0o750); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configContent := `log:
  level: error
`
	configPath := filepath.Join(tmpDir, ConfigDirName, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	t.Chdir(tmpDir)

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q (from project config)", cfg.Log.Level, "error")
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.v == nil {
		t.Error("NewLoader() viper instance is nil")
	}
	if loader.envPrefix != "SWITCHYARD" {
		t.Errorf("NewLoader() envPrefix = %q, want %q", loader.envPrefix, "SWITCHYARD")
	}
}

func TestLoader_WithEnvPrefix(t *testing.T) {
	isolateHome(t)
	t.Setenv("CUSTOM_LOG_LEVEL", "error")

	loader := NewLoader().WithEnvPrefix("CUSTOM")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "error")
	}
}

func TestLoader_SeededConfigIsValid(t *testing.T) {
	// The file `switchyard init` writes must load and validate cleanly.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(DefaultConfigYAML), 0o644); err != nil {
		t.Fatalf("Failed to write seeded config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, seeded config should be valid", err)
	}
	if cfg.Runner.Kind != "claude" {
		t.Errorf("Runner.Kind = %q, want %q", cfg.Runner.Kind, "claude")
	}
}

func TestEnsureConfigFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ConfigDirName)

	path, created, err := EnsureConfigFile(dir)
	if err != nil {
		t.Fatalf("EnsureConfigFile() error = %v", err)
	}
	if !created {
		t.Error("EnsureConfigFile() created = false, want true on first call")
	}
	if path != filepath.Join(dir, "config.yaml") {
		t.Errorf("EnsureConfigFile() path = %q, want %q", path, filepath.Join(dir, "config.yaml"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != DefaultConfigYAML {
		t.Error("EnsureConfigFile() wrote content different from DefaultConfigYAML")
	}

	// Second call must leave the existing file alone.
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, created, err = EnsureConfigFile(dir)
	if err != nil {
		t.Fatalf("EnsureConfigFile() second call error = %v", err)
	}
	if created {
		t.Error("EnsureConfigFile() created = true, want false when file exists")
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "level: debug") {
		t.Error("EnsureConfigFile() overwrote an existing config file")
	}
}
