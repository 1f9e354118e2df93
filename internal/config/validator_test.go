package config

import (
	"strings"
	"testing"
)

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Definitions: DefinitionsConfig{
			Dir:           ".switchyard/definitions",
			WatchDebounce: "500ms",
		},
		Runner: RunnerConfig{
			Kind:    "claude",
			Timeout: "30m",
		},
		Platform: PlatformConfig{
			Name: "github",
		},
		State: StateConfig{
			Backend: "json",
			Path:    ".switchyard/state",
		},
		Serve: ServeConfig{
			Addr:        "127.0.0.1:8787",
			CORSOrigins: []string{"*"},
		},
		Approval: ApprovalConfig{
			Mode: ApprovalInteractive,
		},
	}
}

// fieldError reports whether err is a ValidationErrors carrying an entry
// for field.
func fieldError(t *testing.T, err error, field string) bool {
	t.Helper()
	if err == nil {
		return false
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidator_ValidConfig(t *testing.T) {
	cfg := validConfig()
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidator_ValidGitSourceConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Definitions.Dir = ""
	cfg.Definitions.Git = GitDefinitionsConfig{
		URL:      "git@github.com:acme/workflows.git",
		Ref:      "main",
		Subdir:   "workflows",
		CacheDir: ".switchyard/cache/definitions",
	}

	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidator_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "log.level") {
		t.Error("expected error for log.level field")
	}
}

func TestValidator_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Format = "xml"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "log.format") {
		t.Error("expected error for log.format field")
	}
}

func TestValidator_MissingDefinitionsDir(t *testing.T) {
	cfg := validConfig()
	cfg.Definitions.Dir = ""

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "definitions.dir") {
		t.Error("expected error for definitions.dir field")
	}
}

func TestValidator_GitSourceDoesNotNeedDir(t *testing.T) {
	cfg := validConfig()
	cfg.Definitions.Dir = ""
	cfg.Definitions.Git.URL = "https://github.com/acme/workflows.git"
	cfg.Definitions.Git.CacheDir = ".switchyard/cache/definitions"

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil (git source replaces dir)", err)
	}
}

func TestValidator_GitSourceMissingCacheDir(t *testing.T) {
	cfg := validConfig()
	cfg.Definitions.Git.URL = "https://github.com/acme/workflows.git"
	cfg.Definitions.Git.CacheDir = ""

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "definitions.git.cache_dir") {
		t.Error("expected error for definitions.git.cache_dir field")
	}
}

func TestValidator_GitSubdirTraversal(t *testing.T) {
	tests := []struct {
		name   string
		subdir string
	}{
		{"parent escape", "../secrets"},
		{"nested escape", "workflows/../../etc"},
		{"absolute", "/etc/workflows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Definitions.Git.URL = "https://github.com/acme/workflows.git"
			cfg.Definitions.Git.CacheDir = ".switchyard/cache/definitions"
			cfg.Definitions.Git.Subdir = tt.subdir

			err := ValidateConfig(cfg)
			if !fieldError(t, err, "definitions.git.subdir") {
				t.Errorf("subdir %q: expected error for definitions.git.subdir field", tt.subdir)
			}
		})
	}
}

func TestValidator_InvalidWatchDebounce(t *testing.T) {
	cfg := validConfig()
	cfg.Definitions.WatchDebounce = "soon"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "definitions.watch_debounce") {
		t.Error("expected error for definitions.watch_debounce field")
	}
}

func TestValidator_UnknownRunnerKind(t *testing.T) {
	cfg := validConfig()
	cfg.Runner.Kind = "gemini"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "runner.kind") {
		t.Error("expected error for runner.kind field")
	}
}

func TestValidator_InvalidRunnerTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
	}{
		{"not a duration", "thirty minutes"},
		{"zero", "0s"},
		{"negative", "-5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Runner.Timeout = tt.timeout

			err := ValidateConfig(cfg)
			if !fieldError(t, err, "runner.timeout") {
				t.Errorf("timeout %q: expected error for runner.timeout field", tt.timeout)
			}
		})
	}
}

func TestValidator_UnknownPlatform(t *testing.T) {
	cfg := validConfig()
	cfg.Platform.Name = "bitbucket"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "platform.name") {
		t.Error("expected error for platform.name field")
	}
}

func TestValidator_MalformedPlatformRepo(t *testing.T) {
	cfg := validConfig()
	cfg.Platform.Repo = "just-a-name"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "platform.repo") {
		t.Error("expected error for platform.repo field")
	}
}

func TestValidator_EmptyPlatformRepoAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Platform.Repo = ""

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil (repo is optional)", err)
	}
}

func TestValidator_UnknownStateBackend(t *testing.T) {
	cfg := validConfig()
	cfg.State.Backend = "redis"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "state.backend") {
		t.Error("expected error for state.backend field")
	}
}

func TestValidator_MissingStatePath(t *testing.T) {
	cfg := validConfig()
	cfg.State.Path = ""

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "state.path") {
		t.Error("expected error for state.path field")
	}
}

func TestValidator_InvalidServeAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Serve.Addr = "8787"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "serve.addr") {
		t.Error("expected error for serve.addr field")
	}
}

func TestValidator_PortOnlyServeAddrAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Serve.Addr = ":8787"

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil (:port binds all interfaces)", err)
	}
}

func TestValidator_UnknownApprovalMode(t *testing.T) {
	cfg := validConfig()
	cfg.Approval.Mode = "always"

	err := ValidateConfig(cfg)
	if !fieldError(t, err, "approval.mode") {
		t.Error("expected error for approval.mode field")
	}
}

func TestValidator_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	cfg.Runner.Kind = "gemini"
	cfg.State.Backend = "redis"

	v := NewValidator()
	err := v.Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want errors")
	}

	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(errs) != 3 {
		t.Errorf("len(errs) = %d, want 3: %v", len(errs), errs)
	}
	if !errs.HasErrors() {
		t.Error("HasErrors() = false, want true")
	}
	if !strings.Contains(errs.Error(), "log.level") || !strings.Contains(errs.Error(), "runner.kind") {
		t.Errorf("Error() = %q, want all fields mentioned", errs.Error())
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "runner.kind", Value: "gemini", Message: "must be one of: claude, codex"}
	got := e.Error()
	for _, want := range []string{"runner.kind", "gemini", "must be one of"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, want substring %q", got, want)
		}
	}
}
