package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateDefinitions(&cfg.Definitions)
	v.validateRunner(&cfg.Runner)
	v.validatePlatform(&cfg.Platform)
	v.validateState(&cfg.State)
	v.validateServe(&cfg.Serve)
	v.validateApproval(&cfg.Approval)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateDefinitions(cfg *DefinitionsConfig) {
	if cfg.HasGitSource() {
		if cfg.Git.CacheDir == "" {
			v.addError("definitions.git.cache_dir", cfg.Git.CacheDir, "cache directory required with a git source")
		}
		if cfg.Git.Subdir != "" {
			if filepath.IsAbs(cfg.Git.Subdir) {
				v.addError("definitions.git.subdir", cfg.Git.Subdir, "must be relative")
			}
			for _, part := range strings.Split(filepath.ToSlash(cfg.Git.Subdir), "/") {
				if part == ".." {
					v.addError("definitions.git.subdir", cfg.Git.Subdir, "must not escape the checkout")
					break
				}
			}
		}
	} else if cfg.Dir == "" {
		v.addError("definitions.dir", cfg.Dir, "directory required without a git source")
	}

	if d, err := time.ParseDuration(cfg.WatchDebounce); err != nil {
		v.addError("definitions.watch_debounce", cfg.WatchDebounce, "invalid duration format")
	} else if d < 0 {
		v.addError("definitions.watch_debounce", cfg.WatchDebounce, "must be non-negative")
	}
}

func (v *Validator) validateRunner(cfg *RunnerConfig) {
	validKinds := map[string]bool{
		"claude": true, "codex": true,
	}
	if !validKinds[cfg.Kind] {
		v.addError("runner.kind", cfg.Kind, "must be one of: claude, codex")
	}

	if d, err := time.ParseDuration(cfg.Timeout); err != nil {
		v.addError("runner.timeout", cfg.Timeout, "invalid duration format")
	} else if d <= 0 {
		v.addError("runner.timeout", cfg.Timeout, "must be positive")
	}
}

func (v *Validator) validatePlatform(cfg *PlatformConfig) {
	validPlatforms := map[string]bool{
		"github": true, "gitlab": true,
	}
	if !validPlatforms[cfg.Name] {
		v.addError("platform.name", cfg.Name, "must be one of: github, gitlab")
	}

	if cfg.Repo != "" && !strings.Contains(cfg.Repo, "/") {
		v.addError("platform.repo", cfg.Repo, "must be in owner/name form")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	validBackends := map[string]bool{
		"json": true, "sqlite": true,
	}
	if !validBackends[cfg.Backend] {
		v.addError("state.backend", cfg.Backend, "must be one of: json, sqlite")
	}

	if cfg.Path == "" {
		v.addError("state.path", cfg.Path, "path required")
	}
}

func (v *Validator) validateServe(cfg *ServeConfig) {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.addError("serve.addr", cfg.Addr, "must be in host:port form")
	}
}

func (v *Validator) validateApproval(cfg *ApprovalConfig) {
	validModes := map[string]bool{
		ApprovalInteractive: true, ApprovalAuto: true,
	}
	if !validModes[cfg.Mode] {
		v.addError("approval.mode", cfg.Mode, "must be one of: interactive, auto")
	}
}

// ValidateConfig is a convenience function that creates a validator and
// validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
