package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDirName is the per-project configuration directory.
const ConfigDirName = ".switchyard"

// DefaultConfigYAML contains the default configuration YAML content.
// This is what `switchyard init` seeds into a fresh project.
const DefaultConfigYAML = `# Switchyard configuration
#
# Values not specified here use sensible defaults. Every key can also be set
# through the environment with the SWITCHYARD_ prefix, e.g.
# SWITCHYARD_RUNNER_KIND=codex.

log:
  level: info
  # auto renders pretty output on a terminal and JSON otherwise
  format: auto

# Workflow definitions. Built-in workflows are always available; external
# definition files overlay them by name.
definitions:
  dir: .switchyard/definitions
  # Uncomment to sync definitions from a shared repository instead:
  # git:
  #   url: git@github.com:your-org/workflows.git
  #   ref: main
  #   subdir: workflows
  # Reload automatically when definition files change (serve mode)
  watch: false

# Agent CLI used for selection and step execution: claude | codex
runner:
  kind: claude
  # path: /usr/local/bin/claude
  # model: claude-sonnet-4-5
  timeout: 30m

# Issue tracker: github (gh) | gitlab (glab)
platform:
  name: github
  # repo: your-org/your-repo

# Session persistence: json | sqlite
state:
  backend: json
  path: .switchyard/state

serve:
  addr: 127.0.0.1:8787

# Steps marked as requiring approval prompt before running.
# interactive asks in the terminal; auto approves everything.
approval:
  mode: interactive
`

// EnsureConfigFile ensures the project configuration file exists under dir
// (typically ConfigDirName), creating it from DefaultConfigYAML when
// missing. It reports whether the file was created.
func EnsureConfigFile(dir string) (string, bool, error) {
	path := filepath.Join(dir, "config.yaml")

	if _, statErr := os.Stat(path); statErr == nil {
		return path, false, nil
	} else if !os.IsNotExist(statErr) {
		return "", false, fmt.Errorf("checking config: %w", statErr)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", false, fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		return "", false, fmt.Errorf("creating config: %w", err)
	}

	return path, true, nil
}
