// Package definitions loads externally defined procedures from YAML files,
// validates them, and merges them over the built-in set. Files come from a
// local directory or a git-backed checkout; each file is an isolated failure
// domain, so one broken file never blocks the rest.
package definitions

import (
	"path/filepath"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// fileDocument is the top-level shape of one definition file.
type fileDocument struct {
	Workflows []fileDefinition `yaml:"workflows"`
}

// fileDefinition is one procedure entry as written on disk. Field names
// follow the file format (snake_case); boolean flags are pointers because an
// absent flag is not the same as an explicit false.
type fileDefinition struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Priority    int           `yaml:"priority"`
	Triggers    *fileTriggers `yaml:"triggers"`
	Subroutines []fileStep    `yaml:"subroutines"`
}

type fileTriggers struct {
	Classifications []string `yaml:"classifications"`
	Labels          []string `yaml:"labels"`
	Keywords        []string `yaml:"keywords"`
	Examples        []string `yaml:"examples"`
}

type fileStep struct {
	Name        string `yaml:"name"`
	PromptFile  string `yaml:"prompt_file"`
	Description string `yaml:"description"`

	SingleTurn            *bool    `yaml:"single_turn"`
	UsesValidationLoop    *bool    `yaml:"uses_validation_loop"`
	DisallowAllTools      *bool    `yaml:"disallow_all_tools"`
	DisallowedTools       []string `yaml:"disallowed_tools"`
	RequiresApproval      *bool    `yaml:"requires_approval"`
	SuppressOutputPosting *bool    `yaml:"suppress_output_posting"`
	SkipOutputPosting     *bool    `yaml:"skip_output_posting"`
}

// toExternal converts a validated file entry into the engine's definition
// type. Prompt file paths are resolved against the directory of the file
// that declared them, so instruction references are usable from any working
// directory.
func (d *fileDefinition) toExternal(baseDir, sourceFile string) *core.ExternalDefinition {
	steps := make([]core.StepDefinition, len(d.Subroutines))
	for i, s := range d.Subroutines {
		steps[i] = core.StepDefinition{
			Name:                  s.Name,
			InstructionRef:        resolvePromptPath(baseDir, sourceFile, s.PromptFile),
			Description:           s.Description,
			SingleTurn:            s.SingleTurn,
			UsesValidationLoop:    s.UsesValidationLoop,
			DisallowAllTools:      s.DisallowAllTools,
			DisallowedTools:       append([]string(nil), s.DisallowedTools...),
			RequiresApproval:      s.RequiresApproval,
			SuppressOutputPosting: s.SuppressOutputPosting,
			SkipOutputPosting:     s.SkipOutputPosting,
		}
	}

	ext := &core.ExternalDefinition{
		Procedure: &core.Procedure{
			Name:        d.Name,
			Description: d.Description,
			Steps:       steps,
			Source:      core.SourceExternal,
		},
		Priority:   d.Priority,
		SourceFile: sourceFile,
	}
	if d.Triggers != nil {
		cls := make([]core.Classification, 0, len(d.Triggers.Classifications))
		for _, c := range d.Triggers.Classifications {
			cls = append(cls, core.Classification(strings.ToLower(strings.TrimSpace(c))))
		}
		ext.Triggers = core.Triggers{
			Classifications: cls,
			Labels:          append([]string(nil), d.Triggers.Labels...),
			Keywords:        append([]string(nil), d.Triggers.Keywords...),
			Examples:        append([]string(nil), d.Triggers.Examples...),
		}
	}
	return ext
}

// resolvePromptPath turns a prompt_file value into an absolute path. Relative
// paths are anchored at the declaring file's directory.
func resolvePromptPath(baseDir, sourceFile, promptFile string) string {
	if promptFile == "" || filepath.IsAbs(promptFile) {
		return promptFile
	}
	return filepath.Join(baseDir, filepath.Dir(sourceFile), promptFile)
}
