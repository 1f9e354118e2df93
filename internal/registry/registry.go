// Package registry holds the built-in procedure table: the static set of
// named step sequences, the classification-to-procedure mapping, and the
// platform variant overrides. The registry is constructed once at process
// start and injected into consumers; lookups are pure reads over immutable
// data.
package registry

import (
	"embed"
	"fmt"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
)

//go:embed prompts
var promptFS embed.FS

// Registry is the static table of built-in procedures.
type Registry struct {
	procedures      map[string]*core.Procedure
	order           []string
	byClass         map[core.Classification]string
	platformVariant map[string]map[core.Platform]string
}

// New builds the registry with all built-in procedures.
func New() *Registry {
	r := &Registry{
		procedures: make(map[string]*core.Procedure),
		byClass: map[core.Classification]string{
			core.ClassificationQuestion:      "answer",
			core.ClassificationDocumentation: "document",
			core.ClassificationCodeChange:    "implement",
			core.ClassificationDebug:         "debug",
			core.ClassificationOrchestration: "orchestrate",
			core.ClassificationManualTest:    "manual-test",
			core.ClassificationRelease:       "release",
		},
		platformVariant: map[string]map[core.Platform]string{
			"implement": {core.PlatformGitLab: "implement-gitlab"},
			"release":   {core.PlatformGitLab: "release-gitlab"},
		},
	}

	for _, p := range builtinProcedures() {
		r.register(p)
	}
	return r
}

// register adds a procedure to the table. Duplicate or invalid builtins are
// a programming error, so this panics during construction.
func (r *Registry) register(p *core.Procedure) {
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("invalid builtin procedure %q: %v", p.Name, err))
	}
	if _, exists := r.procedures[p.Name]; exists {
		panic(fmt.Sprintf("duplicate builtin procedure %q", p.Name))
	}
	p.Source = core.SourceBuiltin
	r.procedures[p.Name] = p
	r.order = append(r.order, p.Name)
}

// Get returns the procedure with the given name, if present.
func (r *Registry) Get(name string) (*core.Procedure, bool) {
	p, ok := r.procedures[name]
	return p, ok
}

// All returns every built-in procedure in registration order.
func (r *Registry) All() []*core.Procedure {
	out := make([]*core.Procedure, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.procedures[name])
	}
	return out
}

// Names returns the built-in procedure names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// ProcedureForClassification maps a classification to its base procedure
// name. The mapping is total: unknown or invalid classifications fall back
// to the default classification's procedure so callers always get a
// resolvable name.
func (r *Registry) ProcedureForClassification(c core.Classification) string {
	if name, ok := r.byClass[c]; ok {
		return name
	}
	return r.byClass[core.DefaultClassification]
}

// PlatformVariant returns the platform-specific substitute for a procedure
// name, falling back to the base name unchanged when no variant exists or
// the platform is the default.
func (r *Registry) PlatformVariant(baseName string, platform core.Platform) string {
	if platform.IsDefault() {
		return baseName
	}
	variants, ok := r.platformVariant[baseName]
	if !ok {
		return baseName
	}
	if name, ok := variants[platform]; ok {
		return name
	}
	return baseName
}

// ResolveInstructions resolves a built-in instruction reference against the
// embedded prompt library.
func (r *Registry) ResolveInstructions(ref string) (string, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(ref), "./")
	data, err := promptFS.ReadFile("prompts/" + clean)
	if err != nil {
		return "", core.ErrNotFound("builtin instructions", ref).WithCause(err)
	}
	return string(data), nil
}

var _ core.InstructionResolver = (*Registry)(nil)
