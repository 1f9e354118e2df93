package core

import "strings"

// ProcedureSource identifies which layer produced a procedure.
type ProcedureSource string

const (
	// SourceBuiltin marks procedures from the static registry.
	SourceBuiltin ProcedureSource = "builtin"
	// SourceExternal marks procedures loaded from definition files. An
	// external procedure with the same name as a builtin fully replaces it.
	SourceExternal ProcedureSource = "external"
)

// StepDefinition is one executable unit within a procedure. The behavioral
// flags are optional pointers: a nil flag means "not specified", which is
// distinct from an explicit false. Downstream override semantics depend on
// that distinction, so flags are never defaulted during construction.
type StepDefinition struct {
	// Name is unique within the owning procedure, not globally.
	Name string
	// InstructionRef is an opaque pointer to the step's instructions,
	// resolved by the agent runner at execution time.
	InstructionRef string
	Description    string

	SingleTurn            *bool
	UsesValidationLoop    *bool
	DisallowAllTools      *bool
	DisallowedTools       []string
	RequiresApproval      *bool
	SuppressOutputPosting *bool
	SkipOutputPosting     *bool
}

// flagSet reports whether an optional flag is present and true.
func flagSet(b *bool) bool {
	return b != nil && *b
}

// IsSingleTurn reports whether the step runs as a single turn with no
// multi-turn tool use.
func (s *StepDefinition) IsSingleTurn() bool { return flagSet(s.SingleTurn) }

// HasValidationLoop reports whether the step is governed by the bounded
// validation loop.
func (s *StepDefinition) HasValidationLoop() bool { return flagSet(s.UsesValidationLoop) }

// ToolsDisallowed reports whether all tool use is disabled for the step.
func (s *StepDefinition) ToolsDisallowed() bool { return flagSet(s.DisallowAllTools) }

// NeedsApproval reports whether the session must pause for human
// confirmation before the step runs.
func (s *StepDefinition) NeedsApproval() bool { return flagSet(s.RequiresApproval) }

// PostsOutput reports whether the step's output should be posted back to the
// issue tracker. Both suppress and skip flags disable posting; they are kept
// separate because external definitions may override either independently.
func (s *StepDefinition) PostsOutput() bool {
	return !flagSet(s.SuppressOutputPosting) && !flagSet(s.SkipOutputPosting)
}

// Clone returns a deep copy of the step definition.
func (s *StepDefinition) Clone() StepDefinition {
	out := *s
	out.SingleTurn = cloneBool(s.SingleTurn)
	out.UsesValidationLoop = cloneBool(s.UsesValidationLoop)
	out.DisallowAllTools = cloneBool(s.DisallowAllTools)
	out.RequiresApproval = cloneBool(s.RequiresApproval)
	out.SuppressOutputPosting = cloneBool(s.SuppressOutputPosting)
	out.SkipOutputPosting = cloneBool(s.SkipOutputPosting)
	if s.DisallowedTools != nil {
		out.DisallowedTools = append([]string(nil), s.DisallowedTools...)
	}
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// BoolFlag is a convenience constructor for optional step flags.
func BoolFlag(v bool) *bool {
	return &v
}

// Procedure is a named, ordered, immutable sequence of steps selected to
// handle one request.
type Procedure struct {
	Name        string
	Description string
	Steps       []StepDefinition
	Source      ProcedureSource
}

// Validate checks the procedure invariants: non-empty name, at least one
// step, and step names unique within the procedure.
func (p *Procedure) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrStructural(CodeMissingName, "procedure name is empty")
	}
	if len(p.Steps) == 0 {
		return ErrStructural(CodeEmptySteps, "procedure has no steps").
			WithDetail("procedure", p.Name)
	}
	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return ErrStructural(CodeMissingStepName, "step name is empty").
				WithDetail("procedure", p.Name).
				WithDetail("step_index", i)
		}
		if _, dup := seen[step.Name]; dup {
			return ErrStructural(CodeMissingStepName, "duplicate step name").
				WithDetail("procedure", p.Name).
				WithDetail("step", step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

// Step returns the step with the given name, if present.
func (p *Procedure) Step(name string) (*StepDefinition, bool) {
	for i := range p.Steps {
		if p.Steps[i].Name == name {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// StepNames returns the ordered step names.
func (p *Procedure) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// Clone returns a deep copy of the procedure.
func (p *Procedure) Clone() *Procedure {
	out := &Procedure{
		Name:        p.Name,
		Description: p.Description,
		Source:      p.Source,
		Steps:       make([]StepDefinition, len(p.Steps)),
	}
	for i := range p.Steps {
		out.Steps[i] = p.Steps[i].Clone()
	}
	return out
}
