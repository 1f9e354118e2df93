package core

import (
	"errors"
	"testing"
)

func TestProcedure_Validate(t *testing.T) {
	tests := []struct {
		name      string
		procedure *Procedure
		wantCode  string
	}{
		{
			name:      "valid",
			procedure: testProcedure("implement", "analyze", "plan"),
		},
		{
			name:      "empty name",
			procedure: &Procedure{Name: "  ", Steps: []StepDefinition{{Name: "a", InstructionRef: "a.md"}}},
			wantCode:  CodeMissingName,
		},
		{
			name:      "no steps",
			procedure: &Procedure{Name: "implement"},
			wantCode:  CodeEmptySteps,
		},
		{
			name: "empty step name",
			procedure: &Procedure{Name: "implement", Steps: []StepDefinition{
				{Name: "analyze", InstructionRef: "a.md"},
				{Name: "", InstructionRef: "b.md"},
			}},
			wantCode: CodeMissingStepName,
		},
		{
			name: "duplicate step name",
			procedure: &Procedure{Name: "implement", Steps: []StepDefinition{
				{Name: "analyze", InstructionRef: "a.md"},
				{Name: "analyze", InstructionRef: "b.md"},
			}},
			wantCode: CodeMissingStepName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.procedure.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error with code %s", tt.wantCode)
			}
			var domErr *DomainError
			if !errors.As(err, &domErr) {
				t.Fatalf("expected DomainError, got %T", err)
			}
			if domErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, domErr.Code)
			}
		})
	}
}

func TestStepDefinition_AbsentFlagsAreNotFalse(t *testing.T) {
	step := StepDefinition{Name: "analyze", InstructionRef: "a.md"}

	if step.SingleTurn != nil {
		t.Errorf("expected absent single turn flag, got %v", *step.SingleTurn)
	}
	if step.IsSingleTurn() {
		t.Errorf("absent flag must not behave as enabled")
	}

	explicit := StepDefinition{Name: "respond", InstructionRef: "r.md", SingleTurn: BoolFlag(false)}
	if explicit.SingleTurn == nil {
		t.Fatalf("expected explicit false to be present")
	}
	if *explicit.SingleTurn {
		t.Errorf("expected explicit false value")
	}
	if explicit.IsSingleTurn() {
		t.Errorf("explicit false must not behave as enabled")
	}
}

func TestStepDefinition_FlagHelpers(t *testing.T) {
	step := StepDefinition{
		Name:               "verify",
		InstructionRef:     "verify.md",
		UsesValidationLoop: BoolFlag(true),
		RequiresApproval:   BoolFlag(true),
		DisallowAllTools:   BoolFlag(true),
	}

	if !step.HasValidationLoop() {
		t.Errorf("expected validation loop enabled")
	}
	if !step.NeedsApproval() {
		t.Errorf("expected approval required")
	}
	if !step.ToolsDisallowed() {
		t.Errorf("expected tools disallowed")
	}
	if !step.PostsOutput() {
		t.Errorf("expected output posting enabled by default")
	}

	suppressed := StepDefinition{Name: "plan", InstructionRef: "plan.md", SuppressOutputPosting: BoolFlag(true)}
	if suppressed.PostsOutput() {
		t.Errorf("expected suppress flag to disable posting")
	}
	skipped := StepDefinition{Name: "draft", InstructionRef: "draft.md", SkipOutputPosting: BoolFlag(true)}
	if skipped.PostsOutput() {
		t.Errorf("expected skip flag to disable posting")
	}
}

func TestStepDefinition_CloneIsDeep(t *testing.T) {
	orig := StepDefinition{
		Name:            "analyze",
		InstructionRef:  "a.md",
		SingleTurn:      BoolFlag(true),
		DisallowedTools: []string{"bash"},
	}
	clone := orig.Clone()

	*clone.SingleTurn = false
	clone.DisallowedTools[0] = "web"

	if !*orig.SingleTurn {
		t.Errorf("mutating clone flag must not affect original")
	}
	if orig.DisallowedTools[0] != "bash" {
		t.Errorf("mutating clone tools must not affect original")
	}
}

func TestProcedure_StepLookup(t *testing.T) {
	p := testProcedure("implement", "analyze", "plan", "apply")

	step, ok := p.Step("plan")
	if !ok || step.Name != "plan" {
		t.Fatalf("expected to find step plan, got %v ok=%v", step, ok)
	}
	if _, ok := p.Step("missing"); ok {
		t.Errorf("expected absent lookup for unknown step")
	}

	names := p.StepNames()
	want := []string{"analyze", "plan", "apply"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("expected name %s at %d, got %s", n, i, names[i])
		}
	}
}

func TestProcedure_CloneIsDeep(t *testing.T) {
	p := testProcedure("implement", "analyze", "plan")
	p.Steps[0].RequiresApproval = BoolFlag(true)

	clone := p.Clone()
	*clone.Steps[0].RequiresApproval = false
	clone.Steps[1].Name = "changed"

	if !*p.Steps[0].RequiresApproval {
		t.Errorf("mutating clone must not affect original flags")
	}
	if p.Steps[1].Name != "plan" {
		t.Errorf("mutating clone must not affect original steps")
	}
}
