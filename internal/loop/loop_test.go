package loop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/switchyard-dev/switchyard/internal/core"
)

type scriptedExecutor struct {
	outputs []string
	errs    []error
	calls   []core.StepRequest
}

func (e *scriptedExecutor) ExecuteStep(ctx context.Context, req core.StepRequest) (*core.StepResult, error) {
	i := len(e.calls)
	e.calls = append(e.calls, req)
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i >= len(e.outputs) {
		return nil, errors.New("scripted executor ran out of outputs")
	}
	return &core.StepResult{Output: e.outputs[i]}, nil
}

const passVerdict = `{"pass": true, "failures": []}`

func failVerdict(failures ...string) string {
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = `"` + f + `"`
	}
	return `{"pass": false, "failures": [` + strings.Join(parts, ", ") + `]}`
}

func checksFixPair() Pair {
	return Pair{
		Checks: core.StepRequest{
			SessionID:     "sess-1",
			ProcedureName: "implement",
			Step:          core.StepDefinition{Name: "verify", InstructionRef: "implement/verify.md"},
			RequestText:   "add pagination",
		},
		Fix: &core.StepRequest{
			SessionID:     "sess-1",
			ProcedureName: "implement",
			Step:          core.StepDefinition{Name: "fix-findings", InstructionRef: "implement/fix-findings.md"},
			RequestText:   "add pagination",
		},
	}
}

func TestRun_PassesFirstTry(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{"checks done\n" + passVerdict}}
	c := New(exec, Options{})

	out, err := c.Run(context.Background(), checksFixPair())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Passed {
		t.Error("Passed = false, want true")
	}
	if out.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", out.Iterations)
	}
	if len(exec.calls) != 1 {
		t.Errorf("executor called %d times, want 1", len(exec.calls))
	}
	if !strings.Contains(out.Output, passVerdict) {
		t.Errorf("Output = %q, want the checks output", out.Output)
	}
}

func TestRun_FixThenPass(t *testing.T) {
	checksOut := "ran the suite\n" + failVerdict("TestLoader_Load fails")
	exec := &scriptedExecutor{outputs: []string{checksOut, "patched the loader", passVerdict}}
	c := New(exec, Options{})

	out, err := c.Run(context.Background(), checksFixPair())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Passed {
		t.Error("Passed = false, want true")
	}
	if out.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", out.Iterations)
	}
	if len(exec.calls) != 3 {
		t.Fatalf("executor called %d times, want checks, fix, checks", len(exec.calls))
	}

	fix := exec.calls[1]
	if fix.Step.Name != "fix-findings" {
		t.Errorf("second call ran %q, want fix-findings", fix.Step.Name)
	}
	if fix.PriorOutput != checksOut {
		t.Errorf("fix PriorOutput = %q, want the checks output", fix.PriorOutput)
	}
	if !strings.Contains(fix.Addendum, "TestLoader_Load fails") {
		t.Errorf("fix Addendum = %q, want the failure listed", fix.Addendum)
	}
}

func TestRun_ExactlyThreeIterationsWhenAlwaysFailing(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{
		failVerdict("still broken"),
		"fix attempt 1",
		failVerdict("still broken"),
		"fix attempt 2",
		failVerdict("still broken"),
	}}
	c := New(exec, Options{})

	out, err := c.Run(context.Background(), checksFixPair())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Passed {
		t.Error("Passed = true, want false")
	}
	if !out.Exhausted {
		t.Error("Exhausted = false, want true")
	}
	if out.Iterations != 3 {
		t.Errorf("Iterations = %d, want exactly 3", out.Iterations)
	}
	if len(exec.calls) != 5 {
		t.Errorf("executor called %d times, want 3 checks + 2 fixes", len(exec.calls))
	}
	if out.LastResult == nil || out.LastResult.Pass {
		t.Errorf("LastResult = %+v, want the final failing verdict", out.LastResult)
	}
}

func TestRun_CustomIterationBound(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{
		failVerdict("a"), "fix", failVerdict("a"),
	}}
	c := New(exec, Options{MaxIterations: 2})

	out, err := c.Run(context.Background(), checksFixPair())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Iterations != 2 || !out.Exhausted {
		t.Errorf("Iterations = %d Exhausted = %v, want 2 and true", out.Iterations, out.Exhausted)
	}
}

func TestRun_VerdictOnlyStopsAtFirstFailure(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{failVerdict("cannot verify")}}
	c := New(exec, Options{})

	pair := checksFixPair()
	pair.Fix = nil

	out, err := c.Run(context.Background(), pair)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Passed || !out.Exhausted {
		t.Errorf("Passed = %v Exhausted = %v, want false/true", out.Passed, out.Exhausted)
	}
	if out.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", out.Iterations)
	}
	if len(exec.calls) != 1 {
		t.Errorf("executor called %d times, want 1", len(exec.calls))
	}
}

func TestRun_RepromptOnMalformedVerdict(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{
		"looks good to me!",
		"apologies\n" + passVerdict,
	}}
	c := New(exec, Options{})

	out, err := c.Run(context.Background(), checksFixPair())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Passed {
		t.Error("Passed = false, want true")
	}
	if out.Reprompts != 1 {
		t.Errorf("Reprompts = %d, want 1", out.Reprompts)
	}
	if out.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1: re-prompts do not consume iterations", out.Iterations)
	}

	re := exec.calls[1]
	if re.Step.Name != "verify" {
		t.Errorf("re-prompt ran %q, want the checks step again", re.Step.Name)
	}
	if re.PriorOutput != "looks good to me!" {
		t.Errorf("re-prompt PriorOutput = %q, want the malformed output", re.PriorOutput)
	}
	if !strings.Contains(re.Addendum, "JSON object") {
		t.Errorf("re-prompt Addendum = %q, want the verdict shape restated", re.Addendum)
	}
}

func TestRun_RepromptBudgetExhausted(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{"nope", "still nope", "never"}}
	c := New(exec, Options{})

	_, err := c.Run(context.Background(), checksFixPair())
	if err == nil {
		t.Fatal("Run succeeded, want a verdict error")
	}
	var derr *core.DomainError
	if !errors.As(err, &derr) || derr.Code != core.CodeVerdictUnparseable {
		t.Fatalf("err = %v, want code %s", err, core.CodeVerdictUnparseable)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("err chain %v does not expose the ParseError", err)
	}
	if len(exec.calls) != 3 {
		t.Errorf("executor called %d times, want initial + 2 re-prompts", len(exec.calls))
	}
}

func TestRun_RepromptsDoNotConsumeIterations(t *testing.T) {
	exec := &scriptedExecutor{outputs: []string{
		"garbage",
		failVerdict("lint error"),
		"fixed it",
		passVerdict,
	}}
	c := New(exec, Options{})

	out, err := c.Run(context.Background(), checksFixPair())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Passed || out.Iterations != 2 || out.Reprompts != 1 {
		t.Errorf("Passed=%v Iterations=%d Reprompts=%d, want true/2/1",
			out.Passed, out.Iterations, out.Reprompts)
	}
}

func TestRun_ChecksExecutorErrorSurfaces(t *testing.T) {
	exec := &scriptedExecutor{errs: []error{errors.New("spawn failed")}}
	c := New(exec, Options{})

	_, err := c.Run(context.Background(), checksFixPair())
	if err == nil || !strings.Contains(err.Error(), "spawn failed") {
		t.Fatalf("err = %v, want the executor failure surfaced", err)
	}
	if !strings.Contains(err.Error(), "verify") {
		t.Errorf("err = %v, want the step named", err)
	}
}

func TestRun_FixExecutorErrorSurfaces(t *testing.T) {
	exec := &scriptedExecutor{
		outputs: []string{failVerdict("x")},
		errs:    []error{nil, errors.New("agent crashed")},
	}
	c := New(exec, Options{})

	_, err := c.Run(context.Background(), checksFixPair())
	if err == nil || !strings.Contains(err.Error(), "fix step") {
		t.Fatalf("err = %v, want the fix step failure surfaced", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &scriptedExecutor{outputs: []string{passVerdict}}
	c := New(exec, Options{})

	_, err := c.Run(ctx, checksFixPair())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
