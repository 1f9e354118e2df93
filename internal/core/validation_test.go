package core

import "testing"

func TestValidationLoopState_BoundedRetries(t *testing.T) {
	state := NewValidationLoopState(3)

	failing := ValidationResult{Pass: false, Failures: []string{"test X failed"}}

	// Exactly maxIterations failing records are permitted before retries stop.
	for i := 1; i <= 3; i++ {
		state.RecordIteration(failing)
		if state.IterationCount != i {
			t.Fatalf("expected iteration count %d, got %d", i, state.IterationCount)
		}
		wantRetry := i < 3
		if got := state.ShouldRetry(); got != wantRetry {
			t.Errorf("after %d iterations ShouldRetry = %v, want %v", i, got, wantRetry)
		}
	}

	if !state.Exhausted() {
		t.Errorf("expected exhausted after %d failing iterations", state.MaxIterations)
	}
	if state.Passed() {
		t.Errorf("expected not passed")
	}
}

func TestValidationLoopState_PassStopsRetries(t *testing.T) {
	state := NewValidationLoopState(3)

	state.RecordIteration(ValidationResult{Pass: false, Failures: []string{"lint"}})
	if !state.ShouldRetry() {
		t.Fatalf("expected retry after first failure")
	}

	state.RecordIteration(ValidationResult{Pass: true})
	if state.ShouldRetry() {
		t.Errorf("expected no retry after pass")
	}
	if !state.Passed() {
		t.Errorf("expected passed state")
	}
	if state.Exhausted() {
		t.Errorf("pass must not count as exhaustion")
	}
}

func TestValidationLoopState_NoResultNoRetry(t *testing.T) {
	state := NewValidationLoopState(3)
	if state.ShouldRetry() {
		t.Errorf("expected no retry before any result is recorded")
	}
	if state.Exhausted() {
		t.Errorf("expected not exhausted before any result is recorded")
	}
}

func TestNewValidationLoopState_DefaultBound(t *testing.T) {
	state := NewValidationLoopState(0)
	if state.MaxIterations != DefaultMaxValidationIterations {
		t.Errorf("expected default bound %d, got %d", DefaultMaxValidationIterations, state.MaxIterations)
	}
	state = NewValidationLoopState(-5)
	if state.MaxIterations != DefaultMaxValidationIterations {
		t.Errorf("expected default bound for negative input, got %d", state.MaxIterations)
	}
}

func TestValidationLoopState_LastResultStored(t *testing.T) {
	state := NewValidationLoopState(3)
	state.RecordIteration(ValidationResult{Pass: false, Failures: []string{"a", "b"}})
	if state.LastResult == nil {
		t.Fatalf("expected last result stored")
	}
	if len(state.LastResult.Failures) != 2 {
		t.Errorf("expected 2 failures, got %d", len(state.LastResult.Failures))
	}

	state.RecordIteration(ValidationResult{Pass: false, Failures: []string{"c"}})
	if len(state.LastResult.Failures) != 1 || state.LastResult.Failures[0] != "c" {
		t.Errorf("expected last result replaced, got %+v", state.LastResult)
	}
}
