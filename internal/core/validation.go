package core

// DefaultMaxValidationIterations bounds the checks/fix retry loop.
const DefaultMaxValidationIterations = 3

// ValidationResult is the structured verdict produced by a checks step.
type ValidationResult struct {
	Pass     bool     `json:"pass"`
	Failures []string `json:"failures,omitempty"`
}

// ValidationLoopState tracks one bounded checks/fix loop. Created when a
// validation step begins and discarded when the loop exits.
type ValidationLoopState struct {
	IterationCount int
	MaxIterations  int
	LastResult     *ValidationResult
}

// NewValidationLoopState creates loop state with the given bound. A
// non-positive bound falls back to the default.
func NewValidationLoopState(maxIterations int) *ValidationLoopState {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxValidationIterations
	}
	return &ValidationLoopState{MaxIterations: maxIterations}
}

// RecordIteration increments the iteration count and stores the result.
func (s *ValidationLoopState) RecordIteration(result ValidationResult) {
	s.IterationCount++
	s.LastResult = &result
}

// ShouldRetry reports whether another fix/check iteration is allowed: the
// last result failed and the iteration budget is not spent.
func (s *ValidationLoopState) ShouldRetry() bool {
	if s.LastResult == nil || s.LastResult.Pass {
		return false
	}
	return s.IterationCount < s.MaxIterations
}

// Passed reports whether the last recorded result passed.
func (s *ValidationLoopState) Passed() bool {
	return s.LastResult != nil && s.LastResult.Pass
}

// Exhausted reports whether the iteration budget was spent without a pass.
func (s *ValidationLoopState) Exhausted() bool {
	return !s.Passed() && s.IterationCount >= s.MaxIterations
}
