package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatStructural   ErrorCategory = "structural"   // Malformed definition file
	ErrCatSchema       ErrorCategory = "schema"       // Schema constraint violated
	ErrCatRunner       ErrorCategory = "runner"       // Agent runner failure
	ErrCatPrecondition ErrorCategory = "precondition" // Caller bug, not recoverable
	ErrCatGit          ErrorCategory = "git"          // Git subprocess failure
	ErrCatTimeout      ErrorCategory = "timeout"      // Operation timed out
	ErrCatState        ErrorCategory = "state"        // State corruption/conflict
	ErrCatNotFound     ErrorCategory = "not_found"    // Resource not found
	ErrCatConfig       ErrorCategory = "config"       // Invalid configuration
	ErrCatInternal     ErrorCategory = "internal"     // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrStructural creates a structural definition error.
func ErrStructural(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatStructural,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrSchema creates a schema violation error.
func ErrSchema(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatSchema,
		Code:      CodeSchemaViolation,
		Message:   message,
		Retryable: false,
	}
}

// ErrRunner creates an agent runner error.
func ErrRunner(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRunner,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrPrecondition creates a precondition violation. These indicate a caller
// bug and are never retryable.
func ErrPrecondition(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatPrecondition,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrGit creates a git subprocess error.
func ErrGit(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatGit,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrConfig creates a configuration error.
func ErrConfig(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConfig,
		Code:      CodeInvalidConfig,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeProcedureNotFound  = "PROCEDURE_NOT_FOUND"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeProcedureAssigned  = "PROCEDURE_ALREADY_ASSIGNED"
	CodeNoProcedureState   = "NO_PROCEDURE_STATE"
	CodeSessionComplete    = "SESSION_COMPLETE"
	CodeProcedureMismatch  = "PROCEDURE_MISMATCH"
	CodeInvalidSessionID   = "INVALID_SESSION_ID"
	CodeStateCorrupted     = "STATE_CORRUPTED"
	CodeSchemaViolation    = "SCHEMA_VIOLATION"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeRunnerUnavailable  = "RUNNER_UNAVAILABLE"
	CodeRunnerFailed       = "RUNNER_FAILED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeNetworkFailure     = "NETWORK_FAILURE"
	CodePreflightFailed    = "PREFLIGHT_FAILED"
	CodeBadToken           = "BAD_TOKEN"
	CodeVerdictUnparseable = "VERDICT_UNPARSEABLE"
	CodeChecksExhausted    = "CHECKS_EXHAUSTED"
	CodeApprovalDenied     = "APPROVAL_DENIED"
	CodeNoApprover         = "NO_APPROVER"
	CodeCloneFailed        = "CLONE_FAILED"
	CodeFetchFailed        = "FETCH_FAILED"
	CodeCheckoutFailed     = "CHECKOUT_FAILED"
	CodeResetFailed        = "RESET_FAILED"

	// Structural validation error codes
	CodeMissingName        = "MISSING_NAME"
	CodeMissingDescription = "MISSING_DESCRIPTION"
	CodeEmptySteps         = "EMPTY_STEPS"
	CodeMissingStepName    = "MISSING_STEP_NAME"
	CodeMissingPromptFile  = "MISSING_PROMPT_FILE"
	CodeUnparseableFile    = "UNPARSEABLE_FILE"
)
