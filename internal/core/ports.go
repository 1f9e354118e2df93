// Package core holds the domain types shared across the engine: procedures
// and their steps, sessions and their execution state, the selection and
// classification vocabulary, the error taxonomy, and the ports adapters
// implement.
package core

import (
	"context"
	"time"
)

// =============================================================================
// Agent Runner Port
// =============================================================================

// TokenQuery is a single-call request expecting exactly one token from a
// closed vocabulary. The caller constructs the instruction prompt and owns
// the timeout via the context deadline; any violation (wrong token,
// timeout, transport error) is a runner failure the caller must treat as
// "no answer".
type TokenQuery struct {
	// Instructions is the system-level prompt describing the task and the
	// allowed reply tokens.
	Instructions string
	// Input is the free-text work request content.
	Input string
	// Vocabulary is the closed set of acceptable reply tokens.
	Vocabulary []string
}

// AgentRunner is the selection-side boundary to an AI runner: it answers
// closed-vocabulary questions about a request. Step execution is a separate
// port because drivers may execute steps with a different runner than the
// one that routed the request.
type AgentRunner interface {
	// Name returns the runner identifier (e.g., "claude", "codex").
	Name() string

	// Classify asks the runner to place the request into the closed
	// classification vocabulary.
	Classify(ctx context.Context, q TokenQuery) (Classification, error)

	// SelectDirect asks the runner to pick one definition name out of the
	// vocabulary embedded in the query.
	SelectDirect(ctx context.Context, q TokenQuery) (string, error)

	// Ping checks if the runner CLI is available and authenticated.
	Ping(ctx context.Context) error
}

// =============================================================================
// Step Executor Port
// =============================================================================

// StepRequest describes one step execution.
type StepRequest struct {
	SessionID     string
	ProcedureName string
	Step          StepDefinition
	// RequestText is the work request content the step operates on.
	RequestText string
	// PriorOutput carries the previous step's output for context, when the
	// driver chooses to thread it through.
	PriorOutput string
	// Addendum is extra instruction text appended after the resolved step
	// instructions. Validation loops use it to re-prompt for a well-formed
	// verdict and to hand the fix step its failure list.
	Addendum string
	WorkDir  string
	Timeout  time.Duration
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Output   string
	Ref      RunnerRef
	Duration time.Duration
}

// StepExecutor runs a single step's instructions to completion.
type StepExecutor interface {
	// ExecuteStep resolves the step's instruction reference, runs it
	// against the request, and returns the produced output.
	ExecuteStep(ctx context.Context, req StepRequest) (*StepResult, error)
}

// InstructionResolver resolves a step's opaque instruction reference into
// executable instruction text.
type InstructionResolver interface {
	ResolveInstructions(ref string) (string, error)
}

// =============================================================================
// Issue Tracker Port
// =============================================================================

// Issue is the subset of tracker data the engine consumes: labels and
// free-text content.
type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
	URL    string   `json:"url,omitempty"`
	State  string   `json:"state,omitempty"`
}

// IssueClient fetches work requests from the issue tracker.
type IssueClient interface {
	GetIssue(ctx context.Context, number int) (*Issue, error)
}

// IssuePoster posts step output back to the issue tracker.
type IssuePoster interface {
	PostComment(ctx context.Context, number int, body string) error
}

// =============================================================================
// Session Store Port
// =============================================================================

// SessionStore persists session snapshots so paused or interrupted sessions
// can be resumed.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id string) error
}

// =============================================================================
// Approval Port
// =============================================================================

// Approver gates steps that require human confirmation before running.
type Approver interface {
	// Approve presents the step to a human and reports the verdict. An
	// error means no verdict could be obtained, which drivers treat as
	// denial.
	Approve(ctx context.Context, procedureName string, step StepDefinition) (bool, error)
}

// =============================================================================
// Repository Sync Port
// =============================================================================

// RepoSyncer materializes a remote repository into a working directory the
// caller owns exclusively. Implementations issue exactly clone (shallow,
// single branch), fetch, checkout, and hard reset.
type RepoSyncer interface {
	Clone(ctx context.Context, url, ref, dir string) error
	Fetch(ctx context.Context, dir, ref string) error
	Checkout(ctx context.Context, dir, ref string) error
	HardReset(ctx context.Context, dir, ref string) error
}
