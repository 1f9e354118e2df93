package core

import (
	"strings"
	"time"
)

// RunnerRef identifies which external runner produced a step's result. The
// same session may be driven by different runner kinds across its lifetime;
// the record disambiguates which one completed each step.
type RunnerRef struct {
	Runner    string `json:"runner"`
	SessionID string `json:"session_id,omitempty"`
}

// StepRecord is one completed step in a session's history.
type StepRecord struct {
	StepName    string    `json:"step_name"`
	CompletedAt time.Time `json:"completed_at"`
	RunnerRef   RunnerRef `json:"runner_ref"`
}

// SessionProcedureState tracks a session's progress through its assigned
// procedure. CurrentStepIndex is within [0, len(steps)) while in progress
// and equal to len(steps) once complete; there is no separate completion
// flag. Mutated only through the Session advance operation.
type SessionProcedureState struct {
	ProcedureName    string       `json:"procedure_name"`
	CurrentStepIndex int          `json:"current_step_index"`
	StepHistory      []StepRecord `json:"step_history"`
}

// Session is one routed work request and its execution state.
type Session struct {
	ID          string                 `json:"id"`
	IssueNumber int                    `json:"issue_number,omitempty"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Platform    Platform               `json:"platform,omitempty"`
	Procedure   *SessionProcedureState `json:"procedure,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NewSession creates a session for a work request.
func NewSession(id, title, body string, labels []string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Title:     title,
		Body:      body,
		Labels:    labels,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RequestText returns the combined free-text content of the request.
func (s *Session) RequestText() string {
	if strings.TrimSpace(s.Body) == "" {
		return s.Title
	}
	return s.Title + "\n\n" + s.Body
}

// InitializeProcedure assigns a procedure to the session, starting at step
// zero with empty history. Fails if the session already has procedure state;
// callers must ClearProcedure explicitly to restart.
func (s *Session) InitializeProcedure(p *Procedure) error {
	if s.Procedure != nil {
		return ErrPrecondition(CodeProcedureAssigned, "session already has procedure state").
			WithDetail("session", s.ID).
			WithDetail("procedure", s.Procedure.ProcedureName)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.Procedure = &SessionProcedureState{
		ProcedureName:    p.Name,
		CurrentStepIndex: 0,
		StepHistory:      []StepRecord{},
	}
	s.UpdatedAt = time.Now()
	return nil
}

// ClearProcedure discards the session's procedure state so a new procedure
// can be assigned.
func (s *Session) ClearProcedure() {
	s.Procedure = nil
	s.UpdatedAt = time.Now()
}

// guard validates that the session is initialized against the given
// procedure before a state machine operation.
func (s *Session) guard(p *Procedure) error {
	if s.Procedure == nil {
		return ErrPrecondition(CodeNoProcedureState, "session has no procedure state").
			WithDetail("session", s.ID)
	}
	if p == nil || p.Name != s.Procedure.ProcedureName {
		got := "<nil>"
		if p != nil {
			got = p.Name
		}
		return ErrPrecondition(CodeProcedureMismatch, "procedure does not match session state").
			WithDetail("session", s.ID).
			WithDetail("assigned", s.Procedure.ProcedureName).
			WithDetail("given", got)
	}
	return nil
}

// CurrentStep returns the step the session is positioned on. Absent if the
// session is uninitialized or the index is out of bounds.
func (s *Session) CurrentStep(p *Procedure) (*StepDefinition, bool) {
	if s.guard(p) != nil {
		return nil, false
	}
	idx := s.Procedure.CurrentStepIndex
	if idx < 0 || idx >= len(p.Steps) {
		return nil, false
	}
	return &p.Steps[idx], true
}

// NextStep returns the step after the current one. Absent once the current
// step is the last, meaning the procedure is complete.
func (s *Session) NextStep(p *Procedure) (*StepDefinition, bool) {
	if s.guard(p) != nil {
		return nil, false
	}
	next := s.Procedure.CurrentStepIndex + 1
	if next >= len(p.Steps) {
		return nil, false
	}
	return &p.Steps[next], true
}

// Advance records the current step in history with the given runner
// reference, then increments the step index. Advancing an uninitialized
// session is a precondition violation, as is advancing past the terminal
// index; completion itself is a normal terminal state, not an error.
func (s *Session) Advance(p *Procedure, ref RunnerRef) error {
	if err := s.guard(p); err != nil {
		return err
	}
	idx := s.Procedure.CurrentStepIndex
	if idx >= len(p.Steps) {
		return ErrPrecondition(CodeSessionComplete, "procedure already complete").
			WithDetail("session", s.ID).
			WithDetail("procedure", p.Name)
	}
	if step, ok := s.CurrentStep(p); ok {
		s.Procedure.StepHistory = append(s.Procedure.StepHistory, StepRecord{
			StepName:    step.Name,
			CompletedAt: time.Now(),
			RunnerRef:   ref,
		})
	}
	s.Procedure.CurrentStepIndex++
	s.UpdatedAt = time.Now()
	return nil
}

// IsComplete reports whether the procedure has no next step.
func (s *Session) IsComplete(p *Procedure) bool {
	_, ok := s.NextStep(p)
	return !ok
}

// Finished reports whether every step has been advanced past, i.e. the
// index has reached the terminal position.
func (s *Session) Finished(p *Procedure) bool {
	if s.guard(p) != nil {
		return false
	}
	return s.Procedure.CurrentStepIndex >= len(p.Steps)
}
