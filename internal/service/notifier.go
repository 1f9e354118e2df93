package service

import (
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// Notifier receives session progress callbacks from a Driver. Implementations
// must not block; the TUI adapter forwards each call into its event loop.
type Notifier interface {
	// ProcedureResolved fires once the driver knows which procedure the
	// session runs: after selection, a forced name, or a resume load. For
	// resumed sessions the session's step index is already partway in.
	ProcedureResolved(s *core.Session, proc *core.Procedure)
	// StepStarted fires before a step, or its validation loop, executes.
	StepStarted(index int, step core.StepDefinition)
	// StepCompleted fires after a step's output is accepted.
	StepCompleted(index int, step core.StepDefinition, d time.Duration)
	// StepFailed fires when a step or its validation loop fails.
	StepFailed(index int, step core.StepDefinition, err error)
	// StepSkipped fires for a fix step its passing checks never invoked.
	StepSkipped(index int, step core.StepDefinition)
	// ValidationRound fires before each checks round of a validation loop.
	ValidationRound(index, round int)
	// SessionFinished fires once per drive; err is nil on completion.
	SessionFinished(s *core.Session, err error)
}

// NopNotifier ignores all callbacks.
type NopNotifier struct{}

func (NopNotifier) ProcedureResolved(*core.Session, *core.Procedure)      {}
func (NopNotifier) StepStarted(int, core.StepDefinition)                  {}
func (NopNotifier) StepCompleted(int, core.StepDefinition, time.Duration) {}
func (NopNotifier) StepFailed(int, core.StepDefinition, error)            {}
func (NopNotifier) StepSkipped(int, core.StepDefinition)                  {}
func (NopNotifier) ValidationRound(int, int)                              {}
func (NopNotifier) SessionFinished(*core.Session, error)                  {}
