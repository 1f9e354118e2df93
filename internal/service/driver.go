// Package service drives routed sessions end to end. A Driver takes one work
// request, selects a procedure for it, and walks the session through the
// procedure's steps: approval gates, step execution, validation loops, output
// posting, and a state snapshot after every advance. A persisted session can
// be resumed and continues from its current step.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
	"github.com/switchyard-dev/switchyard/internal/loop"
	"github.com/switchyard-dev/switchyard/internal/metrics"
	"github.com/switchyard-dev/switchyard/internal/selector"
)

// saveTimeout bounds each snapshot write. Saves run detached from the drive
// context so a cancelled run still persists its last advance.
const saveTimeout = 5 * time.Second

// Resolver looks up procedures by name for forced runs and resumes.
type Resolver interface {
	Procedure(name string) (*core.Procedure, bool)
}

// ResolverFunc adapts a lookup function to the Resolver interface.
type ResolverFunc func(name string) (*core.Procedure, bool)

func (f ResolverFunc) Procedure(name string) (*core.Procedure, bool) { return f(name) }

// Config carries the driver's execution knobs.
type Config struct {
	// StepTimeout bounds each step execution. Zero lets the executor apply
	// its own default.
	StepTimeout time.Duration
	// WorkDir is where steps run. Empty means the executor's working
	// directory.
	WorkDir string
	// MaxValidationIterations bounds checks/fix loops. Zero means
	// core.DefaultMaxValidationIterations.
	MaxValidationIterations int
}

// Deps wires a Driver's collaborators. Selector and Executor are required;
// every other dependency degrades gracefully when absent: no store means no
// snapshots, no poster means no tracker comments, no approver fails any step
// that demands one.
type Deps struct {
	Selector *selector.Selector
	Executor core.StepExecutor
	// Procedures resolves procedure names the catalog does not know,
	// typically the built-in registry. Used by forced runs and resumes.
	Procedures Resolver
	// Catalog is the external definition snapshot handed to selection and
	// preferred for name resolution, so file overrides of built-in names
	// apply.
	Catalog  selector.Catalog
	Issues   core.IssueClient
	Poster   core.IssuePoster
	Store    core.SessionStore
	Approver core.Approver
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Config   Config
}

// Driver owns routed sessions end to end.
type Driver struct {
	selector *selector.Selector
	exec     core.StepExecutor
	procs    Resolver
	catalog  selector.Catalog
	issues   core.IssueClient
	poster   core.IssuePoster
	store    core.SessionStore
	approver core.Approver
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logging.Logger
	cfg      Config
}

// New builds a driver from its dependencies.
func New(deps Deps) (*Driver, error) {
	if deps.Selector == nil {
		return nil, core.ErrConfig("driver requires a selector")
	}
	if deps.Executor == nil {
		return nil, core.ErrConfig("driver requires a step executor")
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Driver{
		selector: deps.Selector,
		exec:     deps.Executor,
		procs:    deps.Procedures,
		catalog:  deps.Catalog,
		issues:   deps.Issues,
		poster:   deps.Poster,
		store:    deps.Store,
		approver: deps.Approver,
		notifier: notifier,
		metrics:  deps.Metrics,
		log:      log.WithComponent("driver"),
		cfg:      deps.Config,
	}, nil
}

// RunIssue fetches the issue, routes it, and drives the resulting session to
// completion. The session is returned even on failure so callers can report
// its ID for a later resume.
func (d *Driver) RunIssue(ctx context.Context, number int, platform core.Platform) (*core.Session, error) {
	if d.issues == nil {
		return nil, core.ErrConfig("running from an issue requires an issue client")
	}
	issue, err := d.issues.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}

	s := core.NewSession(uuid.NewString(), issue.Title, issue.Body, issue.Labels)
	s.IssueNumber = issue.Number
	s.Platform = platform
	d.log.WithSession(s.ID).Info("issue fetched",
		"issue", issue.Number,
		"title", issue.Title,
		"labels", len(issue.Labels))
	return d.run(ctx, s)
}

// RunText routes a free-text work request and drives it to completion.
func (d *Driver) RunText(ctx context.Context, title, body string, labels []string, platform core.Platform) (*core.Session, error) {
	if strings.TrimSpace(title) == "" {
		return nil, core.ErrSchema("work request title must not be empty")
	}
	s := core.NewSession(uuid.NewString(), title, body, labels)
	s.Platform = platform
	return d.run(ctx, s)
}

// RunWorkflow bypasses selection and drives the named procedure directly.
func (d *Driver) RunWorkflow(ctx context.Context, name, title, body string, labels []string, platform core.Platform) (*core.Session, error) {
	proc, ok := d.resolve(name)
	if !ok {
		return nil, core.ErrNotFound("procedure", name)
	}

	s := core.NewSession(uuid.NewString(), title, body, labels)
	s.Platform = platform
	return d.force(ctx, s, proc)
}

// RunIssueWorkflow fetches the issue like RunIssue but drives the named
// procedure instead of selecting one. Step outputs still post back to the
// issue.
func (d *Driver) RunIssueWorkflow(ctx context.Context, name string, number int, platform core.Platform) (*core.Session, error) {
	if d.issues == nil {
		return nil, core.ErrConfig("running from an issue requires an issue client")
	}
	proc, ok := d.resolve(name)
	if !ok {
		return nil, core.ErrNotFound("procedure", name)
	}
	issue, err := d.issues.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}

	s := core.NewSession(uuid.NewString(), issue.Title, issue.Body, issue.Labels)
	s.IssueNumber = issue.Number
	s.Platform = platform
	return d.force(ctx, s, proc)
}

// force initializes the session with an explicitly chosen procedure and
// drives it.
func (d *Driver) force(ctx context.Context, s *core.Session, proc *core.Procedure) (*core.Session, error) {
	log := d.log.WithSession(s.ID)
	if err := s.InitializeProcedure(proc); err != nil {
		return s, err
	}
	log.Info("procedure forced", "procedure", proc.Name, "steps", len(proc.Steps))
	d.notifier.ProcedureResolved(s, proc)
	d.save(ctx, s, log)
	return s, d.drive(ctx, s, proc)
}

// Resume loads a persisted session and continues it from its current step.
// Nothing already in the step history is re-executed.
func (d *Driver) Resume(ctx context.Context, id string) (*core.Session, error) {
	if d.store == nil {
		return nil, core.ErrConfig("resume requires a session store")
	}
	s, err := d.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Procedure == nil {
		return s, core.ErrPrecondition(core.CodeNoProcedureState, "session has no procedure state to resume").
			WithDetail("session", id)
	}
	proc, ok := d.resolve(s.Procedure.ProcedureName)
	if !ok {
		return s, core.ErrNotFound("procedure", s.Procedure.ProcedureName)
	}

	d.log.WithSession(s.ID).Info("resuming session",
		"procedure", proc.Name,
		"step_index", s.Procedure.CurrentStepIndex,
		"steps", len(proc.Steps))
	d.notifier.ProcedureResolved(s, proc)
	return s, d.drive(ctx, s, proc)
}

// run selects a procedure for the session and drives it.
func (d *Driver) run(ctx context.Context, s *core.Session) (*core.Session, error) {
	log := d.log.WithSession(s.ID)

	decision := d.selector.Select(ctx, selector.Request{
		Text:     s.RequestText(),
		Labels:   s.Labels,
		Platform: s.Platform,
		Catalog:  d.catalog,
	})
	d.metrics.RecordSelectionOutcome(string(decision.Mode))
	log.Info("procedure selected",
		"procedure", decision.ChosenName,
		"mode", string(decision.Mode),
		"reasoning", decision.Reasoning)
	if decision.Procedure == nil {
		return s, core.ErrNotFound("procedure", decision.ChosenName)
	}

	if err := s.InitializeProcedure(decision.Procedure); err != nil {
		return s, err
	}
	d.notifier.ProcedureResolved(s, decision.Procedure)
	d.save(ctx, s, log)
	return s, d.drive(ctx, s, decision.Procedure)
}

// drive walks the session through its remaining steps. State only changes on
// a successful advance, so any failure leaves the session resumable at the
// step that failed.
func (d *Driver) drive(ctx context.Context, s *core.Session, proc *core.Procedure) error {
	log := d.log.WithSession(s.ID).WithProcedure(proc.Name)
	var prior string

	for !s.Finished(proc) {
		if err := ctx.Err(); err != nil {
			d.notifier.SessionFinished(s, err)
			return err
		}

		step, ok := s.CurrentStep(proc)
		if !ok {
			err := core.ErrState(core.CodeStateCorrupted, "session step index points outside its procedure").
				WithDetail("session", s.ID).
				WithDetail("procedure", proc.Name)
			d.notifier.SessionFinished(s, err)
			return err
		}
		idx := s.Procedure.CurrentStepIndex
		stepLog := log.WithStep(step.Name)

		if step.NeedsApproval() {
			if err := d.approveStep(ctx, proc, *step); err != nil {
				stepLog.Warn("step not approved", "error", err)
				d.notifier.StepFailed(idx, *step, err)
				d.notifier.SessionFinished(s, err)
				return err
			}
			stepLog.Info("step approved")
		}

		d.notifier.StepStarted(idx, *step)
		stepLog.Info("step started", "index", idx, "total", len(proc.Steps))
		started := time.Now()

		var (
			output string
			ref    core.RunnerRef
			fix    *core.StepDefinition
			fixRan bool
			err    error
		)
		if step.HasValidationLoop() {
			fix, _ = s.NextStep(proc)
			output, ref, fixRan, err = d.executeValidated(ctx, s, proc, idx, *step, fix, prior)
		} else {
			output, ref, err = d.executeStep(ctx, s, proc, *step, prior)
		}
		if err != nil {
			d.metrics.RecordStepExecution(metrics.StepFailed, time.Since(started))
			stepLog.Error("step failed", "error", err)
			d.notifier.StepFailed(idx, *step, err)
			d.notifier.SessionFinished(s, err)
			return err
		}
		elapsed := time.Since(started)
		d.metrics.RecordStepExecution(metrics.StepOK, elapsed)
		stepLog.Info("step completed", "duration", elapsed, "runner", ref.Runner)
		d.notifier.StepCompleted(idx, *step, elapsed)

		d.postOutput(ctx, s, proc, step, output, stepLog)

		if aerr := s.Advance(proc, ref); aerr != nil {
			d.notifier.SessionFinished(s, aerr)
			return aerr
		}
		if step.HasValidationLoop() && fix != nil {
			// The pair consumed the fix slot; it completes with the same
			// runner ref whether or not a failing verdict ever invoked it.
			if fixRan {
				d.notifier.StepCompleted(idx+1, *fix, 0)
			} else {
				d.notifier.StepSkipped(idx+1, *fix)
			}
			if aerr := s.Advance(proc, ref); aerr != nil {
				d.notifier.SessionFinished(s, aerr)
				return aerr
			}
		}

		prior = output
		d.save(ctx, s, stepLog)
	}

	log.Info("session complete", "steps", len(proc.Steps))
	d.notifier.SessionFinished(s, nil)
	return nil
}

// approveStep gates a step on the configured approver. No approver fails
// closed, and an approver error counts as denial.
func (d *Driver) approveStep(ctx context.Context, proc *core.Procedure, step core.StepDefinition) error {
	if d.approver == nil {
		return core.ErrState(core.CodeNoApprover,
			fmt.Sprintf("step %q requires approval but no approver is configured", step.Name))
	}
	ok, err := d.approver.Approve(ctx, proc.Name, step)
	if err != nil {
		return core.ErrState(core.CodeApprovalDenied,
			fmt.Sprintf("no approval verdict for step %q", step.Name)).WithCause(err)
	}
	if !ok {
		return core.ErrState(core.CodeApprovalDenied,
			fmt.Sprintf("step %q was not approved", step.Name))
	}
	return nil
}

func (d *Driver) executeStep(ctx context.Context, s *core.Session, proc *core.Procedure, step core.StepDefinition, prior string) (string, core.RunnerRef, error) {
	res, err := d.exec.ExecuteStep(ctx, d.stepRequest(s, proc, step, prior))
	if err != nil {
		return "", core.RunnerRef{}, fmt.Errorf("step %q: %w", step.Name, err)
	}
	return res.Output, res.Ref, nil
}

// executeValidated runs the checks step and its fix partner as a bounded
// loop. The accepted output is the final checks output; the returned bool
// reports whether the fix partner ever ran.
func (d *Driver) executeValidated(ctx context.Context, s *core.Session, proc *core.Procedure, idx int, checks core.StepDefinition, fix *core.StepDefinition, prior string) (string, core.RunnerRef, bool, error) {
	pair := loop.Pair{Checks: d.stepRequest(s, proc, checks, prior)}
	if fix != nil {
		req := d.stepRequest(s, proc, *fix, prior)
		pair.Fix = &req
	}

	ctrl := loop.New(d.exec, loop.Options{
		Logger:        d.log,
		MaxIterations: d.cfg.MaxValidationIterations,
		OnIteration: func(round int) {
			d.metrics.RecordValidationIteration()
			d.notifier.ValidationRound(idx, round)
		},
	})
	outcome, err := ctrl.Run(ctx, pair)
	if err != nil {
		return "", core.RunnerRef{}, false, err
	}
	if !outcome.Passed {
		return "", core.RunnerRef{}, false, core.ErrState(core.CodeChecksExhausted,
			fmt.Sprintf("checks step %q did not pass after %d iterations", checks.Name, outcome.Iterations)).
			WithDetail("session", s.ID).
			WithDetail("procedure", proc.Name)
	}
	return outcome.Output, outcome.Ref, outcome.Iterations > 1, nil
}

func (d *Driver) stepRequest(s *core.Session, proc *core.Procedure, step core.StepDefinition, prior string) core.StepRequest {
	return core.StepRequest{
		SessionID:     s.ID,
		ProcedureName: proc.Name,
		Step:          step,
		RequestText:   s.RequestText(),
		PriorOutput:   prior,
		WorkDir:       d.cfg.WorkDir,
		Timeout:       d.cfg.StepTimeout,
	}
}

// postOutput sends the accepted step output to the issue tracker. Posting is
// best effort: a tracker failure is logged and the session continues.
func (d *Driver) postOutput(ctx context.Context, s *core.Session, proc *core.Procedure, step *core.StepDefinition, output string, log *logging.Logger) {
	if d.poster == nil || s.IssueNumber == 0 || !step.PostsOutput() {
		return
	}
	if strings.TrimSpace(output) == "" {
		return
	}
	body := fmt.Sprintf("### %s: %s\n\n%s", proc.Name, step.Name, output)
	if err := d.poster.PostComment(ctx, s.IssueNumber, body); err != nil {
		log.Warn("posting step output failed", "issue", s.IssueNumber, "error", err)
		return
	}
	log.Debug("step output posted", "issue", s.IssueNumber)
}

// resolve prefers the catalog so external overrides of built-in names apply,
// then falls back to the registry resolver.
func (d *Driver) resolve(name string) (*core.Procedure, bool) {
	if d.catalog != nil {
		if p, ok := d.catalog.Procedure(name); ok {
			return p, true
		}
	}
	if d.procs != nil {
		if p, ok := d.procs.Procedure(name); ok {
			return p, true
		}
	}
	return nil, false
}

// save writes a session snapshot when a store is configured. The write is
// detached from the drive context so cancellation cannot lose an advance.
func (d *Driver) save(ctx context.Context, s *core.Session, log *logging.Logger) {
	if d.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := d.store.Save(sctx, s); err != nil {
		log.Warn("session snapshot save failed", "error", err)
	}
}
