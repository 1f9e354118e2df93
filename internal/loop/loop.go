// Package loop governs the bounded checks/fix retry protocol: a checks step
// produces a structured pass/fail verdict, a fix step addresses the recorded
// failures, and the pair repeats until the verdict passes or the iteration
// budget is spent.
package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// DefaultRepromptBudget bounds how many times a malformed verdict is re-asked
// per checks run. Re-prompts do not consume loop iterations.
const DefaultRepromptBudget = 2

// Pair is one checks/fix step pairing.
type Pair struct {
	// Checks runs the validation and must end its output with a verdict.
	Checks core.StepRequest
	// Fix addresses the recorded failures. Nil means verdict-only: the
	// first failing verdict ends the loop without retries.
	Fix *core.StepRequest
}

// Outcome summarizes a finished loop.
type Outcome struct {
	Passed     bool
	Exhausted  bool
	Iterations int
	// Reprompts counts malformed-verdict re-asks across the whole run.
	Reprompts  int
	LastResult *core.ValidationResult
	// Output is the final checks step output, verdict included.
	Output string
	// Ref identifies the runner that produced the final checks output.
	Ref core.RunnerRef
}

// Options configures a Controller.
type Options struct {
	Logger *logging.Logger
	// MaxIterations bounds the checks/fix loop. Zero means the default of
	// core.DefaultMaxValidationIterations.
	MaxIterations int
	// RepromptBudget bounds malformed-verdict re-asks per checks run.
	// Negative disables re-prompts; zero means DefaultRepromptBudget.
	RepromptBudget int
	// OnIteration, when set, is called with the 1-based round number before
	// each checks run. Progress UIs use it to show the live round.
	OnIteration func(round int)
}

// Controller drives checks/fix loops against a step executor.
type Controller struct {
	exec        core.StepExecutor
	log         *logging.Logger
	maxIters    int
	reprompt    int
	onIteration func(round int)
}

func New(exec core.StepExecutor, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	maxIters := opts.MaxIterations
	if maxIters <= 0 {
		maxIters = core.DefaultMaxValidationIterations
	}
	reprompt := opts.RepromptBudget
	if reprompt == 0 {
		reprompt = DefaultRepromptBudget
	} else if reprompt < 0 {
		reprompt = 0
	}
	return &Controller{
		exec:        exec,
		log:         log.WithComponent("loop"),
		maxIters:    maxIters,
		reprompt:    reprompt,
		onIteration: opts.OnIteration,
	}
}

// Run executes the pair until the verdict passes, the iteration budget is
// spent, or a step fails. Executor failures and persistently malformed
// verdicts are returned as errors; a failing-but-bounded loop is a normal
// Outcome with Passed false.
func (c *Controller) Run(ctx context.Context, pair Pair) (*Outcome, error) {
	state := core.NewValidationLoopState(c.maxIters)
	outcome := &Outcome{}
	log := c.log.WithSession(pair.Checks.SessionID).WithStep(pair.Checks.Step.Name)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.onIteration != nil {
			c.onIteration(state.IterationCount + 1)
		}

		result, res, err := c.runChecks(ctx, pair.Checks, outcome)
		if err != nil {
			return nil, err
		}
		state.RecordIteration(*result)
		outcome.Iterations = state.IterationCount
		outcome.LastResult = state.LastResult
		outcome.Output = res.Output
		outcome.Ref = res.Ref

		log.Info("validation iteration recorded",
			"iteration", state.IterationCount,
			"pass", result.Pass,
			"failures", len(result.Failures))

		if state.Passed() {
			outcome.Passed = true
			return outcome, nil
		}
		if !state.ShouldRetry() {
			outcome.Exhausted = true
			log.Warn("validation loop exhausted",
				"iterations", state.IterationCount,
				"failures", len(result.Failures))
			return outcome, nil
		}
		if pair.Fix == nil {
			// No fix partner: re-running identical checks cannot change
			// the verdict, so stop at the first failure.
			outcome.Exhausted = true
			return outcome, nil
		}

		fix := *pair.Fix
		fix.PriorOutput = res.Output
		fix.Addendum = fixAddendum(result.Failures)
		if _, err := c.exec.ExecuteStep(ctx, fix); err != nil {
			return nil, fmt.Errorf("fix step %q: %w", fix.Step.Name, err)
		}
	}
}

// runChecks executes the checks step and parses its verdict, re-prompting
// for well-formed output within the budget.
func (c *Controller) runChecks(ctx context.Context, req core.StepRequest, outcome *Outcome) (*core.ValidationResult, *core.StepResult, error) {
	res, err := c.exec.ExecuteStep(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("checks step %q: %w", req.Step.Name, err)
	}

	for attempt := 0; ; attempt++ {
		result, perr := ParseResult(res.Output)
		if perr == nil {
			return result, res, nil
		}
		if attempt >= c.reprompt {
			return nil, nil, core.ErrRunner(core.CodeVerdictUnparseable,
				fmt.Sprintf("checks step %q produced no verdict after %d re-prompts", req.Step.Name, c.reprompt)).
				WithCause(perr)
		}

		c.log.Warn("checks verdict was malformed, re-prompting",
			"session_id", req.SessionID,
			"step", req.Step.Name,
			"attempt", attempt+1)
		outcome.Reprompts++

		rr := req
		rr.PriorOutput = res.Output
		rr.Addendum = repromptAddendum
		res, err = c.exec.ExecuteStep(ctx, rr)
		if err != nil {
			return nil, nil, fmt.Errorf("checks re-prompt %q: %w", req.Step.Name, err)
		}
	}
}

const repromptAddendum = `Your previous reply did not end with the required verdict. ` +
	`End your reply with exactly one JSON object on its own line, shaped like ` +
	`{"pass": false, "failures": ["description of each failure"]}, and nothing after it.`

func fixAddendum(failures []string) string {
	var b strings.Builder
	b.WriteString("The checks recorded these failures. Address every one of them:\n")
	if len(failures) == 0 {
		b.WriteString("- the checks failed without recording individual failures; re-run them and fix what breaks\n")
		return b.String()
	}
	for _, f := range failures {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	return b.String()
}
