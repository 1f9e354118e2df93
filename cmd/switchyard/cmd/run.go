package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/adapters/state"
	"github.com/switchyard-dev/switchyard/internal/config"
	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/selector"
	"github.com/switchyard-dev/switchyard/internal/service"
	"github.com/switchyard-dev/switchyard/internal/tui/approve"
)

var runCmd = &cobra.Command{
	Use:   "run [title]",
	Short: "Select a workflow and drive a session through it",
	Long: `Run routes a work request to a workflow and executes its steps in order
through the configured agent CLI.

The request comes from a tracker issue (--issue, fetched through gh or
glab), from --title/--body/--label, or from the positional argument.
Selection can be bypassed with --workflow. A failed or interrupted session
keeps its state and continues from the same step with --resume.

Examples:
  # Route and run a tracker issue
  switchyard run --issue 142

  # Free-text request, labels steering selection
  switchyard run "Payment webhook drops retries" --label bug

  # Force a workflow on an issue, approving every gate
  switchyard run --workflow release --issue 201 --approve-all

  # Show the routing decision and step plan without executing
  switchyard run --issue 142 --dry-run

  # Continue a paused session
  switchyard run --resume 3f61a9d0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSession,
}

var (
	runIssueNumber  int
	runTitle        string
	runBody         string
	runLabels       []string
	runWorkflowName string
	runResumeID     string
	runApproveAll   bool
	runDryRun       bool
	runPlain        bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runIssueNumber, "issue", "i", 0, "issue number to run from")
	runCmd.Flags().StringVarP(&runTitle, "title", "t", "", "work request title")
	runCmd.Flags().StringVarP(&runBody, "body", "b", "", "work request body")
	runCmd.Flags().StringArrayVarP(&runLabels, "label", "l", nil, "work request label (repeatable)")
	runCmd.Flags().StringVarP(&runWorkflowName, "workflow", "w", "", "workflow name, bypasses selection")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "session ID to continue")
	runCmd.Flags().BoolVar(&runApproveAll, "approve-all", false, "approve every gated step without prompting")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the routing decision and step plan, execute nothing")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "log line output instead of the progress view")
}

func runSession(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		if runTitle != "" {
			return fmt.Errorf("title given both as argument and --title")
		}
		runTitle = args[0]
	}
	if err := validateRunFlags(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The progress view owns the terminal; routine logs would tear it.
	useTUI := stdoutIsTerminal() && !runPlain && !runDryRun
	level := cfg.Log.Level
	if useTUI {
		level = "error"
	}
	log := newLoggerAt(cfg, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}

	if runDryRun {
		return printPlan(ctx, eng)
	}
	eng.monitor.Start(ctx)

	store, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := state.CloseStore(store); cerr != nil {
			log.Warn("closing session store", "error", cerr)
		}
	}()

	tracker, platform := buildTracker(cfg, log)

	var approver core.Approver
	if runApproveAll || cfg.Approval.Mode == config.ApprovalAuto {
		approver = approve.NewAuto(log)
	} else {
		approver = approve.NewInteractive(log)
	}

	deps := service.Deps{
		Selector:   eng.newSelector(),
		Executor:   eng.agent,
		Procedures: service.ResolverFunc(eng.registry.Get),
		Catalog:    eng.snapshot,
		Issues:     tracker,
		Poster:     tracker,
		Store:      store,
		Approver:   approver,
		Logger:     log,
		Config: service.Config{
			StepTimeout: cfg.Runner.StepTimeout(),
		},
	}

	if useTUI {
		return runWithProgress(ctx, deps, platform)
	}

	driver, err := service.New(deps)
	if err != nil {
		return err
	}
	s, err := dispatch(ctx, driver, platform)
	return report(s, err)
}

func validateRunFlags() error {
	if runResumeID != "" {
		if runIssueNumber > 0 || runTitle != "" || runWorkflowName != "" {
			return fmt.Errorf("--resume continues a stored session and takes no request flags")
		}
		return nil
	}
	if runIssueNumber > 0 && runTitle != "" {
		return fmt.Errorf("give either --issue or a title, not both")
	}
	if runIssueNumber <= 0 && strings.TrimSpace(runTitle) == "" {
		return fmt.Errorf("a work request is required: --issue N, --title, or a positional title")
	}
	return nil
}

// dispatch picks the driver entry point for the given flag combination.
func dispatch(ctx context.Context, d *service.Driver, platform core.Platform) (*core.Session, error) {
	switch {
	case runResumeID != "":
		return d.Resume(ctx, runResumeID)
	case runWorkflowName != "" && runIssueNumber > 0:
		return d.RunIssueWorkflow(ctx, runWorkflowName, runIssueNumber, platform)
	case runWorkflowName != "":
		return d.RunWorkflow(ctx, runWorkflowName, runTitle, runBody, runLabels, platform)
	case runIssueNumber > 0:
		return d.RunIssue(ctx, runIssueNumber, platform)
	default:
		return d.RunText(ctx, runTitle, runBody, runLabels, platform)
	}
}

// report prints the session outcome. Failed sessions name the step they
// stopped at and how to continue.
func report(s *core.Session, err error) error {
	if err != nil {
		if s != nil && s.Procedure != nil {
			fmt.Fprintf(os.Stderr, "Session %s stopped at step %d of %s.\n",
				s.ID, s.Procedure.CurrentStepIndex+1, s.Procedure.ProcedureName)
			fmt.Fprintf(os.Stderr, "Continue with: switchyard run --resume %s\n", s.ID)
		}
		return err
	}
	if s != nil && s.Procedure != nil && !quiet {
		fmt.Printf("Session %s complete: %s (%d steps)\n",
			s.ID, s.Procedure.ProcedureName, len(s.Procedure.StepHistory))
	}
	return nil
}

// runWithProgress drives the session under the bubbletea progress view. The
// driver runs in a goroutine and reports through the notifier; quitting the
// view cancels the driver's context.
func runWithProgress(ctx context.Context, deps service.Deps, platform core.Platform) error {
	p := tea.NewProgram(approve.NewRunModel("", "", nil))

	if _, ok := deps.Approver.(*approve.Interactive); ok {
		deps.Approver = &terminalApprover{program: p, inner: deps.Approver}
	}
	deps.Notifier = &progressNotifier{program: p}

	driver, err := service.New(deps)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		s      *core.Session
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s, runErr = dispatch(runCtx, driver, platform)
		// Entry-point failures before a session exists never reach the
		// notifier, so close the view from here too. A duplicate done
		// message is discarded.
		p.Send(approve.SessionDoneMsg{Err: runErr})
	}()

	final, perr := p.Run()
	cancel()
	<-done
	if perr != nil {
		return perr
	}
	if m, ok := final.(approve.RunModel); ok && m.Aborted() {
		fmt.Fprintln(os.Stderr, "Aborted.")
	}
	return report(s, runErr)
}

// terminalApprover suspends the progress view while the interactive
// approval prompt owns the terminal.
type terminalApprover struct {
	program *tea.Program
	inner   core.Approver
}

func (a *terminalApprover) Approve(ctx context.Context, procedureName string, step core.StepDefinition) (bool, error) {
	if err := a.program.ReleaseTerminal(); err == nil {
		defer func() { _ = a.program.RestoreTerminal() }()
	}
	return a.inner.Approve(ctx, procedureName, step)
}

// progressNotifier forwards driver callbacks into the progress program.
type progressNotifier struct {
	program *tea.Program
}

func (n *progressNotifier) ProcedureResolved(s *core.Session, proc *core.Procedure) {
	n.program.Send(approve.PlanMsg{
		Procedure:  proc.Name,
		SessionID:  s.ID,
		Steps:      proc.StepNames(),
		StartIndex: s.Procedure.CurrentStepIndex,
	})
}

func (n *progressNotifier) StepStarted(i int, step core.StepDefinition) {
	n.program.Send(approve.StepStartedMsg{Index: i, Name: step.Name})
}

func (n *progressNotifier) StepCompleted(i int, _ core.StepDefinition, d time.Duration) {
	n.program.Send(approve.StepFinishedMsg{Index: i, Status: approve.StepDone, Duration: d})
}

func (n *progressNotifier) StepFailed(i int, _ core.StepDefinition, err error) {
	n.program.Send(approve.StepFinishedMsg{Index: i, Status: approve.StepFailed, Err: err})
}

func (n *progressNotifier) StepSkipped(i int, _ core.StepDefinition) {
	n.program.Send(approve.StepFinishedMsg{Index: i, Status: approve.StepSkipped})
}

func (n *progressNotifier) ValidationRound(i, round int) {
	n.program.Send(approve.ValidationRoundMsg{Index: i, Round: round})
}

func (n *progressNotifier) SessionFinished(_ *core.Session, err error) {
	n.program.Send(approve.SessionDoneMsg{Err: err})
}

// printPlan resolves the routing decision and prints the step plan without
// executing anything. Selection still runs for real, including AI tiers.
func printPlan(ctx context.Context, eng *engine) error {
	if runResumeID != "" {
		return fmt.Errorf("--dry-run cannot be combined with --resume")
	}

	title, body, labels := runTitle, runBody, runLabels
	if runIssueNumber > 0 {
		tracker, _ := buildTracker(eng.cfg, eng.log)
		iss, err := tracker.GetIssue(ctx, runIssueNumber)
		if err != nil {
			return err
		}
		title, body, labels = iss.Title, iss.Body, iss.Labels
	}
	platform := core.PlatformOrDefault(eng.cfg.Platform.Name)

	var (
		proc      *core.Procedure
		mode      string
		reasoning string
	)
	if runWorkflowName != "" {
		p, ok := eng.snapshot.Procedure(runWorkflowName)
		if !ok {
			p, ok = eng.registry.Get(runWorkflowName)
		}
		if !ok {
			return core.ErrNotFound("procedure", runWorkflowName)
		}
		proc, mode = p, "forced"
	} else {
		text := title
		if body != "" {
			text = title + "\n\n" + body
		}
		decision := eng.newSelector().Select(ctx, selector.Request{
			Text:     text,
			Labels:   labels,
			Platform: platform,
			Catalog:  eng.snapshot,
		})
		if decision.Procedure == nil {
			return core.ErrNotFound("procedure", decision.ChosenName)
		}
		proc, mode, reasoning = decision.Procedure, string(decision.Mode), decision.Reasoning
	}

	fmt.Printf("Workflow: %s (%s)\n", proc.Name, mode)
	if reasoning != "" {
		fmt.Printf("Reasoning: %s\n", reasoning)
	}
	fmt.Println("Steps:")
	for i := range proc.Steps {
		st := &proc.Steps[i]
		fmt.Printf("  %d. %s%s\n", i+1, st.Name, stepFlagSummary(st))
	}
	return nil
}

func stepFlagSummary(st *core.StepDefinition) string {
	var flags []string
	if st.HasValidationLoop() {
		flags = append(flags, "validation loop")
	}
	if st.NeedsApproval() {
		flags = append(flags, "requires approval")
	}
	if st.IsSingleTurn() {
		flags = append(flags, "single turn")
	}
	if !st.PostsOutput() {
		flags = append(flags, "output suppressed")
	}
	if len(flags) == 0 {
		return ""
	}
	return "  [" + strings.Join(flags, ", ") + "]"
}
