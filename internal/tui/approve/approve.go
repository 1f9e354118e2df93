// Package approve implements the human gate for steps flagged
// requires_approval, plus the live progress view attended runs render while
// a session executes. The interactive approver presents the step in a
// bubbletea confirm screen when attached to a terminal and falls back to a
// plain y/N prompt otherwise.
package approve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// Interactive asks a human to confirm each gated step before it runs.
type Interactive struct {
	in  io.Reader
	out io.Writer
	log *logging.Logger
}

// NewInteractive builds an approver reading from stdin and writing to stdout.
func NewInteractive(log *logging.Logger) *Interactive {
	if log == nil {
		log = logging.NewNop()
	}
	return &Interactive{
		in:  os.Stdin,
		out: os.Stdout,
		log: log.WithComponent("approve"),
	}
}

// WithIO overrides the approver's input and output streams.
func (a *Interactive) WithIO(in io.Reader, out io.Writer) *Interactive {
	a.in = in
	a.out = out
	return a
}

// Approve presents the step and reports the human's verdict. A cancelled
// context or an unreadable terminal counts as denial with the error attached.
func (a *Interactive) Approve(ctx context.Context, procedureName string, step core.StepDefinition) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !a.isTerminal() {
		return a.plainApprove(procedureName, step)
	}

	model := newConfirmModel(procedureName, step)
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(a.in),
		tea.WithOutput(a.out),
	)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}

	m, ok := final.(confirmModel)
	if !ok || !m.decided {
		return false, nil
	}
	a.log.Info("approval decision",
		"procedure", procedureName,
		"step", step.Name,
		"approved", m.approved)
	return m.approved, nil
}

// plainApprove is the non-TTY path: a single y/N question on the output
// stream. EOF and anything but yes count as denial.
func (a *Interactive) plainApprove(procedureName string, step core.StepDefinition) (bool, error) {
	fmt.Fprintf(a.out, "Workflow %s requires approval for step %q.\n", procedureName, step.Name)
	if step.Description != "" {
		fmt.Fprintf(a.out, "  %s\n", step.Description)
	}
	if flags := describeFlags(&step); flags != "" {
		fmt.Fprintf(a.out, "  flags: %s\n", flags)
	}
	fmt.Fprint(a.out, "Approve? [y/N]: ")

	scanner := bufio.NewScanner(a.in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	approved := answer == "y" || answer == "yes"
	a.log.Info("approval decision",
		"procedure", procedureName,
		"step", step.Name,
		"approved", approved)
	return approved, nil
}

func (a *Interactive) isTerminal() bool {
	f, ok := a.out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Auto approves every gated step without asking. Used when approval.mode is
// auto or --approve-all is set; each bypass is logged so the decision stays
// visible in the session record.
type Auto struct {
	log *logging.Logger
}

// NewAuto builds the approve-everything approver.
func NewAuto(log *logging.Logger) *Auto {
	if log == nil {
		log = logging.NewNop()
	}
	return &Auto{log: log.WithComponent("approve")}
}

// Approve always answers yes.
func (a *Auto) Approve(ctx context.Context, procedureName string, step core.StepDefinition) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.log.Info("auto-approving step", "procedure", procedureName, "step", step.Name)
	return true, nil
}

var (
	_ core.Approver = (*Interactive)(nil)
	_ core.Approver = (*Auto)(nil)
)
