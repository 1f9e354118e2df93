package approve

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// StepStatus is the display state of one step in the progress view.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepDone
	StepFailed
	StepSkipped
)

// StepStartedMsg marks a step as running. Drivers send it through
// tea.Program.Send from outside the UI goroutine.
type StepStartedMsg struct {
	Index int
	Name  string
}

// StepFinishedMsg records a step outcome.
type StepFinishedMsg struct {
	Index    int
	Status   StepStatus
	Duration time.Duration
	Err      error
}

// ValidationRoundMsg updates the visible check round counter on a running
// step with a validation loop.
type ValidationRoundMsg struct {
	Index int
	Round int
}

// PlanMsg populates the step list once the procedure is known, which for
// selected sessions is after the view has already started. Steps below
// StartIndex render as done, so resumed sessions pick up mid-list.
type PlanMsg struct {
	Procedure  string
	SessionID  string
	Steps      []string
	StartIndex int
}

// SessionDoneMsg ends the progress view.
type SessionDoneMsg struct {
	Err error
}

// StepView is the per-step display state.
type StepView struct {
	Name      string
	Status    StepStatus
	Duration  time.Duration
	StartedAt time.Time
	Round     int
	Err       error
}

// RunModel renders live session progress: one line per step with a spinner
// on the running one.
type RunModel struct {
	procedure string
	sessionID string
	steps     []StepView
	spinner   spinner.Model
	done      bool
	aborted   bool
	err       error
	width     int
}

// NewRunModel builds the progress view for a procedure's step sequence.
// Callers that don't know the procedure yet pass empty values and send a
// PlanMsg once selection lands.
func NewRunModel(procedure, sessionID string, stepNames []string) RunModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	steps := make([]StepView, len(stepNames))
	for i, name := range stepNames {
		steps[i] = StepView{Name: name}
	}

	return RunModel{
		procedure: procedure,
		sessionID: sessionID,
		steps:     steps,
		spinner:   sp,
		width:     80,
	}
}

// Aborted reports whether the user quit the view before the session ended.
func (m RunModel) Aborted() bool {
	return m.aborted
}

// Err returns the session error reported by SessionDoneMsg.
func (m RunModel) Err() error {
	return m.err
}

// Init implements tea.Model.
func (m RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles step lifecycle messages and the abort keys.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PlanMsg:
		m.procedure = msg.Procedure
		m.sessionID = msg.SessionID
		steps := make([]StepView, len(msg.Steps))
		for i, name := range msg.Steps {
			steps[i] = StepView{Name: name}
			if i < msg.StartIndex {
				steps[i].Status = StepDone
			}
		}
		m.steps = steps
		return m, nil

	case StepStartedMsg:
		if msg.Index >= 0 && msg.Index < len(m.steps) {
			m.steps[msg.Index].Status = StepRunning
			m.steps[msg.Index].StartedAt = time.Now()
		}
		return m, nil

	case StepFinishedMsg:
		if msg.Index >= 0 && msg.Index < len(m.steps) {
			m.steps[msg.Index].Status = msg.Status
			m.steps[msg.Index].Duration = msg.Duration
			m.steps[msg.Index].Err = msg.Err
		}
		return m, nil

	case ValidationRoundMsg:
		if msg.Index >= 0 && msg.Index < len(m.steps) {
			m.steps[msg.Index].Round = msg.Round
		}
		return m, nil

	case SessionDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// View renders the step list with a header and footer.
func (m RunModel) View() string {
	var b strings.Builder

	if m.procedure == "" && !m.done {
		b.WriteString(m.spinner.View())
		b.WriteString(dimStyle.Render(" selecting workflow..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render("Running " + m.procedure))
	if m.sessionID != "" {
		b.WriteString(dimStyle.Render("  session " + m.sessionID))
	}
	b.WriteString("\n\n")

	for i := range m.steps {
		b.WriteString(m.renderStep(&m.steps[i]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.done && m.err != nil:
		b.WriteString(failStyle.Render("session failed: " + m.err.Error()))
	case m.done:
		b.WriteString(okStyle.Render("session complete"))
	default:
		b.WriteString(footerStyle.Render("q: abort"))
	}

	return b.String()
}

func (m RunModel) renderStep(s *StepView) string {
	var line string
	switch s.Status {
	case StepRunning:
		line = fmt.Sprintf("%s %s %s",
			m.spinner.View(),
			runningStyle.Render(s.Name),
			dimStyle.Render(formatDuration(time.Since(s.StartedAt))))
		if s.Round > 0 {
			line += dimStyle.Render(fmt.Sprintf(" (check round %d)", s.Round))
		}
	case StepDone:
		line = fmt.Sprintf("%s %s %s",
			okStyle.Render("✓"), s.Name, dimStyle.Render(formatDuration(s.Duration)))
	case StepFailed:
		line = fmt.Sprintf("%s %s", failStyle.Render("✗"), s.Name)
		if s.Err != nil {
			line += " " + failStyle.Render(s.Err.Error())
		}
	case StepSkipped:
		line = skipStyle.Render("⊘ " + s.Name)
	default:
		line = dimStyle.Render("○ " + s.Name)
	}
	return "  " + line
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
