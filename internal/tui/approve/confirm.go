package approve

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// confirmModel is the approve/deny screen for one gated step.
type confirmModel struct {
	procedure   string
	step        core.StepDefinition
	description string
	approved    bool
	decided     bool
	width       int
}

func newConfirmModel(procedure string, step core.StepDefinition) confirmModel {
	return confirmModel{
		procedure:   procedure,
		step:        step,
		description: renderMarkdown(step.Description, 76),
		width:       80,
	}
}

// Init implements tea.Model.
func (m confirmModel) Init() tea.Cmd {
	return nil
}

// Update handles the verdict keys.
func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y", "enter":
			m.approved = true
			m.decided = true
			return m, tea.Quit

		case "n", "N", "esc", "q", "ctrl+c":
			m.approved = false
			m.decided = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
	}

	return m, nil
}

// View renders the step summary with the verdict keys.
func (m confirmModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Approval required"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Workflow:"), m.procedure))
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Step:"), m.step.Name))
	if flags := describeFlags(&m.step); flags != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Flags:"), flags))
	}
	if m.description != "" {
		b.WriteString("\n" + m.description + "\n")
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("y: approve | n: deny"))

	return boxStyle.Render(b.String())
}

// describeFlags summarizes the step flags a reviewer should know about
// before approving.
func describeFlags(step *core.StepDefinition) string {
	var flags []string
	if step.IsSingleTurn() {
		flags = append(flags, "single-turn")
	}
	if step.HasValidationLoop() {
		flags = append(flags, "validation loop")
	}
	if step.ToolsDisallowed() {
		flags = append(flags, "all tools disallowed")
	} else if len(step.DisallowedTools) > 0 {
		flags = append(flags, fmt.Sprintf("tools disallowed: %s", strings.Join(step.DisallowedTools, ", ")))
	}
	if !step.PostsOutput() {
		flags = append(flags, "output not posted")
	}
	return strings.Join(flags, " | ")
}

// renderMarkdown renders description text for the terminal, falling back to
// the raw text when glamour cannot.
func renderMarkdown(text string, width int) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
