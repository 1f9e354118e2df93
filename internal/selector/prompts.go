package selector

import (
	"fmt"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// directInstructions builds the instruction block for the direct-selection
// tier. defs must already be sorted by descending priority so the runner
// sees the strongest candidates first.
func directInstructions(defs []*core.ExternalDefinition) string {
	var b strings.Builder
	b.WriteString("You route one work request to the best-fitting workflow.\n\n")
	b.WriteString("Available workflows, strongest candidates first:\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s: %s (priority %d)\n",
			d.Procedure.Name, d.Procedure.Description, d.Priority)
		if len(d.Triggers.Keywords) > 0 {
			fmt.Fprintf(&b, "  keywords: %s\n", strings.Join(d.Triggers.Keywords, ", "))
		}
		if len(d.Triggers.Labels) > 0 {
			fmt.Fprintf(&b, "  labels: %s\n", strings.Join(d.Triggers.Labels, ", "))
		}
		for _, ex := range d.Triggers.Examples {
			fmt.Fprintf(&b, "  example request: %s\n", ex)
		}
	}
	b.WriteString("\nReply with exactly one workflow name from the list above and nothing else.\n")
	return b.String()
}

// classifyInstructions builds the instruction block for the classification
// tier from the closed category vocabulary.
func classifyInstructions() string {
	var b strings.Builder
	b.WriteString("You classify one work request into exactly one category.\n\n")
	b.WriteString("Categories:\n")
	for _, c := range core.AllClassifications() {
		fmt.Fprintf(&b, "- %s: %s\n", c, c.Description())
	}
	b.WriteString("\nReply with exactly one category token from the list above and nothing else.\n")
	return b.String()
}
