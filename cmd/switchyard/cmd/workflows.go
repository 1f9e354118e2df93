package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/definitions"
	"github.com/switchyard-dev/switchyard/internal/registry"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Inspect the merged workflow catalog",
	Long: `Workflows shows the merged catalog: built-in workflows plus external
definitions, with externals overriding built-ins of the same name.`,
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workflows",
	RunE:  runWorkflowsList,
}

var workflowsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show one workflow's steps and triggers",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsShow,
}

var workflowsOutput string

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsShowCmd)

	workflowsListCmd.Flags().StringVarP(&workflowsOutput, "output", "o", "text", "output format (text, json)")
}

// loadCatalog builds the merged snapshot without touching the runner; the
// catalog is listable even when no agent CLI is configured.
func loadCatalog(ctx context.Context) (*definitions.Snapshot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	loader := buildDefinitionsLoader(cfg, registry.New(), log)
	snap, err := loader.Load(ctx)
	if err != nil {
		log.Warn("definitions source sync failed, using last local state", "error", err)
	}
	for file, ferr := range snap.Errors() {
		log.Warn("definition file rejected", "file", file, "error", ferr)
	}
	return snap, nil
}

type workflowRow struct {
	Name            string   `json:"name"`
	Source          string   `json:"source"`
	Steps           int      `json:"steps"`
	Labels          []string `json:"labels,omitempty"`
	Classifications []string `json:"classifications,omitempty"`
	Priority        int      `json:"priority,omitempty"`
	File            string   `json:"file,omitempty"`
}

func runWorkflowsList(_ *cobra.Command, _ []string) error {
	snap, err := loadCatalog(context.Background())
	if err != nil {
		return err
	}

	rows := make([]workflowRow, 0, len(snap.Names()))
	for _, name := range snap.Names() {
		proc, _ := snap.Procedure(name)
		row := workflowRow{
			Name:   name,
			Source: string(proc.Source),
			Steps:  len(proc.Steps),
		}
		if def, ok := snap.Definition(name); ok {
			row.Labels = def.Triggers.Labels
			for _, c := range def.Triggers.Classifications {
				row.Classifications = append(row.Classifications, string(c))
			}
			row.Priority = def.Priority
			row.File = def.SourceFile
		}
		rows = append(rows, row)
	}

	if workflowsOutput == "json" {
		return outputJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tSTEPS\tTRIGGERS")
	fmt.Fprintln(w, "----\t------\t-----\t--------")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", row.Name, row.Source, row.Steps, triggerSummary(row))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("%d workflows (%d external)\n", len(rows), snap.ExternalCount())
	return nil
}

func triggerSummary(row workflowRow) string {
	var parts []string
	if len(row.Labels) > 0 {
		parts = append(parts, "labels: "+strings.Join(row.Labels, ","))
	}
	if len(row.Classifications) > 0 {
		parts = append(parts, "class: "+strings.Join(row.Classifications, ","))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "  ")
}

func runWorkflowsShow(_ *cobra.Command, args []string) error {
	name := args[0]
	snap, err := loadCatalog(context.Background())
	if err != nil {
		return err
	}

	proc, ok := snap.Procedure(name)
	if !ok {
		msg := fmt.Sprintf("unknown workflow %q", name)
		if matches := fuzzy.Find(name, snap.Names()); len(matches) > 0 {
			suggestions := make([]string, 0, 3)
			for i, m := range matches {
				if i == 3 {
					break
				}
				suggestions = append(suggestions, m.Str)
			}
			msg += fmt.Sprintf(", did you mean %s?", strings.Join(suggestions, ", "))
		}
		return fmt.Errorf("%s", msg)
	}

	def, _ := snap.Definition(name)
	doc := workflowMarkdown(proc, def)

	if stdoutIsTerminal() {
		if rendered, err := renderWorkflowDoc(doc); err == nil {
			fmt.Println(rendered)
			return nil
		}
	}
	fmt.Println(doc)
	return nil
}

// workflowMarkdown builds the show document. It renders through glamour on
// a terminal and prints as plain markdown otherwise.
func workflowMarkdown(proc *core.Procedure, def *core.ExternalDefinition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", proc.Name)
	if proc.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", proc.Description)
	}

	if def != nil {
		fmt.Fprintf(&b, "External definition from `%s`", def.SourceFile)
		if def.Priority != 0 {
			fmt.Fprintf(&b, " (priority %d)", def.Priority)
		}
		b.WriteString(".\n\n")
		var bullets []string
		if len(def.Triggers.Labels) > 0 {
			bullets = append(bullets, "- Trigger labels: "+strings.Join(def.Triggers.Labels, ", "))
		}
		if len(def.Triggers.Classifications) > 0 {
			classes := make([]string, len(def.Triggers.Classifications))
			for i, c := range def.Triggers.Classifications {
				classes[i] = string(c)
			}
			bullets = append(bullets, "- Trigger classifications: "+strings.Join(classes, ", "))
		}
		if len(def.Triggers.Keywords) > 0 {
			bullets = append(bullets, "- Trigger keywords: "+strings.Join(def.Triggers.Keywords, ", "))
		}
		if len(bullets) > 0 {
			b.WriteString(strings.Join(bullets, "\n"))
			b.WriteString("\n\n")
		}
	} else {
		b.WriteString("Built-in workflow.\n\n")
	}

	b.WriteString("## Steps\n\n")
	for i := range proc.Steps {
		st := &proc.Steps[i]
		fmt.Fprintf(&b, "%d. **%s**", i+1, st.Name)
		if flags := stepFlagSummary(st); flags != "" {
			fmt.Fprintf(&b, " %s", strings.TrimSpace(flags))
		}
		b.WriteString("\n")
		if st.Description != "" {
			fmt.Fprintf(&b, "   %s\n", st.Description)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderWorkflowDoc(doc string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	out, err := renderer.Render(doc)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}
