package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/selector"
)

var selectCmd = &cobra.Command{
	Use:   "select [title]",
	Short: "Show which workflow a request would route to",
	Long: `Select runs the routing tiers for a work request and prints the decision
without executing anything: label triggers first, then AI direct selection
over the catalog, then classification as the fallback.

Examples:
  switchyard select --issue 142
  switchyard select "Login page renders blank" --label bug
  switchyard select --title "Update API docs" --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSelect,
}

var (
	selectIssueNumber int
	selectTitle       string
	selectBody        string
	selectLabels      []string
	selectOutput      string
)

func init() {
	rootCmd.AddCommand(selectCmd)

	selectCmd.Flags().IntVarP(&selectIssueNumber, "issue", "i", 0, "issue number to select for")
	selectCmd.Flags().StringVarP(&selectTitle, "title", "t", "", "work request title")
	selectCmd.Flags().StringVarP(&selectBody, "body", "b", "", "work request body")
	selectCmd.Flags().StringArrayVarP(&selectLabels, "label", "l", nil, "work request label (repeatable)")
	selectCmd.Flags().StringVarP(&selectOutput, "output", "o", "text", "output format (text, json)")
}

func runSelect(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		if selectTitle != "" {
			return fmt.Errorf("title given both as argument and --title")
		}
		selectTitle = args[0]
	}
	if selectIssueNumber > 0 && selectTitle != "" {
		return fmt.Errorf("give either --issue or a title, not both")
	}
	if selectIssueNumber <= 0 && strings.TrimSpace(selectTitle) == "" {
		return fmt.Errorf("a work request is required: --issue N, --title, or a positional title")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}

	title, body, labels := selectTitle, selectBody, selectLabels
	if selectIssueNumber > 0 {
		tracker, _ := buildTracker(cfg, log)
		iss, err := tracker.GetIssue(ctx, selectIssueNumber)
		if err != nil {
			return err
		}
		title, body, labels = iss.Title, iss.Body, iss.Labels
	}

	text := title
	if body != "" {
		text = title + "\n\n" + body
	}
	decision := eng.newSelector().Select(ctx, selector.Request{
		Text:     text,
		Labels:   labels,
		Platform: core.PlatformOrDefault(cfg.Platform.Name),
		Catalog:  eng.snapshot,
	})

	if selectOutput == "json" {
		return outputJSON(decision)
	}

	fmt.Printf("Workflow:  %s\n", decision.ChosenName)
	fmt.Printf("Mode:      %s\n", decision.Mode)
	if decision.Classification != "" {
		fmt.Printf("Class:     %s\n", decision.Classification)
	}
	fmt.Printf("Reasoning: %s\n", decision.Reasoning)
	if decision.Procedure != nil {
		names := decision.Procedure.StepNames()
		fmt.Printf("Steps:     %s\n", strings.Join(names, " -> "))
	}
	return nil
}
