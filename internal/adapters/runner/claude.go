package runner

import (
	"context"
	"strings"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// Claude drives the claude CLI.
type Claude struct {
	*Base
}

// NewClaude creates a claude runner.
func NewClaude(cfg Config, resolver core.InstructionResolver, log *logging.Logger) *Claude {
	if cfg.Name == "" {
		cfg.Name = "claude"
	}
	if cfg.Path == "" {
		cfg.Path = "claude"
	}
	return &Claude{Base: NewBase(cfg, resolver, log)}
}

var (
	_ core.AgentRunner  = (*Claude)(nil)
	_ core.StepExecutor = (*Claude)(nil)
)

// Name returns the configured runner alias.
func (c *Claude) Name() string {
	return c.config.Name
}

// Ping checks that the CLI is installed and answers its version flag.
func (c *Claude) Ping(ctx context.Context) error {
	if err := c.CheckAvailability(ctx); err != nil {
		return err
	}
	_, err := c.Version(ctx, "--version")
	return err
}

// Classify asks for one token from the classification vocabulary.
func (c *Claude) Classify(ctx context.Context, q core.TokenQuery) (core.Classification, error) {
	tok, err := c.askToken(ctx, q)
	if err != nil {
		return "", err
	}
	return core.ParseClassification(tok)
}

// SelectDirect asks for one definition name from the query vocabulary.
func (c *Claude) SelectDirect(ctx context.Context, q core.TokenQuery) (string, error) {
	return c.askToken(ctx, q)
}

func (c *Claude) askToken(ctx context.Context, q core.TokenQuery) (string, error) {
	args := c.baseArgs()
	// Selection queries are single replies; tools only add latency.
	args = append(args, "--max-turns", "1", "--allowedTools", "")
	args = append(args, composeTokenPrompt(q))

	result, err := c.ExecuteCommand(ctx, args, "", "", time.Minute)
	if err != nil {
		return "", err
	}
	return matchToken(result.Stdout, q.Vocabulary)
}

// ExecuteStep resolves the step's instructions and runs them to completion.
func (c *Claude) ExecuteStep(ctx context.Context, req core.StepRequest) (*core.StepResult, error) {
	c.noteStep(req)
	instructions, err := c.resolver.ResolveInstructions(req.Step.InstructionRef)
	if err != nil {
		return nil, err
	}

	args := c.baseArgs()
	args = append(args, c.stepArgs(req.Step)...)
	args = append(args, composeStepPrompt(instructions, req))

	result, err := c.ExecuteCommand(ctx, args, "", req.WorkDir, req.Timeout)
	if err != nil {
		return nil, err
	}

	return &core.StepResult{
		Output:   strings.TrimSpace(result.Stdout),
		Ref:      core.RunnerRef{Runner: c.config.Name},
		Duration: result.Duration,
	}, nil
}

// baseArgs are the flags every non-interactive claude invocation carries.
func (c *Claude) baseArgs() []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if c.config.Model != "" {
		args = append(args, "--model", c.config.Model)
	}
	return args
}

// stepArgs maps step definition flags onto CLI flags.
func (c *Claude) stepArgs(step core.StepDefinition) []string {
	var args []string
	if step.IsSingleTurn() {
		args = append(args, "--max-turns", "1")
	}
	switch {
	case step.ToolsDisallowed():
		// An empty allowlist denies every tool.
		args = append(args, "--allowedTools", "")
	case len(step.DisallowedTools) > 0:
		args = append(args, "--disallowedTools", strings.Join(step.DisallowedTools, ","))
	}
	return args
}
