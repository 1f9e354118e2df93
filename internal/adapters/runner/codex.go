package runner

import (
	"context"
	"strings"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// Codex drives the codex CLI. Codex has no per-tool disallow list, so step
// tool restrictions map onto its sandbox modes.
type Codex struct {
	*Base
}

// NewCodex creates a codex runner.
func NewCodex(cfg Config, resolver core.InstructionResolver, log *logging.Logger) *Codex {
	if cfg.Name == "" {
		cfg.Name = "codex"
	}
	if cfg.Path == "" {
		cfg.Path = "codex"
	}
	return &Codex{Base: NewBase(cfg, resolver, log)}
}

var (
	_ core.AgentRunner  = (*Codex)(nil)
	_ core.StepExecutor = (*Codex)(nil)
)

// Name returns the configured runner alias.
func (c *Codex) Name() string {
	return c.config.Name
}

// Ping checks that the CLI is installed and answers its version flag.
func (c *Codex) Ping(ctx context.Context) error {
	if err := c.CheckAvailability(ctx); err != nil {
		return err
	}
	_, err := c.Version(ctx, "--version")
	return err
}

// Classify asks for one token from the classification vocabulary.
func (c *Codex) Classify(ctx context.Context, q core.TokenQuery) (core.Classification, error) {
	tok, err := c.askToken(ctx, q)
	if err != nil {
		return "", err
	}
	return core.ParseClassification(tok)
}

// SelectDirect asks for one definition name from the query vocabulary.
func (c *Codex) SelectDirect(ctx context.Context, q core.TokenQuery) (string, error) {
	return c.askToken(ctx, q)
}

func (c *Codex) askToken(ctx context.Context, q core.TokenQuery) (string, error) {
	// Selection queries never touch the tree.
	args := c.baseArgs(`read-only`)
	args = append(args, composeTokenPrompt(q))

	result, err := c.ExecuteCommand(ctx, args, "", "", time.Minute)
	if err != nil {
		return "", err
	}
	return matchToken(result.Stdout, q.Vocabulary)
}

// ExecuteStep resolves the step's instructions and runs them to completion.
func (c *Codex) ExecuteStep(ctx context.Context, req core.StepRequest) (*core.StepResult, error) {
	c.noteStep(req)
	instructions, err := c.resolver.ResolveInstructions(req.Step.InstructionRef)
	if err != nil {
		return nil, err
	}

	sandbox := `workspace-write`
	if req.Step.ToolsDisallowed() {
		sandbox = `read-only`
	}
	if len(req.Step.DisallowedTools) > 0 && !req.Step.ToolsDisallowed() {
		c.log.Warn("codex does not support per-tool restrictions, running with full sandbox",
			"step", req.Step.Name,
			"disallowed_tools", req.Step.DisallowedTools)
	}

	args := c.baseArgs(sandbox)
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

// baseArgs are the flags every headless codex invocation carries.
func (c *Codex) baseArgs(sandbox string) []string {
	args := []string{"exec", "--skip-git-repo-check"}

	effort := c.config.ReasoningEffort
	if effort == "" {
		effort = "high"
	}
	args = append(args,
		"-c", `approval_policy="never"`,
		"-c", `sandbox_mode="`+sandbox+`"`,
		"-c", `model_reasoning_effort="`+effort+`"`,
	)

	if c.config.Model != "" {
		args = append(args, "--model", c.config.Model)
	}
	return args
}
