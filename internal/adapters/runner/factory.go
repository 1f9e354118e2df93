package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// Runner is the full contract a CLI adapter satisfies: selection queries
// plus step execution.
type Runner interface {
	core.AgentRunner
	core.StepExecutor
}

// Kinds of runner the factory knows how to build.
const (
	KindClaude = "claude"
	KindCodex  = "codex"
)

// New builds a runner of the given kind. The kind selects the CLI dialect;
// cfg.Name may alias it to anything (two configs can share a kind with
// different models).
func New(kind string, cfg Config, resolver core.InstructionResolver, log *logging.Logger) (Runner, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindClaude:
		return NewClaude(cfg, resolver, log), nil
	case KindCodex:
		return NewCodex(cfg, resolver, log), nil
	default:
		return nil, core.ErrConfig(
			fmt.Sprintf("unknown runner kind %q (known: %s)", kind, strings.Join(Kinds(), ", ")))
	}
}

// Kinds lists the supported runner kinds in stable order.
func Kinds() []string {
	kinds := []string{KindClaude, KindCodex}
	sort.Strings(kinds)
	return kinds
}
