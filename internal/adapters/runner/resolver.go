package runner

import (
	"os"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// ChainResolver resolves step instruction references. External definitions
// reference prompt files on disk; built-in procedures reference entries in
// the embedded registry. A reference that exists as a file wins, everything
// else falls through to the registry.
type ChainResolver struct {
	builtin core.InstructionResolver
}

// NewChainResolver builds the standard resolution chain over the embedded
// registry.
func NewChainResolver(builtin core.InstructionResolver) *ChainResolver {
	return &ChainResolver{builtin: builtin}
}

func (r *ChainResolver) ResolveInstructions(ref string) (string, error) {
	if ref == "" {
		return "", core.ErrNotFound("instructions", "(empty reference)")
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", core.ErrNotFound("instruction file", ref).WithCause(err)
		}
		return string(data), nil
	}
	if r.builtin == nil {
		return "", core.ErrNotFound("instructions", ref)
	}
	return r.builtin.ResolveInstructions(ref)
}

var _ core.InstructionResolver = (*ChainResolver)(nil)
