package definitions

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// GitSource keeps a definitions directory synced from a remote git
// repository. The checkout is a shallow single-branch clone owned
// exclusively by this source; consumers only ever read from it.
//
// Failure policy: any failed git operation is recovered once by wiping the
// checkout and re-cloning. If the re-clone fails too, the error surfaces to
// the caller instead of being retried indefinitely.
type GitSource struct {
	url    string
	branch string
	dir    string
	syncer core.RepoSyncer
	log    *logging.Logger

	mu sync.Mutex
}

// NewGitSource builds a git-backed definition source. branch may be empty,
// in which case the remote's default branch is used.
func NewGitSource(url, branch, dir string, syncer core.RepoSyncer, log *logging.Logger) *GitSource {
	if log == nil {
		log = logging.NewNop()
	}
	return &GitSource{
		url:    url,
		branch: branch,
		dir:    dir,
		syncer: syncer,
		log:    log.WithComponent("gitsource"),
	}
}

// Dir returns the local checkout directory.
func (g *GitSource) Dir() string {
	return g.dir
}

// URL returns the remote repository URL.
func (g *GitSource) URL() string {
	return g.url
}

// Ensure makes sure a checkout exists, cloning on first use. A failed clone
// is retried once from a clean slate.
func (g *GitSource) Ensure(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cloned() {
		return nil
	}
	if err := g.clone(ctx); err != nil {
		g.log.Warn("initial clone failed, retrying from scratch", "url", g.url, "error", err)
		return g.reclone(ctx)
	}
	return nil
}

// Refresh brings an existing checkout up to date with the remote. Any
// failure wipes the checkout and re-clones once; a second consecutive
// failure is returned to the caller.
func (g *GitSource) Refresh(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cloned() {
		if err := g.clone(ctx); err != nil {
			return g.reclone(ctx)
		}
		return nil
	}

	if err := g.sync(ctx); err != nil {
		g.log.Warn("refresh failed, wiping checkout and re-cloning", "url", g.url, "error", err)
		return g.reclone(ctx)
	}
	return nil
}

func (g *GitSource) cloned() bool {
	info, err := os.Stat(filepath.Join(g.dir, ".git"))
	return err == nil && info.IsDir()
}

func (g *GitSource) clone(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(g.dir), 0o755); err != nil {
		return core.ErrGit(core.CodeCloneFailed, "cannot create checkout parent directory").WithCause(err)
	}
	if err := g.syncer.Clone(ctx, g.url, g.branch, g.dir); err != nil {
		return err
	}
	g.log.Info("definitions cloned", "url", g.url, "branch", g.branch, "dir", g.dir)
	return nil
}

// sync updates the existing checkout: fetch, make sure the configured branch
// is checked out, then hard-reset to the remote tip so local drift never
// survives.
func (g *GitSource) sync(ctx context.Context) error {
	if err := g.syncer.Fetch(ctx, g.dir, g.branch); err != nil {
		return err
	}
	if g.branch != "" {
		if err := g.syncer.Checkout(ctx, g.dir, g.branch); err != nil {
			return err
		}
	}
	if err := g.syncer.HardReset(ctx, g.dir, g.resetRef()); err != nil {
		return err
	}
	g.log.Debug("definitions refreshed", "url", g.url, "branch", g.branch)
	return nil
}

func (g *GitSource) resetRef() string {
	if g.branch == "" {
		return "origin/HEAD"
	}
	return "origin/" + g.branch
}

// reclone wipes the checkout and clones from scratch. This is the single
// recovery attempt; its error goes straight to the caller.
func (g *GitSource) reclone(ctx context.Context) error {
	if err := os.RemoveAll(g.dir); err != nil {
		return core.ErrGit(core.CodeCloneFailed, "cannot wipe checkout for re-clone").WithCause(err)
	}
	if err := g.clone(ctx); err != nil {
		return err
	}
	return nil
}

// CheckoutDir derives a stable checkout directory for a repository URL under
// the given base directory, so distinct sources never collide.
func CheckoutDir(baseDir, url string) string {
	sum := blake3.Sum256([]byte(url))
	return filepath.Join(baseDir, hex.EncodeToString(sum[:8]))
}
