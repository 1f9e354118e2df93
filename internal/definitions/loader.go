package definitions

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// Base is the built-in procedure table that external definitions overlay. An
// external definition with a built-in's name fully replaces it in the merged
// view.
type Base interface {
	All() []*core.Procedure
}

// Options configures a Loader.
type Options struct {
	// Dir is the local definitions directory. Ignored when Source is set;
	// the source's checkout directory is used instead.
	Dir string
	// Source, when set, keeps Dir synced from a remote git repository.
	Source *GitSource
	// Subdir narrows a git source to a subdirectory of the checkout.
	Subdir string
	Logger *logging.Logger
}

// Loader discovers definition files, validates them in two passes, and
// maintains an immutable merged snapshot of built-in plus external
// procedures. Loading never fails outright: files with problems land in the
// snapshot's error map and the rest of the set stays usable.
type Loader struct {
	log    *logging.Logger
	base   Base
	dir    string
	source *GitSource
	schema *schemaValidator
	cache  *fileCache

	mu   sync.RWMutex
	snap *Snapshot
}

// NewLoader builds a loader over the given built-in base.
func NewLoader(base Base, opts Options) *Loader {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithComponent("definitions")

	dir := opts.Dir
	if opts.Source != nil {
		dir = filepath.Join(opts.Source.Dir(), opts.Subdir)
	}

	schema, err := newSchemaValidator()
	if err != nil {
		log.Warn("definition schema unavailable, structural validation only", "error", err)
		schema = nil
	}

	return &Loader{
		log:    log,
		base:   base,
		dir:    dir,
		source: opts.Source,
		schema: schema,
		cache:  newFileCache(),
	}
}

// Dir returns the directory definitions are read from.
func (l *Loader) Dir() string {
	return l.dir
}

// Load materializes the definition source if needed and builds the merged
// snapshot. The returned snapshot is always usable; the error reports source
// sync problems (the previous on-disk state, if any, is still read).
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	var srcErr error
	if l.source != nil {
		srcErr = l.source.Ensure(ctx)
	}

	snap := l.buildSnapshot()
	l.swap(snap)
	return snap, srcErr
}

// Refresh re-syncs the definition source, invalidates the parse cache, and
// rebuilds the snapshot.
func (l *Loader) Refresh(ctx context.Context) (*Snapshot, error) {
	var srcErr error
	if l.source != nil {
		srcErr = l.source.Refresh(ctx)
	}

	l.cache.invalidate()
	snap := l.buildSnapshot()
	l.swap(snap)
	return snap, srcErr
}

// Snapshot returns the current merged view. Before the first Load it returns
// a built-ins-only snapshot so callers always have something to route with.
func (l *Loader) Snapshot() *Snapshot {
	l.mu.RLock()
	snap := l.snap
	l.mu.RUnlock()

	if snap != nil {
		return snap
	}
	return l.merge(core.NewDefinitionSet(), nil)
}

func (l *Loader) swap(snap *Snapshot) {
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
}

func (l *Loader) buildSnapshot() *Snapshot {
	set := core.NewDefinitionSet()
	fileErrs := make(map[string]error)

	files, err := l.discover()
	if err != nil {
		l.log.Warn("definition discovery failed", "dir", l.dir, "error", err)
		fileErrs["."] = err
	}

	keep := make(map[string]struct{}, len(files))
	for _, rel := range files {
		keep[filepath.Join(l.dir, rel)] = struct{}{}

		defs, err := l.loadFile(rel)
		if err != nil {
			l.log.Warn("definition file rejected", "file", rel, "error", err)
			fileErrs[rel] = err
			continue
		}
		for _, d := range defs {
			if prev, replaced := set.Put(d); replaced {
				l.log.Debug("definition overridden",
					"name", d.Procedure.Name,
					"previous", prev.SourceFile,
					"file", d.SourceFile)
			}
		}
	}
	l.cache.prune(keep)

	snap := l.merge(set, fileErrs)
	l.log.Info("definitions loaded",
		"dir", l.dir,
		"files", len(files),
		"external", set.Len(),
		"rejected", len(fileErrs))
	return snap
}

// discover lists definition files under the directory, sorted by relative
// path. The sort fixes the merge order: on a name collision the
// lexicographically later file wins.
func (l *Loader) discover() ([]string, error) {
	if l.dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(l.dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, pattern := range []string{"**/*.yaml", "**/*.yml"} {
		matches, err := doublestar.FilepathGlob(filepath.Join(l.dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			rel, err := filepath.Rel(l.dir, m)
			if err != nil || hasHiddenSegment(rel) {
				continue
			}
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files, nil
}

// hasHiddenSegment reports whether any path segment starts with a dot. Keeps
// the loader out of .git inside git-backed checkouts.
func hasHiddenSegment(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (l *Loader) loadFile(rel string) ([]*core.ExternalDefinition, error) {
	abs := filepath.Join(l.dir, rel)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, core.ErrStructural(core.CodeUnparseableFile, "cannot stat definition file").
			WithCause(err).WithDetail("file", rel)
	}

	if e, ok := l.cache.lookup(abs, info); ok {
		return e.defs, e.err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, core.ErrStructural(core.CodeUnparseableFile, "cannot read definition file").
			WithCause(err).WithDetail("file", rel)
	}

	if e, ok := l.cache.lookupByContent(abs, info, data); ok {
		return e.defs, e.err
	}

	defs, err := l.parse(rel, data)
	l.cache.store(abs, info, data, defs, err)
	return defs, err
}

// parse runs both validation passes over one file and converts its entries.
// Structural validation always runs; the schema pass runs only when the
// schema compiled.
func (l *Loader) parse(rel string, data []byte) ([]*core.ExternalDefinition, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.ErrStructural(core.CodeUnparseableFile, "definition file is not valid YAML").
			WithCause(err).WithDetail("file", rel)
	}

	if verrs := validateDocument(&doc); verrs != nil {
		return nil, core.ErrStructural(verrs[0].Code, "definition file failed validation").
			WithCause(verrs).WithDetail("file", rel)
	}

	if l.schema != nil {
		var generic any
		if err := yaml.Unmarshal(data, &generic); err == nil {
			if err := l.schema.validate(generic); err != nil {
				if derr, ok := err.(*core.DomainError); ok {
					return nil, derr.WithDetail("file", rel)
				}
				return nil, err
			}
		}
	}

	out := make([]*core.ExternalDefinition, 0, len(doc.Workflows))
	for i := range doc.Workflows {
		out = append(out, doc.Workflows[i].toExternal(l.dir, rel))
	}
	return out, nil
}

// merge overlays the external set on the built-in base. Built-ins keep their
// registration order; external-only names follow in merge order.
func (l *Loader) merge(set *core.DefinitionSet, fileErrs map[string]error) *Snapshot {
	merged := make(map[string]*core.Procedure)
	var order []string

	for _, p := range l.base.All() {
		merged[p.Name] = p
		order = append(order, p.Name)
	}
	for _, d := range set.Definitions() {
		if _, exists := merged[d.Procedure.Name]; !exists {
			order = append(order, d.Procedure.Name)
		}
		merged[d.Procedure.Name] = d.Procedure
	}

	return &Snapshot{
		set:      set,
		merged:   merged,
		order:    order,
		errors:   fileErrs,
		dir:      l.dir,
		loadedAt: time.Now(),
	}
}

// Snapshot is an immutable merged view of built-in and external procedures
// plus the per-file error map from the load that produced it.
type Snapshot struct {
	set      *core.DefinitionSet
	merged   map[string]*core.Procedure
	order    []string
	errors   map[string]error
	dir      string
	loadedAt time.Time
}

// Procedure looks up a procedure by name across built-in and external sets.
func (s *Snapshot) Procedure(name string) (*core.Procedure, bool) {
	p, ok := s.merged[name]
	return p, ok
}

// Procedures returns every available procedure in stable order.
func (s *Snapshot) Procedures() []*core.Procedure {
	out := make([]*core.Procedure, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.merged[name])
	}
	return out
}

// Names returns the available procedure names in stable order.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.order...)
}

// Definitions returns the external definitions in merge order.
func (s *Snapshot) Definitions() []*core.ExternalDefinition {
	return s.set.Definitions()
}

// Definition looks up an external definition by name.
func (s *Snapshot) Definition(name string) (*core.ExternalDefinition, bool) {
	return s.set.Get(name)
}

// Errors returns the per-file error map from the producing load.
func (s *Snapshot) Errors() map[string]error {
	out := make(map[string]error, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// HasErrors reports whether any file was rejected during the load.
func (s *Snapshot) HasErrors() bool {
	return len(s.errors) > 0
}

// ExternalCount returns the number of loaded external definitions.
func (s *Snapshot) ExternalCount() int {
	return s.set.Len()
}

// Dir returns the directory the snapshot was loaded from.
func (s *Snapshot) Dir() string {
	return s.dir
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}
