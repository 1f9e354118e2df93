// Package selector picks a procedure for a work request. Selection runs
// three strictly ordered tiers: label triggers, AI direct selection over the
// loaded definitions, and AI classification with a static fallback. The
// third tier cannot fail, so every request gets a usable decision.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// DefaultAITimeout bounds each runner call made during selection. A timed
// out call counts as a runner failure and triggers the next tier.
const DefaultAITimeout = 30 * time.Second

// Catalog is the merged procedure view a selection runs against.
type Catalog interface {
	Procedure(name string) (*core.Procedure, bool)
	Definitions() []*core.ExternalDefinition
}

// Router maps classifications and platforms onto built-in procedure names.
type Router interface {
	Get(name string) (*core.Procedure, bool)
	ProcedureForClassification(c core.Classification) string
	PlatformVariant(baseName string, platform core.Platform) string
}

// Request carries one selection's inputs.
type Request struct {
	// Text is the free-form work request content.
	Text string
	// Labels are the issue labels, matched case-insensitively against
	// definition triggers.
	Labels   []string
	Platform core.Platform
	// Catalog is the definition snapshot to select from. May be nil, in
	// which case only the classification tier runs.
	Catalog Catalog
}

// Options configures a Selector.
type Options struct {
	Logger *logging.Logger
	// AITimeout bounds each runner call. Zero means DefaultAITimeout.
	AITimeout time.Duration
}

// Selector routes work requests to procedures.
type Selector struct {
	router  Router
	runner  core.AgentRunner
	log     *logging.Logger
	timeout time.Duration
}

// New builds a selector. runner may be nil; selection then skips the AI
// tiers and lands on the default classification.
func New(router Router, runner core.AgentRunner, opts Options) *Selector {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	timeout := opts.AITimeout
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}
	return &Selector{
		router:  router,
		runner:  runner,
		log:     log.WithComponent("selector"),
		timeout: timeout,
	}
}

// Select picks a procedure for the request. It never returns nil: when every
// earlier tier falls through, the decision is the default classification's
// procedure with the failure explained in the reasoning.
func (s *Selector) Select(ctx context.Context, req Request) *core.WorkflowSelectionDecision {
	if d := s.selectByLabel(req); d != nil {
		return d
	}
	if d := s.selectDirect(ctx, req); d != nil {
		return d
	}
	return s.selectByClassification(ctx, req)
}

// selectByLabel matches issue labels against definition trigger labels.
// Among matches the highest priority wins; equal priorities keep the first
// definition in merge order, which is stable across loads.
func (s *Selector) selectByLabel(req Request) *core.WorkflowSelectionDecision {
	if len(req.Labels) == 0 || req.Catalog == nil {
		return nil
	}
	defs := req.Catalog.Definitions()
	if len(defs) == 0 {
		return nil
	}

	issue := make(map[string]struct{}, len(req.Labels))
	for _, l := range req.Labels {
		issue[normalizeLabel(l)] = struct{}{}
	}

	var best *core.ExternalDefinition
	var bestLabel string
	for _, def := range defs {
		label, ok := firstMatchingLabel(def, issue)
		if !ok {
			continue
		}
		if _, resolvable := req.Catalog.Procedure(def.Procedure.Name); !resolvable {
			s.log.Warn("label match is not a resolvable procedure, skipping",
				"name", def.Procedure.Name, "file", def.SourceFile)
			continue
		}
		if best == nil || def.Priority > best.Priority {
			best = def
			bestLabel = label
		}
	}
	if best == nil {
		return nil
	}

	return &core.WorkflowSelectionDecision{
		ChosenName: best.Procedure.Name,
		Procedure:  best.Procedure,
		Mode:       core.SelectionModeLabel,
		Reasoning: fmt.Sprintf("label %q matched workflow %q (priority %d)",
			bestLabel, best.Procedure.Name, best.Priority),
	}
}

// selectDirect asks the runner to pick one loaded definition by name. Any
// runner failure or a reply outside the candidate vocabulary falls through.
func (s *Selector) selectDirect(ctx context.Context, req Request) *core.WorkflowSelectionDecision {
	if s.runner == nil || req.Catalog == nil {
		return nil
	}
	defs := req.Catalog.Definitions()
	if len(defs) == 0 {
		return nil
	}

	sorted := append([]*core.ExternalDefinition(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	names := make([]string, len(sorted))
	for i, d := range sorted {
		names[i] = d.Procedure.Name
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name, err := s.runner.SelectDirect(cctx, core.TokenQuery{
		Instructions: directInstructions(sorted),
		Input:        req.Text,
		Vocabulary:   names,
	})
	if err != nil {
		s.log.Warn("direct selection failed, falling back to classification", "error", err)
		return nil
	}

	name = strings.TrimSpace(name)
	if !containsName(names, name) {
		s.log.Warn("direct selection returned a name outside the vocabulary", "name", name)
		return nil
	}
	proc, ok := req.Catalog.Procedure(name)
	if !ok {
		s.log.Warn("direct selection returned an unresolvable name", "name", name)
		return nil
	}

	return &core.WorkflowSelectionDecision{
		ChosenName: name,
		Procedure:  proc,
		Mode:       core.SelectionModeDirect,
		Reasoning: fmt.Sprintf("%s picked workflow %q from %d candidates",
			s.runner.Name(), name, len(names)),
	}
}

// selectByClassification is the tier that cannot fail: classify when a
// runner is available, default otherwise, then map through the registry and
// the platform variant table.
func (s *Selector) selectByClassification(ctx context.Context, req Request) *core.WorkflowSelectionDecision {
	class := core.DefaultClassification
	var reasoning string

	if s.runner == nil {
		reasoning = fmt.Sprintf("no runner available for classification; defaulting to %s", class)
	} else {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		got, err := s.runner.Classify(cctx, core.TokenQuery{
			Instructions: classifyInstructions(),
			Input:        req.Text,
			Vocabulary:   core.ClassificationTokens(),
		})
		cancel()

		switch {
		case err != nil:
			reasoning = fmt.Sprintf("classification failed (%v); defaulting to %s", err, class)
		case !got.IsValid():
			reasoning = fmt.Sprintf("runner returned unknown classification %q; defaulting to %s", got, class)
		default:
			class = got
			reasoning = fmt.Sprintf("classified as %s", class)
		}
	}

	name := s.router.ProcedureForClassification(class)
	name = s.router.PlatformVariant(name, req.Platform)

	return &core.WorkflowSelectionDecision{
		ChosenName:     name,
		Procedure:      s.resolve(req.Catalog, name),
		Mode:           core.SelectionModeClassification,
		Classification: class,
		Reasoning:      reasoning,
	}
}

// resolve prefers the merged catalog so external overrides of built-in
// names apply, then falls back to the registry, which is total for every
// name the classification map can produce.
func (s *Selector) resolve(catalog Catalog, name string) *core.Procedure {
	if catalog != nil {
		if p, ok := catalog.Procedure(name); ok {
			return p
		}
	}
	if p, ok := s.router.Get(name); ok {
		return p
	}
	s.log.Error("selected procedure is missing from both catalog and registry", "name", name)
	return nil
}

func normalizeLabel(l string) string {
	return strings.ToLower(strings.TrimSpace(l))
}

// firstMatchingLabel returns the definition trigger label that intersects
// the issue labels, if any.
func firstMatchingLabel(def *core.ExternalDefinition, issue map[string]struct{}) (string, bool) {
	for _, trigger := range def.Triggers.Labels {
		if _, ok := issue[normalizeLabel(trigger)]; ok {
			return trigger, true
		}
	}
	return "", false
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
