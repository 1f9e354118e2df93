package core

// Triggers are the matching criteria attached to an externally-authored
// definition for automatic selection.
type Triggers struct {
	Classifications []Classification `json:"classifications,omitempty"`
	Labels          []string         `json:"labels,omitempty"`
	Keywords        []string         `json:"keywords,omitempty"`
	Examples        []string         `json:"examples,omitempty"`
}

// ExternalDefinition is a converted external workflow definition together
// with its selection metadata.
type ExternalDefinition struct {
	Procedure *Procedure
	Priority  int
	Triggers  Triggers
	// SourceFile is the definition file this entry was loaded from,
	// recorded for diagnostics.
	SourceFile string
}

// DefinitionSet is the merged, ordered collection of external definitions
// the selector consumes. It is built once per load and treated as immutable
// afterwards; loaders swap in a fresh set rather than mutating a live one.
type DefinitionSet struct {
	byName map[string]*ExternalDefinition
	order  []string
}

// NewDefinitionSet creates an empty definition set.
func NewDefinitionSet() *DefinitionSet {
	return &DefinitionSet{byName: make(map[string]*ExternalDefinition)}
}

// Put inserts a definition, keyed by procedure name. A repeated name fully
// replaces the earlier definition but keeps its original position in the
// encounter order, so priority tie-breaks stay stable across overrides. It
// returns the replaced definition, if any.
func (d *DefinitionSet) Put(def *ExternalDefinition) (*ExternalDefinition, bool) {
	name := def.Procedure.Name
	prev, exists := d.byName[name]
	if !exists {
		d.order = append(d.order, name)
	}
	d.byName[name] = def
	return prev, exists
}

// Get returns the definition with the given name, if present.
func (d *DefinitionSet) Get(name string) (*ExternalDefinition, bool) {
	if d == nil {
		return nil, false
	}
	def, ok := d.byName[name]
	return def, ok
}

// Names returns the definition names in encounter order.
func (d *DefinitionSet) Names() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.order...)
}

// Definitions returns the definitions in encounter order.
func (d *DefinitionSet) Definitions() []*ExternalDefinition {
	if d == nil {
		return nil
	}
	out := make([]*ExternalDefinition, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.byName[name])
	}
	return out
}

// Len returns the number of definitions.
func (d *DefinitionSet) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}
