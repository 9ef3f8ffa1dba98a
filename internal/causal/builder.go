package causal

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/causal/internal/domain"
)

// Default builder limits.
const (
	// DefaultMaxVariables is the default maximum number of variables per graph.
	DefaultMaxVariables = 10_000

	// DefaultMaxEdges is the default maximum number of edges per graph.
	DefaultMaxEdges = 100_000
)

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

func WithMaxVariables(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxVariables = n
		}
	}
}

func WithMaxEdges(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxEdges = n
		}
	}
}

// Builder validates graph specs and constructs graphs from them.
type Builder struct {
	maxVariables int
	maxEdges     int
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		maxVariables: DefaultMaxVariables,
		maxEdges:     DefaultMaxEdges,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates spec as a whole and returns the graph it describes. All
// violations are collected before failing, so the returned
// *InvalidGraphSpecError names every unknown reference, duplicate and cycle.
func (b *Builder) Build(spec domain.GraphSpec) (*Graph, error) {
	var violations []SpecViolation
	add := func(kind ViolationKind, ids []string, format string, args ...any) {
		violations = append(violations, SpecViolation{Kind: kind, Variables: ids, Detail: fmt.Sprintf(format, args...)})
	}

	if len(spec.Variables) > b.maxVariables {
		add(ViolationLimitExceeded, nil, "%d variables exceeds the limit of %d", len(spec.Variables), b.maxVariables)
	}
	if len(spec.Edges) > b.maxEdges {
		add(ViolationLimitExceeded, nil, "%d edges exceeds the limit of %d", len(spec.Edges), b.maxEdges)
	}
	if len(violations) > 0 {
		return nil, &InvalidGraphSpecError{Violations: violations}
	}

	declared := make(map[string]bool, len(spec.Variables))
	for _, v := range spec.Variables {
		if err := validateVariable(v); err != nil {
			add(ViolationInvalidVariable, []string{v.ID}, "%s", err.Error())
			continue
		}
		if declared[v.ID] {
			add(ViolationDuplicateVariable, []string{v.ID}, "variable %q declared more than once", v.ID)
			continue
		}
		declared[v.ID] = true
	}

	accepted := make([]domain.CausalEdge, 0, len(spec.Edges))
	seen := make(map[edgeKey]bool, len(spec.Edges))
	for _, e := range spec.Edges {
		var missing []string
		if !declared[e.Cause] {
			missing = append(missing, e.Cause)
		}
		if !declared[e.Effect] && e.Effect != e.Cause {
			missing = append(missing, e.Effect)
		}
		if len(missing) > 0 {
			add(ViolationUnknownVariable, missing, "edge %s -> %s references undeclared %s",
				e.Cause, e.Effect, strings.Join(quoteAll(missing), ", "))
			continue
		}
		if e.Cause == e.Effect {
			add(ViolationCycle, []string{e.Cause}, "variable %q cannot depend on itself", e.Cause)
			continue
		}
		k := edgeKey{e.Cause, e.Effect}
		if seen[k] {
			add(ViolationDuplicateEdge, []string{e.Cause, e.Effect}, "edge %s -> %s declared more than once", e.Cause, e.Effect)
			continue
		}
		seen[k] = true
		if err := validateEdge(e); err != nil {
			add(ViolationInvalidEdge, []string{e.Cause, e.Effect}, "%s", err.Error())
			continue
		}
		accepted = append(accepted, e)
	}

	if cycle := findCycle(spec.Variables, accepted); cycle != nil {
		add(ViolationCycle, cycle, "cycle %s", strings.Join(cycle, " -> "))
	}

	if len(violations) > 0 {
		return nil, &InvalidGraphSpecError{Violations: violations}
	}

	g := NewGraph()
	for _, v := range spec.Variables {
		g.insertVariable(v)
	}
	for _, e := range accepted {
		g.insertEdge(e)
	}
	g.version = 1
	return g, nil
}

// findCycle runs a colouring DFS over the complete edge set and returns the
// first directed cycle found (closing variable repeated at the end), or nil.
func findCycle(vars []domain.Variable, edges []domain.CausalEdge) []string {
	adj := make(map[string][]string, len(vars))
	for _, e := range edges {
		adj[e.Cause] = append(adj[e.Cause], e.Effect)
	}

	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(vars))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		colour[n] = grey
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch colour[next] {
			case grey:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[n] = black
		return false
	}

	for _, v := range vars {
		if colour[v.ID] == white && visit(v.ID) {
			return cycle
		}
	}
	return nil
}

func quoteAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%q", id)
	}
	return out
}
