package causal

import (
	"fmt"
	"slices"
	"strings"
)

type PathEdge struct {
	Cause    string   `json:"cause"`
	Effect   string   `json:"effect"`
	Strength *float64 `json:"strength,omitempty"`
}

// CausalPath is a directed path. Strength is the product of edge strengths,
// with unset strengths counted as 1.
type CausalPath struct {
	Variables   []string   `json:"variables"`
	Edges       []PathEdge `json:"edges"`
	Strength    float64    `json:"strength"`
	Description string     `json:"description"`
}

// directedPaths returns every directed path from -> to, discovered by a
// depth-first traversal that visits children in insertion order. At most
// limit paths are returned.
func (g *Graph) directedPaths(from, to string, limit int) []CausalPath {
	if from == to {
		return nil
	}
	reach := g.ancestorsOf([]string{to})
	if !reach[from] {
		return nil
	}

	var out []CausalPath
	path := []string{from}

	var walk func(n string)
	walk = func(n string) {
		if len(out) >= limit {
			return
		}
		if n == to {
			out = append(out, g.causalPath(slices.Clone(path)))
			return
		}
		for _, c := range g.children[n] {
			// Only children that can still reach the target are worth entering.
			if !reach[c] {
				continue
			}
			path = append(path, c)
			walk(c)
			path = path[:len(path)-1]
		}
	}
	walk(from)
	return out
}

func (g *Graph) causalPath(vars []string) CausalPath {
	p := CausalPath{
		Variables:   vars,
		Edges:       make([]PathEdge, 0, len(vars)-1),
		Strength:    1,
		Description: strings.Join(vars, " -> "),
	}
	for i := 0; i+1 < len(vars); i++ {
		e := g.edges[edgeKey{vars[i], vars[i+1]}]
		pe := PathEdge{Cause: e.Cause, Effect: e.Effect}
		if e.Strength != nil {
			s := *e.Strength
			pe.Strength = &s
			p.Strength *= s
		}
		p.Edges = append(p.Edges, pe)
	}
	return p
}

// ancestorPath returns target's ancestors, and target itself, in the given
// topological order: the variables that were evaluated to produce target.
func (g *Graph) ancestorPath(target string, order []string) []string {
	anc := g.ancestorsOf([]string{target})
	out := make([]string, 0, len(anc))
	for _, id := range order {
		if anc[id] {
			out = append(out, id)
		}
	}
	return out
}

func formatAssignment(ids []string, values map[string]float64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=%g", id, values[id])
	}
	return strings.Join(parts, ", ")
}

func describePaths(paths []CausalPath) string {
	desc := make([]string, len(paths))
	for i, p := range paths {
		desc[i] = p.Description
	}
	return strings.Join(desc, "; ")
}
