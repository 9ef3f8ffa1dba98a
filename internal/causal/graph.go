// Package causal implements structural causal models over directed acyclic
// graphs: graph construction, interventional queries via do-calculus,
// backdoor and front-door identification, and counterfactual inference.
//
// # Ownership Model
//
// A Graph owns copies of its variables and edges. Accessors return copies, so
// callers cannot reach into graph state.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent mutation. Read-only methods may be called
// from many goroutines as long as no mutation runs concurrently. Mutilate and
// RemoveOutgoing never modify the receiver; they return new graphs. Callers
// that share a graph between requests treat it as an immutable snapshot and
// mutate a Clone instead.
//
// # Engines
//
// DoCalculusEngine and CounterfactualEngine hold configuration only. Every
// query borrows a graph for its duration and keeps no state afterwards.
package causal

import (
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/Harshitk-cp/causal/internal/domain"
)

type edgeKey struct {
	cause  string
	effect string
}

// Graph is a causal DAG. Variables, parents and children are kept in insertion
// order so traversal results are deterministic.
type Graph struct {
	vars      []domain.Variable
	index     map[string]int
	parents   map[string][]string
	children  map[string][]string
	edges     map[edgeKey]domain.CausalEdge
	edgeOrder []edgeKey
	version   uint64
}

func NewGraph() *Graph {
	return &Graph{
		index:    make(map[string]int),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
		edges:    make(map[edgeKey]domain.CausalEdge),
	}
}

// EdgeOption sets optional edge attributes in AddEdge.
type EdgeOption func(*domain.CausalEdge)

func WithEquation(eq *domain.Equation) EdgeOption {
	return func(e *domain.CausalEdge) {
		e.Equation = copyEquation(eq)
	}
}

func WithStrength(s float64) EdgeOption {
	return func(e *domain.CausalEdge) {
		e.Strength = &s
	}
}

// AddVariable adds v to the graph.
func (g *Graph) AddVariable(v domain.Variable) error {
	if err := validateVariable(v); err != nil {
		return err
	}
	if _, ok := g.index[v.ID]; ok {
		return &DuplicateVariableError{ID: v.ID}
	}
	g.insertVariable(v)
	g.version++
	return nil
}

// AddEdge adds cause -> effect. The edge is rejected if either endpoint is
// missing, the pair already exists, the attributes are invalid, or cause is
// reachable from effect. A rejected edge leaves the graph unchanged.
func (g *Graph) AddEdge(cause, effect string, opts ...EdgeOption) error {
	e := domain.CausalEdge{Cause: cause, Effect: effect}
	for _, opt := range opts {
		opt(&e)
	}
	return g.AddCausalEdge(e)
}

// AddCausalEdge is AddEdge for an edge value, as found in a GraphSpec.
func (g *Graph) AddCausalEdge(e domain.CausalEdge) error {
	if _, ok := g.index[e.Cause]; !ok {
		return &UnknownVariableError{ID: e.Cause}
	}
	if _, ok := g.index[e.Effect]; !ok {
		return &UnknownVariableError{ID: e.Effect}
	}
	if e.Cause == e.Effect {
		return &CycleError{Cause: e.Cause, Effect: e.Effect, Path: []string{e.Cause}}
	}
	if _, ok := g.edges[edgeKey{e.Cause, e.Effect}]; ok {
		return &DuplicateEdgeError{Cause: e.Cause, Effect: e.Effect}
	}
	if err := validateEdge(e); err != nil {
		return err
	}
	if path := g.directedPath(e.Effect, e.Cause, nil); path != nil {
		return &CycleError{Cause: e.Cause, Effect: e.Effect, Path: path}
	}
	g.insertEdge(e)
	g.version++
	return nil
}

// RemoveVariable removes id and every edge touching it.
func (g *Graph) RemoveVariable(id string) error {
	pos, ok := g.index[id]
	if !ok {
		return &UnknownVariableError{ID: id}
	}

	for _, p := range g.parents[id] {
		g.children[p] = remove(g.children[p], id)
		delete(g.edges, edgeKey{p, id})
	}
	for _, c := range g.children[id] {
		g.parents[c] = remove(g.parents[c], id)
		delete(g.edges, edgeKey{id, c})
	}
	delete(g.parents, id)
	delete(g.children, id)

	g.edgeOrder = slices.DeleteFunc(g.edgeOrder, func(k edgeKey) bool {
		return k.cause == id || k.effect == id
	})

	g.vars = slices.Delete(g.vars, pos, pos+1)
	delete(g.index, id)
	for i := pos; i < len(g.vars); i++ {
		g.index[g.vars[i].ID] = i
	}
	g.version++
	return nil
}

// Mutilate returns a new graph in which the given variables have no incoming
// edges. The receiver is not modified.
func (g *Graph) Mutilate(ids ...string) (*Graph, error) {
	if err := g.requireAll(ids); err != nil {
		return nil, err
	}
	return g.mutilate(ids), nil
}

// RemoveOutgoing returns a new graph in which the given variables have no
// outgoing edges. The receiver is not modified.
func (g *Graph) RemoveOutgoing(ids ...string) (*Graph, error) {
	if err := g.requireAll(ids); err != nil {
		return nil, err
	}
	return g.removeOutgoing(ids), nil
}

func (g *Graph) mutilate(ids []string) *Graph {
	m := g.Clone()
	for _, id := range ids {
		for _, p := range m.parents[id] {
			m.children[p] = remove(m.children[p], id)
			delete(m.edges, edgeKey{p, id})
		}
		m.parents[id] = nil
	}
	m.pruneEdgeOrder()
	return m
}

func (g *Graph) removeOutgoing(ids []string) *Graph {
	m := g.Clone()
	for _, id := range ids {
		for _, c := range m.children[id] {
			m.parents[c] = remove(m.parents[c], id)
			delete(m.edges, edgeKey{id, c})
		}
		m.children[id] = nil
	}
	m.pruneEdgeOrder()
	return m
}

// Clone returns a deep copy of the graph, including its version.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		vars:      make([]domain.Variable, len(g.vars)),
		index:     make(map[string]int, len(g.index)),
		parents:   make(map[string][]string, len(g.parents)),
		children:  make(map[string][]string, len(g.children)),
		edges:     make(map[edgeKey]domain.CausalEdge, len(g.edges)),
		edgeOrder: slices.Clone(g.edgeOrder),
		version:   g.version,
	}
	for i, v := range g.vars {
		c.vars[i] = copyVariable(v)
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for k, v := range g.parents {
		c.parents[k] = slices.Clone(v)
	}
	for k, v := range g.children {
		c.children[k] = slices.Clone(v)
	}
	for k, e := range g.edges {
		c.edges[k] = copyEdge(e)
	}
	return c
}

// TopologicalOrder returns the variables ordered so that every cause precedes
// its effects. Among variables that are ready at the same time, the one
// declared first comes first.
func (g *Graph) TopologicalOrder() []string {
	inDegree := make(map[string]int, len(g.vars))
	ready := &indexHeap{}
	for i, v := range g.vars {
		inDegree[v.ID] = len(g.parents[v.ID])
		if inDegree[v.ID] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]string, 0, len(g.vars))
	for ready.Len() > 0 {
		id := g.vars[heap.Pop(ready).(int)].ID
		order = append(order, id)
		for _, c := range g.children[id] {
			inDegree[c]--
			if inDegree[c] == 0 {
				heap.Push(ready, g.index[c])
			}
		}
	}
	return order
}

func (g *Graph) ParentsOf(id string) ([]string, error) {
	if _, ok := g.index[id]; !ok {
		return nil, &UnknownVariableError{ID: id}
	}
	return slices.Clone(g.parents[id]), nil
}

func (g *Graph) ChildrenOf(id string) ([]string, error) {
	if _, ok := g.index[id]; !ok {
		return nil, &UnknownVariableError{ID: id}
	}
	return slices.Clone(g.children[id]), nil
}

// Ancestors returns the ancestors of id in insertion order, excluding id.
func (g *Graph) Ancestors(id string) ([]string, error) {
	if _, ok := g.index[id]; !ok {
		return nil, &UnknownVariableError{ID: id}
	}
	anc := g.ancestorsOf([]string{id})
	delete(anc, id)
	return g.ordered(anc), nil
}

// Descendants returns the descendants of id in insertion order, excluding id.
func (g *Graph) Descendants(id string) ([]string, error) {
	if _, ok := g.index[id]; !ok {
		return nil, &UnknownVariableError{ID: id}
	}
	return g.ordered(g.descendantsOf(id)), nil
}

func (g *Graph) HasVariable(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *Graph) Variable(id string) (domain.Variable, bool) {
	pos, ok := g.index[id]
	if !ok {
		return domain.Variable{}, false
	}
	return copyVariable(g.vars[pos]), true
}

func (g *Graph) Variables() []domain.Variable {
	out := make([]domain.Variable, len(g.vars))
	for i, v := range g.vars {
		out[i] = copyVariable(v)
	}
	return out
}

func (g *Graph) Edge(cause, effect string) (domain.CausalEdge, bool) {
	e, ok := g.edges[edgeKey{cause, effect}]
	if !ok {
		return domain.CausalEdge{}, false
	}
	return copyEdge(e), true
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []domain.CausalEdge {
	out := make([]domain.CausalEdge, 0, len(g.edgeOrder))
	for _, k := range g.edgeOrder {
		out = append(out, copyEdge(g.edges[k]))
	}
	return out
}

func (g *Graph) Len() int       { return len(g.vars) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Version increases with every successful mutation.
func (g *Graph) Version() uint64 { return g.version }

// SetVersion raises the mutation counter to v so a graph rebuilt from a stored
// record continues from the stored version. It never lowers the counter.
func (g *Graph) SetVersion(v uint64) {
	if v > g.version {
		g.version = v
	}
}

// Spec exports the graph in the form accepted by Builder.Build.
func (g *Graph) Spec(name string) domain.GraphSpec {
	return domain.GraphSpec{
		Name:      name,
		Variables: g.Variables(),
		Edges:     g.Edges(),
	}
}

func (g *Graph) insertVariable(v domain.Variable) {
	g.index[v.ID] = len(g.vars)
	g.vars = append(g.vars, copyVariable(v))
	g.parents[v.ID] = nil
	g.children[v.ID] = nil
}

func (g *Graph) insertEdge(e domain.CausalEdge) {
	k := edgeKey{e.Cause, e.Effect}
	g.edges[k] = copyEdge(e)
	g.edgeOrder = append(g.edgeOrder, k)
	g.parents[e.Effect] = append(g.parents[e.Effect], e.Cause)
	g.children[e.Cause] = append(g.children[e.Cause], e.Effect)
}

func (g *Graph) pruneEdgeOrder() {
	g.edgeOrder = slices.DeleteFunc(g.edgeOrder, func(k edgeKey) bool {
		_, ok := g.edges[k]
		return !ok
	})
}

func (g *Graph) requireAll(ids []string) error {
	for _, id := range ids {
		if _, ok := g.index[id]; !ok {
			return &UnknownVariableError{ID: id}
		}
	}
	return nil
}

// directedPath returns a directed path from -> ... -> to, or nil. Variables in
// avoid are never entered.
func (g *Graph) directedPath(from, to string, avoid map[string]bool) []string {
	if avoid[from] {
		return nil
	}
	prev := map[string]string{from: ""}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			var path []string
			for cur := to; cur != ""; cur = prev[cur] {
				path = append(path, cur)
			}
			slices.Reverse(path)
			return path
		}
		children := g.children[n]
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if _, seen := prev[c]; seen || avoid[c] {
				continue
			}
			prev[c] = n
			stack = append(stack, c)
		}
	}
	return nil
}

// ancestorsOf returns ids and all of their ancestors.
func (g *Graph) ancestorsOf(ids []string) map[string]bool {
	seen := make(map[string]bool, len(ids))
	stack := slices.Clone(ids)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.parents[n]...)
	}
	return seen
}

// descendantsOf returns the strict descendants of id.
func (g *Graph) descendantsOf(id string) map[string]bool {
	seen := make(map[string]bool)
	stack := slices.Clone(g.children[id])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.children[n]...)
	}
	return seen
}

// ordered returns the members of set in variable insertion order.
func (g *Graph) ordered(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for _, v := range g.vars {
		if set[v.ID] {
			out = append(out, v.ID)
		}
	}
	return out
}

// sortByDeclaration sorts ids in place by variable insertion order.
func (g *Graph) sortByDeclaration(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		return g.index[a] - g.index[b]
	})
}

func validateVariable(v domain.Variable) error {
	if v.ID == "" {
		return &InvalidVariableError{ID: v.ID, Reason: "id is required"}
	}
	if v.Type != "" && !domain.ValidVariableType(string(v.Type)) {
		return &InvalidVariableError{ID: v.ID, Reason: fmt.Sprintf("unknown type %q", v.Type)}
	}
	if len(v.Categories) > 0 && v.DomainType() != domain.VariableCategorical {
		return &InvalidVariableError{ID: v.ID, Reason: "categories are only valid for categorical variables"}
	}
	if v.Value != nil {
		if v.Latent {
			return &InvalidVariableError{ID: v.ID, Reason: "latent variables cannot carry an observed value"}
		}
		if reason := domainViolation(v, *v.Value); reason != "" {
			return &InvalidVariableError{ID: v.ID, Reason: reason}
		}
	}
	return nil
}

func validateEdge(e domain.CausalEdge) error {
	if e.Strength != nil && (*e.Strength < 0 || *e.Strength > 1 || math.IsNaN(*e.Strength)) {
		return &InvalidEdgeError{Cause: e.Cause, Effect: e.Effect,
			Reason: fmt.Sprintf("strength %v outside [0,1]", *e.Strength)}
	}
	if e.Equation != nil {
		if err := validateEquation(*e.Equation); err != nil {
			return &InvalidEdgeError{Cause: e.Cause, Effect: e.Effect, Reason: err.Error(), Err: err}
		}
	}
	return nil
}

func copyVariable(v domain.Variable) domain.Variable {
	v.Categories = slices.Clone(v.Categories)
	if v.Value != nil {
		val := *v.Value
		v.Value = &val
	}
	return v
}

func copyEdge(e domain.CausalEdge) domain.CausalEdge {
	e.Equation = copyEquation(e.Equation)
	if e.Strength != nil {
		s := *e.Strength
		e.Strength = &s
	}
	return e
}

func copyEquation(eq *domain.Equation) *domain.Equation {
	if eq == nil {
		return nil
	}
	c := *eq
	c.Params = slices.Clone(eq.Params)
	return &c
}

func remove(list []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(s string) bool { return s == id })
}

// indexHeap is a min-heap of variable positions.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
