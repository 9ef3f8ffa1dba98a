package causal

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/Harshitk-cp/causal/internal/domain"
)

// newTestGraph declares vars in order and adds each "cause>effect" edge.
func newTestGraph(t *testing.T, vars []string, edges ...[2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, id := range vars {
		if err := g.AddVariable(domain.Variable{ID: id}); err != nil {
			t.Fatalf("AddVariable(%s): %v", id, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", e[0], e[1], err)
		}
	}
	return g
}

func TestGraph_AddVariableDuplicate(t *testing.T) {
	g := newTestGraph(t, []string{"A"})

	err := g.AddVariable(domain.Variable{ID: "A"})
	var dup *DuplicateVariableError
	if !errors.As(err, &dup) || dup.ID != "A" {
		t.Fatalf("expected DuplicateVariableError for A, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateVariable) {
		t.Fatal("expected error to match ErrDuplicateVariable")
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 variable, got %d", g.Len())
	}
}

func TestGraph_AddVariableInvalid(t *testing.T) {
	g := NewGraph()
	one := 1.0
	half := 0.5

	cases := []domain.Variable{
		{ID: ""},
		{ID: "x", Type: "ordinal"},
		{ID: "x", Categories: []string{"a"}},
		{ID: "x", Latent: true, Value: &one},
		{ID: "x", Type: domain.VariableBinary, Value: &half},
	}
	for _, v := range cases {
		if err := g.AddVariable(v); !errors.Is(err, ErrInvalidVariable) {
			t.Errorf("AddVariable(%+v): expected ErrInvalidVariable, got %v", v, err)
		}
	}
	if g.Version() != 0 {
		t.Fatalf("rejected variables must not bump the version, got %d", g.Version())
	}
}

func TestGraph_AddEdgeUnknownVariable(t *testing.T) {
	g := newTestGraph(t, []string{"A"})

	err := g.AddEdge("A", "B")
	var unk *UnknownVariableError
	if !errors.As(err, &unk) || unk.ID != "B" {
		t.Fatalf("expected UnknownVariableError for B, got %v", err)
	}
}

func TestGraph_AddEdgeRejectsCycle(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B", "C"}, [2]string{"A", "B"}, [2]string{"B", "C"})
	before := g.Version()

	err := g.AddEdge("C", "A")
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if !slices.Equal(cyc.Path, []string{"A", "B", "C"}) {
		t.Fatalf("expected path A,B,C, got %v", cyc.Path)
	}
	if want := "edge C -> A closes cycle A -> B -> C -> A"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if g.EdgeCount() != 2 || g.Version() != before {
		t.Fatal("graph must be unchanged after a rejected edge")
	}
}

func TestGraph_AddEdgeSelfLoop(t *testing.T) {
	g := newTestGraph(t, []string{"A"})
	if err := g.AddEdge("A", "A"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestGraph_AddEdgeDuplicate(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B"}, [2]string{"A", "B"})
	if err := g.AddEdge("A", "B"); !errors.Is(err, ErrDuplicateEdge) {
		t.Fatalf("expected ErrDuplicateEdge, got %v", err)
	}
}

func TestGraph_AddEdgeInvalidStrength(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B"})
	if err := g.AddEdge("A", "B", WithStrength(1.5)); !errors.Is(err, ErrInvalidEdge) {
		t.Fatalf("expected ErrInvalidEdge, got %v", err)
	}
}

func TestGraph_TopologicalOrderPrefersDeclarationOrder(t *testing.T) {
	g := newTestGraph(t, []string{"C", "B", "A", "D"},
		[2]string{"A", "B"},
		[2]string{"B", "D"},
		[2]string{"C", "D"},
	)

	got := g.TopologicalOrder()
	want := []string{"C", "A", "B", "D"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGraph_MutilateLeavesReceiverUntouched(t *testing.T) {
	g := newTestGraph(t, []string{"Z", "X", "Y"},
		[2]string{"Z", "X"},
		[2]string{"Z", "Y"},
		[2]string{"X", "Y"},
	)

	m, err := g.Mutilate("X")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parents, _ := m.ParentsOf("X"); len(parents) != 0 {
		t.Fatalf("expected X to have no parents after mutilation, got %v", parents)
	}
	if _, ok := m.Edge("X", "Y"); !ok {
		t.Fatal("outgoing edges of X must survive mutilation")
	}
	if parents, _ := g.ParentsOf("X"); !slices.Equal(parents, []string{"Z"}) {
		t.Fatalf("receiver was modified: parents of X = %v", parents)
	}
	if m.EdgeCount() != 2 || g.EdgeCount() != 3 {
		t.Fatalf("unexpected edge counts: mutilated=%d original=%d", m.EdgeCount(), g.EdgeCount())
	}
}

func TestGraph_MutilateUnknownVariable(t *testing.T) {
	g := newTestGraph(t, []string{"A"})
	if _, err := g.Mutilate("nope"); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestGraph_RemoveOutgoing(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B", "C"}, [2]string{"A", "B"}, [2]string{"C", "A"})

	m, err := g.RemoveOutgoing("A")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if children, _ := m.ChildrenOf("A"); len(children) != 0 {
		t.Fatalf("expected no children, got %v", children)
	}
	if _, ok := m.Edge("C", "A"); !ok {
		t.Fatal("incoming edges must survive")
	}
}

func TestGraph_RemoveVariable(t *testing.T) {
	g := newTestGraph(t, []string{"Smoking", "Tar", "Cancer"},
		[2]string{"Smoking", "Tar"},
		[2]string{"Tar", "Cancer"},
		[2]string{"Smoking", "Cancer"},
	)

	if err := g.RemoveVariable("Tar"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if g.HasVariable("Tar") {
		t.Fatal("Tar should be gone")
	}
	if g.EdgeCount() != 1 {
		t.Fatalf("expected 1 remaining edge, got %d", g.EdgeCount())
	}
	if edges := g.Edges(); edges[0].Cause != "Smoking" || edges[0].Effect != "Cancer" {
		t.Fatalf("unexpected remaining edge %+v", edges[0])
	}
	if v, ok := g.Variable("Cancer"); !ok || v.ID != "Cancer" {
		t.Fatal("index must be rebuilt after removal")
	}
	if err := g.RemoveVariable("Tar"); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable on second removal, got %v", err)
	}
}

func TestGraph_AncestorsAndDescendants(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B", "C", "D"},
		[2]string{"A", "B"},
		[2]string{"B", "C"},
		[2]string{"D", "C"},
	)

	anc, err := g.Ancestors("C")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !slices.Equal(anc, []string{"A", "B", "D"}) {
		t.Fatalf("unexpected ancestors %v", anc)
	}
	desc, _ := g.Descendants("A")
	if !slices.Equal(desc, []string{"B", "C"}) {
		t.Fatalf("unexpected descendants %v", desc)
	}
}

func TestGraph_CloneIsDeep(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B"})
	if err := g.AddEdge("A", "B", WithEquation(domain.LinearEquation(2)), WithStrength(0.5)); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	c := g.Clone()
	if err := c.AddVariable(domain.Variable{ID: "C"}); err != nil {
		t.Fatalf("AddVariable on clone: %v", err)
	}
	if g.HasVariable("C") {
		t.Fatal("clone mutation leaked into original")
	}

	e, _ := c.Edge("A", "B")
	e.Equation.Coefficient = 99
	orig, _ := g.Edge("A", "B")
	if orig.Equation.Coefficient != 2 {
		t.Fatal("edge accessor must return a copy")
	}
}

func TestGraph_VersionIncrementsOnMutation(t *testing.T) {
	g := NewGraph()
	_ = g.AddVariable(domain.Variable{ID: "A"})
	_ = g.AddVariable(domain.Variable{ID: "B"})
	_ = g.AddEdge("A", "B")
	if g.Version() != 3 {
		t.Fatalf("expected version 3, got %d", g.Version())
	}
	_ = g.AddEdge("B", "A")
	if g.Version() != 3 {
		t.Fatalf("failed mutation bumped version to %d", g.Version())
	}
	_ = g.RemoveVariable("B")
	if g.Version() != 4 {
		t.Fatalf("expected version 4, got %d", g.Version())
	}
}

func TestGraph_SetVersionOnlyRaises(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B"}, [2]string{"A", "B"})
	g.SetVersion(7)
	if g.Version() != 7 {
		t.Fatalf("expected version 7, got %d", g.Version())
	}
	g.SetVersion(2)
	if g.Version() != 7 {
		t.Fatalf("SetVersion lowered the version to %d", g.Version())
	}
	_ = g.AddVariable(domain.Variable{ID: "C"})
	if g.Version() != 8 {
		t.Fatalf("expected version 8 after a mutation, got %d", g.Version())
	}
}

func assertTopologicalOrder(t *testing.T, g *Graph) {
	t.Helper()
	order := g.TopologicalOrder()
	if len(order) != g.Len() {
		t.Fatalf("order has %d variables, graph has %d", len(order), g.Len())
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range order {
		children, err := g.ChildrenOf(id)
		if err != nil {
			t.Fatalf("ChildrenOf(%s): %v", id, err)
		}
		for _, child := range children {
			if pos[id] >= pos[child] {
				t.Fatalf("edge %s -> %s violated by order %v", id, child, order)
			}
		}
	}
}

func TestGraph_TopologicalOrderRespectsEdges(t *testing.T) {
	tests := []struct {
		name  string
		vars  []string
		edges [][2]string
	}{
		{"single", []string{"A"}, nil},
		{"chain declared backwards", []string{"D", "C", "B", "A"},
			[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}}},
		{"diamond", []string{"Y", "M1", "M2", "X"},
			[][2]string{{"X", "M1"}, {"X", "M2"}, {"M1", "Y"}, {"M2", "Y"}}},
		{"disconnected", []string{"P", "Q", "R", "S"},
			[][2]string{{"S", "P"}, {"R", "Q"}}},
		{"front door", []string{"U", "X", "M", "Y"},
			[][2]string{{"U", "X"}, {"U", "Y"}, {"X", "M"}, {"M", "Y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertTopologicalOrder(t, newTestGraph(t, tt.vars, tt.edges...))
		})
	}
}

func TestGraph_TopologicalOrderRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		n := 2 + rng.IntN(12)
		// rank fixes the acyclic direction; declaration order is shuffled.
		rank := rng.Perm(n)
		vars := make([]string, n)
		for i := range vars {
			vars[i] = fmt.Sprintf("V%d", rank[i])
		}
		var edges [][2]string
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.3 {
					edges = append(edges, [2]string{fmt.Sprintf("V%d", i), fmt.Sprintf("V%d", j)})
				}
			}
		}
		t.Run(fmt.Sprintf("round_%d", round), func(t *testing.T) {
			g := newTestGraph(t, vars, edges...)
			if g.EdgeCount() != len(edges) {
				t.Fatalf("expected %d edges, got %d", len(edges), g.EdgeCount())
			}
			assertTopologicalOrder(t, g)
		})
	}
}

func TestGraph_DSeparated(t *testing.T) {
	chain := newTestGraph(t, []string{"A", "B", "C"}, [2]string{"A", "B"}, [2]string{"B", "C"})
	collider := newTestGraph(t, []string{"A", "B", "C", "D"},
		[2]string{"A", "C"},
		[2]string{"B", "C"},
		[2]string{"C", "D"},
	)

	tests := []struct {
		name    string
		g       *Graph
		x, y, z []string
		want    bool
	}{
		{"chain open", chain, []string{"A"}, []string{"C"}, nil, false},
		{"chain blocked by mediator", chain, []string{"A"}, []string{"C"}, []string{"B"}, true},
		{"collider blocked", collider, []string{"A"}, []string{"B"}, nil, true},
		{"collider opened by conditioning", collider, []string{"A"}, []string{"B"}, []string{"C"}, false},
		{"collider opened by descendant", collider, []string{"A"}, []string{"B"}, []string{"D"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.g.DSeparated(tt.x, tt.y, tt.z)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGraph_Spec(t *testing.T) {
	g := newTestGraph(t, []string{"A", "B"}, [2]string{"A", "B"})
	spec := g.Spec("demo")
	if spec.Name != "demo" || len(spec.Variables) != 2 || len(spec.Edges) != 1 {
		t.Fatalf("unexpected spec %+v", spec)
	}
}
