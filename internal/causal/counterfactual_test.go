package causal

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/causal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doublingGraph is X -> Y with Y = 2*X + noise.
func doublingGraph(t *testing.T) *Graph {
	t.Helper()
	g := newTestGraph(t, []string{"X", "Y"})
	require.NoError(t, g.AddEdge("X", "Y", WithEquation(domain.LinearEquation(2))))
	return g
}

func TestAbduct_RecoversNoise(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	w, err := e.Abduct(doublingGraph(t), domain.Evidence{"X": 1, "Y": 3})
	require.NoError(t, err)

	assert.Equal(t, 1.0, w.Noise["X"])
	assert.Equal(t, 1.0, w.Noise["Y"])
	assert.Equal(t, map[string]float64{"X": 1, "Y": 3}, w.Factual)
}

func TestAbduct_MissingEvidenceLeavesNoiseAtZero(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	w, err := e.Abduct(doublingGraph(t), domain.Evidence{"X": 4})
	require.NoError(t, err)

	_, ok := w.Noise["Y"]
	assert.False(t, ok)
	assert.Equal(t, 8.0, w.Factual["Y"])
}

func TestAbduct_RejectsLatentEvidence(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	_, err := e.Abduct(latentGraph(t, false), domain.Evidence{"U": 1})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestAbduct_MergesStoredValues(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	g := NewGraph()
	require.NoError(t, g.AddVariable(domain.Variable{ID: "X", Value: ptr(2)}))
	require.NoError(t, g.AddVariable(domain.Variable{ID: "Y", Value: ptr(10)}))
	require.NoError(t, g.AddEdge("X", "Y"))

	w, err := e.Abduct(g, domain.Evidence{"Y": 5})
	require.NoError(t, err)
	assert.Equal(t, 2.0, w.Factual["X"])
	assert.Equal(t, 5.0, w.Factual["Y"], "request evidence wins over stored values")
	assert.Equal(t, 3.0, w.Noise["Y"])
}

func TestCounterfactual_HoldsNoiseFixed(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	res, err := e.Counterfactual(doublingGraph(t),
		domain.Evidence{"X": 1, "Y": 3},
		domain.Scenario{Label: "double", Assignment: map[string]float64{"X": 2}},
		"Y",
	)
	require.NoError(t, err)

	assert.Equal(t, "double", res.Label)
	assert.Equal(t, 5.0, res.Value)
	assert.Equal(t, 3.0, res.FactualValue)
	assert.Equal(t, 2.0, res.Difference)
	assert.Equal(t, []string{"X", "Y"}, res.Path)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, "X -> Y", res.Paths[0].Description)
}

func TestCounterfactual_EmptyScenarioReproducesFacts(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	g := smokingGraph(t)
	evidence := domain.Evidence{"Smoking": 1, "Tar": 0.5, "Cancer": 4}

	res, err := e.Counterfactual(g, evidence, domain.Scenario{}, "Cancer")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.Value, 1e-9)
	assert.InDelta(t, 0.0, res.Difference, 1e-9)
}

func TestCounterfactual_ClampsBinaryOutcome(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	g := NewGraph()
	require.NoError(t, g.AddVariable(domain.Variable{ID: "Treat", Type: domain.VariableBinary}))
	require.NoError(t, g.AddVariable(domain.Variable{ID: "Cured", Type: domain.VariableBinary}))
	require.NoError(t, g.AddEdge("Treat", "Cured", WithEquation(domain.LinearEquation(2))))

	res, err := e.Counterfactual(g,
		domain.Evidence{"Treat": 0, "Cured": 0},
		domain.Scenario{Assignment: map[string]float64{"Treat": 1}},
		"Cured",
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Value)
}

func TestCounterfactual_UnknownOutcome(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	_, err := e.Counterfactual(doublingGraph(t), nil, domain.Scenario{}, "Z")
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestCompareScenarios_PreservesInputOrder(t *testing.T) {
	e := NewCounterfactualEngine(Options{Parallelism: 2})
	g := doublingGraph(t)

	scenarios := []domain.Scenario{
		{Assignment: map[string]float64{"X": 3}},
		{Label: "baseline", Assignment: map[string]float64{"X": 0}},
		{Assignment: map[string]float64{"X": 1}},
	}
	results, err := e.CompareScenarios(context.Background(), g, domain.Evidence{"X": 1, "Y": 3}, scenarios, "Y")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"scenario-1", "baseline", "scenario-3"},
		[]string{results[0].Label, results[1].Label, results[2].Label})
	assert.Equal(t, []float64{7, 1, 3},
		[]float64{results[0].Value, results[1].Value, results[2].Value})
}

func TestCompareScenarios_ReportsFailingScenario(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	scenarios := []domain.Scenario{
		{Label: "ok", Assignment: map[string]float64{"X": 1}},
		{Label: "bad", Assignment: map[string]float64{"Q": 1}},
	}

	_, err := e.CompareScenarios(context.Background(), doublingGraph(t), nil, scenarios, "Y")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownVariable)
	assert.Contains(t, err.Error(), `scenario "bad"`)
}

func TestCompareScenarios_Empty(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	results, err := e.CompareScenarios(context.Background(), doublingGraph(t), nil, nil, "Y")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExplainPath(t *testing.T) {
	e := NewCounterfactualEngine(DefaultOptions())
	g := newTestGraph(t, []string{"X", "A", "B", "Y"})
	require.NoError(t, g.AddEdge("X", "A", WithStrength(0.5)))
	require.NoError(t, g.AddEdge("X", "B"))
	require.NoError(t, g.AddEdge("A", "Y", WithStrength(0.4)))
	require.NoError(t, g.AddEdge("B", "Y"))
	require.NoError(t, g.AddEdge("X", "Y"))

	paths, err := e.ExplainPath(g, "X", "Y")
	require.NoError(t, err)
	require.Len(t, paths, 3)

	assert.Equal(t, "X -> A -> Y", paths[0].Description)
	assert.InDelta(t, 0.2, paths[0].Strength, 1e-9)
	assert.Equal(t, "X -> B -> Y", paths[1].Description)
	assert.Equal(t, 1.0, paths[1].Strength)
	assert.Equal(t, "X -> Y", paths[2].Description)
	require.Len(t, paths[0].Edges, 2)
	assert.Equal(t, PathEdge{Cause: "X", Effect: "A", Strength: ptr(0.5)}, paths[0].Edges[0])

	none, err := e.ExplainPath(g, "Y", "X")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = e.ExplainPath(g, "X", "Nope")
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestExplainPath_RespectsMaxPaths(t *testing.T) {
	e := NewCounterfactualEngine(Options{MaxPaths: 1})
	paths, err := e.ExplainPath(smokingGraph(t), "Smoking", "Cancer")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "Smoking -> Tar -> Cancer", paths[0].Description)
}
