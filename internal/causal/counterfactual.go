package causal

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/causal/internal/domain"
	"golang.org/x/sync/errgroup"
)

// CounterfactualEngine answers "what would outcome have been" queries by
// abduction, action and prediction. It holds configuration only.
type CounterfactualEngine struct {
	opts Options
}

func NewCounterfactualEngine(opts Options) *CounterfactualEngine {
	return &CounterfactualEngine{opts: opts.withDefaults()}
}

func (e *CounterfactualEngine) Options() Options { return e.opts }

// ScenarioResult is the predicted outcome of one scenario. FactualValue is the
// outcome in the observed world and Difference is Value - FactualValue.
type ScenarioResult struct {
	Label        string              `json:"label"`
	Assignment   domain.Intervention `json:"assignment"`
	Value        float64             `json:"value"`
	FactualValue float64             `json:"factual_value"`
	Difference   float64             `json:"difference"`
	Path         []string            `json:"path"`
	Paths        []CausalPath        `json:"causal_paths,omitempty"`
	Explanation  string              `json:"explanation"`
}

// World is the result of abduction: the noise term of every variable and the
// factual values it reproduces.
type World struct {
	Evidence domain.Evidence    `json:"evidence"`
	Noise    map[string]float64 `json:"noise"`
	Factual  map[string]float64 `json:"factual"`
}

// Abduct infers the noise of every variable from the evidence. Evidence is
// merged over the values stored on the graph's variables. For an observed
// variable the noise is observed - structural(parents), so propagating with
// it reproduces the evidence; unobserved variables keep zero noise.
func (e *CounterfactualEngine) Abduct(g *Graph, evidence domain.Evidence) (*World, error) {
	merged := g.observedValues()
	for k, v := range evidence {
		merged[k] = v
	}
	if _, err := g.assignedIDs(merged, true); err != nil {
		return nil, err
	}

	w := &World{
		Evidence: merged,
		Noise:    make(map[string]float64, len(merged)),
		Factual:  make(map[string]float64, g.Len()),
	}
	for _, id := range g.TopologicalOrder() {
		structural := g.structuralValue(id, w.Factual, e.opts)
		obs, ok := merged[id]
		if !ok {
			w.Factual[id] = clampToDomain(g.vars[g.index[id]], structural)
			continue
		}
		w.Factual[id] = obs
		w.Noise[id] = obs - structural
	}
	return w, nil
}

// Counterfactual evaluates a single scenario against the evidence.
func (e *CounterfactualEngine) Counterfactual(g *Graph, evidence domain.Evidence, scenario domain.Scenario, outcome string) (*ScenarioResult, error) {
	if !g.HasVariable(outcome) {
		return nil, &UnknownVariableError{ID: outcome}
	}
	w, err := e.Abduct(g, evidence)
	if err != nil {
		return nil, err
	}
	return e.predict(g, w, scenario, outcome)
}

// predict applies the scenario to the abducted world: the graph is mutilated
// at the assigned variables and values are propagated with the world's noise.
func (e *CounterfactualEngine) predict(g *Graph, w *World, scenario domain.Scenario, outcome string) (*ScenarioResult, error) {
	ids, err := g.assignedIDs(scenario.Assignment, false)
	if err != nil {
		return nil, err
	}

	m := g.mutilate(ids)
	order := m.TopologicalOrder()
	values := m.propagate(order, scenario.Assignment, w.Noise, e.opts)

	var paths []CausalPath
	for _, id := range ids {
		paths = append(paths, m.directedPaths(id, outcome, e.opts.MaxPaths-len(paths))...)
		if len(paths) >= e.opts.MaxPaths {
			break
		}
	}

	assignment := make(domain.Intervention, len(scenario.Assignment))
	for k, v := range scenario.Assignment {
		assignment[k] = v
	}

	res := &ScenarioResult{
		Label:        scenario.Label,
		Assignment:   assignment,
		Value:        values[outcome],
		FactualValue: w.Factual[outcome],
		Path:         m.ancestorPath(outcome, order),
		Paths:        paths,
	}
	res.Difference = res.Value - res.FactualValue
	res.Explanation = explainScenario(ids, scenario.Assignment, outcome, res)
	return res, nil
}

func explainScenario(ids []string, assignment map[string]float64, outcome string, res *ScenarioResult) string {
	if len(ids) == 0 {
		return fmt.Sprintf("no change: %s stays at its factual value %g", outcome, res.FactualValue)
	}
	msg := fmt.Sprintf("had %s, %s would have been %g instead of %g",
		formatAssignment(ids, assignment), outcome, res.Value, res.FactualValue)
	if len(res.Paths) == 0 {
		return msg + " (no directed path from the assignment)"
	}
	return msg + " via " + describePaths(res.Paths)
}

// CompareScenarios evaluates every scenario against the same abducted world.
// Results are returned in input order. Scenarios run concurrently, bounded by
// Options.Parallelism; the first failure cancels the remaining work.
func (e *CounterfactualEngine) CompareScenarios(ctx context.Context, g *Graph, evidence domain.Evidence, scenarios []domain.Scenario, outcome string) ([]ScenarioResult, error) {
	if !g.HasVariable(outcome) {
		return nil, &UnknownVariableError{ID: outcome}
	}
	w, err := e.Abduct(g, evidence)
	if err != nil {
		return nil, err
	}

	results := make([]ScenarioResult, len(scenarios))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.Parallelism)
	for i, sc := range scenarios {
		if sc.Label == "" {
			sc.Label = fmt.Sprintf("scenario-%d", i+1)
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.predict(g, w, sc, outcome)
			if err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Label, err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExplainPath returns every directed path from treatment to outcome, in the
// order a depth-first traversal visiting children in insertion order finds
// them.
func (e *CounterfactualEngine) ExplainPath(g *Graph, treatment, outcome string) ([]CausalPath, error) {
	if err := g.requireAll([]string{treatment, outcome}); err != nil {
		return nil, err
	}
	paths := g.directedPaths(treatment, outcome, e.opts.MaxPaths)
	if paths == nil {
		paths = []CausalPath{}
	}
	return paths, nil
}
