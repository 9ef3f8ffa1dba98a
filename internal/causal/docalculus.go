package causal

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Harshitk-cp/causal/internal/domain"
)

// Strategy names how an effect was identified.
type Strategy string

const (
	// StrategyNoConfounding: every backdoor path is already blocked, so by
	// rule 2 of the do-calculus P(y|do(x)) = P(y|x).
	StrategyNoConfounding Strategy = "no_confounding"
	StrategyBackdoor      Strategy = "backdoor"
	StrategyFrontdoor     Strategy = "frontdoor"
	// StrategyNoCausalPath: treatment has no directed path to the outcome, so
	// by rule 3 the effect is zero even though backdoor paths stay open.
	StrategyNoCausalPath  Strategy = "no_causal_path"
)

// DoCalculusEngine answers interventional queries. It holds configuration only.
type DoCalculusEngine struct {
	opts Options
}

func NewDoCalculusEngine(opts Options) *DoCalculusEngine {
	return &DoCalculusEngine{opts: opts.withDefaults()}
}

func (e *DoCalculusEngine) Options() Options { return e.opts }

type InterventionResult struct {
	Target       string              `json:"target"`
	Value        float64             `json:"value"`
	Intervention domain.Intervention `json:"intervention"`
	Path         []string            `json:"path"`
	Values       map[string]float64  `json:"values"`
	Paths        []CausalPath        `json:"causal_paths,omitempty"`
	Explanation  string              `json:"explanation"`
}

// Intervene computes the value of target under do(intervention). The graph is
// mutilated so intervened variables ignore their parents, then values are
// propagated along the mutilated graph's topological order.
func (e *DoCalculusEngine) Intervene(g *Graph, intervention domain.Intervention, target string) (*InterventionResult, error) {
	if !g.HasVariable(target) {
		return nil, &UnknownVariableError{ID: target}
	}
	ids, err := g.assignedIDs(intervention, false)
	if err != nil {
		return nil, err
	}

	m := g.mutilate(ids)
	order := m.TopologicalOrder()
	values := m.propagate(order, intervention, nil, e.opts)

	var paths []CausalPath
	for _, id := range ids {
		paths = append(paths, m.directedPaths(id, target, e.opts.MaxPaths-len(paths))...)
		if len(paths) >= e.opts.MaxPaths {
			break
		}
	}

	fixed := make(domain.Intervention, len(intervention))
	for k, v := range intervention {
		fixed[k] = v
	}

	return &InterventionResult{
		Target:       target,
		Value:        values[target],
		Intervention: fixed,
		Path:         m.ancestorPath(target, order),
		Values:       values,
		Paths:        paths,
		Explanation:  explainIntervention(ids, intervention, target, values[target], paths),
	}, nil
}

func explainIntervention(ids []string, intervention map[string]float64, target string, value float64, paths []CausalPath) string {
	if len(ids) == 0 {
		return fmt.Sprintf("no intervention: %s takes its natural value %g", target, value)
	}
	if slices.Contains(ids, target) {
		return fmt.Sprintf("do(%s) fixes %s to %g directly", formatAssignment(ids, intervention), target, value)
	}
	if len(paths) == 0 {
		return fmt.Sprintf("do(%s) does not reach %s; it keeps its natural value %g",
			formatAssignment(ids, intervention), target, value)
	}
	return fmt.Sprintf("do(%s) sets %s to %g via %s",
		formatAssignment(ids, intervention), target, value, describePaths(paths))
}

// EffectQuery asks for the average treatment effect of Treatment on Outcome,
// E[Outcome | do(Treatment=Treated)] - E[Outcome | do(Treatment=Control)].
// Control and Treated default to 0 and 1. A non-nil Adjustment is checked
// against the backdoor criterion instead of searching for a set.
type EffectQuery struct {
	Treatment  string   `json:"treatment"`
	Outcome    string   `json:"outcome"`
	Control    *float64 `json:"control,omitempty"`
	Treated    *float64 `json:"treated,omitempty"`
	Adjustment []string `json:"adjustment,omitempty"`
}

type EffectEstimate struct {
	Treatment             string       `json:"treatment"`
	Outcome               string       `json:"outcome"`
	Effect                float64      `json:"effect"`
	ControlValue          float64      `json:"control_value"`
	TreatedValue          float64      `json:"treated_value"`
	OutcomeUnderControl   float64      `json:"outcome_under_control"`
	OutcomeUnderTreatment float64      `json:"outcome_under_treatment"`
	AdjustmentSet         []string     `json:"adjustment_set"`
	Strategy              Strategy     `json:"strategy"`
	Mediators             []string     `json:"mediators,omitempty"`
	Paths                 []CausalPath `json:"causal_paths,omitempty"`
	Explanation           string       `json:"explanation"`
}

// EstimateEffect identifies the effect of q.Treatment on q.Outcome and, when
// identifiable, computes it as the difference of two interventions. The
// backdoor criterion is tried first and the front-door criterion second.
// Unidentifiable effects fail with *UnidentifiableEffectError naming the
// confounders on the open backdoor paths.
func (e *DoCalculusEngine) EstimateEffect(g *Graph, q EffectQuery) (*EffectEstimate, error) {
	if err := g.requireAll([]string{q.Treatment, q.Outcome}); err != nil {
		return nil, err
	}
	if q.Treatment == q.Outcome {
		return nil, &InvalidValueError{Variable: q.Treatment, Reason: "treatment and outcome must differ"}
	}

	control, treated := 0.0, 1.0
	if q.Control != nil {
		control = *q.Control
	}
	if q.Treated != nil {
		treated = *q.Treated
	}
	for _, v := range []float64{control, treated} {
		if err := g.checkAssignment(q.Treatment, v, false); err != nil {
			return nil, err
		}
	}

	est := &EffectEstimate{
		Treatment:     q.Treatment,
		Outcome:       q.Outcome,
		ControlValue:  control,
		TreatedValue:  treated,
		AdjustmentSet: []string{},
	}

	if q.Adjustment != nil {
		set, err := e.checkAdjustment(g, q.Treatment, q.Outcome, q.Adjustment)
		if err != nil {
			return nil, err
		}
		est.AdjustmentSet = set
	} else {
		var nie *NotIdentifiableError
		adj, err := e.FindAdjustmentSet(g, q.Treatment, q.Outcome)
		switch {
		case err == nil:
			est.AdjustmentSet = adj.Set
		case errors.As(err, &nie):
			if g.directedPath(q.Treatment, q.Outcome, nil) == nil {
				// Rule 3: do(treatment) cannot reach the outcome.
				est.Strategy = StrategyNoCausalPath
				break
			}
			mediators, ok := e.findFrontDoorSet(g, q.Treatment, q.Outcome)
			if !ok {
				return nil, &UnidentifiableEffectError{
					Treatment:   q.Treatment,
					Outcome:     q.Outcome,
					Confounders: g.confoundersOn(nie.OpenPaths),
					OpenPaths:   nie.OpenPaths,
					Err:         nie,
				}
			}
			est.Mediators = mediators
			est.Strategy = StrategyFrontdoor
		default:
			return nil, err
		}
	}

	if est.Strategy == "" {
		est.Strategy = StrategyBackdoor
		if len(est.AdjustmentSet) == 0 {
			if ok, _ := e.CheckRule(g, RuleExchange, RuleQuery{Y: []string{q.Outcome}, Z: []string{q.Treatment}}); ok {
				est.Strategy = StrategyNoConfounding
			}
		}
	}

	low, err := e.Intervene(g, domain.Intervention{q.Treatment: control}, q.Outcome)
	if err != nil {
		return nil, err
	}
	high, err := e.Intervene(g, domain.Intervention{q.Treatment: treated}, q.Outcome)
	if err != nil {
		return nil, err
	}

	est.OutcomeUnderControl = low.Value
	est.OutcomeUnderTreatment = high.Value
	est.Effect = high.Value - low.Value
	est.Paths = g.directedPaths(q.Treatment, q.Outcome, e.opts.MaxPaths)
	est.Explanation = explainEffect(est)
	return est, nil
}

func explainEffect(est *EffectEstimate) string {
	var how string
	switch est.Strategy {
	case StrategyNoConfounding:
		how = "no backdoor path is open, so no adjustment is needed"
	case StrategyBackdoor:
		how = fmt.Sprintf("identified by adjusting for {%s}", joinIDs(est.AdjustmentSet))
	case StrategyFrontdoor:
		how = fmt.Sprintf("identified through the front-door mediators {%s}", joinIDs(est.Mediators))
	case StrategyNoCausalPath:
		how = "no intervention on the treatment can reach the outcome"
	}
	msg := fmt.Sprintf("changing %s from %g to %g changes %s by %g; %s",
		est.Treatment, est.ControlValue, est.TreatedValue, est.Outcome, est.Effect, how)
	if len(est.Paths) == 0 {
		return msg + fmt.Sprintf("; %s has no directed path to %s", est.Treatment, est.Outcome)
	}
	return msg + "; paths: " + describePaths(est.Paths)
}

// Rule selects one of Pearl's three do-calculus rules.
type Rule int

const (
	// RuleInsertObservation (rule 1): P(y|do(x),z,w) = P(y|do(x),w)
	// if (Y ⊥ Z | X, W) in G with incoming edges to X removed.
	RuleInsertObservation Rule = 1
	// RuleExchange (rule 2): P(y|do(x),do(z),w) = P(y|do(x),z,w)
	// if (Y ⊥ Z | X, W) in G with incoming edges to X and outgoing edges of Z removed.
	RuleExchange Rule = 2
	// RuleInsertAction (rule 3): P(y|do(x),do(z),w) = P(y|do(x),w)
	// if (Y ⊥ Z | X, W) in G with incoming edges to X and to Z(W) removed,
	// where Z(W) are the Z-nodes that are not ancestors of W once X is mutilated.
	RuleInsertAction Rule = 3
)

type RuleQuery struct {
	Y []string `json:"y"`
	X []string `json:"x,omitempty"`
	Z []string `json:"z"`
	W []string `json:"w,omitempty"`
}

// CheckRule reports whether the graphical condition of the given rule holds.
func (e *DoCalculusEngine) CheckRule(g *Graph, rule Rule, q RuleQuery) (bool, error) {
	if len(q.Y) == 0 || len(q.Z) == 0 {
		return false, fmt.Errorf("%w: rule %d needs non-empty y and z", ErrInvalidValue, rule)
	}
	for _, list := range [][]string{q.Y, q.X, q.Z, q.W} {
		if err := g.requireAll(list); err != nil {
			return false, err
		}
	}

	given := toSet(append(slices.Clone(q.X), q.W...))
	gx := g.mutilate(q.X)

	switch rule {
	case RuleInsertObservation:
		return gx.dSeparated(toSet(q.Z), toSet(q.Y), given), nil
	case RuleExchange:
		return gx.removeOutgoing(q.Z).dSeparated(toSet(q.Z), toSet(q.Y), given), nil
	case RuleInsertAction:
		anc := gx.ancestorsOf(q.W)
		var zw []string
		for _, z := range q.Z {
			if !anc[z] {
				zw = append(zw, z)
			}
		}
		return gx.mutilate(zw).dSeparated(toSet(q.Z), toSet(q.Y), given), nil
	default:
		return false, fmt.Errorf("%w: unknown do-calculus rule %d", ErrInvalidValue, rule)
	}
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
