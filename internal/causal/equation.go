package causal

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Harshitk-cp/causal/internal/domain"
)

// StructuralFunc maps a cause value to its contribution to the effect.
type StructuralFunc func(x float64, params []float64) float64

var (
	functionsMu sync.RWMutex
	functions   = map[string]StructuralFunc{
		"identity": func(x float64, _ []float64) float64 { return x },
		"negate":   func(x float64, _ []float64) float64 { return -x },
		"square":   func(x float64, _ []float64) float64 { return x * x },
		"sqrt": func(x float64, _ []float64) float64 {
			return math.Copysign(math.Sqrt(math.Abs(x)), x)
		},
		"log1p": func(x float64, _ []float64) float64 {
			return math.Copysign(math.Log1p(math.Abs(x)), x)
		},
		"tanh": func(x float64, _ []float64) float64 { return math.Tanh(x) },
		"relu": func(x float64, _ []float64) float64 { return math.Max(0, x) },
		// scale(x; slope=1, offset=0)
		"scale": func(x float64, p []float64) float64 {
			return param(p, 0, 1)*x + param(p, 1, 0)
		},
		// logistic(x; gain=1, midpoint=0)
		"logistic": func(x float64, p []float64) float64 {
			return 1 / (1 + math.Exp(-param(p, 0, 1)*(x-param(p, 1, 0))))
		},
		// threshold(x; cutoff=0.5, high=1, low=0)
		"threshold": func(x float64, p []float64) float64 {
			if x >= param(p, 0, 0.5) {
				return param(p, 1, 1)
			}
			return param(p, 2, 0)
		},
	}
)

// RegisterFunction makes fn available to function equations under name,
// replacing any previous registration.
func RegisterFunction(name string, fn StructuralFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register structural function: name and function are required")
	}
	functionsMu.Lock()
	defer functionsMu.Unlock()
	functions[name] = fn
	return nil
}

// Functions lists the registered structural function names.
func Functions() []string {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFunction(name string) (StructuralFunc, bool) {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	fn, ok := functions[name]
	return fn, ok
}

func param(p []float64, i int, def float64) float64 {
	if i < len(p) {
		return p[i]
	}
	return def
}

func validateEquation(eq domain.Equation) error {
	if !domain.ValidEquationKind(string(eq.Kind)) {
		return fmt.Errorf("unknown equation kind %q", eq.Kind)
	}
	switch eq.Kind {
	case domain.EquationFunction:
		if _, ok := lookupFunction(eq.Function); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFunction, eq.Function)
		}
	case domain.EquationLinear:
		// A missing coefficient decodes to zero and would silence the edge.
		if eq.Coefficient == 0 || math.IsNaN(eq.Coefficient) || math.IsInf(eq.Coefficient, 0) {
			return fmt.Errorf("linear equation needs a finite non-zero coefficient, got %v", eq.Coefficient)
		}
	}
	return nil
}

func evalEquation(eq domain.Equation, x float64) float64 {
	switch eq.Kind {
	case domain.EquationConstant:
		return eq.Value
	case domain.EquationFunction:
		if fn, ok := lookupFunction(eq.Function); ok {
			return fn(x, eq.Params)
		}
		return 0
	default:
		return eq.Coefficient * x
	}
}

// structuralValue computes the value of id from the values of its parents,
// before noise. Root variables take their observed value, or zero.
func (g *Graph) structuralValue(id string, values map[string]float64, opts Options) float64 {
	parents := g.parents[id]
	if len(parents) == 0 {
		if v := g.vars[g.index[id]]; v.Value != nil {
			return *v.Value
		}
		return 0
	}

	var total float64
	for _, p := range parents {
		eq := opts.DefaultEquation
		if e := g.edges[edgeKey{p, id}]; e.Equation != nil {
			eq = *e.Equation
		}
		total += evalEquation(eq, values[p])
	}
	if opts.Combine == CombineMean {
		total /= float64(len(parents))
	}
	return total
}

// propagate walks order and assigns every variable a value: fixed values are
// taken as given, everything else is structuralValue plus its noise term,
// clamped to the variable's domain.
func (g *Graph) propagate(order []string, fixed, noise map[string]float64, opts Options) map[string]float64 {
	values := make(map[string]float64, len(order))
	for _, id := range order {
		if v, ok := fixed[id]; ok {
			values[id] = v
			continue
		}
		val := g.structuralValue(id, values, opts) + noise[id]
		values[id] = clampToDomain(g.vars[g.index[id]], val)
	}
	return values
}

// domainViolation explains why value does not fit v, or returns "".
func domainViolation(v domain.Variable, value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "value must be finite"
	}
	switch v.DomainType() {
	case domain.VariableBinary:
		if value != 0 && value != 1 {
			return "binary variables take 0 or 1"
		}
	case domain.VariableCategorical:
		if value != math.Trunc(value) {
			return "categorical variables take integer category codes"
		}
		if len(v.Categories) > 0 && (value < 0 || int(value) >= len(v.Categories)) {
			return fmt.Sprintf("category code must be in [0,%d]", len(v.Categories)-1)
		}
	}
	return ""
}

func clampToDomain(v domain.Variable, value float64) float64 {
	switch v.DomainType() {
	case domain.VariableBinary:
		return math.Min(1, math.Max(0, value))
	case domain.VariableCategorical:
		value = math.Round(value)
		if len(v.Categories) > 0 {
			value = math.Min(float64(len(v.Categories)-1), math.Max(0, value))
		}
	}
	return value
}

// checkAssignment validates an externally supplied value for id. Latent
// variables accept interventions but never observations.
func (g *Graph) checkAssignment(id string, value float64, observation bool) error {
	pos, ok := g.index[id]
	if !ok {
		return &UnknownVariableError{ID: id}
	}
	v := g.vars[pos]
	if observation && v.Latent {
		return &InvalidValueError{Variable: id, Value: value, Reason: "latent variables cannot be observed"}
	}
	if reason := domainViolation(v, value); reason != "" {
		return &InvalidValueError{Variable: id, Value: value, Reason: reason}
	}
	return nil
}

// assignedIDs validates an assignment and returns its keys in declaration order.
func (g *Graph) assignedIDs(assignment map[string]float64, observation bool) ([]string, error) {
	ids := make([]string, 0, len(assignment))
	for id := range assignment {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := g.checkAssignment(id, assignment[id], observation); err != nil {
			return nil, err
		}
	}
	g.sortByDeclaration(ids)
	return ids, nil
}

// observedValues returns the stored observed values of every variable.
func (g *Graph) observedValues() map[string]float64 {
	out := make(map[string]float64)
	for _, v := range g.vars {
		if v.Value != nil {
			out[v.ID] = *v.Value
		}
	}
	return out
}
