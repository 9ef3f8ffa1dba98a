package causal

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. The structured error types below match them via errors.Is.
var (
	// ErrDuplicateVariable is returned when a variable id is already present.
	ErrDuplicateVariable = errors.New("duplicate variable")

	// ErrUnknownVariable is returned when an operation references a variable
	// that is not part of the graph.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrCycle is returned when an edge would close a directed cycle.
	ErrCycle = errors.New("edge would create a directed cycle")

	// ErrDuplicateEdge is returned when a (cause, effect) pair already exists.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrInvalidGraphSpec is returned by the builder for malformed specs.
	ErrInvalidGraphSpec = errors.New("invalid graph spec")

	// ErrNotIdentifiable is returned when no valid adjustment set exists.
	ErrNotIdentifiable = errors.New("causal effect not identifiable")

	// ErrInvalidValue is returned for values outside a variable's domain.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnknownFunction is returned for structural functions missing from the registry.
	ErrUnknownFunction = errors.New("unknown structural function")

	// ErrInvalidVariable is returned for malformed variable declarations.
	ErrInvalidVariable = errors.New("invalid variable")

	// ErrInvalidEdge is returned for malformed edge attributes (equation, strength).
	ErrInvalidEdge = errors.New("invalid edge")
)

type DuplicateVariableError struct {
	ID string
}

func (e *DuplicateVariableError) Error() string {
	return fmt.Sprintf("duplicate variable %q", e.ID)
}

func (e *DuplicateVariableError) Unwrap() error { return ErrDuplicateVariable }

type UnknownVariableError struct {
	ID string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.ID)
}

func (e *UnknownVariableError) Unwrap() error { return ErrUnknownVariable }

// CycleError reports the edge that was rejected and the existing directed path
// from Effect back to Cause that it would have closed.
type CycleError struct {
	Cause  string
	Effect string
	Path   []string
}

func (e *CycleError) Error() string {
	if e.Cause == e.Effect {
		return fmt.Sprintf("edge %s -> %s: variable cannot depend on itself", e.Cause, e.Effect)
	}
	return fmt.Sprintf("edge %s -> %s closes cycle %s -> %s", e.Cause, e.Effect,
		strings.Join(e.Path, " -> "), e.Effect)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

type DuplicateEdgeError struct {
	Cause  string
	Effect string
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate edge %s -> %s", e.Cause, e.Effect)
}

func (e *DuplicateEdgeError) Unwrap() error { return ErrDuplicateEdge }

// InvalidValueError reports a value that does not fit a variable's domain, or
// a value assigned to a variable that cannot hold one (e.g. a latent variable).
type InvalidValueError struct {
	Variable string
	Value    float64
	Reason   string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %v for %q: %s", e.Value, e.Variable, e.Reason)
}

func (e *InvalidValueError) Unwrap() error { return ErrInvalidValue }

type InvalidVariableError struct {
	ID     string
	Reason string
}

func (e *InvalidVariableError) Error() string {
	return fmt.Sprintf("invalid variable %q: %s", e.ID, e.Reason)
}

func (e *InvalidVariableError) Unwrap() error { return ErrInvalidVariable }

// InvalidEdgeError wraps ErrUnknownFunction when the equation names a function
// that is not registered.
type InvalidEdgeError struct {
	Cause  string
	Effect string
	Reason string
	Err    error
}

func (e *InvalidEdgeError) Error() string {
	return fmt.Sprintf("invalid edge %s -> %s: %s", e.Cause, e.Effect, e.Reason)
}

func (e *InvalidEdgeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidEdge, e.Err}
	}
	return []error{ErrInvalidEdge}
}

type ViolationKind string

const (
	ViolationUnknownVariable   ViolationKind = "unknown_variable"
	ViolationDuplicateVariable ViolationKind = "duplicate_variable"
	ViolationInvalidVariable   ViolationKind = "invalid_variable"
	ViolationDuplicateEdge     ViolationKind = "duplicate_edge"
	ViolationInvalidEdge       ViolationKind = "invalid_edge"
	ViolationCycle             ViolationKind = "cycle"
	ViolationLimitExceeded     ViolationKind = "limit_exceeded"
)

type SpecViolation struct {
	Kind      ViolationKind `json:"kind"`
	Variables []string      `json:"variables,omitempty"`
	Detail    string        `json:"detail"`
}

// InvalidGraphSpecError carries every violation found in a graph spec, in the
// order they were detected.
type InvalidGraphSpecError struct {
	Violations []SpecViolation
}

func (e *InvalidGraphSpecError) Error() string {
	if len(e.Violations) == 0 {
		return ErrInvalidGraphSpec.Error()
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidGraphSpec, strings.Join(parts, "; "))
}

func (e *InvalidGraphSpecError) Unwrap() error { return ErrInvalidGraphSpec }

// Has reports whether the graph spec error contains a violation of the given kind.
func (e *InvalidGraphSpecError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// NotIdentifiableError is returned by FindAdjustmentSet. OpenPaths lists the
// backdoor paths that stayed open under the largest candidate set; Exhausted
// is set when the search stopped at the iteration bound.
type NotIdentifiableError struct {
	Treatment string
	Outcome   string
	OpenPaths [][]string
	Exhausted bool
}

func (e *NotIdentifiableError) Error() string {
	msg := fmt.Sprintf("no adjustment set blocks every backdoor path from %s to %s", e.Treatment, e.Outcome)
	if e.Exhausted {
		msg += " within the search bound"
	}
	return msg
}

func (e *NotIdentifiableError) Unwrap() error { return ErrNotIdentifiable }

// UnidentifiableEffectError is returned by EstimateEffect. Confounders names
// the variables on open backdoor paths that prevent identification.
type UnidentifiableEffectError struct {
	Treatment   string
	Outcome     string
	Confounders []string
	OpenPaths   [][]string
	Err         error
}

func (e *UnidentifiableEffectError) Error() string {
	msg := fmt.Sprintf("effect of %s on %s is not identifiable", e.Treatment, e.Outcome)
	if len(e.Confounders) > 0 {
		msg += fmt.Sprintf(": confounded by %s", strings.Join(e.Confounders, ", "))
	}
	return msg
}

func (e *UnidentifiableEffectError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotIdentifiable
}
