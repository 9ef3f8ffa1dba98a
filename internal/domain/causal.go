package domain

import (
	"time"

	"github.com/google/uuid"
)

type VariableType string

const (
	VariableContinuous  VariableType = "continuous"
	VariableBinary      VariableType = "binary"
	VariableCategorical VariableType = "categorical"
)

func ValidVariableType(t string) bool {
	switch VariableType(t) {
	case VariableContinuous, VariableBinary, VariableCategorical:
		return true
	}
	return false
}

// Variable is a node of a causal graph. Value is the observed value, if any.
// Latent variables are part of the structure but can never be observed or
// adjusted for.
type Variable struct {
	ID         string       `json:"id" yaml:"id"`
	Label      string       `json:"label,omitempty" yaml:"label,omitempty"`
	Type       VariableType `json:"type,omitempty" yaml:"type,omitempty"`
	Categories []string     `json:"categories,omitempty" yaml:"categories,omitempty"`
	Latent     bool         `json:"latent,omitempty" yaml:"latent,omitempty"`
	Value      *float64     `json:"value,omitempty" yaml:"value,omitempty"`
}

// DomainType returns the variable type, treating an empty type as continuous.
func (v Variable) DomainType() VariableType {
	if v.Type == "" {
		return VariableContinuous
	}
	return v.Type
}

type EquationKind string

const (
	EquationLinear   EquationKind = "linear"
	EquationConstant EquationKind = "constant"
	EquationFunction EquationKind = "function"
)

func ValidEquationKind(k string) bool {
	switch EquationKind(k) {
	case EquationLinear, EquationConstant, EquationFunction:
		return true
	}
	return false
}

// Equation is a structural-equation hint attached to an edge. It describes the
// contribution of the edge's cause to the value of its effect:
//
//	linear:   Coefficient * cause
//	constant: Value
//	function: Function(cause, Params...)
type Equation struct {
	Kind        EquationKind `json:"kind" yaml:"kind"`
	Coefficient float64      `json:"coefficient,omitempty" yaml:"coefficient,omitempty"`
	Value       float64      `json:"value,omitempty" yaml:"value,omitempty"`
	Function    string       `json:"function,omitempty" yaml:"function,omitempty"`
	Params      []float64    `json:"params,omitempty" yaml:"params,omitempty"`
}

func LinearEquation(coefficient float64) *Equation {
	return &Equation{Kind: EquationLinear, Coefficient: coefficient}
}

func ConstantEquation(value float64) *Equation {
	return &Equation{Kind: EquationConstant, Value: value}
}

func FunctionEquation(name string, params ...float64) *Equation {
	return &Equation{Kind: EquationFunction, Function: name, Params: params}
}

// CausalEdge is a directed cause -> effect relation. Strength is an informal
// confidence in [0,1].
type CausalEdge struct {
	Cause    string    `json:"cause" yaml:"cause"`
	Effect   string    `json:"effect" yaml:"effect"`
	Equation *Equation `json:"equation,omitempty" yaml:"equation,omitempty"`
	Strength *float64  `json:"strength,omitempty" yaml:"strength,omitempty"`
}

type GraphSpec struct {
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Variables []Variable   `json:"variables" yaml:"variables"`
	Edges     []CausalEdge `json:"edges" yaml:"edges"`
}

// Intervention fixes variables to values: do(X=x).
type Intervention map[string]float64

// Evidence is a full or partial assignment of observed values.
type Evidence map[string]float64

// Scenario is a hypothetical assignment evaluated against observed evidence.
type Scenario struct {
	Label      string             `json:"label,omitempty" yaml:"label,omitempty"`
	Assignment map[string]float64 `json:"assignment" yaml:"assignment"`
}

// GraphRecord is the persisted form of a registered graph.
type GraphRecord struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	Spec      GraphSpec `json:"spec"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GraphSummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name,omitempty"`
	VariableCount int       `json:"variable_count"`
	EdgeCount     int       `json:"edge_count"`
	Version       uint64    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
