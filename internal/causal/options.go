package causal

import "github.com/Harshitk-cp/causal/internal/domain"

// CombineMode selects how edge contributions are folded into an effect's value.
type CombineMode string

const (
	CombineSum  CombineMode = "sum"
	CombineMean CombineMode = "mean"
)

func ValidCombineMode(m string) bool {
	switch CombineMode(m) {
	case CombineSum, CombineMean:
		return true
	}
	return false
}

// Default search and propagation bounds.
const (
	DefaultMaxAdjustmentSetSize = 8
	DefaultMaxSearchIterations  = 100_000
	DefaultMaxPaths             = 1_000
	DefaultParallelism          = 4
)

// Options configures both engines. The structural model used for propagation
// is a modeling simplification: every edge contributes DefaultEquation(cause)
// unless it carries its own equation, and contributions are combined with
// Combine.
type Options struct {
	MaxAdjustmentSetSize int
	MaxSearchIterations  int
	MaxPaths             int
	DefaultEquation      domain.Equation
	Combine              CombineMode
	Parallelism          int
}

func DefaultOptions() Options {
	return Options{
		MaxAdjustmentSetSize: DefaultMaxAdjustmentSetSize,
		MaxSearchIterations:  DefaultMaxSearchIterations,
		MaxPaths:             DefaultMaxPaths,
		DefaultEquation:      *domain.LinearEquation(1),
		Combine:              CombineSum,
		Parallelism:          DefaultParallelism,
	}
}

// withDefaults fills zero-valued fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAdjustmentSetSize <= 0 {
		o.MaxAdjustmentSetSize = d.MaxAdjustmentSetSize
	}
	if o.MaxSearchIterations <= 0 {
		o.MaxSearchIterations = d.MaxSearchIterations
	}
	if o.MaxPaths <= 0 {
		o.MaxPaths = d.MaxPaths
	}
	if o.DefaultEquation.Kind == "" {
		o.DefaultEquation = d.DefaultEquation
	}
	if !ValidCombineMode(string(o.Combine)) {
		o.Combine = d.Combine
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	return o
}
