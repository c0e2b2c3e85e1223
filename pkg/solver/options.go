// Solver options and termination reporting
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package solver

import (
	"fmt"
	"math"

	"ikchain/pkg/errors"
)

// Options controls the Levenberg-Marquardt iteration.
type Options struct {
	// MaxIterations bounds the number of step attempts, accepted or not.
	MaxIterations int

	// GradientTolerance: converged when max|Jᵗr| falls below it.
	GradientTolerance float64

	// ParameterTolerance: converged when |Δ| <= tol * (|x| + tol).
	ParameterTolerance float64

	// CostTolerance: converged when 0.5*|r|² falls below it.
	CostTolerance float64

	// InitialLambda is the starting damping factor.
	InitialLambda float64

	// LambdaUp multiplies the damping after a rejected step.
	LambdaUp float64

	// LambdaDown multiplies the damping after an accepted step.
	LambdaDown float64

	// MinLambda floors the damping factor.
	MinLambda float64

	// MaxLambda: damping above it means the problem is degenerate.
	MaxLambda float64

	// MaxRejections consecutive rejected steps end the solve with
	// LambdaExhausted.
	MaxRejections int
}

// DefaultOptions returns the options used by the chain driver.
func DefaultOptions() Options {
	return Options{
		MaxIterations:      100,
		GradientTolerance:  1e-10,
		ParameterTolerance: 1e-8,
		CostTolerance:      1e-16,
		InitialLambda:      1e-4,
		LambdaUp:           10,
		LambdaDown:         0.1,
		MinLambda:          1e-15,
		MaxLambda:          1e16,
		MaxRejections:      20,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	switch {
	case o.MaxIterations <= 0:
		return errors.OptionsError("max_iterations", "must be positive")
	case o.GradientTolerance < 0 || math.IsNaN(o.GradientTolerance):
		return errors.OptionsError("gradient_tolerance", "must not be negative")
	case o.ParameterTolerance < 0 || math.IsNaN(o.ParameterTolerance):
		return errors.OptionsError("parameter_tolerance", "must not be negative")
	case o.CostTolerance < 0 || math.IsNaN(o.CostTolerance):
		return errors.OptionsError("cost_tolerance", "must not be negative")
	case !positive(o.InitialLambda):
		return errors.OptionsError("initial_lambda", "must be positive")
	case !positive(o.LambdaUp) || o.LambdaUp <= 1:
		return errors.OptionsError("lambda_up", "must be greater than 1")
	case !positive(o.LambdaDown) || o.LambdaDown >= 1:
		return errors.OptionsError("lambda_down", "must be in (0, 1)")
	case o.MinLambda < 0 || o.MinLambda > o.InitialLambda:
		return errors.OptionsError("min_lambda", "must be in [0, initial_lambda]")
	case o.MaxLambda < o.InitialLambda:
		return errors.OptionsError("max_lambda", "must be at least initial_lambda")
	case o.MaxRejections <= 0:
		return errors.OptionsError("max_rejections", "must be positive")
	}
	return nil
}

// Status is the reason the solver stopped.
type Status int

const (
	// CostTooSmall: residual cost below CostTolerance.
	CostTooSmall Status = iota
	// GradientTooSmall: stationary point reached.
	GradientTooSmall
	// RelativeStepTooSmall: the accepted-region step stopped moving x.
	RelativeStepTooSmall
	// HitMaxIterations: iteration budget spent.
	HitMaxIterations
	// LambdaExhausted: no improving step found within the damping budget.
	LambdaExhausted
	// NumericalFailure: residuals became non-finite at the start point.
	NumericalFailure
)

func (s Status) String() string {
	switch s {
	case CostTooSmall:
		return "cost_too_small"
	case GradientTooSmall:
		return "gradient_too_small"
	case RelativeStepTooSmall:
		return "relative_step_too_small"
	case HitMaxIterations:
		return "hit_max_iterations"
	case LambdaExhausted:
		return "lambda_exhausted"
	case NumericalFailure:
		return "numerical_failure"
	default:
		return "unknown"
	}
}

// Converged reports whether the status is a convergence criterion.
func (s Status) Converged() bool {
	return s == CostTooSmall || s == GradientTooSmall || s == RelativeStepTooSmall
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for c := CostTooSmall; c <= NumericalFailure; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return errors.New(errors.ErrRuntime, fmt.Sprintf("unknown solver status %q", text))
}

// Summary reports the outcome of one Solve call.
type Summary struct {
	Status          Status  `json:"status" yaml:"status"`
	Iterations      int     `json:"iterations" yaml:"iterations"`
	Accepted        int     `json:"accepted" yaml:"accepted"`
	Rejected        int     `json:"rejected" yaml:"rejected"`
	SVDFallbacks    int     `json:"svd_fallbacks" yaml:"svd_fallbacks"`
	InitialCost     float64 `json:"initial_cost" yaml:"initial_cost"`
	FinalCost       float64 `json:"final_cost" yaml:"final_cost"`
	GradientMaxNorm float64 `json:"gradient_max_norm" yaml:"gradient_max_norm"`
	Lambda          float64 `json:"lambda" yaml:"lambda"`
}

// Converged reports whether the solve met a convergence criterion.
func (s Summary) Converged() bool {
	return s.Status.Converged()
}
