// Package autodiff provides differentiable scalar types for forward-mode
// automatic differentiation.
//
// Code that must run on both plain numbers and dual numbers is written once
// against Arith[T] and instantiated with Float for plain evaluation, JetArith
// for full gradients, or Dual for one direction at a time.
package autodiff

import "math"

// Arith is the set of scalar operations needed by the chain evaluator.
type Arith[T any] interface {
	// Zero returns the additive identity.
	Zero() T

	// Const lifts a constant; its derivative is zero.
	Const(v float64) T

	Add(a, b T) T
	Sub(a, b T) T
	Neg(a T) T
	Sin(a T) T
	Cos(a T) T

	// Value returns the primal part.
	Value(a T) float64
}

// Float is Arith over plain float64.
type Float struct{}

var _ Arith[float64] = Float{}

func (Float) Zero() float64 { return 0 }
func (Float) Const(v float64) float64 { return v }
func (Float) Add(a, b float64) float64 { return a + b }
func (Float) Sub(a, b float64) float64 { return a - b }
func (Float) Neg(a float64) float64 { return -a }
func (Float) Sin(a float64) float64 { return math.Sin(a) }
func (Float) Cos(a float64) float64 { return math.Cos(a) }
func (Float) Value(a float64) float64 { return a }
