package ik

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"

	"ikchain/pkg/autodiff"
	"ikchain/pkg/errors"
	"ikchain/pkg/kinematics"
	"ikchain/pkg/log"
	"ikchain/pkg/solver"
)

// Problem evaluates a Residual with Jet scalars so every evaluation yields
// the exact Jacobian along with the residuals.
type Problem struct {
	res   *Residual
	ar    autodiff.JetArith
	jets  []autodiff.Jet
	trace *log.Logger
	evals int
}

var _ solver.Problem = (*Problem)(nil)

// ProblemOption configures a Problem.
type ProblemOption func(*Problem)

// WithTrace logs the angles and endpoint positions of every evaluation at
// DEBUG level.
func WithTrace(logger *log.Logger) ProblemOption {
	return func(p *Problem) {
		p.trace = logger
	}
}

// NewProblem wraps res for the solver.
func NewProblem(res *Residual, opts ...ProblemOption) *Problem {
	p := &Problem{
		res:  res,
		ar:   autodiff.JetArith{N: res.Links()},
		jets: make([]autodiff.Jet, res.NumResiduals()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NumParams returns the link count.
func (p *Problem) NumParams() int { return p.res.Links() }

// NumResiduals returns twice the link count.
func (p *Problem) NumResiduals() int { return p.res.NumResiduals() }

// Evaluations returns how many times Evaluate has run.
func (p *Problem) Evaluations() int { return p.evals }

// Evaluate implements solver.Problem.
func (p *Problem) Evaluate(x, r []float64, jac *mat.Dense) error {
	p.evals++
	if err := EvalResidual(p.res, p.ar, autodiff.Variables(x), p.jets); err != nil {
		return err
	}
	for i, j := range p.jets {
		r[i] = j.Val
		if jac == nil {
			continue
		}
		for k := 0; k < len(x); k++ {
			jac.Set(i, k, j.Partial(k))
		}
	}
	if p.trace != nil && p.trace.Enabled(log.DEBUG) {
		p.trace.WithFields(log.Fields{
			"angles":    x,
			"positions": kinematics.Forward(x),
		}).Debug("residual evaluated")
	}
	return nil
}

// JacobianDual computes dr/dx one column at a time with dual numbers.
func JacobianDual(res *Residual, x []float64) (*mat.Dense, error) {
	n, m := res.Links(), res.NumResiduals()
	if len(x) != n {
		return nil, errors.DimensionError("angles", len(x), n)
	}
	jac := mat.NewDense(m, n, nil)
	out := make([]dual.Number, m)
	for k := 0; k < n; k++ {
		if err := EvalResidual(res, autodiff.Dual{}, autodiff.Direction(x, k), out); err != nil {
			return nil, err
		}
		for i, v := range out {
			jac.Set(i, k, v.Emag)
		}
	}
	return jac, nil
}
