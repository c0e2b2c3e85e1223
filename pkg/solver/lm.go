// Damped Gauss-Newton (Levenberg-Marquardt) nonlinear least squares
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package solver minimizes sums of squared residuals with a
// Levenberg-Marquardt iteration on dense normal equations.
package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"ikchain/pkg/errors"
	"ikchain/pkg/log"
)

// Problem is a least-squares problem: minimize 0.5*|r(x)|².
type Problem interface {
	// NumParams returns the length of x.
	NumParams() int

	// NumResiduals returns the length of r.
	NumResiduals() int

	// Evaluate fills r with the residuals at x and, when jac is not nil,
	// jac (NumResiduals x NumParams) with dr/dx.
	Evaluate(x, r []float64, jac *mat.Dense) error
}

// workspace holds the buffers reused across iterations.
type workspace struct {
	n, m int

	r, rNew []float64
	jac     *mat.Dense
	grad    *mat.VecDense // Jᵗr
	negGrad *mat.VecDense
	jtj     *mat.SymDense
	lhs     *mat.SymDense // JᵗJ + λI
	step    *mat.VecDense
	xNew    []float64

	chol mat.Cholesky
	svd  mat.SVD
}

func newWorkspace(n, m int) *workspace {
	return &workspace{
		n:       n,
		m:       m,
		r:       make([]float64, m),
		rNew:    make([]float64, m),
		jac:     mat.NewDense(m, n, nil),
		grad:    mat.NewVecDense(n, nil),
		negGrad: mat.NewVecDense(n, nil),
		jtj:     mat.NewSymDense(n, nil),
		lhs:     mat.NewSymDense(n, nil),
		step:    mat.NewVecDense(n, nil),
		xNew:    make([]float64, n),
	}
}

func cost(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// linearize evaluates r and J at x and forms Jᵗr and JᵗJ.
func (w *workspace) linearize(p Problem, x []float64) error {
	if err := p.Evaluate(x, w.r, w.jac); err != nil {
		return err
	}
	w.grad.MulVec(w.jac.T(), mat.NewVecDense(w.m, w.r))
	w.negGrad.ScaleVec(-1, w.grad)
	w.jtj.SymOuterK(1, w.jac.T())
	return nil
}

// solveStep solves (JᵗJ + λI) Δ = -Jᵗr. Cholesky is tried first; a failed
// factorization falls back to an SVD least-squares solve. usedSVD reports
// the fallback, ok is false when neither produced a finite step.
func (w *workspace) solveStep(lambda float64) (usedSVD, ok bool) {
	w.lhs.CopySym(w.jtj)
	for i := 0; i < w.n; i++ {
		w.lhs.SetSym(i, i, w.lhs.At(i, i)+lambda)
	}

	if w.chol.Factorize(w.lhs) {
		if err := w.chol.SolveVecTo(w.step, w.negGrad); err == nil && finiteVec(w.step) {
			return false, true
		}
	}

	if !w.svd.Factorize(w.lhs, mat.SVDThin) {
		return true, false
	}
	rank := w.svd.Rank(1e-12)
	if rank == 0 {
		return true, false
	}
	w.svd.SolveVecTo(w.step, w.negGrad, rank)
	return true, finiteVec(w.step)
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if !finite(v.AtVec(i)) {
			return false
		}
	}
	return true
}

// Solve runs Levenberg-Marquardt from x and leaves the best parameters found
// in x. Failing to converge is not an error: the Summary status says why the
// iteration stopped. Errors are returned for malformed problems, invalid
// options and failed evaluations.
func Solve(p Problem, x []float64, opts Options) (Summary, error) {
	var summary Summary
	if err := opts.Validate(); err != nil {
		return summary, err
	}
	n, m := p.NumParams(), p.NumResiduals()
	if n <= 0 {
		return summary, errors.DimensionError("parameters", n, 1)
	}
	if m < n {
		return summary, errors.DimensionError("residuals", m, n)
	}
	if len(x) != n {
		return summary, errors.DimensionError("x", len(x), n)
	}

	logger := log.GetLogger("solver")
	w := newWorkspace(n, m)
	if err := w.linearize(p, x); err != nil {
		return summary, errors.EvaluationError(0, err)
	}

	current := cost(w.r)
	lambda := opts.InitialLambda
	summary.InitialCost = current
	summary.FinalCost = current
	summary.Lambda = lambda
	if !finite(current) {
		summary.Status = NumericalFailure
		return summary, nil
	}

	rejections := 0
	summary.Status = HitMaxIterations
	for summary.Iterations < opts.MaxIterations {
		summary.GradientMaxNorm = mat.Norm(w.grad, math.Inf(1))
		if current <= opts.CostTolerance {
			summary.Status = CostTooSmall
			break
		}
		if summary.GradientMaxNorm <= opts.GradientTolerance {
			summary.Status = GradientTooSmall
			break
		}

		summary.Iterations++
		usedSVD, ok := w.solveStep(lambda)
		if usedSVD {
			summary.SVDFallbacks++
		}

		accepted := false
		if ok {
			stepNorm := mat.Norm(w.step, 2)
			if rejections == 0 && stepNorm <= opts.ParameterTolerance*(floats.Norm(x, 2)+opts.ParameterTolerance) {
				summary.Status = RelativeStepTooSmall
				break
			}

			floats.AddTo(w.xNew, x, w.step.RawVector().Data)
			if err := p.Evaluate(w.xNew, w.rNew, nil); err != nil {
				return summary, errors.EvaluationError(summary.Iterations, err)
			}
			if candidate := cost(w.rNew); finite(candidate) && candidate < current {
				copy(x, w.xNew)
				if err := w.linearize(p, x); err != nil {
					return summary, errors.EvaluationError(summary.Iterations, err)
				}
				current = cost(w.r)
				accepted = true
			}
		}

		if accepted {
			summary.Accepted++
			rejections = 0
			lambda = math.Max(lambda*opts.LambdaDown, opts.MinLambda)
		} else {
			summary.Rejected++
			rejections++
			lambda *= opts.LambdaUp
			if rejections >= opts.MaxRejections || lambda > opts.MaxLambda {
				summary.Status = LambdaExhausted
				break
			}
		}

		if logger.Enabled(log.DEBUG) {
			logger.WithFields(log.Fields{
				"iteration": summary.Iterations,
				"cost":      current,
				"lambda":    lambda,
				"accepted":  accepted,
			}).Debug("lm step")
		}
	}

	if summary.Status == HitMaxIterations && current <= opts.CostTolerance {
		summary.Status = CostTooSmall
	}
	summary.FinalCost = current
	summary.Lambda = lambda
	summary.GradientMaxNorm = mat.Norm(w.grad, math.Inf(1))
	return summary, nil
}
