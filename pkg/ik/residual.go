// Endpoint residuals for planar chain inverse kinematics
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package ik turns a set of target endpoints into a least-squares problem
// over the joint angles of a planar chain.
package ik

import (
	"math"

	"ikchain/pkg/autodiff"
	"ikchain/pkg/errors"
	"ikchain/pkg/kinematics"
)

// Residual measures how far a chain configuration places its endpoints from
// a fixed set of targets. The link count is the number of targets.
type Residual struct {
	target []kinematics.Vec2
}

// NewResidual copies target into a new residual functor.
func NewResidual(target []kinematics.Vec2) (*Residual, error) {
	if len(target) == 0 {
		return nil, errors.ChainInvalidError("target needs at least one endpoint")
	}
	t := make([]kinematics.Vec2, len(target))
	copy(t, target)
	return &Residual{target: t}, nil
}

// Links returns the number of links the residual expects.
func (r *Residual) Links() int {
	return len(r.target)
}

// NumResiduals returns 2N.
func (r *Residual) NumResiduals() int {
	return 2 * len(r.target)
}

// Target returns a copy of the target endpoints.
func (r *Residual) Target() []kinematics.Vec2 {
	out := make([]kinematics.Vec2, len(r.target))
	copy(out, r.target)
	return out
}

// HeadingGuess returns the relative angles whose links point from each
// target to the next, starting at the origin. When consecutive targets are
// one unit apart these angles reproduce the targets exactly; otherwise they
// are a start point that already has every link headed the right way.
func (r *Residual) HeadingGuess() []float64 {
	out := make([]float64, len(r.target))
	var prev kinematics.Vec2
	heading := 0.0
	for i, p := range r.target {
		h := math.Atan2(p.Y-prev.Y, p.X-prev.X)
		out[i] = math.Remainder(h-heading, 2*math.Pi)
		heading = h
		prev = p
	}
	return out
}

// EvalResidual writes x_i - tx_i into out[2i] and y_i - ty_i into out[2i+1]
// for the endpoints of the chain with angles x.
func EvalResidual[T any](r *Residual, ar autodiff.Arith[T], x []T, out []T) error {
	n := len(r.target)
	if len(x) != n {
		return errors.DimensionError("angles", len(x), n)
	}
	if len(out) != 2*n {
		return errors.DimensionError("residuals", len(out), 2*n)
	}
	for i, p := range kinematics.Eval(ar, x) {
		out[2*i] = ar.Sub(p.X, ar.Const(r.target[i].X))
		out[2*i+1] = ar.Sub(p.Y, ar.Const(r.target[i].Y))
	}
	return nil
}
