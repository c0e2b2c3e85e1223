package ik

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"ikchain/pkg/autodiff"
	"ikchain/pkg/errors"
	"ikchain/pkg/kinematics"
	"ikchain/pkg/log"
)

func newResidual(t *testing.T, angles ...float64) *Residual {
	t.Helper()
	res, err := NewResidual(kinematics.Forward(angles))
	require.NoError(t, err)
	return res
}

func TestNewResidualRejectsEmptyTarget(t *testing.T) {
	_, err := NewResidual(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChainInvalid))
}

func TestResidualCopiesTarget(t *testing.T) {
	target := []kinematics.Vec2{{X: 1, Y: 2}}
	res, err := NewResidual(target)
	require.NoError(t, err)

	target[0].X = 99
	assert.Equal(t, []kinematics.Vec2{{X: 1, Y: 2}}, res.Target())
	assert.Equal(t, 1, res.Links())
	assert.Equal(t, 2, res.NumResiduals())
}

func TestEvalResidualValues(t *testing.T) {
	res, err := NewResidual([]kinematics.Vec2{{X: 0.5, Y: 0.25}, {X: 1, Y: -1}})
	require.NoError(t, err)

	out := make([]float64, 4)
	require.NoError(t, EvalResidual[float64](res, autodiff.Float{}, []float64{0, 0}, out))
	// Straight chain along x: endpoints (1,0) and (2,0).
	assert.InDeltaSlice(t, []float64{0.5, -0.25, 1, 1}, out, 1e-12)
}

func TestEvalResidualZeroAtGroundTruth(t *testing.T) {
	res := newResidual(t, 0.3, -0.6, 1.4)
	out := make([]float64, 6)
	require.NoError(t, EvalResidual[float64](res, autodiff.Float{}, []float64{0.3, -0.6, 1.4}, out))
	for i, v := range out {
		assert.InDelta(t, 0, v, 1e-15, "r[%d]", i)
	}
}

func TestHeadingGuess(t *testing.T) {
	for _, truth := range [][]float64{
		{0.7},
		{2.39, 1.92, 1.17},
		{-3.0, 3.0, 0.5, -2.0},
	} {
		res := newResidual(t, truth...)
		guess := res.HeadingGuess()
		require.Len(t, guess, len(truth))
		for i := range truth {
			assert.InDelta(t, 0, math.Remainder(guess[i]-truth[i], 2*math.Pi), 1e-12, "truth %v", truth)
			assert.LessOrEqual(t, math.Abs(guess[i]), math.Pi)
		}

		out := make([]float64, res.NumResiduals())
		require.NoError(t, EvalResidual[float64](res, autodiff.Float{}, guess, out))
		for _, v := range out {
			assert.InDelta(t, 0, v, 1e-12)
		}
	}

	// Off-length targets still get each link pointed at them.
	res, err := NewResidual([]kinematics.Vec2{{X: 0, Y: 3}, {X: -2, Y: 3}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{math.Pi / 2, math.Pi / 2}, res.HeadingGuess(), 1e-15)
}

func TestEvalResidualDimensions(t *testing.T) {
	res := newResidual(t, 0.1, 0.2)

	err := EvalResidual[float64](res, autodiff.Float{}, []float64{0}, make([]float64, 4))
	assert.True(t, errors.Is(err, errors.ErrSolverDimension))

	err = EvalResidual[float64](res, autodiff.Float{}, []float64{0, 0}, make([]float64, 3))
	assert.True(t, errors.Is(err, errors.ErrSolverDimension))
}

func finiteDifference(res *Residual, x []float64) *mat.Dense {
	jac := mat.NewDense(res.NumResiduals(), res.Links(), nil)
	fd.Jacobian(jac, func(y, x []float64) {
		if err := EvalResidual[float64](res, autodiff.Float{}, x, y); err != nil {
			panic(err)
		}
	}, x, &fd.JacobianSettings{Formula: fd.Central})
	return jac
}

func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	points := [][]float64{
		{-1.2, -1.2},
		{0.05, 0.10},
		{0.7, -2.1, 0.4},
		{3.0, 1.0, -0.5, 0.25},
	}
	for _, x := range points {
		res := newResidual(t, make([]float64, len(x))...)
		p := NewProblem(res)

		r := make([]float64, res.NumResiduals())
		jac := mat.NewDense(res.NumResiduals(), res.Links(), nil)
		require.NoError(t, p.Evaluate(x, r, jac))

		want := finiteDifference(res, x)
		assert.True(t, mat.EqualApprox(want, jac, 1e-6), "x=%v\nwant\n%v\ngot\n%v",
			x, mat.Formatted(want), mat.Formatted(jac))
	}
}

func TestJacobianJetMatchesDual(t *testing.T) {
	res := newResidual(t, 0.4, 0.4, 0.4)
	x := []float64{-0.3, 1.7, 0.2}

	jac := mat.NewDense(6, 3, nil)
	require.NoError(t, NewProblem(res).Evaluate(x, make([]float64, 6), jac))

	dualJac, err := JacobianDual(res, x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(jac, dualJac, 1e-14))

	_, err = JacobianDual(res, []float64{0})
	assert.True(t, errors.Is(err, errors.ErrSolverDimension))
}

func TestJacobianStructure(t *testing.T) {
	// Endpoint i does not depend on angles after i.
	res := newResidual(t, 0, 0, 0)
	jac, err := JacobianDual(res, []float64{0.2, 0.3, 0.4})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for k := i + 1; k < 3; k++ {
			assert.Equal(t, 0.0, jac.At(2*i, k))
			assert.Equal(t, 0.0, jac.At(2*i+1, k))
		}
	}
	// d(x_0)/d(a_0) = -sin(a_0)
	assert.InDelta(t, -math.Sin(0.2), jac.At(0, 0), 1e-15)
}

func TestProblemWithoutJacobian(t *testing.T) {
	res := newResidual(t, 0.5, 0.5)
	p := NewProblem(res)
	assert.Equal(t, 2, p.NumParams())
	assert.Equal(t, 4, p.NumResiduals())

	r := make([]float64, 4)
	require.NoError(t, p.Evaluate([]float64{0.5, 0.5}, r, nil))
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0}, r, 1e-15)
	assert.Equal(t, 1, p.Evaluations())
}

func TestProblemTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New("ik")
	logger.SetWriter(&buf)
	logger.SetLevel(log.DEBUG)

	p := NewProblem(newResidual(t, 0, 0), WithTrace(logger))
	require.NoError(t, p.Evaluate([]float64{0, 0}, make([]float64, 4), nil))

	out := buf.String()
	assert.Contains(t, out, "residual evaluated")
	assert.Contains(t, out, "angles=[0 0]")
	assert.Contains(t, out, "positions=")

	buf.Reset()
	logger.SetLevel(log.INFO)
	require.NoError(t, p.Evaluate([]float64{0, 0}, make([]float64, 4), nil))
	assert.Empty(t, buf.String())
}
