package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikchain/pkg/autodiff"
	"ikchain/pkg/errors"
)

const tol = 1e-12

func assertPositions(t *testing.T, want, got []Vec2) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].X, got[i].X, tol, "x[%d]", i)
		assert.InDelta(t, want[i].Y, got[i].Y, tol, "y[%d]", i)
	}
}

func TestForwardClosedForm(t *testing.T) {
	assertPositions(t, []Vec2{{X: 1, Y: 0}, {X: 2, Y: 0}}, Forward([]float64{0, 0}))
	assertPositions(t, []Vec2{{X: 0, Y: 1}, {X: 0, Y: 2}}, Forward([]float64{math.Pi / 2, 0}))
	// Relative angles: the second link turns back onto the x axis.
	assertPositions(t, []Vec2{{X: 0, Y: 1}, {X: 1, Y: 1}}, Forward([]float64{math.Pi / 2, -math.Pi / 2}))
}

func TestForwardEmpty(t *testing.T) {
	assert.Empty(t, Forward(nil))
}

func TestForwardThreeLinks(t *testing.T) {
	a := []float64{0.2, -0.7, 1.1}
	got := Forward(a)

	h0, h1, h2 := a[0], a[0]+a[1], a[0]+a[1]+a[2]
	want := []Vec2{
		{X: math.Cos(h0), Y: math.Sin(h0)},
		{X: math.Cos(h0) + math.Cos(h1), Y: math.Sin(h0) + math.Sin(h1)},
		{X: math.Cos(h0) + math.Cos(h1) + math.Cos(h2), Y: math.Sin(h0) + math.Sin(h1) + math.Sin(h2)},
	}
	assertPositions(t, want, got)
}

func TestForwardIdempotent(t *testing.T) {
	a := []float64{0.05, 0.1, -0.3, 2.2}
	first := Forward(a)
	second := Forward(a)
	assert.Equal(t, first, second)
	assert.Equal(t, []float64{0.05, 0.1, -0.3, 2.2}, a, "angles must not be modified")
}

func TestEvalJetMatchesPlain(t *testing.T) {
	a := []float64{-1.2, 0.4, 0.9}
	plain := Forward(a)
	jets := Eval[autodiff.Jet](autodiff.JetArith{N: len(a)}, autodiff.Variables(a))
	require.Len(t, jets, len(plain))
	for i := range plain {
		assert.InDelta(t, plain[i].X, jets[i].X.Val, tol)
		assert.InDelta(t, plain[i].Y, jets[i].Y.Val, tol)
	}

	// The first endpoint only depends on the first angle.
	assert.InDelta(t, -math.Sin(a[0]), jets[0].X.Partial(0), tol)
	assert.InDelta(t, math.Cos(a[0]), jets[0].Y.Partial(0), tol)
	assert.Equal(t, 0.0, jets[0].X.Partial(1))
	assert.Equal(t, 0.0, jets[0].Y.Partial(2))
}

func TestChain(t *testing.T) {
	_, err := NewChain(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChainInvalid))

	c, err := NewChain(2)
	require.NoError(t, err)
	assert.Equal(t, "planar_chain", c.GetType())
	assert.Equal(t, 2, c.Links())

	_, err = c.CalcPositions([]float64{0})
	assert.True(t, errors.Is(err, errors.ErrChainInvalid))

	pos, err := c.CalcPositions([]float64{0, 0})
	require.NoError(t, err)
	assertPositions(t, []Vec2{{X: 1}, {X: 2}}, pos)

	status := c.GetStatus()
	assert.Equal(t, 2, status["links"])
	assert.Equal(t, 2.0, status["reach"])
}

func TestMaxDeviation(t *testing.T) {
	a := []Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}}
	b := []Vec2{{X: 0, Y: 0.5}, {X: 4, Y: 5}}
	assert.InDelta(t, 5.0, MaxDeviation(a, b), tol)
	assert.Equal(t, 0.0, MaxDeviation(a, a))
}

func TestTwoLink(t *testing.T) {
	targets := []Vec2{{X: 1, Y: 1}, {X: 0.3, Y: -1.2}, {X: -1.5, Y: 0.2}, {X: 2, Y: 0}}
	for _, target := range targets {
		up, down, ok := TwoLink(target.X, target.Y)
		require.True(t, ok, "target %v", target)
		for _, branch := range [][2]float64{up, down} {
			pos := Forward(branch[:])
			assert.InDelta(t, target.X, pos[1].X, 1e-9)
			assert.InDelta(t, target.Y, pos[1].Y, 1e-9)
		}
	}

	_, _, ok := TwoLink(2.5, 0)
	assert.False(t, ok)
	_, _, ok = TwoLink(0, 0)
	assert.False(t, ok)
}
