// Package kinematics provides forward kinematics for planar chains of
// unit-length rotational links.
package kinematics

import (
	"fmt"
	"math"

	"ikchain/pkg/autodiff"
	"ikchain/pkg/errors"
)

// Point is a 2-D endpoint over any scalar type.
type Point[T any] struct {
	X T `json:"x" yaml:"x"`
	Y T `json:"y" yaml:"y"`
}

// Vec2 is a plain-number endpoint.
type Vec2 = Point[float64]

// Eval returns the cumulative endpoint of every link.
//
// angles[i] is the rotation of link i relative to the heading of links
// 0..i-1, so headings are the running sum of angles. Each link has length 1.
func Eval[T any](ar autodiff.Arith[T], angles []T) []Point[T] {
	out := make([]Point[T], len(angles))
	heading := ar.Zero()
	x := ar.Zero()
	y := ar.Zero()
	for i, a := range angles {
		heading = ar.Add(heading, a)
		x = ar.Add(x, ar.Cos(heading))
		y = ar.Add(y, ar.Sin(heading))
		out[i] = Point[T]{X: x, Y: y}
	}
	return out
}

// Forward evaluates the chain on plain numbers.
func Forward(angles []float64) []Vec2 {
	return Eval[float64](autodiff.Float{}, angles)
}

// Reach returns the largest distance from the origin an n-link chain can
// place its last endpoint.
func Reach(n int) float64 {
	if n < 0 {
		return 0
	}
	return float64(n)
}

// Distance returns the euclidean distance between two endpoints.
func Distance(a, b Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// MaxDeviation returns the largest endpoint distance between two position
// sequences of equal length.
func MaxDeviation(a, b []Vec2) float64 {
	var worst float64
	for i := range a {
		if i >= len(b) {
			break
		}
		if d := Distance(a[i], b[i]); d > worst {
			worst = d
		}
	}
	return worst
}

// Chain is a planar chain with a fixed number of links.
type Chain struct {
	links int
}

// NewChain creates a chain with the given link count.
func NewChain(links int) (*Chain, error) {
	if links <= 0 {
		return nil, errors.ChainInvalidError(fmt.Sprintf("chain needs at least one link, got %d", links))
	}
	return &Chain{links: links}, nil
}

// GetType returns the kinematic type name.
func (c *Chain) GetType() string {
	return "planar_chain"
}

// Links returns the number of links.
func (c *Chain) Links() int {
	return c.links
}

// CalcPositions validates the angle count and evaluates the chain.
func (c *Chain) CalcPositions(angles []float64) ([]Vec2, error) {
	if len(angles) != c.links {
		return nil, errors.ChainInvalidError(fmt.Sprintf("expected %d angles, got %d", c.links, len(angles)))
	}
	return Forward(angles), nil
}

// GetStatus returns the chain description for status reporting.
func (c *Chain) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"kinematics": c.GetType(),
		"links":      c.links,
		"reach":      Reach(c.links),
	}
}
