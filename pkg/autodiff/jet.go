package autodiff

import (
	"fmt"
	"math"
	"strings"
)

// Jet is a dual number carrying a value and its partial derivatives with
// respect to N parameters. A nil Grad is treated as all zeros.
//
// Operations never modify their operands; every result owns a fresh Grad.
type Jet struct {
	Val  float64
	Grad []float64
}

// NewJet returns a constant jet of dimension n.
func NewJet(v float64, n int) Jet {
	return Jet{Val: v, Grad: make([]float64, n)}
}

// Variable returns a jet seeded with a unit derivative in dimension i.
func Variable(v float64, i, n int) Jet {
	j := NewJet(v, n)
	j.Grad[i] = 1
	return j
}

// Variables seeds one jet per parameter of x.
func Variables(x []float64) []Jet {
	n := len(x)
	out := make([]Jet, n)
	for i, v := range x {
		out[i] = Variable(v, i, n)
	}
	return out
}

// Dim returns the number of partial derivatives carried.
func (a Jet) Dim() int { return len(a.Grad) }

// Partial returns the derivative in dimension i.
func (a Jet) Partial(i int) float64 {
	if i >= len(a.Grad) {
		return 0
	}
	return a.Grad[i]
}

// combine returns ca*a.Grad + cb*b.Grad, sized to the wider operand.
func combine(a Jet, ca float64, b Jet, cb float64) []float64 {
	n := len(a.Grad)
	if len(b.Grad) > n {
		n = len(b.Grad)
	}
	g := make([]float64, n)
	for i := range a.Grad {
		g[i] = ca * a.Grad[i]
	}
	for i := range b.Grad {
		g[i] += cb * b.Grad[i]
	}
	return g
}

func scaled(a Jet, c float64) []float64 {
	g := make([]float64, len(a.Grad))
	for i, d := range a.Grad {
		g[i] = c * d
	}
	return g
}

// Add returns a + b.
func (a Jet) Add(b Jet) Jet {
	return Jet{Val: a.Val + b.Val, Grad: combine(a, 1, b, 1)}
}

// Sub returns a - b.
func (a Jet) Sub(b Jet) Jet {
	return Jet{Val: a.Val - b.Val, Grad: combine(a, 1, b, -1)}
}

// Neg returns -a.
func (a Jet) Neg() Jet {
	return Jet{Val: -a.Val, Grad: scaled(a, -1)}
}

// Sin returns sin(a); d sin(a) = cos(a) da.
func (a Jet) Sin() Jet {
	s, c := math.Sincos(a.Val)
	return Jet{Val: s, Grad: scaled(a, c)}
}

// Cos returns cos(a); d cos(a) = -sin(a) da.
func (a Jet) Cos() Jet {
	s, c := math.Sincos(a.Val)
	return Jet{Val: c, Grad: scaled(a, -s)}
}

// String formats the jet as "v [d0 d1 ...]".
func (a Jet) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%g [", a.Val)
	for i, d := range a.Grad {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%g", d)
	}
	sb.WriteByte(']')
	return sb.String()
}

// JetArith is Arith over jets of a fixed dimension N.
type JetArith struct {
	N int
}

var _ Arith[Jet] = JetArith{}

func (ar JetArith) Zero() Jet { return NewJet(0, ar.N) }
func (ar JetArith) Const(v float64) Jet { return NewJet(v, ar.N) }
func (JetArith) Add(a, b Jet) Jet { return a.Add(b) }
func (JetArith) Sub(a, b Jet) Jet { return a.Sub(b) }
func (JetArith) Neg(a Jet) Jet { return a.Neg() }
func (JetArith) Sin(a Jet) Jet { return a.Sin() }
func (JetArith) Cos(a Jet) Jet { return a.Cos() }
func (JetArith) Value(a Jet) float64 { return a.Val }
