package autodiff

import "gonum.org/v1/gonum/num/dual"

// Dual is Arith over gonum single-direction dual numbers. It yields one
// directional derivative per evaluation, so a full Jacobian needs one pass
// per parameter.
type Dual struct{}

var _ Arith[dual.Number] = Dual{}

func (Dual) Zero() dual.Number { return dual.Number{} }
func (Dual) Const(v float64) dual.Number { return dual.Number{Real: v} }

func (Dual) Add(a, b dual.Number) dual.Number {
	return dual.Number{Real: a.Real + b.Real, Emag: a.Emag + b.Emag}
}

func (Dual) Sub(a, b dual.Number) dual.Number {
	return dual.Number{Real: a.Real - b.Real, Emag: a.Emag - b.Emag}
}

func (Dual) Neg(a dual.Number) dual.Number {
	return dual.Number{Real: -a.Real, Emag: -a.Emag}
}

func (Dual) Sin(a dual.Number) dual.Number { return dual.Sin(a) }
func (Dual) Cos(a dual.Number) dual.Number { return dual.Cos(a) }
func (Dual) Value(a dual.Number) float64 { return a.Real }

// Direction seeds x with a unit derivative along parameter i.
func Direction(x []float64, i int) []dual.Number {
	out := make([]dual.Number, len(x))
	for k, v := range x {
		out[k] = dual.Number{Real: v}
	}
	out[i].Emag = 1
	return out
}
