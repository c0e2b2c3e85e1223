// Closed-form inverse kinematics for two unit links.
package kinematics

import "math"

// lawOfCosines returns the angle opposite side c in a triangle with sides
// a, b, c. The cosine is clamped so rounding at full extension stays finite.
func lawOfCosines(a, b, c float64) float64 {
	cosC := (a*a + b*b - c*c) / (2 * a * b)
	return math.Acos(math.Max(-1, math.Min(1, cosC)))
}

// TwoLink solves a two-link chain for the last endpoint (x, y) analytically.
// It returns both elbow branches as relative joint angles, matching the
// convention of Eval. ok is false when the point is out of reach or at the
// origin, where the base angle is undefined.
func TwoLink(x, y float64) (elbowUp, elbowDown [2]float64, ok bool) {
	dist := math.Hypot(x, y)
	if dist == 0 || dist > 2 {
		return elbowUp, elbowDown, false
	}

	base := math.Atan2(y, x)
	// Interior angle at the base between the first link and the target line.
	inner := lawOfCosines(dist, 1, 1)
	// Interior angle at the elbow; the relative joint angle is its supplement.
	elbow := math.Pi - lawOfCosines(1, 1, dist)

	elbowUp = [2]float64{base - inner, elbow}
	elbowDown = [2]float64{base + inner, -elbow}
	return elbowUp, elbowDown, true
}
