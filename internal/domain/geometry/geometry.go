// Package geometry computes planar joint angles from landmark positions.
package geometry

import "math"

// Point is a normalized 2-D image position.
type Point struct {
	X float64
	Y float64
}

// Angle returns the interior angle at vertex formed by a and c, in degrees.
// The result is always within [0,180]. Degenerate input (a zero-length arm
// or a non-finite coordinate) yields 0.
func Angle(a, vertex, c Point) float64 {
	if !finite(a) || !finite(vertex) || !finite(c) {
		return 0
	}

	ux, uy := a.X-vertex.X, a.Y-vertex.Y
	vx, vy := c.X-vertex.X, c.Y-vertex.Y

	nu := math.Hypot(ux, uy)
	nv := math.Hypot(vx, vy)
	if nu == 0 || nv == 0 || math.IsInf(nu, 0) || math.IsInf(nv, 0) {
		return 0
	}

	cos := (ux*vx + uy*vy) / (nu * nv)
	// float drift can push |cos| just past 1
	cos = math.Max(-1, math.Min(1, cos))

	deg := math.Acos(cos) * 180 / math.Pi
	if math.IsNaN(deg) {
		return 0
	}
	return deg
}

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
