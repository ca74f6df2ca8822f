// Package geom provides the 2D affine transform type shared by the
// stabilization stages.
//
// All transforms use the column-vector convention: a point p is mapped to
// M·p, and A.Mul(B) is the transform that applies B first and then A.
// Every package in this module composes transforms through Mul so the
// convention is never mixed.
package geom

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f64"
)

// Transform is a 2D affine transform stored row-major as
//
//	| M[0] M[1] M[2] |
//	| M[3] M[4] M[5] |
//	|  0    0    1   |
//
// It is an immutable value type.
type Transform struct {
	M [6]float64
}

// Point is a 2D point in pixel coordinates.
type Point struct {
	X, Y float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{M: [6]float64{1, 0, 0, 0, 1, 0}}
}

// Translation returns a pure translation by (dx, dy).
func Translation(dx, dy float64) Transform {
	return Transform{M: [6]float64{1, 0, dx, 0, 1, dy}}
}

// Rotation returns a rotation by angle radians about the origin.
func Rotation(angle float64) Transform {
	s, c := math.Sincos(angle)
	return Transform{M: [6]float64{c, -s, 0, s, c, 0}}
}

// Scale returns a non-uniform scale about the origin.
func Scale(sx, sy float64) Transform {
	return Transform{M: [6]float64{sx, 0, 0, 0, sy, 0}}
}

// Similarity returns the transform that scales by s, rotates by angle and
// then translates by (dx, dy).
func Similarity(dx, dy, angle, s float64) Transform {
	sn, cs := math.Sincos(angle)
	return Transform{M: [6]float64{s * cs, -s * sn, dx, s * sn, s * cs, dy}}
}

// Mul returns t·o, the transform applying o first and then t.
func (t Transform) Mul(o Transform) Transform {
	a, b := t.M, o.M
	return Transform{M: [6]float64{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}}
}

// Det returns the determinant of the linear part.
func (t Transform) Det() float64 {
	return t.M[0]*t.M[4] - t.M[1]*t.M[3]
}

// Inverse returns the inverse transform. It returns an error when the
// linear part is singular.
func (t Transform) Inverse() (Transform, error) {
	det := t.Det()
	if math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return Transform{}, fmt.Errorf("transform is singular (det=%g)", det)
	}
	m := t.M
	ia := m[4] / det
	ib := -m[1] / det
	ic := -m[3] / det
	id := m[0] / det
	return Transform{M: [6]float64{
		ia, ib, -(ia*m[2] + ib*m[5]),
		ic, id, -(ic*m[2] + id*m[5]),
	}}, nil
}

// MustInverse is Inverse for transforms known to be invertible, such as
// those built from Params. It panics on a singular transform.
func (t Transform) MustInverse() Transform {
	inv, err := t.Inverse()
	if err != nil {
		panic(err)
	}
	return inv
}

// Apply maps the point (x, y).
func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.M[0]*x + t.M[1]*y + t.M[2], t.M[3]*x + t.M[4]*y + t.M[5]
}

// ApplyPoint maps p.
func (t Transform) ApplyPoint(p Point) Point {
	x, y := t.Apply(p.X, p.Y)
	return Point{X: x, Y: y}
}

// Conjugate expresses t in another coordinate system. If c maps the new
// coordinates into the coordinates t operates on, the result is
// c⁻¹·t·c.
func (t Transform) Conjugate(c Transform) Transform {
	return c.MustInverse().Mul(t).Mul(c)
}

// IsIdentity reports whether every coefficient is within eps of the
// identity.
func (t Transform) IsIdentity(eps float64) bool {
	id := Identity()
	for i := range t.M {
		if math.Abs(t.M[i]-id.M[i]) > eps {
			return false
		}
	}
	return true
}

// IsFinite reports whether all coefficients are finite.
func (t Transform) IsFinite() bool {
	for _, v := range t.M {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ToAff3 converts t to the matrix type used by golang.org/x/image/draw.
func (t Transform) ToAff3() f64.Aff3 {
	return f64.Aff3(t.M)
}

// String formats the transform for logs.
func (t Transform) String() string {
	return fmt.Sprintf("[%.4f %.4f %.3f; %.4f %.4f %.3f]",
		t.M[0], t.M[1], t.M[2], t.M[3], t.M[4], t.M[5])
}
