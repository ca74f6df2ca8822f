package geom

import "math"

// Params holds the similarity components of a transform. Smoothing works on
// these components independently; LogScale is used instead of the scale
// factor so that averaging zoom in and zoom out is symmetric.
type Params struct {
	DX       float64
	DY       float64
	Angle    float64
	LogScale float64
}

// Decompose extracts the similarity components of t. Shear, if present, is
// discarded: the scale is the geometric mean of the column norms and the
// angle comes from the first column.
func Decompose(t Transform) Params {
	m := t.M
	sx := math.Hypot(m[0], m[3])
	sy := math.Hypot(m[1], m[4])
	s := math.Sqrt(sx * sy)
	if s <= 0 || math.IsNaN(s) {
		s = 1
	}
	return Params{
		DX:       m[2],
		DY:       m[5],
		Angle:    math.Atan2(m[3], m[0]),
		LogScale: math.Log(s),
	}
}

// Transform rebuilds the similarity transform described by p.
func (p Params) Transform() Transform {
	return Similarity(p.DX, p.DY, p.Angle, math.Exp(p.LogScale))
}

// Add returns the componentwise sum.
func (p Params) Add(o Params) Params {
	return Params{
		DX:       p.DX + o.DX,
		DY:       p.DY + o.DY,
		Angle:    p.Angle + o.Angle,
		LogScale: p.LogScale + o.LogScale,
	}
}

// Scaled returns every component multiplied by k.
func (p Params) Scaled(k float64) Params {
	return Params{
		DX:       p.DX * k,
		DY:       p.DY * k,
		Angle:    p.Angle * k,
		LogScale: p.LogScale * k,
	}
}

// UnwrapAngles removes 2π jumps from a sequence of angles in place so that
// consecutive entries differ by less than π.
func UnwrapAngles(ps []Params) {
	for i := 1; i < len(ps); i++ {
		d := ps[i].Angle - ps[i-1].Angle
		for d > math.Pi {
			ps[i].Angle -= 2 * math.Pi
			d -= 2 * math.Pi
		}
		for d < -math.Pi {
			ps[i].Angle += 2 * math.Pi
			d += 2 * math.Pi
		}
	}
}
