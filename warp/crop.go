package warp

import (
	"github.com/opd-ai/vidstab/geom"
)

const (
	cropBisectSteps = 40
	cropEpsilon     = 1e-6
)

// Zoom returns the transform that scales output coordinates by s about the
// centre of a w x h frame. With s < 1 the output shows the central part of
// the frame enlarged by 1/s.
func Zoom(s float64, w, h int) geom.Transform {
	c := geom.Translation(float64(w-1)/2, float64(h-1)/2)
	return c.Mul(geom.Scale(s, s)).Mul(c.MustInverse())
}

// CropScale returns the largest scale s in (0, 1] such that, for every
// correction, the whole output frame samples inside the source frame. The
// result is clamped below by minScale.
func CropScale(corrections []geom.Transform, w, h int, minScale float64) float64 {
	best := 1.0
	for _, c := range corrections {
		inv, err := c.Inverse()
		if err != nil {
			return minScale
		}
		if s := cropScaleFor(inv, w, h); s < best {
			best = s
		}
	}
	if best < minScale {
		best = minScale
	}
	return best
}

// cropScaleFor bisects the scale at which the zoomed output corners, mapped
// through inv, stay inside the source.
func cropScaleFor(inv geom.Transform, w, h int) float64 {
	covered := func(s float64) bool {
		m := inv.Mul(Zoom(s, w, h))
		maxX, maxY := float64(w-1), float64(h-1)
		for _, p := range [][2]float64{{0, 0}, {maxX, 0}, {0, maxY}, {maxX, maxY}} {
			x, y := m.Apply(p[0], p[1])
			if x < -cropEpsilon || y < -cropEpsilon || x > maxX+cropEpsilon || y > maxY+cropEpsilon {
				return false
			}
		}
		return true
	}

	if covered(1) {
		return 1
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < cropBisectSteps; i++ {
		mid := (lo + hi) / 2
		if covered(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
