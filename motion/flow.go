package motion

import (
	"math"

	"github.com/opd-ai/vidstab/geom"
)

// Correspondence pairs a point in the reference frame with its tracked
// position in the target frame.
type Correspondence struct {
	From geom.Point
	To   geom.Point
}

// FeatureMatcher tracks reference points into a target frame. Points that
// cannot be tracked are dropped from the result.
type FeatureMatcher interface {
	Match(ref, target *Pyramid, pts []geom.Point) []Correspondence
}

// LucasKanade is a pyramidal Lucas-Kanade optical flow tracker.
type LucasKanade struct {
	WindowRadius int     // half size of the integration window
	Iterations   int     // maximum Gauss-Newton steps per level
	Epsilon      float64 // step length below which iteration stops
	MinEigen     float64 // minimum normalised eigenvalue of the window
	MaxResidual  float64 // maximum mean absolute residual after tracking
}

// NewLucasKanade creates a tracker with the default parameters.
func NewLucasKanade() *LucasKanade {
	return &LucasKanade{
		WindowRadius: 7,
		Iterations:   20,
		Epsilon:      0.01,
		MinEigen:     1e-3,
		MaxResidual:  24,
	}
}

// Match tracks every point through the pyramid from the coarsest level to
// full resolution.
func (lk *LucasKanade) Match(ref, target *Pyramid, pts []geom.Point) []Correspondence {
	levels := len(ref.Levels)
	if len(target.Levels) < levels {
		levels = len(target.Levels)
	}
	if levels == 0 {
		return nil
	}

	out := make([]Correspondence, 0, len(pts))
	for _, p := range pts {
		d, ok := lk.track(ref, target, levels, p)
		if !ok {
			continue
		}
		to := geom.Point{X: p.X + d.X, Y: p.Y + d.Y}
		full := target.Levels[0].Img
		if to.X < 0 || to.Y < 0 || to.X > float64(full.Width-1) || to.Y > float64(full.Height-1) {
			continue
		}
		if lk.MaxResidual > 0 && lk.residual(ref.Levels[0], full, p, d) > lk.MaxResidual {
			continue
		}
		out = append(out, Correspondence{From: p, To: to})
	}
	return out
}

func (lk *LucasKanade) track(ref, target *Pyramid, levels int, p geom.Point) (geom.Point, bool) {
	r := lk.WindowRadius
	area := float64((2*r + 1) * (2*r + 1))
	var gx, gy float64

	for l := levels - 1; l >= 0; l-- {
		scale := math.Ldexp(1, -l)
		px, py := p.X*scale, p.Y*scale
		rl := ref.Levels[l]
		tl := target.Levels[l].Img

		var gxx, gxy, gyy float64
		for wy := -r; wy <= r; wy++ {
			for wx := -r; wx <= r; wx++ {
				x, y := px+float64(wx), py+float64(wy)
				ix, iy := rl.Gx.Sample(x, y), rl.Gy.Sample(x, y)
				gxx += ix * ix
				gxy += ix * iy
				gyy += iy * iy
			}
		}
		if minEigen(gxx, gxy, gyy)/area < lk.MinEigen {
			return geom.Point{}, false
		}
		det := gxx*gyy - gxy*gxy
		if math.Abs(det) < 1e-12 {
			return geom.Point{}, false
		}

		var vx, vy float64
		for it := 0; it < lk.Iterations; it++ {
			var bx, by float64
			for wy := -r; wy <= r; wy++ {
				for wx := -r; wx <= r; wx++ {
					x, y := px+float64(wx), py+float64(wy)
					diff := rl.Img.Sample(x, y) - tl.Sample(x+gx+vx, y+gy+vy)
					bx += diff * rl.Gx.Sample(x, y)
					by += diff * rl.Gy.Sample(x, y)
				}
			}
			ex := (gyy*bx - gxy*by) / det
			ey := (gxx*by - gxy*bx) / det
			vx += ex
			vy += ey
			if ex*ex+ey*ey < lk.Epsilon*lk.Epsilon {
				break
			}
		}

		if l > 0 {
			gx, gy = 2*(gx+vx), 2*(gy+vy)
		} else {
			gx, gy = gx+vx, gy+vy
		}
	}
	if math.IsNaN(gx) || math.IsNaN(gy) || math.IsInf(gx, 0) || math.IsInf(gy, 0) {
		return geom.Point{}, false
	}
	return geom.Point{X: gx, Y: gy}, true
}

// residual returns the mean absolute intensity difference over the window
// after applying displacement d.
func (lk *LucasKanade) residual(ref Level, target *Image, p, d geom.Point) float64 {
	r := lk.WindowRadius
	sum := 0.0
	n := 0
	for wy := -r; wy <= r; wy++ {
		for wx := -r; wx <= r; wx++ {
			x, y := p.X+float64(wx), p.Y+float64(wy)
			sum += math.Abs(ref.Img.Sample(x, y) - target.Sample(x+d.X, y+d.Y))
			n++
		}
	}
	return sum / float64(n)
}
