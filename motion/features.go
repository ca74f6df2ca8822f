package motion

import (
	"math"
	"sort"

	"github.com/opd-ai/vidstab/geom"
)

// FeatureDetector finds salient points in a reference image.
type FeatureDetector interface {
	Detect(img *Image) []geom.Point
}

// CornerDetector detects Shi-Tomasi corners: pixels whose structure tensor
// has a large minimum eigenvalue.
type CornerDetector struct {
	MaxCorners   int     // upper bound on returned corners
	QualityLevel float64 // fraction of the strongest response to accept
	MinDistance  float64 // minimum spacing between returned corners
	Margin       int     // pixels excluded along each border
}

// NewCornerDetector creates a detector with the default parameters.
func NewCornerDetector() *CornerDetector {
	return &CornerDetector{
		MaxCorners:   200,
		QualityLevel: 0.01,
		MinDistance:  8,
		Margin:       8,
	}
}

type corner struct {
	x, y     int
	response float64
}

// Detect returns corners sorted by decreasing response. Frames too small to
// leave an interior after the margin yield no corners.
func (d *CornerDetector) Detect(img *Image) []geom.Point {
	w, h := img.Width, img.Height
	margin := d.Margin
	if margin < 2 {
		margin = 2
	}
	if w <= 2*margin || h <= 2*margin || d.MaxCorners <= 0 {
		return nil
	}

	gx, gy := img.gradients()
	resp := make([]float64, w*h)
	maxResp := 0.0
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := (y+dy)*w + x + dx
					ix, iy := gx.Pix[i], gy.Pix[i]
					sxx += ix * ix
					syy += iy * iy
					sxy += ix * iy
				}
			}
			r := minEigen(sxx, sxy, syy)
			resp[y*w+x] = r
			if r > maxResp {
				maxResp = r
			}
		}
	}
	if maxResp <= 1e-9 {
		return nil
	}

	threshold := d.QualityLevel * maxResp
	var candidates []corner
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			r := resp[y*w+x]
			if r < threshold || !isLocalMax(resp, w, x, y) {
				continue
			}
			candidates = append(candidates, corner{x: x, y: y, response: r})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].response > candidates[j].response
	})

	minDist2 := d.MinDistance * d.MinDistance
	var out []geom.Point
	for _, c := range candidates {
		p := geom.Point{X: float64(c.x), Y: float64(c.y)}
		ok := true
		for _, q := range out {
			dx, dy := p.X-q.X, p.Y-q.Y
			if dx*dx+dy*dy < minDist2 {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		out = append(out, p)
		if len(out) >= d.MaxCorners {
			break
		}
	}
	return out
}

// minEigen returns the smaller eigenvalue of [[a b] [b c]].
func minEigen(a, b, c float64) float64 {
	half := (a + c) / 2
	d := math.Sqrt((a-c)*(a-c)/4 + b*b)
	return half - d
}

// isLocalMax reports whether resp at (x, y) is not exceeded by any of its
// 8 neighbours.
func isLocalMax(resp []float64, w, x, y int) bool {
	v := resp[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if resp[(y+dy)*w+x+dx] > v {
				return false
			}
		}
	}
	return true
}
