package motion

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/opd-ai/vidstab/geom"
)

// ErrTooFewCorrespondences is returned when no transform can be fitted.
var ErrTooFewCorrespondences = errors.New("too few correspondences")

// Fit is the outcome of fitting a transform to correspondences.
type Fit struct {
	Transform geom.Transform
	Inliers   int
	RMSError  float64 // root mean square reprojection error over inliers
}

// TransformFitter fits a frame-to-frame transform to correspondences,
// rejecting outliers.
type TransformFitter interface {
	Fit(cs []Correspondence) (Fit, error)
}

// RANSACFitter fits a similarity transform (translation, rotation, uniform
// scale) with RANSAC followed by a least-squares refit on the inliers.
type RANSACFitter struct {
	Iterations int
	Threshold  float64 // inlier reprojection distance in pixels
	Seed       int64
}

// NewRANSACFitter creates a fitter with the default parameters.
func NewRANSACFitter() *RANSACFitter {
	return &RANSACFitter{Iterations: 200, Threshold: 2, Seed: 1}
}

// Fit returns the best similarity for cs. A single correspondence yields a
// pure translation.
func (f *RANSACFitter) Fit(cs []Correspondence) (Fit, error) {
	switch len(cs) {
	case 0:
		return Fit{Transform: geom.Identity()}, ErrTooFewCorrespondences
	case 1:
		c := cs[0]
		return Fit{
			Transform: geom.Translation(c.To.X-c.From.X, c.To.Y-c.From.Y),
			Inliers:   1,
		}, nil
	}

	rng := rand.New(rand.NewSource(f.Seed))
	thr2 := f.Threshold * f.Threshold

	best := geom.Identity()
	bestCount := -1
	bestErr := math.Inf(1)
	for it := 0; it < f.Iterations; it++ {
		i := rng.Intn(len(cs))
		j := rng.Intn(len(cs) - 1)
		if j >= i {
			j++
		}
		sample := []Correspondence{cs[i], cs[j]}
		dx, dy := sample[0].From.X-sample[1].From.X, sample[0].From.Y-sample[1].From.Y
		if dx*dx+dy*dy < 1e-6 {
			continue
		}
		t, err := solveSimilarity(sample)
		if err != nil {
			continue
		}
		count, sumErr := scoreInliers(t, cs, thr2)
		if count > bestCount || (count == bestCount && sumErr < bestErr) {
			best, bestCount, bestErr = t, count, sumErr
		}
	}
	if bestCount < 1 {
		// Degenerate point sets: fall back to a fit on everything.
		t, err := solveSimilarity(cs)
		if err != nil {
			return Fit{Transform: geom.Identity()}, fmt.Errorf("similarity fit: %w", err)
		}
		best = t
	}

	inliers := inlierSet(best, cs, thr2)
	if len(inliers) >= 2 {
		if t, err := solveSimilarity(inliers); err == nil {
			best = t
			inliers = inlierSet(best, cs, thr2)
		}
	}
	if len(inliers) == 0 {
		return Fit{Transform: geom.Identity()}, ErrTooFewCorrespondences
	}

	return Fit{
		Transform: best,
		Inliers:   len(inliers),
		RMSError:  rmsError(best, inliers),
	}, nil
}

// solveSimilarity solves, in the least-squares sense,
//
//	x' = a·x - b·y + tx
//	y' = b·x + a·y + ty
//
// for (a, b, tx, ty).
func solveSimilarity(cs []Correspondence) (geom.Transform, error) {
	n := len(cs)
	a := mat.NewDense(2*n, 4, nil)
	rhs := mat.NewVecDense(2*n, nil)
	for i, c := range cs {
		a.SetRow(2*i, []float64{c.From.X, -c.From.Y, 1, 0})
		a.SetRow(2*i+1, []float64{c.From.Y, c.From.X, 0, 1})
		rhs.SetVec(2*i, c.To.X)
		rhs.SetVec(2*i+1, c.To.Y)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, rhs); err != nil {
		return geom.Identity(), err
	}
	t := geom.Transform{M: [6]float64{
		x.AtVec(0), -x.AtVec(1), x.AtVec(2),
		x.AtVec(1), x.AtVec(0), x.AtVec(3),
	}}
	if !t.IsFinite() || math.Abs(t.Det()) < 1e-9 {
		return geom.Identity(), errors.New("degenerate similarity")
	}
	return t, nil
}

func reprojError2(t geom.Transform, c Correspondence) float64 {
	p := t.ApplyPoint(c.From)
	dx, dy := p.X-c.To.X, p.Y-c.To.Y
	return dx*dx + dy*dy
}

func scoreInliers(t geom.Transform, cs []Correspondence, thr2 float64) (int, float64) {
	count := 0
	sum := 0.0
	for _, c := range cs {
		if e := reprojError2(t, c); e <= thr2 {
			count++
			sum += e
		}
	}
	return count, sum
}

func inlierSet(t geom.Transform, cs []Correspondence, thr2 float64) []Correspondence {
	var out []Correspondence
	for _, c := range cs {
		if reprojError2(t, c) <= thr2 {
			out = append(out, c)
		}
	}
	return out
}

func rmsError(t geom.Transform, cs []Correspondence) float64 {
	if len(cs) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range cs {
		sum += reprojError2(t, c)
	}
	return math.Sqrt(sum / float64(len(cs)))
}
