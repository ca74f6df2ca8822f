package trajectory

import (
	"gonum.org/v1/gonum/stat"

	"github.com/opd-ai/vidstab/geom"
)

// Stats summarises the spread of a trajectory.
type Stats struct {
	Frames   int
	VarX     float64
	VarY     float64
	VarAngle float64
	MeanX    float64
	MeanY    float64
}

// ComputeStats returns the per-component variance of traj.
func ComputeStats(traj []geom.Transform) Stats {
	s := Stats{Frames: len(traj)}
	if len(traj) < 2 {
		return s
	}

	params := make([]geom.Params, len(traj))
	for i, t := range traj {
		params[i] = geom.Decompose(t)
	}
	geom.UnwrapAngles(params)

	xs := make([]float64, len(traj))
	ys := make([]float64, len(traj))
	as := make([]float64, len(traj))
	for i, p := range params {
		xs[i], ys[i], as[i] = p.DX, p.DY, p.Angle
	}
	s.MeanX, s.VarX = stat.MeanVariance(xs, nil)
	s.MeanY, s.VarY = stat.MeanVariance(ys, nil)
	s.VarAngle = stat.Variance(as, nil)
	return s
}

// TranslationVariance returns VarX + VarY.
func (s Stats) TranslationVariance() float64 {
	return s.VarX + s.VarY
}

// Reduction returns the relative drop in translation variance from before
// to after, or 0 when before has no variance.
func Reduction(before, after Stats) float64 {
	b := before.TranslationVariance()
	if b <= 0 {
		return 0
	}
	return 1 - after.TranslationVariance()/b
}
