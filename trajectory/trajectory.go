// Package trajectory turns per-pair camera motion into a cumulative camera
// path, smooths it and derives the per-frame corrections that move each
// frame from the raw path onto the smoothed one.
package trajectory

import (
	"fmt"

	"github.com/opd-ai/vidstab/geom"
)

// Accumulate composes per-pair transforms into a cumulative trajectory.
// pairs[i] maps frame i coordinates to frame i+1 coordinates; the result has
// len(pairs)+1 entries and entry 0 is the identity.
func Accumulate(pairs []geom.Transform) []geom.Transform {
	traj := make([]geom.Transform, len(pairs)+1)
	traj[0] = geom.Identity()
	for i, p := range pairs {
		traj[i+1] = p.Mul(traj[i])
	}
	return traj
}

// Corrections returns, per frame, smooth[i]·traj[i]⁻¹: the transform that
// maps a point of the raw frame to its position in the stabilized frame.
func Corrections(traj, smooth []geom.Transform) ([]geom.Transform, error) {
	if len(traj) != len(smooth) {
		return nil, fmt.Errorf("trajectory length mismatch: %d raw, %d smoothed", len(traj), len(smooth))
	}
	out := make([]geom.Transform, len(traj))
	for i := range traj {
		inv, err := traj[i].Inverse()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out[i] = smooth[i].Mul(inv)
	}
	return out, nil
}
