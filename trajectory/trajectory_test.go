package trajectory

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geom"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

// jitterTrajectory returns n frames of a 5 px sinusoidal horizontal shake
// with period 20 frames plus uniform noise in [-1, 1).
func jitterTrajectory(n int, seed int64) []geom.Transform {
	rng := rand.New(rand.NewSource(seed))
	traj := make([]geom.Transform, n)
	for i := range traj {
		x := 5*math.Sin(2*math.Pi*float64(i)/20) + rng.Float64()*2 - 1
		y := rng.Float64()*2 - 1
		traj[i] = geom.Translation(x, y)
	}
	return traj
}

func TestAccumulate(t *testing.T) {
	assert.Equal(t, []geom.Transform{geom.Identity()}, Accumulate(nil))

	pairs := []geom.Transform{
		geom.Translation(1, 0),
		geom.Translation(2, 1),
		geom.Rotation(0.1),
	}
	traj := Accumulate(pairs)
	require.Len(t, traj, 4)
	assert.Equal(t, geom.Identity(), traj[0])
	assert.Equal(t, geom.Translation(1, 0), traj[1])
	assert.Equal(t, geom.Translation(3, 1), traj[2])

	// Later pairs apply after earlier ones.
	want := geom.Rotation(0.1).Mul(geom.Translation(3, 1))
	if diff := cmp.Diff(want, traj[3], approx); diff != "" {
		t.Errorf("traj[3] mismatch (-want +got):\n%s", diff)
	}
}

func TestSmoother_RadiusZeroIsIdentity(t *testing.T) {
	traj := jitterTrajectory(30, 1)
	traj[4] = geom.Transform{M: [6]float64{1, 0.2, 3, 0, 1, 4}} // shear survives
	got := NewSmoother(0, KernelBox).Smooth(traj)
	assert.Equal(t, traj, got)
}

func TestSmoother_ShortSequences(t *testing.T) {
	s := NewSmoother(30, KernelGaussian)
	assert.Empty(t, s.Smooth(nil))

	one := []geom.Transform{geom.Identity()}
	assert.Equal(t, one, s.Smooth(one))

	two := []geom.Transform{geom.Identity(), geom.Translation(4, -2)}
	assert.Equal(t, two, s.Smooth(two))
}

func TestSmoother_BoundaryShrink(t *testing.T) {
	xs := []float64{0, 3, 9, 0, 6, 12, 3}
	traj := make([]geom.Transform, len(xs))
	for i, x := range xs {
		traj[i] = geom.Translation(x, 0)
	}
	got := NewSmoother(2, KernelBox).Smooth(traj)

	want := []float64{
		0,                 // k=0
		(0 + 3 + 9) / 3.0, // k=1
		(0 + 3 + 9 + 0 + 6) / 5.0,
		(3 + 9 + 0 + 6 + 12) / 5.0,
		(9 + 0 + 6 + 12 + 3) / 5.0,
		(6 + 12 + 3) / 3.0, // k=1
		3,                  // k=0
	}
	for i := range want {
		assert.InDelta(t, want[i], got[i].M[2], 1e-9, "frame %d", i)
		assert.InDelta(t, 0, got[i].M[5], 1e-9, "frame %d", i)
	}
	assert.Equal(t, traj[0], got[0])
	assert.Equal(t, traj[6], got[6])
}

func TestSmoother_Gaussian(t *testing.T) {
	traj := []geom.Transform{
		geom.Translation(0, 0),
		geom.Translation(0, 0),
		geom.Translation(9, 0),
		geom.Translation(0, 0),
		geom.Translation(0, 0),
	}
	got := NewSmoother(3, KernelGaussian).Smooth(traj)
	// The centre keeps the most weight on itself but is pulled towards 0.
	assert.Greater(t, got[2].M[2], 3.0)
	assert.Less(t, got[2].M[2], 9.0)
	assert.InDelta(t, got[1].M[2], got[3].M[2], 1e-9)
}

func TestSmoother_PreservesConstantMotion(t *testing.T) {
	pairs := make([]geom.Transform, 40)
	for i := range pairs {
		pairs[i] = geom.Similarity(2, -1, 0.01, 1)
	}
	traj := Accumulate(pairs)
	smooth := NewSmoother(5, KernelBox).Smooth(traj)
	for i := range traj {
		p, q := geom.Decompose(traj[i]), geom.Decompose(smooth[i])
		assert.InDelta(t, p.Angle, q.Angle, 1e-9, "frame %d", i)
	}
}

func TestSmoother_ReducesJitter(t *testing.T) {
	for _, kernel := range []Kernel{KernelBox, KernelGaussian} {
		t.Run(string(kernel), func(t *testing.T) {
			traj := jitterTrajectory(100, 42)
			smooth := NewSmoother(30, kernel).Smooth(traj)
			require.Len(t, smooth, 100)

			before := ComputeStats(traj)
			after := ComputeStats(smooth)
			assert.GreaterOrEqual(t, Reduction(before, after), 0.7,
				"before %.3f after %.3f", before.TranslationVariance(), after.TranslationVariance())
		})
	}
}

func TestCorrections(t *testing.T) {
	traj := []geom.Transform{geom.Identity(), geom.Translation(3, 0), geom.Rotation(0.2)}
	smooth := []geom.Transform{geom.Identity(), geom.Translation(1, 0), geom.Identity()}

	corr, err := Corrections(traj, smooth)
	require.NoError(t, err)
	require.Len(t, corr, 3)
	assert.Equal(t, geom.Identity(), corr[0])
	if diff := cmp.Diff(geom.Translation(-2, 0), corr[1], approx); diff != "" {
		t.Errorf("corr[1] mismatch (-want +got):\n%s", diff)
	}
	// Applying the correction to the raw trajectory yields the smoothed one.
	for i := range traj {
		if diff := cmp.Diff(smooth[i], corr[i].Mul(traj[i]), approx); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	_, err = Corrections(traj, smooth[:2])
	assert.Error(t, err)

	_, err = Corrections([]geom.Transform{{}}, []geom.Transform{geom.Identity()})
	assert.Error(t, err)
}

func TestComputeStats(t *testing.T) {
	traj := []geom.Transform{geom.Translation(1, 2), geom.Translation(3, 2), geom.Translation(5, 2)}
	s := ComputeStats(traj)
	assert.Equal(t, 3, s.Frames)
	assert.InDelta(t, 3, s.MeanX, 1e-12)
	assert.InDelta(t, 4, s.VarX, 1e-12) // unbiased: (4+0+4)/2
	assert.InDelta(t, 0, s.VarY, 1e-12)
	assert.InDelta(t, 4, s.TranslationVariance(), 1e-12)

	assert.Equal(t, Stats{Frames: 1}, ComputeStats(traj[:1]))
	assert.Equal(t, 0.0, Reduction(Stats{}, s))
}

func TestParseKernel(t *testing.T) {
	k, err := ParseKernel("gaussian")
	require.NoError(t, err)
	assert.Equal(t, KernelGaussian, k)

	_, err = ParseKernel("median")
	assert.Error(t, err)
}

func TestPlot(t *testing.T) {
	traj := jitterTrajectory(50, 3)
	smooth := NewSmoother(10, KernelBox).Smooth(traj)
	path := filepath.Join(t.TempDir(), "trajectory.png")

	require.NoError(t, Plot(path, traj, smooth))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, Plot(path, traj, smooth[:10]))
}
