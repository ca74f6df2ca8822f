package warp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geom"
	"github.com/opd-ai/vidstab/video"
)

// createTestFrame builds a frame with a horizontal luma ramp and distinct
// chroma ramps.
func createTestFrame(width, height int) *video.Frame {
	f := video.NewFrame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Y[y*f.YStride+x] = byte((x*3 + y) % 256)
		}
	}
	cw, ch := video.ChromaSize(width, height)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			f.U[y*f.UStride+x] = byte(60 + x*2)
			f.V[y*f.VStride+x] = byte(200 - y*2)
		}
	}
	f.Index = 7
	f.PTS = 280 * time.Millisecond
	return f
}

func allResamplers() []ImageResampler {
	cr, _ := NewResampler(InterpCatmullRom)
	return []ImageResampler{NewBilinearResampler(), cr}
}

func TestWarp_IdentityIsPixelIdentical(t *testing.T) {
	f := createTestFrame(33, 21)
	for _, r := range allResamplers() {
		for _, policy := range []BorderPolicy{BorderCropScale, BorderPad} {
			for _, pad := range []PadMode{PadColor, PadReplicate} {
				w := NewWarper(r, policy, pad, 1)
				out, err := w.Warp(f, geom.Identity())
				require.NoError(t, err)
				assert.Equal(t, f.Y, out.Y, "%s %s %s", r.GetName(), policy, pad)
				assert.Equal(t, f.U, out.U)
				assert.Equal(t, f.V, out.V)
				assert.Equal(t, f.Index, out.Index)
				assert.Equal(t, f.PTS, out.PTS)
			}
		}
	}
}

func TestBilinearResampler_IdentityMapping(t *testing.T) {
	f := createTestFrame(16, 9)
	out := video.NewFrame(16, 9)
	err := NewBilinearResampler().Resample(out.Luma(), f.Luma(), geom.Identity(), Fill{})
	require.NoError(t, err)
	assert.Equal(t, f.Y, out.Y)
}

func TestWarp_TranslationPadColor(t *testing.T) {
	f := createTestFrame(32, 16)
	w := NewWarper(NewBilinearResampler(), BorderPad, PadColor, 1)

	// Content moves 4 px to the right, 2 px in chroma.
	out, err := w.Warp(f, geom.Translation(4, 0))
	require.NoError(t, err)
	assert.Equal(t, f.Index, out.Index)

	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			want := byte(16)
			if x >= 4 {
				want = f.Y[y*f.YStride+x-4]
			}
			require.Equal(t, want, out.Y[y*out.YStride+x], "luma (%d,%d)", x, y)
		}
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			wantU, wantV := byte(128), byte(128)
			if x >= 2 {
				wantU = f.U[y*f.UStride+x-2]
				wantV = f.V[y*f.VStride+x-2]
			}
			require.Equal(t, wantU, out.U[y*out.UStride+x], "U (%d,%d)", x, y)
			require.Equal(t, wantV, out.V[y*out.VStride+x], "V (%d,%d)", x, y)
		}
	}
}

func TestWarp_TranslationReplicate(t *testing.T) {
	f := createTestFrame(32, 16)
	w := NewWarper(NewBilinearResampler(), BorderPad, PadReplicate, 1)
	out, err := w.Warp(f, geom.Translation(4, 0))
	require.NoError(t, err)

	for y := 0; y < 16; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, f.Y[y*f.YStride], out.Y[y*out.YStride+x])
		}
	}
}

func TestKernelResampler_Translation(t *testing.T) {
	f := createTestFrame(32, 16)
	r, err := NewResampler(InterpCatmullRom)
	require.NoError(t, err)
	assert.Equal(t, "catmull-rom", r.GetName())

	w := NewWarper(r, BorderPad, PadColor, 1)
	out, err := w.Warp(f, geom.Translation(4, 0))
	require.NoError(t, err)

	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			got := out.Y[y*out.YStride+x]
			if x < 4 {
				assert.Equal(t, byte(16), got, "pad (%d,%d)", x, y)
				continue
			}
			want := f.Y[y*f.YStride+x-4]
			assert.InDelta(t, float64(want), float64(got), 1, "luma (%d,%d)", x, y)
		}
	}

	rep := NewWarper(r, BorderPad, PadReplicate, 1)
	out, err = rep.Warp(f, geom.Translation(4, 0))
	require.NoError(t, err)
	for y := 0; y < 16; y++ {
		assert.InDelta(t, float64(f.Y[y*f.YStride]), float64(out.Y[y*out.YStride]), 1, "row %d", y)
	}
}

func TestWarp_CropScaleZoomsAboutCentre(t *testing.T) {
	f := createTestFrame(65, 65)
	w := NewWarper(NewBilinearResampler(), BorderCropScale, PadColor, 0.5)
	out, err := w.Warp(f, geom.Identity())
	require.NoError(t, err)

	assert.Equal(t, f.Y[32*f.YStride+32], out.Y[32*out.YStride+32])
	assert.Equal(t, f.Y[16*f.YStride+16], out.Y[0])
	assert.NotEqual(t, f.Y, out.Y)
}

func TestWarp_Errors(t *testing.T) {
	w := NewWarper(NewBilinearResampler(), BorderPad, PadColor, 1)

	_, err := w.Warp(createTestFrame(8, 8), geom.Transform{})
	assert.Error(t, err)

	_, err = w.Warp(&video.Frame{}, geom.Identity())
	assert.Error(t, err)
}

func TestNewWarper_ScaleIgnoredForPad(t *testing.T) {
	assert.Equal(t, 1.0, NewWarper(NewBilinearResampler(), BorderPad, PadColor, 0.6).Scale)
	assert.Equal(t, 0.6, NewWarper(NewBilinearResampler(), BorderCropScale, PadColor, 0.6).Scale)
	assert.Equal(t, 1.0, NewWarper(NewBilinearResampler(), BorderCropScale, PadColor, 0).Scale)
}

func TestChromaToLuma(t *testing.T) {
	x, y := chromaToLuma.Apply(0, 0)
	assert.Equal(t, 0.5, x)
	assert.Equal(t, 0.5, y)
	x, y = chromaToLuma.Apply(3, 1)
	assert.Equal(t, 6.5, x)
	assert.Equal(t, 2.5, y)

	assert.True(t, geom.Identity().Conjugate(chromaToLuma).IsIdentity(1e-12))
}

func TestZoom(t *testing.T) {
	assert.True(t, Zoom(1, 100, 80).IsIdentity(1e-12))

	z := Zoom(0.5, 101, 81)
	x, y := z.Apply(50, 40)
	assert.InDelta(t, 50, x, 1e-12)
	assert.InDelta(t, 40, y, 1e-12)
	x, y = z.Apply(0, 0)
	assert.InDelta(t, 25, x, 1e-12)
	assert.InDelta(t, 20, y, 1e-12)
}

func TestCropScale(t *testing.T) {
	tests := []struct {
		name        string
		corrections []geom.Transform
		want        float64
	}{
		{"no motion", []geom.Transform{geom.Identity(), geom.Identity()}, 1},
		{"empty", nil, 1},
		{"shift 10", []geom.Transform{geom.Translation(10, 0)}, 1 - 10/49.5},
		{"minimum over frames", []geom.Transform{geom.Translation(5, 0), geom.Translation(-10, 0)}, 1 - 10/49.5},
		{"vertical", []geom.Transform{geom.Translation(0, 4)}, 1 - 4/39.5},
		{"clamped", []geom.Transform{geom.Translation(40, 0)}, 0.5},
		{"singular", []geom.Transform{{}}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CropScale(tt.corrections, 100, 80, 0.5)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCropScale_RotationCovered(t *testing.T) {
	c := geom.Translation(49.5, 39.5)
	rot := c.Mul(geom.Rotation(0.05)).Mul(c.MustInverse())
	s := CropScale([]geom.Transform{rot}, 100, 80, 0.1)
	require.Less(t, s, 1.0)

	m := rot.MustInverse().Mul(Zoom(s, 100, 80))
	for _, p := range [][2]float64{{0, 0}, {99, 0}, {0, 79}, {99, 79}} {
		x, y := m.Apply(p[0], p[1])
		assert.GreaterOrEqual(t, x, -1e-6)
		assert.GreaterOrEqual(t, y, -1e-6)
		assert.LessOrEqual(t, x, 99+1e-6)
		assert.LessOrEqual(t, y, 79+1e-6)
	}
}

func TestParseNames(t *testing.T) {
	p, err := ParseBorderPolicy("pad")
	require.NoError(t, err)
	assert.Equal(t, BorderPad, p)
	_, err = ParseBorderPolicy("mirror")
	assert.Error(t, err)

	m, err := ParsePadMode("replicate")
	require.NoError(t, err)
	assert.Equal(t, PadReplicate, m)
	_, err = ParsePadMode("blur")
	assert.Error(t, err)

	i, err := ParseInterpolation("bilinear")
	require.NoError(t, err)
	assert.Equal(t, InterpBilinear, i)
	_, err = ParseInterpolation("lanczos")
	assert.Error(t, err)

	_, err = NewResampler("lanczos")
	assert.Error(t, err)
}
