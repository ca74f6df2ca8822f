package warp

import (
	"fmt"

	"github.com/opd-ai/vidstab/geom"
	"github.com/opd-ai/vidstab/video"
)

// BorderPolicy selects how areas uncovered by a correction are handled.
type BorderPolicy string

const (
	// BorderCropScale zooms every frame by a common factor so no uncovered
	// area is visible.
	BorderCropScale BorderPolicy = "crop-and-scale"
	// BorderPad keeps the frame scale and fills uncovered areas.
	BorderPad BorderPolicy = "pad"
)

// PadMode selects the fill used by BorderPad.
type PadMode string

const (
	// PadColor fills uncovered areas with Warper.PadValue.
	PadColor PadMode = "color"
	// PadReplicate extends the nearest edge pixel.
	PadReplicate PadMode = "replicate"
)

// ParseBorderPolicy validates a border policy name.
func ParseBorderPolicy(s string) (BorderPolicy, error) {
	switch p := BorderPolicy(s); p {
	case BorderCropScale, BorderPad:
		return p, nil
	}
	return "", fmt.Errorf("unknown border policy %q", s)
}

// ParsePadMode validates a pad mode name.
func ParsePadMode(s string) (PadMode, error) {
	switch m := PadMode(s); m {
	case PadColor, PadReplicate:
		return m, nil
	}
	return "", fmt.Errorf("unknown pad mode %q", s)
}

// identityEpsilon is the coefficient tolerance below which a mapping is
// treated as the identity and the frame is copied unchanged.
const identityEpsilon = 1e-6

// chromaToLuma maps chroma pixel centres to luma coordinates for 4:2:0
// subsampling: luma = 2c + 0.5.
var chromaToLuma = geom.Translation(0.5, 0.5).Mul(geom.Scale(2, 2))

// Warper applies corrections to frames.
type Warper struct {
	Resampler ImageResampler
	Policy    BorderPolicy
	PadMode   PadMode
	PadValue  [3]byte // Y, U, V fill for PadColor
	Scale     float64 // crop factor for BorderCropScale
}

// NewWarper creates a warper. scale is ignored for BorderPad.
func NewWarper(r ImageResampler, policy BorderPolicy, pad PadMode, scale float64) *Warper {
	if policy == BorderPad || scale <= 0 || scale > 1 {
		scale = 1
	}
	return &Warper{
		Resampler: r,
		Policy:    policy,
		PadMode:   pad,
		PadValue:  [3]byte{16, 128, 128},
		Scale:     scale,
	}
}

// SourceMapping returns the transform from output luma pixel centres to
// source luma coordinates for a correction.
func (w *Warper) SourceMapping(correction geom.Transform, width, height int) (geom.Transform, error) {
	inv, err := correction.Inverse()
	if err != nil {
		return geom.Transform{}, fmt.Errorf("invalid correction: %w", err)
	}
	if w.Policy == BorderCropScale && w.Scale < 1 {
		return inv.Mul(Zoom(w.Scale, width, height)), nil
	}
	return inv, nil
}

// Warp returns a new frame with the correction applied. The output keeps
// the input's index and timestamp. Near-identity mappings copy the frame
// so static input stays pixel-identical.
func (w *Warper) Warp(f *video.Frame, correction geom.Transform) (*video.Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	m, err := w.SourceMapping(correction, f.Width, f.Height)
	if err != nil {
		return nil, err
	}
	if m.IsIdentity(identityEpsilon) {
		return f.Clone(), nil
	}

	out := video.NewFrame(f.Width, f.Height)
	out.Index = f.Index
	out.PTS = f.PTS

	chroma := m.Conjugate(chromaToLuma)
	src := f.Planes()
	dst := out.Planes()
	for i := range src {
		pm := m
		if i > 0 {
			pm = chroma
		}
		if err := w.Resampler.Resample(dst[i], src[i], pm, w.fill(i)); err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return out, nil
}

func (w *Warper) fill(plane int) Fill {
	if w.Policy == BorderCropScale || w.PadMode == PadReplicate {
		return Fill{Replicate: true}
	}
	return Fill{Value: w.PadValue[plane]}
}
