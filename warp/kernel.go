package warp

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/opd-ai/vidstab/geom"
	"github.com/opd-ai/vidstab/video"
)

// Interpolation names a resampling kernel.
type Interpolation string

const (
	// InterpBilinear selects the native BilinearResampler.
	InterpBilinear Interpolation = "bilinear"
	// InterpCatmullRom selects a KernelResampler over draw.CatmullRom.
	InterpCatmullRom Interpolation = "catmull-rom"
)

// ParseInterpolation validates an interpolation name.
func ParseInterpolation(s string) (Interpolation, error) {
	switch i := Interpolation(s); i {
	case InterpBilinear, InterpCatmullRom:
		return i, nil
	}
	return "", fmt.Errorf("unknown interpolation %q", s)
}

// NewResampler returns the resampler for an interpolation: the native
// bilinear sampler or the Catmull-Rom kernel from x/image/draw.
func NewResampler(interp Interpolation) (ImageResampler, error) {
	switch interp {
	case InterpBilinear:
		return NewBilinearResampler(), nil
	case InterpCatmullRom:
		return NewKernelResampler(draw.CatmullRom, string(InterpCatmullRom)), nil
	}
	return nil, fmt.Errorf("unknown interpolation %q", interp)
}

// KernelResampler resamples planes with a golang.org/x/image/draw
// interpolator over image.Gray views of the planes.
type KernelResampler struct {
	interp draw.Transformer
	name   string
}

// NewKernelResampler wraps an x/image/draw transformer such as
// draw.BiLinear or draw.CatmullRom.
func NewKernelResampler(t draw.Transformer, name string) *KernelResampler {
	return &KernelResampler{interp: t, name: name}
}

// GetName returns the resampler name.
func (r *KernelResampler) GetName() string {
	return r.name
}

// Resample implements ImageResampler.
func (r *KernelResampler) Resample(dst, src video.Plane, m geom.Transform, fill Fill) error {
	if err := checkPlanes(dst, src); err != nil {
		return err
	}
	s2d, err := m.Inverse()
	if err != nil {
		return fmt.Errorf("non-invertible mapping: %w", err)
	}
	// draw places pixel centres at half-integer coordinates.
	half := geom.Translation(0.5, 0.5)
	s2d = half.Mul(s2d).Mul(half.MustInverse())

	dstImg := grayView(dst)
	srcImg := grayView(src)

	if !fill.Replicate {
		draw.Draw(dstImg, dstImg.Bounds(), image.NewUniform(color.Gray{Y: fill.Value}), image.Point{}, draw.Src)
		r.interp.Transform(dstImg, s2d.ToAff3(), srcImg, srcImg.Bounds(), draw.Src, nil)
		return nil
	}

	clamped := &clampedGray{src: srcImg, rect: coverage(dst, src, m)}
	r.interp.Transform(dstImg, s2d.ToAff3(), clamped, clamped.rect, draw.Src, nil)
	return nil
}

func grayView(p video.Plane) *image.Gray {
	return &image.Gray{Pix: p.Pix, Stride: p.Stride, Rect: image.Rect(0, 0, p.Width, p.Height)}
}

// coverage returns a source rectangle containing the source plane and every
// position the destination samples, with room for the kernel support.
func coverage(dst, src video.Plane, m geom.Transform) image.Rectangle {
	minX, minY := 0.0, 0.0
	maxX, maxY := float64(src.Width), float64(src.Height)
	w, h := float64(dst.Width-1), float64(dst.Height-1)
	for _, p := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := m.Apply(p[0], p[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	const pad = 4
	return image.Rect(
		int(math.Floor(minX))-pad, int(math.Floor(minY))-pad,
		int(math.Ceil(maxX))+pad, int(math.Ceil(maxY))+pad,
	)
}

// clampedGray extends a gray image to rect by replicating its edge pixels.
type clampedGray struct {
	src  *image.Gray
	rect image.Rectangle
}

func (c *clampedGray) ColorModel() color.Model {
	return color.GrayModel
}

func (c *clampedGray) Bounds() image.Rectangle {
	return c.rect
}

func (c *clampedGray) At(x, y int) color.Color {
	b := c.src.Rect
	if x < b.Min.X {
		x = b.Min.X
	} else if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y < b.Min.Y {
		y = b.Min.Y
	} else if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	return c.src.GrayAt(x, y)
}
