// Package warp applies per-frame corrections to video frames.
//
// A correction maps positions in the raw frame to positions in the
// stabilized frame. The warper inverts it to find, for every output pixel,
// the source position to sample, and resamples all three YUV 4:2:0 planes.
// Pixel centres sit at integer coordinates throughout.
package warp

import (
	"fmt"
	"math"

	"github.com/opd-ai/vidstab/geom"
	"github.com/opd-ai/vidstab/video"
)

// Fill describes how destination pixels whose source lies outside the
// source plane are produced.
type Fill struct {
	Replicate bool // clamp to the nearest edge pixel
	Value     byte // constant used when Replicate is false
}

// ImageResampler fills dst by sampling src at m(x, y) for every destination
// pixel (x, y). m maps destination pixel centres to source coordinates.
type ImageResampler interface {
	Resample(dst, src video.Plane, m geom.Transform, fill Fill) error
	GetName() string
}

// BilinearResampler is an inverse-mapping bilinear sampler.
type BilinearResampler struct{}

// NewBilinearResampler creates a bilinear resampler.
func NewBilinearResampler() *BilinearResampler {
	return &BilinearResampler{}
}

// GetName returns the resampler name.
func (r *BilinearResampler) GetName() string {
	return "bilinear"
}

// Resample implements ImageResampler.
func (r *BilinearResampler) Resample(dst, src video.Plane, m geom.Transform, fill Fill) error {
	if err := checkPlanes(dst, src); err != nil {
		return err
	}

	maxX := float64(src.Width - 1)
	maxY := float64(src.Height - 1)
	for y := 0; y < dst.Height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Width]
		for x := range row {
			srcX, srcY := m.Apply(float64(x), float64(y))

			if !fill.Replicate && (srcX < -0.5 || srcY < -0.5 || srcX > maxX+0.5 || srcY > maxY+0.5) {
				row[x] = fill.Value
				continue
			}
			srcX = clamp(srcX, 0, maxX)
			srcY = clamp(srcY, 0, maxY)

			// Get integer and fractional parts
			x1 := int(srcX)
			y1 := int(srcY)
			x2 := x1 + 1
			y2 := y1 + 1
			if x2 >= src.Width {
				x2 = src.Width - 1
			}
			if y2 >= src.Height {
				y2 = src.Height - 1
			}
			fx := srcX - float64(x1)
			fy := srcY - float64(y1)

			p11 := float64(src.Pix[y1*src.Stride+x1])
			p12 := float64(src.Pix[y1*src.Stride+x2])
			p21 := float64(src.Pix[y2*src.Stride+x1])
			p22 := float64(src.Pix[y2*src.Stride+x2])

			top := p11*(1-fx) + p12*fx
			bottom := p21*(1-fx) + p22*fx
			row[x] = byte(top*(1-fy) + bottom*fy + 0.5)
		}
	}
	return nil
}

func checkPlanes(dst, src video.Plane) error {
	if src.Width <= 0 || src.Height <= 0 {
		return fmt.Errorf("invalid source plane: %dx%d", src.Width, src.Height)
	}
	if len(src.Pix) < (src.Height-1)*src.Stride+src.Width {
		return fmt.Errorf("source buffer too small: %d bytes for %dx%d stride %d",
			len(src.Pix), src.Width, src.Height, src.Stride)
	}
	if dst.Width <= 0 || dst.Height <= 0 {
		return fmt.Errorf("invalid destination plane: %dx%d", dst.Width, dst.Height)
	}
	if len(dst.Pix) < (dst.Height-1)*dst.Stride+dst.Width {
		return fmt.Errorf("destination buffer too small: %d bytes for %dx%d stride %d",
			len(dst.Pix), dst.Width, dst.Height, dst.Stride)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
