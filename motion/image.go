package motion

import (
	"math"

	"github.com/opd-ai/vidstab/video"
)

// Image is a single-channel float image used for gradient computations.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zeroed image.
func NewImage(w, h int) *Image {
	return &Image{Width: w, Height: h, Pix: make([]float64, w*h)}
}

// FromPlane converts an 8-bit plane to a float image.
func FromPlane(p video.Plane) *Image {
	img := NewImage(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		row := p.Pix[y*p.Stride : y*p.Stride+p.Width]
		for x, v := range row {
			img.Pix[y*p.Width+x] = float64(v)
		}
	}
	return img
}

// at returns the pixel at integer coordinates clamped to the image.
func (m *Image) at(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= m.Width {
		x = m.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= m.Height {
		y = m.Height - 1
	}
	return m.Pix[y*m.Width+x]
}

// Sample returns the bilinearly interpolated value at (x, y) with edge
// clamping.
func (m *Image) Sample(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix, iy := int(x0), int(y0)

	p11 := m.at(ix, iy)
	p12 := m.at(ix+1, iy)
	p21 := m.at(ix, iy+1)
	p22 := m.at(ix+1, iy+1)

	top := p11*(1-fx) + p12*fx
	bottom := p21*(1-fx) + p22*fx
	return top*(1-fy) + bottom*fy
}

// gradients returns the horizontal and vertical Scharr derivatives scaled
// to intensity units per pixel.
func (m *Image) gradients() (gx, gy *Image) {
	gx = NewImage(m.Width, m.Height)
	gy = NewImage(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			tl, t, tr := m.at(x-1, y-1), m.at(x, y-1), m.at(x+1, y-1)
			l, r := m.at(x-1, y), m.at(x+1, y)
			bl, b, br := m.at(x-1, y+1), m.at(x, y+1), m.at(x+1, y+1)
			i := y*m.Width + x
			gx.Pix[i] = (3*(tr-tl) + 10*(r-l) + 3*(br-bl)) / 32
			gy.Pix[i] = (3*(bl-tl) + 10*(b-t) + 3*(br-tr)) / 32
		}
	}
	return gx, gy
}

// downsample blurs with a 5-tap binomial kernel and keeps every second
// pixel, so pixel i of the result corresponds to pixel 2i of m.
func (m *Image) downsample() *Image {
	kernel := [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}
	w2, h2 := (m.Width+1)/2, (m.Height+1)/2

	tmp := NewImage(w2, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < w2; x++ {
			sum := 0.0
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * m.at(2*x+k, y)
			}
			tmp.Pix[y*w2+x] = sum
		}
	}
	out := NewImage(w2, h2)
	for y := 0; y < h2; y++ {
		for x := 0; x < w2; x++ {
			sum := 0.0
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * tmp.at(x, 2*y+k)
			}
			out.Pix[y*w2+x] = sum
		}
	}
	return out
}

// Level is one pyramid level with its precomputed gradients.
type Level struct {
	Img *Image
	Gx  *Image
	Gy  *Image
}

// Pyramid is a coarse-to-fine image pyramid; Levels[0] is full resolution.
type Pyramid struct {
	Levels []Level
}

// NewPyramid builds up to levels pyramid levels, stopping early when a level
// would be smaller than minSize on either side.
func NewPyramid(img *Image, levels, minSize int) *Pyramid {
	if levels < 1 {
		levels = 1
	}
	p := &Pyramid{}
	cur := img
	for l := 0; l < levels; l++ {
		gx, gy := cur.gradients()
		p.Levels = append(p.Levels, Level{Img: cur, Gx: gx, Gy: gy})
		if (cur.Width+1)/2 < minSize || (cur.Height+1)/2 < minSize {
			break
		}
		cur = cur.downsample()
	}
	return p
}
