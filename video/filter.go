package video

import "fmt"

// Filter processes a single plane and returns a new plane.
type Filter interface {
	// Apply processes a plane and returns the filtered copy
	Apply(p Plane) (Plane, error)
	// GetName returns the filter name for identification
	GetName() string
}

// FilterChain manages multiple filters applied in sequence.
type FilterChain struct {
	filters []Filter
}

// NewFilterChain creates a new filter chain.
func NewFilterChain(filters ...Filter) *FilterChain {
	return &FilterChain{filters: append([]Filter(nil), filters...)}
}

// Apply processes a plane through all filters in the chain. With no
// filters the input plane is returned unchanged.
func (fc *FilterChain) Apply(p Plane) (Plane, error) {
	current := p
	for i, f := range fc.filters {
		result, err := f.Apply(current)
		if err != nil {
			return Plane{}, fmt.Errorf("filter %d (%s) failed: %w", i, f.GetName(), err)
		}
		current = result
	}
	return current, nil
}

// BoxBlur applies a box blur to a plane. Motion estimation runs on blurred
// luma so sensor noise does not produce spurious corners.
type BoxBlur struct {
	radius int // Blur radius (1-5)
}

// NewBoxBlur creates a blur filter with the given radius, clamped to 1-5.
func NewBoxBlur(radius int) *BoxBlur {
	if radius < 1 {
		radius = 1
	}
	if radius > 5 {
		radius = 5
	}
	return &BoxBlur{radius: radius}
}

// Apply blurs the plane with a separable box filter. Samples outside the
// plane are excluded from the average.
func (b *BoxBlur) Apply(p Plane) (Plane, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return Plane{}, fmt.Errorf("invalid plane dimensions: %dx%d", p.Width, p.Height)
	}
	w, h := p.Width, p.Height

	// Horizontal pass into an int buffer of sums and counts.
	tmp := make([]int, w*h)
	cnt := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := p.Pix[y*p.Stride:]
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dx := -b.radius; dx <= b.radius; dx++ {
				nx := x + dx
				if nx >= 0 && nx < w {
					sum += int(row[nx])
					n++
				}
			}
			tmp[y*w+x] = sum
			cnt[y*w+x] = n
		}
	}

	out := Plane{Width: w, Height: h, Stride: w, Pix: make([]byte, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -b.radius; dy <= b.radius; dy++ {
				ny := y + dy
				if ny >= 0 && ny < h {
					sum += tmp[ny*w+x]
					n += cnt[ny*w+x]
				}
			}
			out.Pix[y*w+x] = byte((sum + n/2) / n)
		}
	}
	return out, nil
}

// GetName returns the filter name.
func (b *BoxBlur) GetName() string {
	return fmt.Sprintf("BoxBlur(%d)", b.radius)
}
