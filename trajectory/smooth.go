package trajectory

import (
	"fmt"
	"math"

	"github.com/opd-ai/vidstab/geom"
)

// Kernel selects the smoothing window weights.
type Kernel string

const (
	// KernelBox weights every sample in the window equally.
	KernelBox Kernel = "box"
	// KernelGaussian weights samples with a Gaussian of sigma radius/3.
	KernelGaussian Kernel = "gaussian"
)

// ParseKernel validates a kernel name.
func ParseKernel(s string) (Kernel, error) {
	switch k := Kernel(s); k {
	case KernelBox, KernelGaussian:
		return k, nil
	}
	return "", fmt.Errorf("unknown kernel %q", s)
}

// Smoother low-pass filters a trajectory. Each similarity component is
// filtered independently with a centred window whose radius shrinks near
// the ends of the sequence so it never reaches past the first or last
// frame.
type Smoother struct {
	Radius int
	Kernel Kernel
}

// NewSmoother creates a smoother with the given radius and kernel.
func NewSmoother(radius int, kernel Kernel) *Smoother {
	return &Smoother{Radius: radius, Kernel: kernel}
}

// Smooth returns the smoothed trajectory. A radius of zero returns the
// input unchanged.
func (s *Smoother) Smooth(traj []geom.Transform) []geom.Transform {
	out := make([]geom.Transform, len(traj))
	if s.Radius <= 0 || len(traj) < 3 {
		copy(out, traj)
		return out
	}

	params := make([]geom.Params, len(traj))
	for i, t := range traj {
		params[i] = geom.Decompose(t)
	}
	geom.UnwrapAngles(params)

	weights := s.weights()
	n := len(traj)
	for i := range traj {
		k := s.Radius
		if i < k {
			k = i
		}
		if n-1-i < k {
			k = n - 1 - i
		}
		if k == 0 {
			out[i] = traj[i]
			continue
		}
		var acc geom.Params
		total := 0.0
		for j := -k; j <= k; j++ {
			w := weights[abs(j)]
			acc = acc.Add(params[i+j].Scaled(w))
			total += w
		}
		out[i] = acc.Scaled(1 / total).Transform()
	}
	return out
}

// weights returns the kernel weight for each offset 0..Radius.
func (s *Smoother) weights() []float64 {
	w := make([]float64, s.Radius+1)
	if s.Kernel != KernelGaussian {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	sigma := float64(s.Radius) / 3
	for i := range w {
		x := float64(i)
		w[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	return w
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
