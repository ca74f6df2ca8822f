package trajectory

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/opd-ai/vidstab/geom"
)

var (
	colorX = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	colorY = color.RGBA{R: 40, G: 90, B: 200, A: 255}
)

// Plot renders the raw and smoothed camera translation per frame to an
// image file; the format follows the path extension (.png, .svg, .pdf).
func Plot(path string, raw, smooth []geom.Transform) error {
	if len(raw) != len(smooth) {
		return fmt.Errorf("trajectory length mismatch: %d raw, %d smoothed", len(raw), len(smooth))
	}

	p := plot.New()
	p.Title.Text = "Camera trajectory"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Translation (px)"

	series := []struct {
		label  string
		traj   []geom.Transform
		pick   func(geom.Params) float64
		color  color.Color
		dashed bool
	}{
		{"dx raw", raw, func(q geom.Params) float64 { return q.DX }, colorX, false},
		{"dx smoothed", smooth, func(q geom.Params) float64 { return q.DX }, colorX, true},
		{"dy raw", raw, func(q geom.Params) float64 { return q.DY }, colorY, false},
		{"dy smoothed", smooth, func(q geom.Params) float64 { return q.DY }, colorY, true},
	}

	for _, s := range series {
		pts := make(plotter.XYs, 0, len(s.traj))
		for i, t := range s.traj {
			pts = append(pts, plotter.XY{X: float64(i), Y: s.pick(geom.Decompose(t))})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create %s line: %w", s.label, err)
		}
		line.Width = vg.Points(1)
		line.Color = s.color
		if s.dashed {
			line.Width = vg.Points(2)
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save trajectory plot: %w", err)
	}
	return nil
}
