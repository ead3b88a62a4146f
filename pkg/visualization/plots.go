package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"soilct/pkg/correction"
	"soilct/pkg/fitting"
	"soilct/pkg/radial"
)

var (
	modeColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	minColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	curveColor = color.RGBA{A: 255}
)

// SaveProfilePlot plots the radial mode and minimum profile of slice z
// together with the fitted curves. Either fit may be nil. The image format
// follows the file extension.
func SaveProfilePlot(filename string, modes *radial.Modes, matrixFit, gammaFit *fitting.Results, z int) error {
	if z < 0 || z >= modes.Depth() {
		return fmt.Errorf("slice %d out of range [0,%d)", z, modes.Depth())
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Radial profile, slice %d", z)
	p.X.Label.Text = "Radius (standard voxels)"
	p.Y.Label.Text = "Brightness"

	series := []struct {
		name  string
		ys    []float64
		color color.Color
	}{
		{"mode", modes.MaskedRadialModes[z], modeColor},
		{"minimum", modes.MaskedRadialMinima[z], minColor},
	}
	for _, s := range series {
		pts := finitePoints(modes.Radius, s.ys)
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to plot %s profile: %w", s.name, err)
		}
		scatter.GlyphStyle.Color = s.color
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add(s.name, scatter)
	}

	fits := []struct {
		name   string
		fit    *fitting.Results
		dashed bool
	}{
		{"matrix fit", matrixFit, false},
		{"air-phase fit", gammaFit, true},
	}
	for _, f := range fits {
		if f.fit == nil || z >= f.fit.Depth() || f.fit.R2[z] <= 0 {
			continue
		}
		ys := make([]float64, len(modes.Radius))
		for i, r := range modes.Radius {
			v, err := f.fit.Value(z, r)
			if err != nil {
				v = math.NaN()
			}
			ys[i] = v
		}
		pts := finitePoints(modes.Radius, ys)
		if len(pts) < 2 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to plot %s: %w", f.name, err)
		}
		line.Color = curveColor
		line.Width = vg.Points(1)
		if f.dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (R²=%.3f)", f.name, f.fit.R2[z]), line)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// finitePoints pairs xs and ys, skipping NaN and infinite values
func finitePoints(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(xs))
	for i, x := range xs {
		y := ys[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}

// MapImage renders m as a 16-bit gray image, radius left to right and depth
// top to bottom, stretched from the map's smallest to its largest value.
func MapImage(m *correction.Map) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, m.Width(), m.Height()))
	lo, hi := m.Bounds()
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	for z := 0; z < m.Height(); z++ {
		for r := 0; r < m.Width(); r++ {
			v := uint16(math.Round((m.At(r, z) - lo) * scale))
			img.SetGray16(r, z, color.Gray16{Y: v})
		}
	}
	return img
}

// SaveMapImage writes MapImage(m) as a PNG file
func SaveMapImage(filename string, m *correction.Map) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, MapImage(m)); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
