// Package testutil builds synthetic soil-column volumes and matching wall
// geometries shared by the package tests.
package testutil

import (
	"math"

	"soilct/internal/models"
	"soilct/pkg/geometry"
)

// Column describes a synthetic upright column centred in a square canvas
type Column struct {
	Size   int     // canvas width and height in pixels
	Depth  int     // number of slices
	Radius float64 // wall radius in pixels

	// Brightness returns the intensity at distance r from the centre of
	// slice z; R is the wall radius.
	Brightness func(r, R float64, z int) float64

	// Outside is the intensity written outside the wall
	Outside uint16
}

// Geometry returns a circular wall geometry centred in the canvas
func (c Column) Geometry() *geometry.Column {
	p := geometry.Params{HeightOfColumn: c.Depth}
	mid := float64(c.Size-1) / 2
	fill := func(v float64) []float64 {
		out := make([]float64, c.Depth)
		for i := range out {
			out[i] = v
		}
		return out
	}
	p.XMid, p.YMid = fill(mid), fill(mid)
	p.IXMid, p.IYMid = fill(mid), fill(mid)
	p.OuterMajorRadius, p.OuterMinorRadius = fill(c.Radius+5), fill(c.Radius+5)
	p.InnerMajorRadius, p.InnerMinorRadius = fill(c.Radius), fill(c.Radius)
	p.WallThickness = fill(5)
	p.OuterR2, p.InnerR2 = fill(0.99), fill(0.99)
	p.ZMid = make([]float64, c.Depth)
	for z := range p.ZMid {
		p.ZMid[z] = float64(z)
	}

	col, err := geometry.New(p)
	if err != nil {
		panic(err)
	}
	return col
}

// Volume renders the 16-bit volume
func (c Column) Volume() *models.Volume {
	vol := models.NewVolume(c.Size, c.Size, c.Depth, 16)
	mid := float64(c.Size-1) / 2
	for z := 0; z < c.Depth; z++ {
		for y := 0; y < c.Size; y++ {
			for x := 0; x < c.Size; x++ {
				r := math.Hypot(float64(x)-mid, float64(y)-mid)
				v := c.Outside
				if r < c.Radius {
					v = uint16(math.Round(c.Brightness(r, c.Radius, z)))
				}
				vol.Set(x, y, z, v)
			}
		}
	}
	return vol
}

// LinearRamp is the brightness profile f(r) = 100 + 50·r/R
func LinearRamp(r, R float64, _ int) float64 {
	return 100 + 50*r/R
}

// Logistic evaluates the generalized logistic curve with parameters
// K, M, B, Q, A, N at x.
func Logistic(x float64, p []float64) float64 {
	k, m, b, q, a, n := p[0], p[1], p[2], p[3], p[4], p[5]
	return a + (k-a)/math.Pow(1+q*math.Exp(b*(m-x)), 1/n)
}
