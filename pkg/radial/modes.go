// Package radial builds per-depth radial brightness profiles of a soil column
// relative to its fitted wall ellipse.
package radial

import (
	"math"
)

// Modes holds the radial brightness profiles of every depth slice. Rows are
// depth slices, columns are radius buckets on the standard radius axis.
type Modes struct {
	// MaskedRadialModes is the most frequent brightness per bucket (soil matrix)
	MaskedRadialModes [][]float64

	// MaskedRadialMinima is the smallest well-populated brightness per bucket (air phase)
	MaskedRadialMinima [][]float64

	// Radius is the bucket centre in standard-radius voxels, strictly increasing
	Radius []float64

	// MaskingThreshold is the intensity cutoff used for each depth slice
	MaskingThreshold []float64

	// Valid is false for slices without usable wall geometry or samples
	Valid []bool

	// StandardRadius is the number of radius buckets
	StandardRadius int

	// FitFrom and FitTo delimit the buckets [FitFrom, FitTo) used for curve fitting
	FitFrom, FitTo int
}

// NewModes allocates profiles for depth slices and radius buckets, filled with NaN
func NewModes(depth, standardRadius int) *Modes {
	m := &Modes{
		MaskedRadialModes:  make([][]float64, depth),
		MaskedRadialMinima: make([][]float64, depth),
		Radius:             make([]float64, standardRadius),
		MaskingThreshold:   make([]float64, depth),
		Valid:              make([]bool, depth),
		StandardRadius:     standardRadius,
		FitFrom:            0,
		FitTo:              standardRadius,
	}
	for i := range m.Radius {
		m.Radius[i] = float64(i) + 0.5
	}
	for z := 0; z < depth; z++ {
		m.MaskedRadialModes[z] = nanRow(standardRadius)
		m.MaskedRadialMinima[z] = nanRow(standardRadius)
	}
	return m
}

// Depth returns the number of depth slices
func (m *Modes) Depth() int { return len(m.MaskedRadialModes) }

// MaxRadius returns the outermost radius of the profile axis
func (m *Modes) MaxRadius() float64 { return float64(m.StandardRadius) }

// WallMode returns the matrix brightness in the bucket next to the wall
func (m *Modes) WallMode(z int) float64 {
	return m.MaskedRadialModes[z][m.StandardRadius-1]
}

// WallMinimum returns the air-phase brightness in the bucket next to the wall
func (m *Modes) WallMinimum(z int) float64 {
	return m.MaskedRadialMinima[z][m.StandardRadius-1]
}

// FitWindow returns the radii and mode profile of slice z restricted to the fit window
func (m *Modes) FitWindow(z int) (radius, modes, minima []float64) {
	return m.Radius[m.FitFrom:m.FitTo],
		m.MaskedRadialModes[z][m.FitFrom:m.FitTo],
		m.MaskedRadialMinima[z][m.FitFrom:m.FitTo]
}

// Clone returns a deep copy
func (m *Modes) Clone() *Modes {
	out := *m
	out.MaskedRadialModes = cloneRows(m.MaskedRadialModes)
	out.MaskedRadialMinima = cloneRows(m.MaskedRadialMinima)
	out.Radius = append([]float64(nil), m.Radius...)
	out.MaskingThreshold = append([]float64(nil), m.MaskingThreshold...)
	out.Valid = append([]bool(nil), m.Valid...)
	return &out
}

// ReferenceMap is a radius × depth brightness map whose last column is the
// wall reference of each depth.
type ReferenceMap interface {
	At(r, z int) float64
	Width() int
}

// WithCorrectedMinima returns a copy of m whose air-phase minima have been
// corrected for beam hardening with the matrix brightness map: each minimum is
// scaled by the wall reference over the map value at its radius.
func (m *Modes) WithCorrectedMinima(bh ReferenceMap) *Modes {
	out := m.Clone()
	last := bh.Width() - 1
	for z := range out.MaskedRadialMinima {
		ref := bh.At(last, z)
		row := out.MaskedRadialMinima[z]
		for j := 0; j < len(row)-1; j++ {
			r := int(math.Floor(m.Radius[j])) + 1
			if r > last {
				r = last
			}
			corr := bh.At(r, z)
			if corr == 0 || math.IsNaN(corr) {
				continue
			}
			row[j] = row[j] * ref / corr
		}
	}
	return out
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
