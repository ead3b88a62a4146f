package correction

import (
	"fmt"
	"math"

	"soilct/pkg/gapfill"
	"soilct/pkg/radial"
)

// MapParams controls map smoothing
type MapParams struct {
	BlurSigma    float64
	BlurAccuracy float64
}

// DefaultMapParams returns the smoothing used for both correction maps
func DefaultMapParams() MapParams {
	return MapParams{
		BlurSigma:    DefaultBlurSigma,
		BlurAccuracy: DefaultBlurAccuracy,
	}
}

// AssembleMatrixMap evaluates the gap-filled matrix brightness curve of every
// slice at the integer radii 0..R-1 and smooths the result. Radii where a
// curve cannot be evaluated take the slice's wall brightness.
func AssembleMatrixMap(modes *radial.Modes, filled *gapfill.Filled, p MapParams) (*Map, error) {
	if filled.Results.Depth() != modes.Depth() {
		return nil, fmt.Errorf("fit has %d slices but profiles have %d", filled.Results.Depth(), modes.Depth())
	}
	m := NewMap(modes.StandardRadius, modes.Depth())
	for z := 0; z < m.Height(); z++ {
		fillRow(m, filled, z, wallReference(modes, z, (*radial.Modes).WallMode))
	}
	m.Blur(p.BlurSigma, p.BlurAccuracy)

	lo, hi := m.Bounds()
	diagf("matrix map %dx%d, values [%.1f, %.1f]", m.Width(), m.Height(), lo, hi)
	return m, nil
}

// AssembleGammaMap evaluates the gap-filled air-phase curves at the knot
// slices only. Rows between two knots more than one slice apart are
// interpolated linearly from the two knot rows before smoothing.
func AssembleGammaMap(modes *radial.Modes, filled *gapfill.Filled, p MapParams) (*Map, error) {
	if filled.Results.Depth() != modes.Depth() {
		return nil, fmt.Errorf("fit has %d slices but profiles have %d", filled.Results.Depth(), modes.Depth())
	}
	m := NewMap(modes.StandardRadius, modes.Depth())
	for _, z := range filled.Knots {
		fillRow(m, filled, z, wallReference(modes, z, (*radial.Modes).WallMinimum))
	}
	for i := 0; i+1 < len(filled.Knots); i++ {
		interpolateRows(m, filled.Knots[i], filled.Knots[i+1])
	}
	m.Blur(p.BlurSigma, p.BlurAccuracy)

	lo, hi := m.Bounds()
	diagf("gamma map %dx%d from %d knot rows, values [%.1f, %.1f]", m.Width(), m.Height(), len(filled.Knots), lo, hi)
	return m, nil
}

func fillRow(m *Map, filled *gapfill.Filled, z int, fallback float64) {
	row := m.Row(z)
	for r := range row {
		v, err := filled.Results.Value(z, float64(r))
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			v = fallback
		}
		row[r] = v
	}
}

// interpolateRows fills the rows strictly between a and b
func interpolateRows(m *Map, a, b int) {
	dist := float64(b - a)
	if dist <= 1 {
		return
	}
	r0, r1 := m.Row(a), m.Row(b)
	for z := a + 1; z < b; z++ {
		w := float64(z-a) / dist
		row := m.Row(z)
		for r := range row {
			row[r] = r0[r] + w*(r1[r]-r0[r])
		}
	}
}

// wallReference returns ref(modes, z), or the value of the nearest slice
// where it is defined.
func wallReference(modes *radial.Modes, z int, ref func(*radial.Modes, int) float64) float64 {
	for d := 0; d < modes.Depth(); d++ {
		for _, i := range []int{z - d, z + d} {
			if i < 0 || i >= modes.Depth() {
				continue
			}
			if v := ref(modes, i); !math.IsNaN(v) {
				return v
			}
		}
	}
	return 0
}
