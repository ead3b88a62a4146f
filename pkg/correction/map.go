// Package correction assembles radius × depth reference brightness maps from
// gap-filled curve fits and applies them to every voxel of a soil column.
package correction

// Map is a dense radius × depth grid of reference brightness values. Column r
// is the integer radius on the standard radius axis, row z the depth slice.
// The last column of each row is that slice's wall reference.
type Map struct {
	width, height int
	data          []float64
}

// NewMap allocates a zero-filled map
func NewMap(width, height int) *Map {
	return &Map{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// Width returns the number of radius columns
func (m *Map) Width() int { return m.width }

// Height returns the number of depth rows
func (m *Map) Height() int { return m.height }

// At returns the value at radius r of slice z
func (m *Map) At(r, z int) float64 { return m.data[z*m.width+r] }

// Set stores v at radius r of slice z
func (m *Map) Set(r, z int, v float64) { m.data[z*m.width+r] = v }

// Row returns the values of slice z. The slice aliases the map.
func (m *Map) Row(z int) []float64 { return m.data[z*m.width : (z+1)*m.width] }

// Reference returns the wall reference brightness of slice z
func (m *Map) Reference(z int) float64 { return m.At(m.width-1, z) }

// Bounds returns the smallest and largest value of the map
func (m *Map) Bounds() (lo, hi float64) {
	if len(m.data) == 0 {
		return 0, 0
	}
	lo, hi = m.data[0], m.data[0]
	for _, v := range m.data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Clone returns a deep copy
func (m *Map) Clone() *Map {
	return &Map{
		width:  m.width,
		height: m.height,
		data:   append([]float64(nil), m.data...),
	}
}
