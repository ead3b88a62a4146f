package geometry

import "math"

// WallLUT is a wall-radius-by-angle table for one slice. The wall is sampled
// at n equally spaced polygon vertices; radii in between are interpolated
// linearly from the two vertices that bracket the angle.
type WallLUT struct {
	CX, CY  float64
	spacing float64
	radii   []float64 // n+1 entries, the last one repeats vertex 0
}

// NewWallLUT samples ellipse e at n vertices starting at angle 0
func NewWallLUT(e Ellipse, n int) *WallLUT {
	if n < 3 {
		n = 3
	}
	lut := &WallLUT{
		CX:      e.CX,
		CY:      e.CY,
		spacing: 2 * math.Pi / float64(n),
		radii:   make([]float64, n+1),
	}
	for j := 0; j < n; j++ {
		lut.radii[j] = e.RadiusAt(float64(j) * lut.spacing)
	}
	lut.radii[n] = lut.radii[0]
	return lut
}

// Vertices returns the number of polygon vertices in the table
func (l *WallLUT) Vertices() int { return len(l.radii) - 1 }

// RadiusAt returns the wall radius at angle alpha in [0, 2π)
func (l *WallLUT) RadiusAt(alpha float64) float64 {
	pos := alpha / l.spacing
	j := int(pos)
	if j < 0 {
		j = 0
	}
	if j >= len(l.radii)-1 {
		j = len(l.radii) - 2
	}
	w := pos - float64(j)
	return (1-w)*l.radii[j] + w*l.radii[j+1]
}

// Polar returns the distance and angle in [0, 2π) of pixel (x, y) from the
// table's centre.
func (l *WallLUT) Polar(x, y float64) (dist, alpha float64) {
	dx := x - l.CX
	dy := y - l.CY
	dist = math.Hypot(dx, dy)
	alpha = math.Atan2(dy, dx)
	if alpha < 0 {
		alpha += 2 * math.Pi
	}
	return dist, alpha
}
