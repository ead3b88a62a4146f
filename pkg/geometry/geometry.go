// Package geometry describes the fitted wall of a cylindrical soil column,
// one ellipse per depth slice, and reads and writes the tab-separated gauge
// files produced by the column-detection step.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyGeometry is returned when a geometry has no depth slices.
	ErrEmptyGeometry = errors.New("geometry has no slices")

	// ErrMisaligned is returned when per-slice arrays disagree in length.
	ErrMisaligned = errors.New("per-slice geometry arrays are not aligned")
)

// Params carries the raw per-slice arrays and scalars used to build a Column.
// Every per-slice array must have HeightOfColumn entries (or be nil, which is
// read as all zeros).
type Params struct {
	XMid, YMid, ZMid []float64
	IXMid, IYMid     []float64

	OuterMajorRadius, OuterMinorRadius []float64
	InnerMajorRadius, InnerMinorRadius []float64
	WallThickness                      []float64

	// Theta and ITheta are the rotation angles of the outer and inner
	// ellipse major axes, in radians
	Theta, ITheta []float64

	OuterR2, InnerR2 []float64

	TiltInXZ, TiltInYZ, TiltTotal float64

	TopOfColumn, BottomOfColumn int
	HeightOfColumn              int
	NumberOfImputedLayers       int
}

// Column is the immutable wall geometry of one scanned column. It is built
// once by New and shared read-only by every correction stage.
type Column struct {
	p Params
}

// New validates the arrays in p and returns the column geometry. TiltTotal is
// derived from the XZ and YZ tilts when it is not given.
func New(p Params) (*Column, error) {
	if p.HeightOfColumn <= 0 {
		p.HeightOfColumn = len(p.XMid)
	}
	n := p.HeightOfColumn
	if n <= 0 {
		return nil, ErrEmptyGeometry
	}

	arrays := []*[]float64{
		&p.XMid, &p.YMid, &p.ZMid, &p.IXMid, &p.IYMid,
		&p.OuterMajorRadius, &p.OuterMinorRadius, &p.InnerMajorRadius, &p.InnerMinorRadius,
		&p.WallThickness, &p.Theta, &p.ITheta, &p.OuterR2, &p.InnerR2,
	}
	for i, a := range arrays {
		switch len(*a) {
		case 0:
			*a = make([]float64, n)
		case n:
			*a = append([]float64(nil), (*a)...)
		default:
			return nil, fmt.Errorf("array %d has %d entries, want %d: %w", i, len(*a), n, ErrMisaligned)
		}
	}

	for z := 0; z < n; z++ {
		if p.OuterMajorRadius[z] < 0 || p.OuterMinorRadius[z] < 0 ||
			p.InnerMajorRadius[z] < 0 || p.InnerMinorRadius[z] < 0 {
			return nil, fmt.Errorf("negative radius at slice %d", z)
		}
	}

	if p.TiltTotal == 0 {
		p.TiltTotal = TotalTilt(p.TiltInXZ, p.TiltInYZ)
	}
	if p.BottomOfColumn == 0 {
		p.BottomOfColumn = p.TopOfColumn + n - 1
	}

	return &Column{p: p}, nil
}

// TotalTilt combines the tilt angles measured in the XZ and YZ planes into the
// angle between the column axis and the vertical.
func TotalTilt(tiltInXZ, tiltInYZ float64) float64 {
	tx := math.Tan(tiltInXZ)
	ty := math.Tan(tiltInYZ)
	return math.Atan(math.Sqrt(tx*tx + ty*ty))
}

// Height returns the number of depth slices
func (c *Column) Height() int { return c.p.HeightOfColumn }

// TiltInXZ returns the column tilt in the XZ plane
func (c *Column) TiltInXZ() float64 { return c.p.TiltInXZ }

// TiltInYZ returns the column tilt in the YZ plane
func (c *Column) TiltInYZ() float64 { return c.p.TiltInYZ }

// TiltTotal returns the total tilt of the column axis
func (c *Column) TiltTotal() float64 { return c.p.TiltTotal }

// TopOfColumn returns the first depth index belonging to the column
func (c *Column) TopOfColumn() int { return c.p.TopOfColumn }

// BottomOfColumn returns the last depth index belonging to the column
func (c *Column) BottomOfColumn() int { return c.p.BottomOfColumn }

// NumberOfImputedLayers is the number of depth rows for which no reliable wall was found
func (c *Column) NumberOfImputedLayers() int { return c.p.NumberOfImputedLayers }

// Params returns a copy of the arrays and scalars the column was built from
func (c *Column) Params() Params {
	p := c.p
	for _, a := range []*[]float64{
		&p.XMid, &p.YMid, &p.ZMid, &p.IXMid, &p.IYMid,
		&p.OuterMajorRadius, &p.OuterMinorRadius, &p.InnerMajorRadius, &p.InnerMinorRadius,
		&p.WallThickness, &p.Theta, &p.ITheta, &p.OuterR2, &p.InnerR2,
	} {
		*a = append([]float64(nil), (*a)...)
	}
	return p
}

// MedianWallThickness returns the median of the per-slice wall thickness
func (c *Column) MedianWallThickness() float64 {
	return median(c.p.WallThickness)
}

// MaxWallRadius returns the largest wall major radius over all slices
func (c *Column) MaxWallRadius() float64 {
	maxR := 0.0
	for z := 0; z < c.p.HeightOfColumn; z++ {
		w := c.Slice(z).Wall()
		if w.Major > maxR {
			maxR = w.Major
		}
	}
	return maxR
}

// SliceGeometry is the wall description of a single depth slice
type SliceGeometry struct {
	Z int

	XMid, YMid, ZMid float64
	IXMid, IYMid     float64

	OuterMajorRadius, OuterMinorRadius float64
	InnerMajorRadius, InnerMinorRadius float64
	WallThickness                      float64
	Theta, ITheta                      float64
	OuterR2, InnerR2                   float64
}

// Slice returns the geometry of depth slice z
func (c *Column) Slice(z int) SliceGeometry {
	p := &c.p
	return SliceGeometry{
		Z:                z,
		XMid:             p.XMid[z],
		YMid:             p.YMid[z],
		ZMid:             p.ZMid[z],
		IXMid:            p.IXMid[z],
		IYMid:            p.IYMid[z],
		OuterMajorRadius: p.OuterMajorRadius[z],
		OuterMinorRadius: p.OuterMinorRadius[z],
		InnerMajorRadius: p.InnerMajorRadius[z],
		InnerMinorRadius: p.InnerMinorRadius[z],
		WallThickness:    p.WallThickness[z],
		Theta:            p.Theta[z],
		ITheta:           p.ITheta[z],
		OuterR2:          p.OuterR2[z],
		InnerR2:          p.InnerR2[z],
	}
}

// Wall returns the soil-side wall ellipse of the slice: the inner perimeter
// when one was measured, otherwise the outer one.
func (s SliceGeometry) Wall() Ellipse {
	if s.InnerMajorRadius > 0 && s.InnerMinorRadius > 0 {
		cx, cy := s.IXMid, s.IYMid
		if cx == 0 && cy == 0 {
			cx, cy = s.XMid, s.YMid
		}
		return Ellipse{CX: cx, CY: cy, Major: s.InnerMajorRadius, Minor: s.InnerMinorRadius, Theta: s.ITheta}
	}
	return Ellipse{CX: s.XMid, CY: s.YMid, Major: s.OuterMajorRadius, Minor: s.OuterMinorRadius, Theta: s.Theta}
}

// Degenerate reports whether no usable wall exists for this slice
func (s SliceGeometry) Degenerate() bool {
	w := s.Wall()
	return w.Major <= 0 || w.Minor <= 0
}

// Ellipse is a rotated ellipse in pixel coordinates
type Ellipse struct {
	CX, CY       float64
	Major, Minor float64
	Theta        float64
}

// RadiusAt returns the distance from the centre to the ellipse boundary in
// direction phi (radians, image coordinates).
func (e Ellipse) RadiusAt(phi float64) float64 {
	if e.Major <= 0 || e.Minor <= 0 {
		return 0
	}
	d := phi - e.Theta
	bc := e.Minor * math.Cos(d)
	as := e.Major * math.Sin(d)
	return e.Major * e.Minor / math.Sqrt(bc*bc+as*as)
}
