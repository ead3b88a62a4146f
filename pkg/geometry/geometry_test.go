package geometry

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams builds a slightly wobbling column whose values are already
// rounded to the precision of the gauge file layouts.
func testParams(n int) Params {
	p := Params{
		TiltInXZ:       0.0123,
		TiltInYZ:       -0.0045,
		HeightOfColumn: n,
	}
	alloc(&p, n)
	for i := 0; i < n; i++ {
		f := float64(i)
		p.XMid[i] = 250.25 + 0.5*f
		p.YMid[i] = 249.75 - 0.25*f
		p.ZMid[i] = f
		p.IXMid[i] = 250.5 + 0.5*f
		p.IYMid[i] = 249.5 - 0.25*f
		p.OuterMajorRadius[i] = 210.5
		p.OuterMinorRadius[i] = 208.25
		p.InnerMajorRadius[i] = 200.75 + 0.01*f
		p.InnerMinorRadius[i] = 198.5
		p.WallThickness[i] = 9.75
		p.Theta[i] = 0.1234
		p.ITheta[i] = 0.2345 + 0.0001*f
		p.OuterR2[i] = 0.9912
		p.InnerR2[i] = 0.9876
	}
	return p
}

func TestNewValidatesAlignment(t *testing.T) {
	p := testParams(5)
	p.Theta = p.Theta[:3]

	_, err := New(p)
	require.ErrorIs(t, err, ErrMisaligned)
}

func TestNewRejectsNegativeRadius(t *testing.T) {
	p := testParams(4)
	p.InnerMinorRadius[2] = -1

	_, err := New(p)
	require.Error(t, err)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, ErrEmptyGeometry)
}

func TestNewDerivesTotalTilt(t *testing.T) {
	col, err := New(testParams(3))
	require.NoError(t, err)

	want := TotalTilt(0.0123, -0.0045)
	assert.InDelta(t, want, col.TiltTotal(), 1e-12)
	assert.Greater(t, col.TiltTotal(), 0.0123)
}

func TestColumnIsImmutable(t *testing.T) {
	p := testParams(3)
	col, err := New(p)
	require.NoError(t, err)

	p.XMid[0] = -1
	assert.Equal(t, 250.25, col.Slice(0).XMid)

	out := col.Params()
	out.XMid[0] = -2
	assert.Equal(t, 250.25, col.Slice(0).XMid)
}

func TestWallPrefersInnerPerimeter(t *testing.T) {
	col, err := New(testParams(2))
	require.NoError(t, err)

	w := col.Slice(1).Wall()
	assert.Equal(t, 251.0, w.CX)
	assert.InDelta(t, 200.76, w.Major, 1e-12)
	assert.False(t, col.Slice(1).Degenerate())

	s := SliceGeometry{XMid: 10, YMid: 12, OuterMajorRadius: 5, OuterMinorRadius: 4}
	w = s.Wall()
	assert.Equal(t, 10.0, w.CX)
	assert.Equal(t, 5.0, w.Major)

	assert.True(t, SliceGeometry{}.Degenerate())
}

func TestEllipseRadiusAt(t *testing.T) {
	e := Ellipse{Major: 20, Minor: 10}
	assert.InDelta(t, 20, e.RadiusAt(0), 1e-9)
	assert.InDelta(t, 10, e.RadiusAt(math.Pi/2), 1e-9)
	assert.InDelta(t, 20, e.RadiusAt(math.Pi), 1e-9)

	rotated := Ellipse{Major: 20, Minor: 10, Theta: math.Pi / 2}
	assert.InDelta(t, 10, rotated.RadiusAt(0), 1e-9)
	assert.InDelta(t, 20, rotated.RadiusAt(math.Pi/2), 1e-9)
}

func TestWallLUT(t *testing.T) {
	circle := NewWallLUT(Ellipse{CX: 50, CY: 40, Major: 30, Minor: 30}, 72)
	assert.Equal(t, 72, circle.Vertices())
	for _, a := range []float64{0, 0.3, 1, math.Pi, 6.2} {
		assert.InDelta(t, 30, circle.RadiusAt(a), 1e-9)
	}

	e := Ellipse{Major: 20, Minor: 10}
	lut := NewWallLUT(e, 4)
	// vertices at 0, π/2, π, 3π/2: halfway between two vertices is the mean
	assert.InDelta(t, 15, lut.RadiusAt(math.Pi/4), 1e-9)
	assert.InDelta(t, 20, lut.RadiusAt(0), 1e-9)
	assert.InDelta(t, 10, lut.RadiusAt(math.Pi/2), 1e-9)
	// wraps back to vertex 0
	assert.InDelta(t, 15, lut.RadiusAt(7*math.Pi/4), 1e-9)

	d, a := circle.Polar(50, 10)
	assert.InDelta(t, 30, d, 1e-12)
	assert.InDelta(t, 3*math.Pi/2, a, 1e-12)
}

func TestDetectVersion(t *testing.T) {
	assert.Equal(t, Version1, DetectVersion("heightOfColumn"))
	assert.Equal(t, Version1, DetectVersion("HeightOfColumn\t"))
	assert.Equal(t, Version0, DetectVersion("tiltInXZ\ttiltInYZ"))
	assert.Equal(t, Version0, DetectVersion("hei"))
}

func TestRoundTrip(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-9)

	for _, version := range []int{Version0, Version1} {
		col, err := New(testParams(7))
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, Write(&buf, col, version))

		back, err := Read(&buf)
		require.NoError(t, err, "version %d", version)
		require.Equal(t, 7, back.Height())

		want := col.Params()
		got := back.Params()
		for _, f := range []struct {
			name      string
			got, want []float64
		}{
			{"XMid", got.XMid, want.XMid},
			{"YMid", got.YMid, want.YMid},
			{"ZMid", got.ZMid, want.ZMid},
			{"IXMid", got.IXMid, want.IXMid},
			{"IYMid", got.IYMid, want.IYMid},
			{"OuterMajorRadius", got.OuterMajorRadius, want.OuterMajorRadius},
			{"OuterMinorRadius", got.OuterMinorRadius, want.OuterMinorRadius},
			{"InnerMajorRadius", got.InnerMajorRadius, want.InnerMajorRadius},
			{"InnerMinorRadius", got.InnerMinorRadius, want.InnerMinorRadius},
			{"WallThickness", got.WallThickness, want.WallThickness},
			{"Theta", got.Theta, want.Theta},
			{"ITheta", got.ITheta, want.ITheta},
			{"OuterR2", got.OuterR2, want.OuterR2},
			{"InnerR2", got.InnerR2, want.InnerR2},
		} {
			if diff := cmp.Diff(f.want, f.got, approx); diff != "" {
				t.Errorf("version %d %s mismatch (-want +got):\n%s", version, f.name, diff)
			}
		}

		if version == Version0 {
			assert.InDelta(t, col.TiltInXZ(), back.TiltInXZ(), 1e-9)
			assert.InDelta(t, col.TiltInYZ(), back.TiltInYZ(), 5e-5)
		}
	}
}

func TestWriteFileReadFile(t *testing.T) {
	col, err := New(testParams(3))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gauge.txt")
	require.NoError(t, WriteFile(path, col, Version1))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Height())
}

func TestReadAcceptsDecimalCommas(t *testing.T) {
	in := strings.Join([]string{
		"heightOfColumn",
		"1",
		"number\twallThickness\tzOutMid\txOutMid\tyOutMid\txInnMid\tyInnMid\touterMajorRadius\touterMinorRadius\tinnerMajorRadius\tinnerMinorRadius\touterTheta\tinnerTheta\touterR2\tinnerR2",
		"   1\t9,50\t0,00\t100,25\t99,75\t100,00\t100,00\t50,00\t49,00\t45,00\t44,00\t0,1000\t0,2000\t0,9900\t0,9800",
	}, "\n")

	col, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	s := col.Slice(0)
	assert.Equal(t, 9.5, s.WallThickness)
	assert.Equal(t, 100.25, s.XMid)
	assert.Equal(t, 0.2, s.ITheta)
}

func TestReadMalformed(t *testing.T) {
	in := "heightOfColumn\n1\nheader\n1\t2\t3\n"
	_, err := Read(strings.NewReader(in))
	require.ErrorIs(t, err, ErrMalformedRow)

	_, err = Read(strings.NewReader("tiltInXZ\n"))
	require.ErrorIs(t, err, ErrEmptyGeometry)

	err = Write(&bytes.Buffer{}, &Column{p: testParams(1)}, 7)
	require.ErrorIs(t, err, ErrUnknownVersion)
}
