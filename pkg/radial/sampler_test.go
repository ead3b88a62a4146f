package radial

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilct/internal/testutil"
	"soilct/pkg/geometry"
)

func rampColumn() testutil.Column {
	return testutil.Column{
		Size:       61,
		Depth:      3,
		Radius:     25,
		Brightness: testutil.LinearRamp,
	}
}

func TestSampleRadiusAxisIsMonotonic(t *testing.T) {
	c := rampColumn()
	modes, err := Sample(context.Background(), c.Volume(), c.Geometry(), DefaultParams())
	require.NoError(t, err)

	require.Equal(t, 25, modes.StandardRadius)
	require.Len(t, modes.Radius, 25)
	for i := 0; i+1 < len(modes.Radius); i++ {
		assert.Less(t, modes.Radius[i], modes.Radius[i+1])
	}
	assert.Equal(t, 5, modes.FitFrom)
	assert.Equal(t, 23, modes.FitTo)
}

func TestSampleFollowsRadialProfile(t *testing.T) {
	c := rampColumn()
	modes, err := Sample(context.Background(), c.Volume(), c.Geometry(), DefaultParams())
	require.NoError(t, err)

	for z := 0; z < c.Depth; z++ {
		require.True(t, modes.Valid[z])
		for b, r := range modes.Radius {
			want := testutil.LinearRamp(r, c.Radius, z)
			assert.InDelta(t, want, modes.MaskedRadialModes[z][b], 4, "slice %d bucket %d", z, b)
			assert.LessOrEqual(t, modes.MaskedRadialMinima[z][b], modes.MaskedRadialModes[z][b])
		}
		assert.Greater(t, modes.WallMode(z), modes.MaskedRadialModes[z][0]+40)
	}
}

func TestSampleDegenerateSlice(t *testing.T) {
	c := rampColumn()
	p := c.Geometry().Params()
	p.InnerMajorRadius[1], p.InnerMinorRadius[1] = 0, 0
	p.OuterMajorRadius[1], p.OuterMinorRadius[1] = 0, 0
	col, err := geometry.New(p)
	require.NoError(t, err)

	modes, err := Sample(context.Background(), c.Volume(), col, DefaultParams())
	require.NoError(t, err)

	assert.True(t, modes.Valid[0])
	assert.False(t, modes.Valid[1])
	assert.True(t, modes.Valid[2])
	assert.True(t, math.IsNaN(modes.WallMode(1)))
}

func TestSampleRejectsMismatchedDepth(t *testing.T) {
	c := rampColumn()
	vol := c.Volume()
	vol.Planes = vol.Planes[:2]

	_, err := Sample(context.Background(), vol, c.Geometry(), DefaultParams())
	require.Error(t, err)
}

func TestSampleNoWall(t *testing.T) {
	c := rampColumn()
	p := c.Geometry().Params()
	for z := range p.InnerMajorRadius {
		p.InnerMajorRadius[z], p.InnerMinorRadius[z] = 0, 0
		p.OuterMajorRadius[z], p.OuterMinorRadius[z] = 0, 0
	}
	col, err := geometry.New(p)
	require.NoError(t, err)

	_, err = Sample(context.Background(), c.Volume(), col, DefaultParams())
	require.ErrorIs(t, err, ErrNoWall)
}

func TestSamplePerSliceMaskingThresholds(t *testing.T) {
	c := rampColumn()
	p := DefaultParams()
	p.MaskingThresholds = []float64{0, 130, 0}

	modes, err := Sample(context.Background(), c.Volume(), c.Geometry(), p)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 130, 0}, modes.MaskingThreshold)
	for b := range modes.Radius {
		assert.GreaterOrEqual(t, modes.MaskedRadialModes[1][b], 130.0, "bucket %d", b)
	}
	assert.Less(t, modes.MaskedRadialModes[0][0], 110.0)
	assert.Less(t, modes.MaskedRadialModes[2][0], 110.0)
}

func TestMaskingThresholdExcludesDarkSamples(t *testing.T) {
	sorted := []float64{10, 10, 10, 10, 50, 50, 60}
	assert.Equal(t, 10.0, maskedMode(sorted, 0))
	assert.Equal(t, 50.0, maskedMode(sorted, 20))
	assert.True(t, math.IsNaN(maskedMode(sorted, 100)))
}

func TestClassMinimum(t *testing.T) {
	// 3 needs more than two members to count as the air phase
	sorted := []float64{3, 3, 7, 7, 7, 9}
	assert.Equal(t, 7.0, classMinimum(sorted, 2))
	assert.Equal(t, 3.0, classMinimum(sorted, 1))
	assert.Equal(t, 3.0, classMinimum(sorted, 10))
}

func TestClampEmpty(t *testing.T) {
	nan := math.NaN()
	row := []float64{nan, 4, nan, 6, nan, nan}
	require.True(t, clampEmpty(row))
	assert.Equal(t, []float64{4, 4, 4, 6, 6, 6}, row)

	assert.False(t, clampEmpty([]float64{nan, nan}))
}

type constMap struct {
	rows [][]float64
}

func (m constMap) At(r, z int) float64 { return m.rows[z][r] }
func (m constMap) Width() int          { return len(m.rows[0]) }

func TestWithCorrectedMinimaIsPure(t *testing.T) {
	m := NewModes(1, 4)
	m.MaskedRadialMinima[0] = []float64{50, 60, 70, 80}
	m.MaskedRadialModes[0] = []float64{100, 110, 120, 130}

	bh := constMap{rows: [][]float64{{100, 100, 125, 250}}}
	out := m.WithCorrectedMinima(bh)

	// bucket j is scaled by map(r=j+1): ref 250 over 100, 125, 250
	assert.Equal(t, []float64{125, 120, 70, 80}, out.MaskedRadialMinima[0])
	assert.Equal(t, []float64{50, 60, 70, 80}, m.MaskedRadialMinima[0])
	assert.Equal(t, m.MaskedRadialModes[0], out.MaskedRadialModes[0])
}
