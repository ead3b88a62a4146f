package fitting

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilct/internal/testutil"
	"soilct/pkg/radial"
)

func TestLogisticRejectsNonPositiveShape(t *testing.T) {
	tests := []struct {
		name   string
		params []float64
	}{
		{"zero N", []float64{200, 30, 0.2, 1, 100, 0}},
		{"negative N", []float64{200, 30, 0.2, 1, 100, -1}},
		{"zero Q", []float64{200, 30, 0.2, 0, 100, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Logistic{}.Value(10, tt.params)
			require.ErrorIs(t, err, ErrNotStrictlyPositive)
		})
	}
}

func TestLogisticMatchesClosedForm(t *testing.T) {
	p := []float64{200, 30, 0.2, 1.5, 100, 0.8}
	for _, x := range []float64{0, 12.5, 30, 59} {
		v, err := Logistic{}.Value(x, p)
		require.NoError(t, err)
		assert.InDelta(t, testutil.Logistic(x, p), v, 1e-9)
	}
}

func TestHyperbolicIsAnchoredAtWall(t *testing.T) {
	h := Hyperbolic{MaxRadius: 60, Reference: 40}
	for _, p := range [][]float64{{1, 100}, {15, 3000}, {5, 0}} {
		v, err := h.Value(60, p)
		require.NoError(t, err)
		assert.InDelta(t, 40, v, 1e-9)
	}

	flat, err := Curve(h, []float64{0, 10, 30}, []float64{7, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 40, 40}, flat)

	_, err = h.Value(10, []float64{0, 100})
	require.ErrorIs(t, err, ErrNotStrictlyPositive)
}

func TestGoodnessOfFitClamps(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1, GoodnessOfFit(values, values), 1e-12)
	assert.Equal(t, 0.0, GoodnessOfFit([]float64{4, 3, 2, 1}, values))
	assert.Equal(t, 0.0, GoodnessOfFit(nil, nil))
}

func TestGoodnessOfFitConstantProfile(t *testing.T) {
	values := []float64{150, 150, 150, 150}
	assert.Equal(t, 1.0, GoodnessOfFit([]float64{150, 150, 150, 150}, values))
	assert.Equal(t, 1.0, GoodnessOfFit([]float64{150, 150.00001, 149.99999, 150}, values))
	assert.Equal(t, 0.0, GoodnessOfFit([]float64{149, 150, 151, 150}, values))
}

func logisticModes(depth int, truth []float64) *radial.Modes {
	modes := radial.NewModes(depth, 60)
	modes.FitFrom, modes.FitTo = 12, 58
	for z := 0; z < depth; z++ {
		for b, r := range modes.Radius {
			modes.MaskedRadialModes[z][b] = testutil.Logistic(r, truth)
			modes.MaskedRadialMinima[z][b] = 40
		}
		modes.Valid[z] = true
	}
	return modes
}

func TestFitLogisticRecoversCurve(t *testing.T) {
	truth := []float64{200, 30, 0.2, 1, 100, 1}
	modes := logisticModes(3, truth)
	modes.Valid[1] = false

	res, err := FitLogistic(context.Background(), modes, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 6, res.NumberOfParams)

	for _, z := range []int{0, 2} {
		assert.Greater(t, res.R2[z], 0.999, "slice %d", z)
		for _, x := range []float64{15, 30, 45} {
			v, err := res.Value(z, x)
			require.NoError(t, err)
			assert.InDelta(t, testutil.Logistic(x, truth), v, 0.5)
		}
	}
	assert.Equal(t, 0.0, res.R2[1])
}

func TestFitLogisticLinearProfile(t *testing.T) {
	modes := radial.NewModes(1, 25)
	modes.FitFrom, modes.FitTo = 5, 23
	for b, r := range modes.Radius {
		modes.MaskedRadialModes[0][b] = testutil.LinearRamp(r, 25, 0)
	}
	modes.Valid[0] = true

	res, err := FitLogistic(context.Background(), modes, DefaultOptions())
	require.NoError(t, err)
	assert.Greater(t, res.R2[0], 0.999)
}

func TestFitHyperbolicRecoversCurve(t *testing.T) {
	modes := logisticModes(2, []float64{200, 30, 0.2, 1, 100, 1})
	h := Hyperbolic{MaxRadius: 60, Reference: 40}
	for z := 0; z < 2; z++ {
		for b, r := range modes.Radius {
			v, err := h.Value(r, []float64{15, 3000})
			require.NoError(t, err)
			modes.MaskedRadialMinima[z][b] = v
		}
	}

	res, err := FitHyperbolic(context.Background(), modes, DefaultOptions())
	require.NoError(t, err)
	for z := 0; z < 2; z++ {
		assert.Greater(t, res.R2[z], 0.999)
		assert.InDelta(t, 15, res.Params[z][HyperbolicC], 0.1)
		assert.InDelta(t, 3000, res.Params[z][HyperbolicS], 10)
	}
}

func TestFitHonoursCancellation(t *testing.T) {
	modes := logisticModes(4, []float64{200, 30, 0.2, 1, 100, 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitLogistic(ctx, modes, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestResultsCloneIsDeep(t *testing.T) {
	res := NewResults(2, Logistic{})
	res.Params[0][LogisticK] = 5
	res.R2[0] = 0.5

	c := res.Clone()
	c.Params[0][LogisticK] = 9
	c.R2[0] = 0.1

	assert.Equal(t, 5.0, res.Params[0][LogisticK])
	assert.Equal(t, 0.5, res.R2[0])
	assert.False(t, math.IsNaN(c.Params[1][0]))
}
