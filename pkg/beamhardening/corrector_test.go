package beamhardening

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilct/internal/models"
	"soilct/internal/testutil"
	"soilct/pkg/geometry"
	"soilct/pkg/radial"
)

func rampColumn() testutil.Column {
	return testutil.Column{
		Size:       131,
		Depth:      3,
		Radius:     60,
		Brightness: testutil.LinearRamp,
	}
}

func testParams() Params {
	p := DefaultParams()
	p.NumWorkers = 2
	return p
}

// at returns the voxel at distance r from the centre along +x
func at(vol *models.Volume, c testutil.Column, r float64, z int) uint16 {
	mid := (c.Size - 1) / 2
	return vol.At(mid+int(math.Round(r)), mid, z)
}

func TestCorrectFlattensLinearRamp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end correction in short mode")
	}
	c := rampColumn()
	vol := c.Volume()
	original := vol.Clone()

	var progress bytes.Buffer
	p := testParams()
	p.Progress = &progress
	p.SaveIntermediaryResults = true
	p.IntermediaryDir = t.TempDir()

	out, report, err := NewCorrector(p).Correct(context.Background(), vol, c.Geometry())
	require.NoError(t, err)
	require.NotNil(t, out)

	for z := 0; z < c.Depth; z++ {
		for _, frac := range []float64{0.25, 0.9} {
			r := frac * c.Radius
			assert.InDelta(t, 150, float64(at(out, c, r, z)), 3, "z=%d r=%.1f", z, r)
		}
	}
	// raw centre is far from the wall brightness
	assert.Less(t, float64(at(vol, c, 0.25*c.Radius, 0)), 120.0)
	assert.Equal(t, original.Planes, vol.Planes)
	assert.Equal(t, uint16(0), out.At(0, 0, 0))

	assert.Equal(t, 60, report.StandardRadius)
	assert.Equal(t, 3, report.Slices)
	assert.Equal(t, 3, report.ValidSlices)
	assert.Greater(t, report.MeanMatrixR2(), 0.98)
	assert.Equal(t, []int{0, 1, 2}, report.MatrixKnots)
	assert.Empty(t, report.MatrixRejected)
	require.NotNil(t, report.MatrixMap)
	assert.Equal(t, 60, report.MatrixMap.Width())
	assert.Equal(t, 3, report.GammaMap.Height())

	for _, step := range []string{"Step 1:", "Step 4:", "Step 6:"} {
		assert.Contains(t, progress.String(), step)
	}
	for _, f := range []string{
		filepath.Join(StageMatrixProfiles, "profile_0001.png"),
		filepath.Join(StageAirPhaseProfiles, "profile_0002.png"),
		filepath.Join(StageMaps, "beam_hardening_map.png"),
		filepath.Join(StageMaps, "gamma_map.png"),
		filepath.Join(StageCorrectedSlices, "slice_0000_corrected.png"),
	} {
		_, err := os.Stat(filepath.Join(p.IntermediaryDir, f))
		assert.NoError(t, err, "missing %s", f)
	}
}

func TestCorrectUniformColumn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end correction in short mode")
	}
	c := testutil.Column{
		Size:       131,
		Depth:      3,
		Radius:     60,
		Brightness: func(r, R float64, z int) float64 { return 150 },
	}
	vol := c.Volume()

	out, report, err := NewCorrector(testParams()).Correct(context.Background(), vol, c.Geometry())
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, report)

	for z := 0; z < c.Depth; z++ {
		for _, frac := range []float64{0, 0.25, 0.5, 0.9} {
			r := frac * c.Radius
			assert.InDelta(t, 150, float64(at(out, c, r, z)), 2, "z=%d r=%.1f", z, r)
		}
	}
	assert.Equal(t, 3, report.ValidSlices)
}

func TestCorrectWithGaugeFileMatchesGeometry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end correction in short mode")
	}
	c := rampColumn()
	col := c.Geometry()
	path := filepath.Join(t.TempDir(), "gauge.txt")
	require.NoError(t, geometry.WriteFile(path, col, geometry.Version1))

	corrector := NewCorrector(testParams())
	want, _, err := corrector.Correct(context.Background(), c.Volume(), col)
	require.NoError(t, err)
	got, _, err := corrector.CorrectWithGaugeFile(context.Background(), c.Volume(), path)
	require.NoError(t, err)
	assert.Equal(t, want.Planes, got.Planes)
}

func TestCorrectWithoutGeometry(t *testing.T) {
	c := rampColumn()
	corrector := NewCorrector(testParams())

	out, report, err := corrector.Correct(context.Background(), c.Volume(), nil)
	require.ErrorIs(t, err, ErrNoGeometry)
	assert.Nil(t, out)
	assert.Nil(t, report)

	_, _, err = corrector.CorrectWithGaugeFile(context.Background(), c.Volume(), filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, ErrNoGeometry)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCorrectRejectsDepthMismatch(t *testing.T) {
	c := rampColumn()
	vol := c.Volume()
	c.Depth = 2

	out, _, err := NewCorrector(testParams()).Correct(context.Background(), vol, c.Geometry())
	require.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.Nil(t, out)
}

func TestCorrectRejectsMaskingThresholdsOfWrongLength(t *testing.T) {
	c := rampColumn()
	p := testParams()
	p.MaskingThresholds = []float64{10, 10}

	out, _, err := NewCorrector(p).Correct(context.Background(), c.Volume(), c.Geometry())
	require.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.Nil(t, out)
}

func TestCorrectRejectsInvalidParams(t *testing.T) {
	c := rampColumn()
	p := testParams()
	p.RadialStep = 0

	_, _, err := NewCorrector(p).Correct(context.Background(), c.Volume(), c.Geometry())
	assert.Error(t, err)
}

func TestCorrectCancelled(t *testing.T) {
	c := rampColumn()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, _, err := NewCorrector(testParams()).Correct(ctx, c.Volume(), c.Geometry())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestCorrectWithoutWall(t *testing.T) {
	c := rampColumn()
	p := c.Geometry().Params()
	for z := range p.InnerMajorRadius {
		p.InnerMajorRadius[z], p.InnerMinorRadius[z] = 0, 0
		p.OuterMajorRadius[z], p.OuterMinorRadius[z] = 0, 0
	}
	col, err := geometry.New(p)
	require.NoError(t, err)

	_, _, err = NewCorrector(testParams()).Correct(context.Background(), c.Volume(), col)
	require.ErrorIs(t, err, radial.ErrNoWall)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"angles", func(p *Params) { p.AnglesChecked = 2 }},
		{"step", func(p *Params) { p.RadialStep = 1.5 }},
		{"cutoff", func(p *Params) { p.CenterCutoff = 1 }},
		{"skip", func(p *Params) { p.Skip = -1 }},
		{"evaluations", func(p *Params) { p.MaxEvaluations = 0 }},
		{"goodness", func(p *Params) { p.SevereGoodnessCriterion = 1.2 }},
		{"epsilon", func(p *Params) { p.ImputedR2Epsilon = -0.1 }},
		{"ratio", func(p *Params) { p.GammaConsistencyRatio = 0 }},
		{"sigma", func(p *Params) { p.BlurSigma = -1 }},
		{"accuracy", func(p *Params) { p.BlurAccuracy = 1 }},
		{"intermediary", func(p *Params) { p.SaveIntermediaryResults, p.IntermediaryDir = true, "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParamsConversions(t *testing.T) {
	p := DefaultParams()
	p.MaskingThreshold = 12
	p.MaskingThresholds = []float64{12, 14, 16}
	p.NumWorkers = 3

	rp := p.radialParams()
	assert.Equal(t, 72, rp.AnglesChecked)
	assert.Equal(t, 12.0, rp.MaskingThreshold)
	assert.Equal(t, []float64{12, 14, 16}, rp.MaskingThresholds)
	assert.Equal(t, 3, rp.NumWorkers)

	gp := p.gapfillParams()
	assert.Equal(t, 0.98, gp.SevereGoodnessCriterion)
	assert.Equal(t, 3.0, gp.GammaConsistencyRatio)

	assert.Equal(t, 20.0, p.mapParams().BlurSigma)
	assert.Equal(t, 200, p.fittingOptions().MaxEvaluations)
	assert.Equal(t, 3, p.correctionParams().NumWorkers)
}

func TestSampleSlices(t *testing.T) {
	assert.Equal(t, []int{0}, sampleSlices(1))
	assert.Equal(t, []int{0, 1}, sampleSlices(2))
	assert.Equal(t, []int{0, 1, 2}, sampleSlices(3))
	assert.Equal(t, []int{0, 5, 9}, sampleSlices(10))
}

func TestReportSummary(t *testing.T) {
	modes := radial.NewModes(3, 10)
	modes.Valid = []bool{true, false, true}
	r := &Report{
		StandardRadius: 10,
		Slices:         3,
		ValidSlices:    2,
		MatrixR2:       []float64{0.9, 0, 1},
		GammaR2:        []float64{0.5, 0, 0.7},
		Modes:          modes,
	}
	assert.InDelta(t, 0.95, r.MeanMatrixR2(), 1e-12)
	assert.InDelta(t, 0.6, r.MeanGammaR2(), 1e-12)

	var buf bytes.Buffer
	r.Print(&buf)
	assert.Contains(t, buf.String(), "Slices with wall geometry: 2 of 3")
	assert.Contains(t, buf.String(), "Gamma correction: disabled")
}
