// Package beamhardening runs the radial beam-hardening and air-phase gamma
// correction of a soil-column CT volume.
//
// The correction consists of several steps:
//  1. Sampling radial brightness profiles relative to the column wall
//  2. Fitting a generalized logistic curve to the matrix brightness of every slice
//  3. Screening the fits and interpolating rejected slices across depth
//  4. Assembling and smoothing the radius × depth beam-hardening map
//  5. Fitting, screening and mapping the air-phase brightness the same way
//  6. Correcting every voxel inside the wall against both maps
package beamhardening

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"soilct/internal/models"
	"soilct/pkg/correction"
	"soilct/pkg/fitting"
	"soilct/pkg/gapfill"
	"soilct/pkg/geometry"
	"soilct/pkg/radial"
)

// ErrNoGeometry is returned when no wall geometry is available for a volume.
var ErrNoGeometry = errors.New("no column geometry")

// Corrector applies the beam-hardening correction with a fixed set of
// parameters. It holds no per-run state and may be used concurrently.
type Corrector struct {
	params Params
}

// NewCorrector creates a corrector with the provided parameters
func NewCorrector(params Params) *Corrector {
	return &Corrector{params: params}
}

// Params returns the corrector's parameters
func (c *Corrector) Params() Params { return c.params }

// CorrectWithGaugeFile reads the wall geometry from a gauge file of either
// layout version and corrects vol against it.
func (c *Corrector) CorrectWithGaugeFile(ctx context.Context, vol *models.Volume, gaugePath string) (*models.Volume, *Report, error) {
	col, err := geometry.ReadFile(gaugePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoGeometry, err)
	}
	return c.Correct(ctx, vol, col)
}

// Correct returns a corrected copy of vol together with a report of the run.
// vol is never modified. On error no volume is returned.
func (c *Corrector) Correct(ctx context.Context, vol *models.Volume, col *geometry.Column) (*models.Volume, *Report, error) {
	if col == nil {
		return nil, nil, ErrNoGeometry
	}
	if err := c.params.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := vol.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid volume: %w", err)
	}
	if vol.Depth() != col.Height() {
		return nil, nil, fmt.Errorf("volume has %d slices but geometry has %d: %w",
			vol.Depth(), col.Height(), models.ErrDimensionMismatch)
	}
	if n := len(c.params.MaskingThresholds); n > 0 && n != vol.Depth() {
		return nil, nil, fmt.Errorf("%d masking thresholds for %d slices: %w",
			n, vol.Depth(), models.ErrDimensionMismatch)
	}

	start := time.Now()
	p := c.params
	if p.SaveIntermediaryResults {
		if err := os.MkdirAll(p.IntermediaryDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	// Step 1: radial profiles
	c.progress("Step 1: Sampling radial profiles of %d slices...", vol.Depth())
	modes, err := radial.Sample(ctx, vol, col, p.radialParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sample radial profiles: %w", err)
	}

	// Step 2: matrix curves
	c.progress("Step 2: Fitting matrix brightness curves...")
	matrixFit, err := fitting.FitLogistic(ctx, modes, p.fittingOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit matrix brightness: %w", err)
	}

	// Step 3: screening and gap filling
	c.progress("Step 3: Screening fits and filling gaps...")
	matrixFilled, err := gapfill.Matrix(matrixFit, modes, p.gapfillParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to gap-fill matrix fits: %w", err)
	}

	// Step 4: beam-hardening map
	c.progress("Step 4: Assembling beam-hardening map...")
	matrixMap, err := correction.AssembleMatrixMap(modes, matrixFilled, p.mapParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble beam-hardening map: %w", err)
	}

	// Step 5: air phase, fitted to minima already corrected for beam hardening
	c.progress("Step 5: Fitting air-phase brightness and assembling gamma map...")
	airModes := modes.WithCorrectedMinima(matrixMap)
	gammaFit, err := fitting.FitHyperbolic(ctx, airModes, p.fittingOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit air-phase brightness: %w", err)
	}
	gammaFilled, err := gapfill.Gamma(matrixFit, gammaFit, airModes, p.gapfillParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to gap-fill air-phase fits: %w", err)
	}
	gammaMap, err := correction.AssembleGammaMap(airModes, gammaFilled, p.mapParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble gamma map: %w", err)
	}

	// Step 6: voxels
	c.progress("Step 6: Correcting voxels...")
	out, err := correction.Correct(ctx, vol, col, matrixMap, gammaMap, p.correctionParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to correct volume: %w", err)
	}

	report := newReport(modes, airModes, matrixFit, gammaFit, matrixFilled, gammaFilled, matrixMap, gammaMap)
	report.Elapsed = time.Since(start)

	if p.SaveIntermediaryResults {
		c.progress("Saving intermediary results...")
		c.saveIntermediaryResults(vol, out, report)
	}

	diagf("corrected %d slices in %s, gamma correction %s",
		vol.Depth(), report.Elapsed.Round(time.Millisecond), onOff(report.GammaEnabled))
	return out, report, nil
}

func (c *Corrector) progress(format string, args ...interface{}) {
	if c.params.Progress != nil {
		fmt.Fprintf(c.params.Progress, format+"\n", args...)
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
