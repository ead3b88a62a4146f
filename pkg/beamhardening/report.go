package beamhardening

import (
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/stat"

	"soilct/pkg/correction"
	"soilct/pkg/fitting"
	"soilct/pkg/gapfill"
	"soilct/pkg/radial"
)

// Report summarizes a correction run. The profiles, fits and maps are kept
// for inspection and diagnostic output.
type Report struct {
	// StandardRadius is the length of the radius axis in voxels
	StandardRadius int

	// Slices is the depth of the volume, ValidSlices the number of slices
	// with usable wall geometry
	Slices      int
	ValidSlices int

	// MatrixR2 and GammaR2 are the R² of the per-slice fits before screening
	MatrixR2 []float64
	GammaR2  []float64

	// MatrixKnots and GammaKnots are the slices the maps were interpolated from
	MatrixKnots []int
	GammaKnots  []int

	// MatrixRejected and GammaRejected are the slices the screen discarded
	MatrixRejected []int
	GammaRejected  []int

	// Imputed are the slices outside the reliably fitted depth range
	Imputed []int

	// ExpectedSpan is the median matrix brightness span of the reliable fits
	ExpectedSpan float64

	// GammaEnabled is false when every air-phase curve was flattened
	GammaEnabled bool

	Elapsed time.Duration

	Modes         *radial.Modes
	AirPhaseModes *radial.Modes
	MatrixFit     *fitting.Results
	GammaFit      *fitting.Results
	MatrixMap     *correction.Map
	GammaMap      *correction.Map
}

func newReport(modes, airModes *radial.Modes, matrixFit, gammaFit *fitting.Results,
	matrixFilled, gammaFilled *gapfill.Filled, matrixMap, gammaMap *correction.Map) *Report {
	r := &Report{
		StandardRadius: modes.StandardRadius,
		Slices:         modes.Depth(),
		MatrixR2:       append([]float64(nil), matrixFit.R2...),
		GammaR2:        append([]float64(nil), gammaFit.R2...),
		MatrixKnots:    matrixFilled.Knots,
		GammaKnots:     gammaFilled.Knots,
		MatrixRejected: matrixFilled.Rejected,
		GammaRejected:  gammaFilled.Rejected,
		Imputed:        matrixFilled.Imputed,
		ExpectedSpan:   matrixFilled.ExpectedSpan,
		Modes:          modes,
		AirPhaseModes:  airModes,
		MatrixFit:      matrixFit,
		GammaFit:       gammaFit,
		MatrixMap:      matrixMap,
		GammaMap:       gammaMap,
	}
	for _, ok := range modes.Valid {
		if ok {
			r.ValidSlices++
		}
	}
	for _, params := range gammaFilled.Results.Params {
		if len(params) > fitting.HyperbolicS && params[fitting.HyperbolicS] != 0 {
			r.GammaEnabled = true
			break
		}
	}
	return r
}

// MeanMatrixR2 returns the mean matrix fit R² over the valid slices
func (r *Report) MeanMatrixR2() float64 { return r.meanR2(r.MatrixR2) }

// MeanGammaR2 returns the mean air-phase fit R² over the valid slices
func (r *Report) MeanGammaR2() float64 { return r.meanR2(r.GammaR2) }

func (r *Report) meanR2(r2 []float64) float64 {
	var vals []float64
	for z, v := range r2 {
		if r.Modes == nil || r.Modes.Valid[z] {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// Print writes a human-readable summary of the run
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Correction Report:\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Standard radius: %d voxels\n", r.StandardRadius)
	fmt.Fprintf(w, "Slices with wall geometry: %d of %d\n", r.ValidSlices, r.Slices)
	fmt.Fprintf(w, "Mean matrix fit R²: %.4f\n", r.MeanMatrixR2())
	fmt.Fprintf(w, "Expected brightness span: %.1f\n", r.ExpectedSpan)
	fmt.Fprintf(w, "Matrix knots: %d (rejected %d, imputed %d)\n",
		len(r.MatrixKnots), len(r.MatrixRejected), len(r.Imputed))
	fmt.Fprintf(w, "Mean air-phase fit R²: %.4f\n", r.MeanGammaR2())
	fmt.Fprintf(w, "Air-phase knots: %d (rejected %d)\n", len(r.GammaKnots), len(r.GammaRejected))
	fmt.Fprintf(w, "Gamma correction: %s\n", onOff(r.GammaEnabled))
	fmt.Fprintf(w, "Processing time: %.2f seconds\n", r.Elapsed.Seconds())
}
