package beamhardening

import (
	"fmt"
	"io"
	"runtime"

	"soilct/pkg/correction"
	"soilct/pkg/fitting"
	"soilct/pkg/gapfill"
	"soilct/pkg/radial"
)

// Params holds every tunable of the beam-hardening correction
type Params struct {
	// AnglesChecked is the number of rays per slice and the number of wall
	// polygon vertices used for the pixel lookup
	AnglesChecked int

	// RadialStep is the sampling step along a ray in standard-radius voxels
	RadialStep float64

	// CenterCutoff is the fraction of the radius around the centre left out
	// of the curve fits
	CenterCutoff float64

	// Skip is the number of radius buckets next to the wall left out of the fits
	Skip int

	// MaxEvaluations caps the residual evaluations of a single curve fit
	MaxEvaluations int

	// GoodnessCriterion, SevereGoodnessCriterion and GammaGoodnessCriterion
	// are the R² thresholds of the gap-filling policy
	GoodnessCriterion       float64
	SevereGoodnessCriterion float64
	GammaGoodnessCriterion  float64

	// AirPhaseClassMemberMinimum is the number of samples a brightness class
	// must exceed to define the air-phase minimum
	AirPhaseClassMemberMinimum float64

	// MaskingThreshold excludes darker samples from the matrix mode.
	// MaskingThresholds, when set, overrides it per depth slice and must
	// cover every slice of the volume.
	MaskingThreshold  float64
	MaskingThresholds []float64

	// ImputedR2Epsilon marks imputed boundary slices as marginally accepted
	ImputedR2Epsilon float64

	// GammaConsistencyRatio bounds how bright an extrapolated air-phase
	// centre may get relative to the matrix reference
	GammaConsistencyRatio float64

	// BlurSigma and BlurAccuracy size the Gaussian smoothing of both maps
	BlurSigma    float64
	BlurAccuracy float64

	// NumWorkers bounds the number of slices processed concurrently
	NumWorkers int

	// SaveIntermediaryResults writes profile plots, map images and sample
	// corrected slices to IntermediaryDir
	SaveIntermediaryResults bool
	IntermediaryDir         string

	// Progress receives the step-by-step progress lines; nil disables them
	Progress io.Writer
}

// DefaultParams returns the default correction parameters
func DefaultParams() Params {
	return Params{
		AnglesChecked:              72,
		RadialStep:                 0.05,
		CenterCutoff:               0.2,
		Skip:                       2,
		MaxEvaluations:             fitting.DefaultMaxEvaluations,
		GoodnessCriterion:          0.9,
		SevereGoodnessCriterion:    0.98,
		GammaGoodnessCriterion:     0.7,
		AirPhaseClassMemberMinimum: 2,
		MaskingThreshold:           0,
		ImputedR2Epsilon:           0.01,
		GammaConsistencyRatio:      3,
		BlurSigma:                  correction.DefaultBlurSigma,
		BlurAccuracy:               correction.DefaultBlurAccuracy,
		NumWorkers:                 runtime.NumCPU(),
		IntermediaryDir:            "intermediary_results",
	}
}

// Validate reports the first parameter outside its valid range
func (p Params) Validate() error {
	switch {
	case p.AnglesChecked < 3:
		return fmt.Errorf("anglesChecked must be at least 3, got %d", p.AnglesChecked)
	case p.RadialStep <= 0 || p.RadialStep > 1:
		return fmt.Errorf("radialStep must be in (0, 1], got %g", p.RadialStep)
	case p.CenterCutoff < 0 || p.CenterCutoff >= 1:
		return fmt.Errorf("centerCutoff must be in [0, 1), got %g", p.CenterCutoff)
	case p.Skip < 0:
		return fmt.Errorf("skip must be non-negative, got %d", p.Skip)
	case p.MaxEvaluations < 1:
		return fmt.Errorf("maxEvaluations must be positive, got %d", p.MaxEvaluations)
	case !unitInterval(p.GoodnessCriterion), !unitInterval(p.SevereGoodnessCriterion), !unitInterval(p.GammaGoodnessCriterion):
		return fmt.Errorf("goodness criteria must be in [0, 1], got %g, %g, %g",
			p.GoodnessCriterion, p.SevereGoodnessCriterion, p.GammaGoodnessCriterion)
	case p.ImputedR2Epsilon < 0:
		return fmt.Errorf("imputedR2Epsilon must be non-negative, got %g", p.ImputedR2Epsilon)
	case p.GammaConsistencyRatio <= 0:
		return fmt.Errorf("gammaConsistencyRatio must be positive, got %g", p.GammaConsistencyRatio)
	case p.BlurSigma < 0:
		return fmt.Errorf("blurSigma must be non-negative, got %g", p.BlurSigma)
	case p.BlurAccuracy <= 0 || p.BlurAccuracy >= 1:
		return fmt.Errorf("blurAccuracy must be in (0, 1), got %g", p.BlurAccuracy)
	case p.SaveIntermediaryResults && p.IntermediaryDir == "":
		return fmt.Errorf("intermediaryDir is required when saving intermediary results")
	}
	return nil
}

func unitInterval(v float64) bool { return v >= 0 && v <= 1 }

func (p Params) radialParams() radial.Params {
	return radial.Params{
		AnglesChecked:              p.AnglesChecked,
		RadialStep:                 p.RadialStep,
		CenterCutoff:               p.CenterCutoff,
		Skip:                       p.Skip,
		AirPhaseClassMemberMinimum: p.AirPhaseClassMemberMinimum,
		MaskingThreshold:           p.MaskingThreshold,
		MaskingThresholds:          p.MaskingThresholds,
		NumWorkers:                 p.NumWorkers,
	}
}

func (p Params) fittingOptions() fitting.Options {
	return fitting.Options{
		MaxEvaluations: p.MaxEvaluations,
		NumWorkers:     p.NumWorkers,
	}
}

func (p Params) gapfillParams() gapfill.Params {
	return gapfill.Params{
		GoodnessCriterion:       p.GoodnessCriterion,
		SevereGoodnessCriterion: p.SevereGoodnessCriterion,
		GammaGoodnessCriterion:  p.GammaGoodnessCriterion,
		ImputedR2Epsilon:        p.ImputedR2Epsilon,
		GammaConsistencyRatio:   p.GammaConsistencyRatio,
	}
}

func (p Params) mapParams() correction.MapParams {
	return correction.MapParams{
		BlurSigma:    p.BlurSigma,
		BlurAccuracy: p.BlurAccuracy,
	}
}

func (p Params) correctionParams() correction.Params {
	return correction.Params{
		AnglesChecked: p.AnglesChecked,
		NumWorkers:    p.NumWorkers,
	}
}
