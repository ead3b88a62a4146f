// Package gapfill screens per-slice curve fits for plausibility and fills
// rejected or missing slices from their accepted neighbours across depth.
package gapfill

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"soilct/pkg/fitting"
	"soilct/pkg/radial"
)

// Params holds the acceptance thresholds of the gap-filling policy
type Params struct {
	// GoodnessCriterion is the R² a matrix fit needs to be used as a knot
	GoodnessCriterion float64

	// SevereGoodnessCriterion is the R² a matrix fit needs to define the
	// expected brightness span and the boundary shape
	SevereGoodnessCriterion float64

	// GammaGoodnessCriterion is the R² an air-phase fit needs to be used as a knot
	GammaGoodnessCriterion float64

	// ImputedR2Epsilon is added to the acceptance threshold to mark imputed
	// boundary slices as marginally accepted
	ImputedR2Epsilon float64

	// GammaConsistencyRatio rejects air-phase fits whose extrapolated centre
	// brightness comes too close to the matrix reference
	GammaConsistencyRatio float64
}

// DefaultParams returns the default thresholds
func DefaultParams() Params {
	return Params{
		GoodnessCriterion:       0.9,
		SevereGoodnessCriterion: 0.98,
		GammaGoodnessCriterion:  0.7,
		ImputedR2Epsilon:        0.01,
		GammaConsistencyRatio:   3,
	}
}

// Filled is a gap-free set of per-slice curve parameters
type Filled struct {
	// Results holds the interpolated parameters of every slice and the R²
	// after screening and boundary imputation
	Results *fitting.Results

	// Knots are the slice indices the interpolation passes through, ascending.
	// The first and last slice are always knots.
	Knots []int

	// Rejected lists slices discarded by the plausibility screen
	Rejected []int

	// Imputed lists slices outside the reliably fitted depth range
	Imputed []int

	// ExpectedSpan is the median upper minus median lower asymptote of the
	// reliable matrix fits
	ExpectedSpan float64
}

// IsKnot reports whether slice z is an interpolation knot
func (f *Filled) IsKnot(z int) bool {
	i := sort.SearchInts(f.Knots, z)
	return i < len(f.Knots) && f.Knots[i] == z
}

// Matrix screens and gap-fills the generalized logistic fits of the matrix
// brightness profile. When no slice passes the severe threshold every slice
// gets a curve that is flat at its wall brightness. fit is not modified.
func Matrix(fit *fitting.Results, modes *radial.Modes, p Params) (*Filled, error) {
	if fit.Depth() != modes.Depth() {
		return nil, fmt.Errorf("fit has %d slices but profiles have %d", fit.Depth(), modes.Depth())
	}
	s := screen(fit, p.SevereGoodnessCriterion)
	if !s.ok {
		opsf("no matrix fit passed the severe goodness criterion %.2f, beam-hardening curves left flat",
			p.SevereGoodnessCriterion)
		return flatMatrix(fit, modes, s, p), nil
	}

	res := fit.Clone()
	res.R2 = s.r2
	var imputed []int
	for z := 0; z < res.Depth(); z++ {
		var src int
		switch {
		case z < s.first:
			src = s.first
		case z > s.last:
			src = s.last
		default:
			continue
		}
		imputeWallShape(res, modes, z, src)
		res.R2[z] = p.GoodnessCriterion + p.ImputedR2Epsilon
		imputed = append(imputed, z)
	}

	knots := selectKnots(res, p.GoodnessCriterion)
	if err := interpolate(res.Params, knots); err != nil {
		return nil, err
	}

	diagf("matrix: expected span %.1f, %d rejected, %d imputed, %d knots of %d slices",
		s.span, len(s.rejected), len(imputed), len(knots), res.Depth())
	return &Filled{
		Results:      res,
		Knots:        knots,
		Rejected:     s.rejected,
		Imputed:      imputed,
		ExpectedSpan: s.span,
	}, nil
}

// flatMatrix gives every slice a curve with both asymptotes at the nearest
// observed wall brightness, so the matrix map is constant along the radius.
func flatMatrix(fit *fitting.Results, modes *radial.Modes, s screening, p Params) *Filled {
	res := fit.Clone()
	res.R2 = s.r2
	imputed := make([]int, res.Depth())
	for z, params := range res.Params {
		k := nearestWallMode(modes, z)
		if math.IsNaN(k) {
			k = params[fitting.LogisticK]
		}
		params[fitting.LogisticK], params[fitting.LogisticA] = k, k
		if !(params[fitting.LogisticQ] > 0) {
			params[fitting.LogisticQ] = 1
		}
		if !(params[fitting.LogisticN] > 0) {
			params[fitting.LogisticN] = 1
		}
		res.R2[z] = p.GoodnessCriterion + p.ImputedR2Epsilon
		imputed[z] = z
	}
	knots := selectKnots(res, p.GoodnessCriterion)
	diagf("matrix: flat curves for all %d slices, %d rejected", res.Depth(), len(s.rejected))
	return &Filled{
		Results:      res,
		Knots:        knots,
		Rejected:     s.rejected,
		Imputed:      imputed,
		ExpectedSpan: s.span,
	}
}

// Gamma screens and gap-fills the hyperbolic air-phase fits. The plausibility
// screen and the reliable depth range come from the matrix fits; modes must be
// the profiles the air-phase curves were fitted to. Neither fit is modified.
func Gamma(matrixFit, gammaFit *fitting.Results, modes *radial.Modes, p Params) (*Filled, error) {
	if gammaFit.Depth() != matrixFit.Depth() || gammaFit.Depth() != modes.Depth() {
		return nil, fmt.Errorf("fit depths %d and %d do not match %d profile slices",
			matrixFit.Depth(), gammaFit.Depth(), modes.Depth())
	}
	s := screen(matrixFit, p.SevereGoodnessCriterion)

	res := gammaFit.Clone()
	var rejected []int
	for _, z := range s.implausible {
		if res.R2[z] > 0 {
			tracef("slice %d: air-phase fit dropped with its implausible matrix fit", z)
			rejected = append(rejected, z)
		}
		res.R2[z] = 0
	}
	for z := 0; z < res.Depth(); z++ {
		if res.R2[z] == 0 {
			continue
		}
		if !consistent(res, modes, z, p.GammaConsistencyRatio) {
			tracef("slice %d: air-phase fit extrapolates too bright a centre", z)
			res.R2[z] = 0
			rejected = append(rejected, z)
		}
	}
	sort.Ints(rejected)

	var imputed []int
	for z := 0; z < res.Depth(); z++ {
		if s.ok && z >= s.first && z <= s.last {
			continue
		}
		flatten(res.Params[z])
		res.R2[z] = p.GammaGoodnessCriterion + p.ImputedR2Epsilon
		imputed = append(imputed, z)
	}

	accepted := 0
	for _, v := range res.R2 {
		if v > p.GammaGoodnessCriterion {
			accepted++
		}
	}
	if accepted == 0 {
		opsf("no air-phase fit accepted, gamma correction disabled")
		for z := range res.Params {
			flatten(res.Params[z])
		}
	}

	knots := selectKnots(res, p.GammaGoodnessCriterion)
	if err := interpolate(res.Params, knots); err != nil {
		return nil, err
	}

	diagf("gamma: %d rejected, %d imputed, %d knots of %d slices",
		len(rejected), len(imputed), len(knots), res.Depth())
	return &Filled{
		Results:      res,
		Knots:        knots,
		Rejected:     rejected,
		Imputed:      imputed,
		ExpectedSpan: s.span,
	}, nil
}

// screening is the outcome of the plausibility screen of the matrix fits
type screening struct {
	// r2 is a copy of the fit R² with every implausible fit set to 0
	r2 []float64

	// span is the expected brightness span, 0 without reliable fits
	span float64

	// implausible lists every slice whose K − A lies outside [0, span];
	// rejected only those among them that had a positive R²
	implausible []int
	rejected    []int

	// first and last bound the reliably fitted depth range when ok
	first, last int
	ok          bool
}

// screen computes the expected brightness span from the reliable fits in the
// middle third of the column and sets the R² of every implausible fit to 0.
func screen(fit *fitting.Results, severe float64) screening {
	depth := fit.Depth()
	s := screening{r2: append([]float64(nil), fit.R2...)}
	var ks, as []float64
	collect := func(from, to int) {
		for z := from; z < to; z++ {
			if fit.R2[z] > severe {
				ks = append(ks, fit.Params[z][fitting.LogisticK])
				as = append(as, fit.Params[z][fitting.LogisticA])
			}
		}
	}
	collect(depth/3, 2*depth/3)
	if len(ks) == 0 {
		// short stacks have an empty or unreliable middle third
		collect(0, depth)
	}
	if len(ks) == 0 {
		return s
	}
	s.span = median(ks) - median(as)

	for z := 0; z < depth; z++ {
		d := fit.Params[z][fitting.LogisticK] - fit.Params[z][fitting.LogisticA]
		if d > s.span || d < 0 {
			s.implausible = append(s.implausible, z)
			if s.r2[z] > 0 {
				tracef("slice %d: brightness span %.1f outside [0, %.1f]", z, d, s.span)
				s.rejected = append(s.rejected, z)
			}
			s.r2[z] = 0
		}
	}
	s.first, s.last, s.ok = reliableRange(s.r2, severe)
	return s
}

// reliableRange returns the first and last slice whose R² exceeds severe
func reliableRange(r2 []float64, severe float64) (first, last int, ok bool) {
	first, last = -1, -1
	for z, v := range r2 {
		if v > severe {
			if first < 0 {
				first = z
			}
			last = z
		}
	}
	return first, last, first >= 0
}

// imputeWallShape gives slice z the curve shape of slice src with the
// asymptotes set to the locally observed wall brightness.
func imputeWallShape(res *fitting.Results, modes *radial.Modes, z, src int) {
	dst, shape := res.Params[z], res.Params[src]
	k := modes.WallMode(z)
	if math.IsNaN(k) {
		k = shape[fitting.LogisticK]
	}
	copy(dst, shape)
	dst[fitting.LogisticK] = k
	dst[fitting.LogisticA] = k - 1
}

// nearestWallMode returns the wall brightness of slice z, or of the nearest
// slice where it is defined. NaN when no slice has one.
func nearestWallMode(modes *radial.Modes, z int) float64 {
	for d := 0; d < modes.Depth(); d++ {
		for _, i := range []int{z - d, z + d} {
			if i < 0 || i >= modes.Depth() {
				continue
			}
			if v := modes.WallMode(i); !math.IsNaN(v) {
				return v
			}
		}
	}
	return math.NaN()
}

// consistent reports whether the air-phase curve of slice z keeps a
// plausible distance from the matrix reference at the column centre.
func consistent(res *fitting.Results, modes *radial.Modes, z int, ratio float64) bool {
	refMatrix := modes.WallMode(z)
	refAir := modes.WallMinimum(z)
	centre, err := res.Value(z, 0)
	if err != nil {
		return false
	}
	den := refMatrix - centre
	if den == 0 {
		return false
	}
	return (refMatrix-refAir)/den <= ratio
}

// flatten turns a hyperbolic parameter set into the flat curve
func flatten(params []float64) {
	params[fitting.HyperbolicS] = 0
	if params[fitting.HyperbolicC] <= 0 {
		params[fitting.HyperbolicC] = 1
	}
}

// selectKnots returns the accepted slices plus the first and last slice. A
// boundary slice that was not accepted copies the parameters of its nearest
// accepted neighbour.
func selectKnots(res *fitting.Results, accept float64) []int {
	depth := res.Depth()
	var accepted []int
	for z, v := range res.R2 {
		if v > accept {
			accepted = append(accepted, z)
		}
	}
	if len(accepted) > 0 {
		if accepted[0] != 0 {
			copy(res.Params[0], res.Params[accepted[0]])
		}
		if accepted[len(accepted)-1] != depth-1 {
			copy(res.Params[depth-1], res.Params[accepted[len(accepted)-1]])
		}
	}

	knots := make([]int, 0, len(accepted)+2)
	if len(accepted) == 0 || accepted[0] != 0 {
		knots = append(knots, 0)
	}
	knots = append(knots, accepted...)
	if depth > 1 && knots[len(knots)-1] != depth-1 {
		knots = append(knots, depth-1)
	}
	return knots
}

// interpolate fills every non-knot row of params by linear interpolation of
// each component between the surrounding knots.
func interpolate(params [][]float64, knots []int) error {
	if len(knots) < 2 {
		return nil
	}
	xs := make([]float64, len(knots))
	for i, k := range knots {
		xs[i] = float64(k)
	}
	ys := make([]float64, len(knots))
	n := len(params[0])
	for j := 0; j < n; j++ {
		for i, k := range knots {
			ys[i] = params[k][j]
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return fmt.Errorf("failed to interpolate parameter %d: %w", j, err)
		}
		for z := range params {
			params[z][j] = pl.Predict(float64(z))
		}
	}
	return nil
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
