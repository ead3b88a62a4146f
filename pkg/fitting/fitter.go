package fitting

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"soilct/pkg/radial"
)

// DefaultMaxEvaluations caps the residual evaluations spent on one slice
const DefaultMaxEvaluations = 200

// constantTolerance is the absolute or relative deviation within which a curve
// counts as reproducing a constant profile
const constantTolerance = 1e-6

// Results holds one fitted curve per depth slice
type Results struct {
	// Params holds the fitted parameter vector of each slice
	Params [][]float64

	// R2 is the coefficient of determination of each fit, in [0, 1].
	// Failed fits have R² 0.
	R2 []float64

	// NumberOfParams is the parameter vector length of Model
	NumberOfParams int

	// Models is the curve each slice was fitted with. Hyperbolic models are
	// anchored per slice, so the entries may differ.
	Models []Model
}

// NewResults allocates zeroed results for depth slices
func NewResults(depth int, model Model) *Results {
	res := &Results{
		Params:         make([][]float64, depth),
		R2:             make([]float64, depth),
		NumberOfParams: model.NumParams(),
		Models:         make([]Model, depth),
	}
	for z := range res.Params {
		res.Params[z] = make([]float64, model.NumParams())
		res.Models[z] = model
	}
	return res
}

// Depth returns the number of slices
func (r *Results) Depth() int { return len(r.Params) }

// Value evaluates the curve of slice z at x
func (r *Results) Value(z int, x float64) (float64, error) {
	return r.Models[z].Value(x, r.Params[z])
}

// Clone returns a deep copy
func (r *Results) Clone() *Results {
	out := &Results{
		Params:         make([][]float64, len(r.Params)),
		R2:             append([]float64(nil), r.R2...),
		NumberOfParams: r.NumberOfParams,
		Models:         append([]Model(nil), r.Models...),
	}
	for z, p := range r.Params {
		out.Params[z] = append([]float64(nil), p...)
	}
	return out
}

// Options controls the per-slice fits
type Options struct {
	MaxEvaluations int
	NumWorkers     int
}

// DefaultOptions returns the fitting defaults
func DefaultOptions() Options {
	return Options{
		MaxEvaluations: DefaultMaxEvaluations,
		NumWorkers:     runtime.NumCPU(),
	}
}

// FitLogistic fits the generalized logistic curve to the matrix mode profile
// of every valid slice within the fit window of modes.
func FitLogistic(ctx context.Context, modes *radial.Modes, opts Options) (*Results, error) {
	res := NewResults(modes.Depth(), Logistic{})
	err := fitAll(ctx, modes, opts, func(z int) {
		radius, ys, _ := modes.FitWindow(z)
		p0 := logisticGuess(radius, ys)
		res.Params[z], res.R2[z] = fitCurve(Logistic{}, radius, ys, p0, opts.MaxEvaluations)
	})
	if err != nil {
		return nil, err
	}
	diagf("logistic fits: %s", summarize(res.R2, modes.Valid))
	return res, nil
}

// FitHyperbolic fits the wall-anchored hyperbola to the air-phase minimum
// profile of every valid slice within the fit window of modes.
func FitHyperbolic(ctx context.Context, modes *radial.Modes, opts Options) (*Results, error) {
	res := NewResults(modes.Depth(), Hyperbolic{MaxRadius: modes.MaxRadius()})
	for z := range res.Models {
		ref := modes.WallMinimum(z)
		if math.IsNaN(ref) {
			ref = 0
		}
		res.Models[z] = Hyperbolic{MaxRadius: modes.MaxRadius(), Reference: ref}
	}
	err := fitAll(ctx, modes, opts, func(z int) {
		model := res.Models[z].(Hyperbolic)
		radius, _, ys := modes.FitWindow(z)
		p0 := hyperbolicGuess(model, radius, ys)
		res.Params[z], res.R2[z] = fitCurve(model, radius, ys, p0, opts.MaxEvaluations)
	})
	if err != nil {
		return nil, err
	}
	diagf("hyperbolic fits: %s", summarize(res.R2, modes.Valid))
	return res, nil
}

// fitAll runs fit for every valid slice on a bounded worker pool and returns
// once all of them are done.
func fitAll(ctx context.Context, modes *radial.Modes, opts Options, fit func(z int)) error {
	n := opts.NumWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for z := 0; z < modes.Depth(); z++ {
		if !modes.Valid[z] {
			continue
		}
		z := z // per-iteration copy (Go <1.22 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fit(z)
			return nil
		})
	}
	return g.Wait()
}

// fitCurve fits model to (xs, ys) starting at p0. A fit that cannot be
// evaluated keeps p0 and reports R² 0.
func fitCurve(model Model, xs, ys, p0 []float64, maxEval int) ([]float64, float64) {
	if maxEval <= 0 {
		maxEval = DefaultMaxEvaluations
	}
	resid := func(r, p []float64) error {
		for i, x := range xs {
			v, err := model.Value(x, p)
			if err != nil {
				return err
			}
			r[i] = v - ys[i]
		}
		return nil
	}

	params, evals, err := levenberg(resid, p0, len(xs), maxEval)
	if err != nil {
		tracef("%s: initial guess not evaluable: %v", model.Name(), err)
		return p0, 0
	}
	est, err := Curve(model, xs, params)
	if err != nil {
		return params, 0
	}
	r2 := GoodnessOfFit(est, ys)
	tracef("%s: R² %.4f after %d evaluations", model.Name(), r2, evals)
	return params, r2
}

// GoodnessOfFit returns the coefficient of determination of estimates against
// values, clamped to [0, 1]. Constant values have no variance to explain: a
// curve reproducing them scores 1, anything else 0.
func GoodnessOfFit(estimates, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if floats.Max(values) == floats.Min(values) {
		if floats.EqualApprox(estimates, values, constantTolerance) {
			return 1
		}
		return 0
	}
	r2 := stat.RSquaredFrom(estimates, values, nil)
	if math.IsNaN(r2) || r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}

// logisticGuess starts from a shallow logistic that matches the slope of the
// profile across the window at its midpoint.
func logisticGuess(xs, ys []float64) []float64 {
	y0, y1 := ys[0], ys[len(ys)-1]
	d := y1 - y0
	if math.Abs(d) < 1 {
		d = 1
	}
	width := xs[len(xs)-1] - xs[0]
	if width <= 0 {
		width = 1
	}
	p := make([]float64, 6)
	p[LogisticK] = y1 + d
	p[LogisticA] = y0 - d
	p[LogisticM] = (xs[0] + xs[len(xs)-1]) / 2
	p[LogisticB] = 4 / (3 * width)
	p[LogisticQ] = 1
	p[LogisticN] = 1
	return p
}

// hyperbolicGuess places the curvature offset at the standard radius and
// scales the amplitude to hit the innermost sample.
func hyperbolicGuess(h Hyperbolic, xs, ys []float64) []float64 {
	c := h.MaxRadius
	if c <= 0 {
		c = 1
	}
	den := 1/(xs[0]+c) - 1/(h.MaxRadius+c)
	s := 0.0
	if den != 0 {
		s = (ys[0] - h.Reference) / den
	}
	return []float64{c, s}
}

func summarize(r2 []float64, valid []bool) string {
	var n int
	var sum, lo float64
	lo = 1
	for z, v := range r2 {
		if !valid[z] {
			continue
		}
		n++
		sum += v
		lo = math.Min(lo, v)
	}
	if n == 0 {
		return "no valid slices"
	}
	return fmt.Sprintf("%d slices, mean R² %.4f, min R² %.4f", n, sum/float64(n), lo)
}
