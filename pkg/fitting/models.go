// Package fitting fits parametric brightness-vs-radius curves to radial
// profiles, one depth slice at a time.
package fitting

import (
	"errors"
	"math"
)

// ErrNotStrictlyPositive is returned when a model is evaluated at parameters
// for which it is undefined.
var ErrNotStrictlyPositive = errors.New("model argument not strictly positive")

// Model is a parametric curve y = f(x; params)
type Model interface {
	// Name identifies the model in logs and reports
	Name() string

	// NumParams is the length of the parameter vector
	NumParams() int

	// Value evaluates the curve at x
	Value(x float64, params []float64) (float64, error)
}

// Generalized logistic parameter indices
const (
	LogisticK = iota // upper asymptote
	LogisticM        // inflection position
	LogisticB        // growth rate
	LogisticQ        // position scaling
	LogisticA        // lower asymptote
	LogisticN        // asymmetry
)

// Logistic is the 6-parameter generalized logistic function
//
//	f(x) = A + (K - A) / (1 + Q·exp(B·(M - x)))^(1/N)
type Logistic struct{}

// Name implements Model
func (Logistic) Name() string { return "generalized logistic" }

// NumParams implements Model
func (Logistic) NumParams() int { return 6 }

// Value implements Model
func (Logistic) Value(x float64, p []float64) (float64, error) {
	k, m, b, q, a, n := p[LogisticK], p[LogisticM], p[LogisticB], p[LogisticQ], p[LogisticA], p[LogisticN]
	if n <= 0 || q <= 0 {
		return 0, ErrNotStrictlyPositive
	}
	base := 1 + q*math.Exp(b*(m-x))
	v := a + (k-a)/math.Pow(base, 1/n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotStrictlyPositive
	}
	return v, nil
}

// Hyperbolic parameter indices
const (
	HyperbolicC = iota // curvature offset, must be positive
	HyperbolicS        // amplitude, zero gives a flat curve
)

// Hyperbolic is a 2-parameter hyperbola anchored at the wall: it passes
// through Reference at radius MaxRadius for every parameter set.
//
//	g(x) = Reference + S·(1/(x + C) - 1/(MaxRadius + C))
type Hyperbolic struct {
	MaxRadius float64
	Reference float64
}

// Name implements Model
func (Hyperbolic) Name() string { return "hyperbolic" }

// NumParams implements Model
func (Hyperbolic) NumParams() int { return 2 }

// Value implements Model
func (h Hyperbolic) Value(x float64, p []float64) (float64, error) {
	c, s := p[HyperbolicC], p[HyperbolicS]
	if c <= 0 || x+c <= 0 {
		return 0, ErrNotStrictlyPositive
	}
	return h.Reference + s*(1/(x+c)-1/(h.MaxRadius+c)), nil
}

// Curve evaluates model over xs. It fails on the first point the model cannot
// evaluate.
func Curve(model Model, xs, params []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		v, err := model.Value(x, params)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
