package fitting

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	lambdaInit    = 1e-3
	lambdaMax     = 1e12
	jacobianStep  = 1e-6
	costTolerance = 1e-12
)

// residualFunc writes model(x) - data into r. It returns an error when the
// model cannot be evaluated at params.
type residualFunc func(r, params []float64) error

// levenberg minimizes the squared norm of f starting from p0 and returns the
// best parameters found. Every call to f counts against maxEval, including
// the finite-difference Jacobian columns.
func levenberg(f residualFunc, p0 []float64, m, maxEval int) ([]float64, int, error) {
	n := len(p0)
	evals := 0
	eval := func(r, p []float64) error {
		evals++
		return f(r, p)
	}

	p := append([]float64(nil), p0...)
	r := make([]float64, m)
	if err := eval(r, p); err != nil {
		return nil, evals, err
	}
	cost := floats.Dot(r, r)

	jac := mat.NewDense(m, n, nil)
	var jtj mat.Dense
	var grad mat.VecDense
	var step mat.VecDense
	a := mat.NewDense(n, n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)

	lambda := lambdaInit
	for evals+n < maxEval {
		jacOK := true
		fd.Jacobian(jac, func(y, x []float64) {
			if err := eval(y, x); err != nil {
				jacOK = false
			}
		}, p, &fd.JacobianSettings{
			Formula:     fd.Forward,
			OriginValue: r,
			Step:        jacobianStep,
		})
		if !jacOK || hasNaN(jac) {
			break
		}

		jtj.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		improved := false
		for evals < maxEval && lambda < lambdaMax {
			a.Copy(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				if d < 1e-12 {
					d = 1e-12
				}
				a.Set(i, i, d*(1+lambda))
			}
			if err := step.SolveVec(a, &grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range trial {
				trial[i] = p[i] - step.AtVec(i)
			}
			if err := eval(rTrial, trial); err != nil {
				lambda *= 10
				continue
			}
			trialCost := floats.Dot(rTrial, rTrial)
			if math.IsNaN(trialCost) || trialCost >= cost {
				lambda *= 10
				continue
			}

			decrease := cost - trialCost
			copy(p, trial)
			copy(r, rTrial)
			cost = trialCost
			lambda = math.Max(lambda/10, 1e-12)
			improved = true
			if decrease <= costTolerance*(1+cost) {
				return p, evals, nil
			}
			break
		}
		if !improved {
			break
		}
	}
	return p, evals, nil
}

func hasNaN(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
