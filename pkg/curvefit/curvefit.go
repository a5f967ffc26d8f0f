// Package curvefit provides nonlinear least-squares fitting of parametric
// models to 1D data, plus the standard model functions used in transport
// trace analysis.
package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrInsufficientData reports too few samples for the requested fit.
	ErrInsufficientData = errors.New("insufficient data for fit")

	// ErrConvergence reports a minimizer that stopped without reaching a
	// minimum.
	ErrConvergence = errors.New("fit did not converge")
)

// ConvergenceError carries the minimizer state at the point of failure so
// callers can inspect the last iterate.
type ConvergenceError struct {
	Status     optimize.Status
	LastParams []float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("fit did not converge: status=%v", e.Status)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// Model evaluates a parametric curve at a single point.
type Model func(x float64, params []float64) float64

// Options tune the least-squares driver. The zero value uses the minimizer
// defaults.
type Options struct {
	// MaxEvals bounds objective function evaluations. Zero means no
	// explicit bound.
	MaxEvals int
}

// Result holds a converged least-squares fit.
type Result struct {
	Params       []float64
	InitialGuess []float64
	RSS          float64 // residual sum of squares at Params
	FuncEvals    int
	MajorIters   int
}

// LeastSquares fits model to (xs, ys) by minimizing the residual sum of
// squares over the parameter vector, starting from p0. Minimization uses
// Nelder-Mead with a quasi-Newton retry when the simplex stalls.
//
// A failed minimization returns a *ConvergenceError wrapping ErrConvergence;
// its LastParams field holds the best iterate found.
func LeastSquares(model Model, xs, ys, p0 []float64, opts *Options) (*Result, error) {
	if model == nil {
		return nil, errors.New("model function is nil")
	}
	if len(p0) == 0 {
		return nil, errors.New("initial parameter vector is empty")
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d x values vs %d y values", ErrInsufficientData, len(xs), len(ys))
	}
	if len(xs) < len(p0) {
		return nil, fmt.Errorf("%w: %d samples for %d parameters", ErrInsufficientData, len(xs), len(p0))
	}

	rss := func(p []float64) float64 {
		var sum float64
		for i, x := range xs {
			r := model(x, p) - ys[i]
			sum += r * r
		}
		return sum
	}

	problem := optimize.Problem{
		Func: rss,
		Grad: func(grad, p []float64) {
			fd.Gradient(grad, rss, p, nil)
		},
	}

	settings := &optimize.Settings{}
	if opts != nil && opts.MaxEvals > 0 {
		settings.FuncEvaluations = opts.MaxEvals
	}

	initial := append([]float64(nil), p0...)

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || !converged(result.Status) {
		// Retry with a quasi-Newton method before giving up.
		retry, retryErr := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
		if retryErr == nil && converged(retry.Status) {
			result = retry
		} else {
			return nil, convergenceFailure(result, retry, p0)
		}
	}

	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ConvergenceError{
				Status:     result.Status,
				LastParams: append([]float64(nil), result.X...),
			}
		}
	}

	return &Result{
		Params:       append([]float64(nil), result.X...),
		InitialGuess: append([]float64(nil), p0...),
		RSS:          result.F,
		FuncEvals:    result.Stats.FuncEvaluations,
		MajorIters:   result.Stats.MajorIterations,
	}, nil
}

// converged accepts the statuses that indicate a usable minimum.
func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// convergenceFailure picks the better of the two attempts as the reported
// last iterate.
func convergenceFailure(first, retry *optimize.Result, p0 []float64) *ConvergenceError {
	last := append([]float64(nil), p0...)
	status := optimize.NotTerminated
	best := math.Inf(1)
	if first != nil && len(first.X) > 0 {
		last = append([]float64(nil), first.X...)
		status = first.Status
		best = first.F
	}
	if retry != nil && len(retry.X) > 0 && retry.F < best {
		last = append([]float64(nil), retry.X...)
		status = retry.Status
	}
	return &ConvergenceError{Status: status, LastParams: last}
}

// StandardErrors estimates per-parameter standard errors at params from the
// finite-difference residual Jacobian (diagonal of the scaled covariance
// matrix). Every entry is NaN when the system is underdetermined or the
// normal equations are exactly singular.
func StandardErrors(model Model, xs, ys, params []float64) []float64 {
	m, n := len(xs), len(params)
	se := make([]float64, n)
	if model == nil || m != len(ys) || m <= n {
		return fillNaN(se)
	}

	resid := func(r, p []float64) {
		for i, x := range xs {
			r[i] = model(x, p) - ys[i]
		}
	}

	jac := mat.NewDense(m, n, nil)
	fd.Jacobian(jac, resid, params, nil)

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var cov mat.Dense
	if err := cov.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fillNaN(se)
		}
		// Ill-conditioned but computed: the estimates degrade gracefully.
	}

	r := make([]float64, m)
	resid(r, params)
	var rss float64
	for _, v := range r {
		rss += v * v
	}
	sigma2 := rss / float64(m-n)

	for i := 0; i < n; i++ {
		se[i] = math.Sqrt(sigma2 * cov.At(i, i))
	}
	return se
}

func fillNaN(s []float64) []float64 {
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
