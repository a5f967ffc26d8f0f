// Package polarization fits the thermally broadened two-level model of an
// inter-dot charge transition to a 1D detuning sweep, recovering the tunnel
// coupling and the linear baselines on either side of the transition.
package polarization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/qdotlab/dotscope/pkg/curvefit"
)

var (
	// ErrInsufficientData reports a fit request with fewer than six samples
	// or mismatched detuning/signal lengths. No minimization is performed.
	ErrInsufficientData = errors.New("insufficient polarization data")

	// ErrFitConvergence reports a minimizer that failed to converge or
	// produced non-finite parameters. The wrapped *curvefit.ConvergenceError
	// carries the last iterate for diagnostics.
	ErrFitConvergence = errors.New("polarization fit did not converge")
)

// minSamples is the smallest dataset that keeps the six-parameter fit
// well posed.
const minSamples = 6

// Params are the six physical parameters of the polarization-line model.
// Energies share the units of the detuning axis.
type Params struct {
	TunnelCoupling float64 // t, reported non-negative (the model depends on t^2)
	Center         float64 // x0, detuning of the transition midpoint
	Offset         float64 // signal offset
	SlopeLeft      float64 // baseline slope left of the transition
	SlopeRight     float64 // baseline slope right of the transition
	Height         float64 // transition amplitude
}

func (p Params) vector() []float64 {
	return []float64{p.TunnelCoupling, p.Center, p.Offset, p.SlopeLeft, p.SlopeRight, p.Height}
}

func paramsFromVector(v []float64) Params {
	return Params{
		TunnelCoupling: v[0],
		Center:         v[1],
		Offset:         v[2],
		SlopeLeft:      v[3],
		SlopeRight:     v[4],
		Height:         v[5],
	}
}

// Model evaluates the polarization-line model at detuning x for thermal
// energy kT:
//
//	xc    = x - x0
//	omega = sqrt(xc^2 + 4t^2)
//	Q     = (1 + (xc/omega)*tanh(omega/(2kT))) / 2
//	y     = off + xc*(slopeL + (slopeR-slopeL)*Q) + height*Q
//
// Q is the excess-charge polarization of the two-level system; at omega = 0
// it is taken at its limit 1/2, which makes y(x0) = off + height/2 exactly.
// Pure function, no side effects.
func Model(x float64, p Params, kT float64) float64 {
	xc := x - p.Center
	omega := math.Sqrt(xc*xc + 4*p.TunnelCoupling*p.TunnelCoupling)
	q := 0.5
	if omega != 0 {
		q = (1 + (xc/omega)*math.Tanh(omega/(2*kT))) / 2
	}
	return p.Offset + xc*(p.SlopeLeft+(p.SlopeRight-p.SlopeLeft)*q) + p.Height*q
}

// Curve evaluates the model element-wise over a detuning slice, for plotting
// collaborators and synthetic-data generation.
func Curve(xs []float64, p Params, kT float64) []float64 {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = Model(x, p, kT)
	}
	return ys
}

// FitResult holds the recovered parameters of one polarization-line fit plus
// minimizer diagnostics.
type FitResult struct {
	Params       Params
	InitialGuess Params

	// StdErrors estimates the per-parameter standard error from the
	// finite-difference Jacobian at the minimum. Entries are NaN when the
	// covariance is not computable.
	StdErrors Params

	RSS        float64
	FuncEvals  int
	MajorIters int
}

// Fit recovers the six model parameters from a detuning sweep by nonlinear
// least squares. Both slices must be non-empty, of equal length, and hold at
// least six samples; otherwise ErrInsufficientData is returned before any
// minimization. Convergence failures return ErrFitConvergence wrapping the
// minimizer's last iterate.
//
// The initial guess matters: the residual surface is non-convex, so the
// driver seeds the minimizer from the data itself (midpoint center, baseline
// slopes regressed over the outer thirds of the sweep, amplitude from the
// de-sloped signal range, coupling at kT/4).
func Fit(detuning, signal []float64, kT float64) (*FitResult, error) {
	if len(detuning) != len(signal) {
		return nil, fmt.Errorf("%w: %d detuning values vs %d signal values", ErrInsufficientData, len(detuning), len(signal))
	}
	if len(detuning) < minSamples {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrInsufficientData, len(detuning), minSamples)
	}

	guess := initialGuess(detuning, signal, kT)

	model := func(x float64, p []float64) float64 {
		return Model(x, paramsFromVector(p), kT)
	}

	res, err := curvefit.LeastSquares(model, detuning, signal, guess.vector(), nil)
	if err != nil {
		var conv *curvefit.ConvergenceError
		if errors.As(err, &conv) {
			return nil, fmt.Errorf("%w: %w", ErrFitConvergence, conv)
		}
		return nil, err
	}

	fitted := paramsFromVector(res.Params)
	// The model depends on t only through t^2; report the physical,
	// non-negative coupling.
	fitted.TunnelCoupling = math.Abs(fitted.TunnelCoupling)

	se := curvefit.StandardErrors(model, detuning, signal, res.Params)

	return &FitResult{
		Params:       fitted,
		InitialGuess: guess,
		StdErrors:    paramsFromVector(se),
		RSS:          res.RSS,
		FuncEvals:    res.FuncEvals,
		MajorIters:   res.MajorIters,
	}, nil
}

// initialGuess derives a starting parameter vector from the data.
func initialGuess(detuning, signal []float64, kT float64) Params {
	n := len(detuning)
	lo, hi := detuning[0], detuning[0]
	for _, x := range detuning {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	center := (lo + hi) / 2

	// Baseline slopes from linear regression over the outer thirds of the
	// sweep, where the transition term is saturated.
	third := n / 3
	if third < 2 {
		third = 2
	}
	_, slopeL := stat.LinearRegression(detuning[:third], signal[:third], nil, false)
	_, slopeR := stat.LinearRegression(detuning[n-third:], signal[n-third:], nil, false)

	// De-slope the signal with the mean baseline slope, then take the
	// remaining range as the transition amplitude.
	meanSlope := (slopeL + slopeR) / 2
	minDS, maxDS := math.Inf(1), math.Inf(-1)
	for i, x := range detuning {
		ds := signal[i] - meanSlope*(x-center)
		minDS = math.Min(minDS, ds)
		maxDS = math.Max(maxDS, ds)
	}
	height := maxDS - minDS

	// Anchor the offset so the guess curve passes through the de-sloped
	// level at the center: y(x0) = off + height/2.
	offset := minDS

	return Params{
		TunnelCoupling: kT / 4,
		Center:         center,
		Offset:         offset,
		SlopeLeft:      slopeL,
		SlopeRight:     slopeR,
		Height:         height,
	}
}
