package curvefit

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FitGaussian fits a single Gaussian profile to (xs, ys). The initial guess
// comes from weighted moments of the data.
// Fitted parameter order: mean, sigma, amplitude, offset.
func FitGaussian(xs, ys []float64) (*Result, error) {
	offset := minOf(ys)
	weights := make([]float64, len(ys))
	for i, y := range ys {
		weights[i] = math.Max(y-offset, 0)
	}
	mean, sigma := weightedMoments(xs, weights)

	p0 := []float64{mean, sigma, maxOf(ys) - offset, offset}
	return LeastSquares(GaussianModel, xs, ys, p0, nil)
}

// DoubleGaussianResult extends a double-Gaussian fit with the derived
// level-splitting quantities used by telegraph-signal analysis.
type DoubleGaussianResult struct {
	*Result

	// Separation is the distance between the two means in units of the
	// summed standard deviations: (meanUp - meanDown) / (sigmaDown + sigmaUp).
	Separation float64

	// Split is the variance-weighted crossing point between the two levels:
	// (sigmaUp*meanDown + sigmaDown*meanUp) / (sigmaDown + sigmaUp).
	Split float64
}

// FitDoubleGaussian fits the sum of two Gaussians to (xs, ys), ordering the
// fitted components so the lower mean is the down level.
// Fitted parameter order: ampDown, ampUp, sigmaDown, sigmaUp, meanDown, meanUp.
func FitDoubleGaussian(xs, ys []float64) (*DoubleGaussianResult, error) {
	res, err := LeastSquares(DoubleGaussian, xs, ys, estimateDoubleGaussian(xs, ys), nil)
	if err != nil {
		return nil, err
	}

	p := res.Params
	if p[4] > p[5] {
		p[0], p[1] = p[1], p[0]
		p[2], p[3] = p[3], p[2]
		p[4], p[5] = p[5], p[4]
	}
	// Sigmas enter the model squared; report them positive.
	p[2], p[3] = math.Abs(p[2]), math.Abs(p[3])

	sigmaSum := p[2] + p[3]
	return &DoubleGaussianResult{
		Result:     res,
		Separation: (p[5] - p[4]) / sigmaSum,
		Split:      (p[3]*p[4] + p[2]*p[5]) / sigmaSum,
	}, nil
}

// estimateDoubleGaussian seeds the fit by splitting the x range at its
// midpoint and taking weighted moments on each side.
func estimateDoubleGaussian(xs, ys []float64) []float64 {
	mid := (minOf(xs) + maxOf(xs)) / 2

	var loX, loY, hiX, hiY []float64
	for i, x := range xs {
		if x <= mid {
			loX = append(loX, x)
			loY = append(loY, ys[i])
		} else {
			hiX = append(hiX, x)
			hiY = append(hiY, ys[i])
		}
	}

	meanDn, sigmaDn, ampDn := sideEstimate(loX, loY, mid)
	meanUp, sigmaUp, ampUp := sideEstimate(hiX, hiY, mid)
	return []float64{ampDn, ampUp, sigmaDn, sigmaUp, meanDn, meanUp}
}

func sideEstimate(xs, ys []float64, fallbackMean float64) (mean, sigma, amp float64) {
	if len(xs) == 0 {
		return fallbackMean, 1, 1
	}
	mean, sigma = weightedMoments(xs, ys)
	amp = maxOf(ys)
	return mean, sigma, amp
}

// weightedMoments returns the weighted mean and standard deviation of xs,
// guarding against degenerate weights.
func weightedMoments(xs, weights []float64) (mean, sigma float64) {
	var totalW bool
	for _, w := range weights {
		if w > 0 {
			totalW = true
			break
		}
	}
	if !totalW {
		mean = stat.Mean(xs, nil)
		sigma = stat.StdDev(xs, nil)
	} else {
		mean = stat.Mean(xs, weights)
		sigma = math.Sqrt(stat.Variance(xs, weights))
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		sigma = spanOf(xs) / 10
		if sigma <= 0 {
			sigma = 1
		}
	}
	return mean, sigma
}

// FitExpDecay fits amplitude*exp(-rate*x) + offset to (xs, ys). The rate is
// seeded from a log-linear regression of the offset-subtracted signal.
// Fitted parameter order: amplitude, offset, rate.
func FitExpDecay(xs, ys []float64) (*Result, error) {
	offset := minOf(ys)

	var logX, logY []float64
	for i, y := range ys {
		if d := y - offset; d > 0 {
			logX = append(logX, xs[i])
			logY = append(logY, math.Log(d))
		}
	}

	rate := 1.0
	if len(logX) >= 2 {
		_, slope := stat.LinearRegression(logX, logY, nil, false)
		if slope < 0 && !math.IsNaN(slope) {
			rate = -slope
		}
	}

	p0 := []float64{maxOf(ys) - offset, offset, rate}
	return LeastSquares(ExpDecayModel, xs, ys, p0, nil)
}

func minOf(s []float64) float64 {
	m := math.Inf(1)
	for _, v := range s {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(s []float64) float64 {
	m := math.Inf(-1)
	for _, v := range s {
		m = math.Max(m, v)
	}
	return m
}

func spanOf(s []float64) float64 {
	return maxOf(s) - minOf(s)
}
