package curvefit

import "math"

// Gaussian evaluates a Gaussian profile at x.
func Gaussian(x, mean, sigma, amplitude, offset float64) float64 {
	d := (x - mean) / sigma
	return amplitude*math.Exp(-0.5*d*d) + offset
}

// GaussianModel adapts Gaussian to the Model signature.
// Parameter order: mean, sigma, amplitude, offset.
func GaussianModel(x float64, p []float64) float64 {
	return Gaussian(x, p[0], p[1], p[2], p[3])
}

// DoubleGaussian evaluates the sum of two Gaussian components at x.
// Parameter order: ampDown, ampUp, sigmaDown, sigmaUp, meanDown, meanUp.
func DoubleGaussian(x float64, p []float64) float64 {
	return Gaussian(x, p[4], p[2], p[0], 0) + Gaussian(x, p[5], p[3], p[1], 0)
}

// ExpDecay evaluates amplitude*exp(-rate*x) + offset at x.
func ExpDecay(x, amplitude, offset, rate float64) float64 {
	return amplitude*math.Exp(-rate*x) + offset
}

// ExpDecayModel adapts ExpDecay to the Model signature.
// Parameter order: amplitude, offset, rate.
func ExpDecayModel(x float64, p []float64) float64 {
	return ExpDecay(x, p[0], p[1], p[2])
}
