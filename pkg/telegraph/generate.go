package telegraph

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/qdotlab/dotscope/pkg/markov"
)

// GenerateOptions tune synthetic RTS generation. Zero values select the
// defaults noted per field.
type GenerateOptions struct {
	SampleRate    float64 // Hz, default 1e6
	RateUp        float64 // down-to-up tunnel rate, Hz, default 10e3
	RateDown      float64 // up-to-down tunnel rate, Hz, default 15e3
	GaussianNoise float64 // std of added Gaussian noise, default 0.1
	UniformNoise  float64 // width of added uniform noise, default 0.05

	// Seed fixes the random stream for reproducible traces. Zero draws a
	// random seed.
	Seed uint64
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.SampleRate == 0 {
		o.SampleRate = 1e6
	}
	if o.RateUp == 0 {
		o.RateUp = 10e3
	}
	if o.RateDown == 0 {
		o.RateDown = 15e3
	}
	if o.GaussianNoise == 0 {
		o.GaussianNoise = 0.1
	}
	if o.UniformNoise == 0 {
		o.UniformNoise = 0.05
	}
	return o
}

// jumpFlip is the two-state flip chain: each jump toggles the level.
func jumpFlip() *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		0, 1,
		1, 0,
	})
}

// Generate produces a synthetic RTS trace of n samples from a two-state
// continuous-time Markov model: 0 is the down level, 1 the up level, with
// uniform and Gaussian noise added on top. Deterministic for a fixed seed.
func Generate(n int, opts GenerateOptions) ([]float64, error) {
	opts = opts.withDefaults()
	if n <= 0 {
		return nil, fmt.Errorf("trace length must be positive, got %d", n)
	}
	if opts.SampleRate < 0 || opts.RateUp < 0 || opts.RateDown < 0 {
		return nil, fmt.Errorf("rates must be positive")
	}

	// Holding rates are per sample: the chain is sampled on the unit grid.
	chain, err := markov.NewChain(
		[]float64{opts.RateUp / opts.SampleRate, opts.RateDown / opts.SampleRate},
		jumpFlip(),
	)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	src := rand.NewPCG(seed, seed)

	states, err := chain.Trace(n, 1, 0, src)
	if err != nil {
		return nil, err
	}

	rng := rand.New(src)
	gauss := distuv.Normal{Mu: 0, Sigma: opts.GaussianNoise, Src: src}

	trace := make([]float64, n)
	for i, s := range states {
		v := float64(s)
		if opts.UniformNoise != 0 {
			v += opts.UniformNoise * (rng.Float64() - 0.5)
		}
		if opts.GaussianNoise != 0 {
			v += gauss.Rand()
		}
		trace[i] = v
	}
	return trace, nil
}
