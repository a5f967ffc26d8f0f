// Package markov implements continuous-time Markov chains with exact
// event-driven sampling, used to generate random telegraph signals and other
// two-level fluctuator traces.
package markov

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidChain reports a chain definition that is not a valid
// continuous-time Markov model.
var ErrInvalidChain = errors.New("invalid markov chain")

// Chain is a continuous-time Markov model over a finite state set. Each
// state holds for an exponentially distributed time with its holding rate,
// then jumps according to its row of the jump matrix.
type Chain struct {
	numStates    int
	holdingRates []float64
	jump         *mat.Dense
}

// NewChain builds a chain from per-state holding rates (events per unit
// time, all positive) and a jump matrix (rows stochastic, zero diagonal).
func NewChain(holdingRates []float64, jump *mat.Dense) (*Chain, error) {
	n := len(holdingRates)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 states, got %d", ErrInvalidChain, n)
	}
	r, c := jump.Dims()
	if r != n || c != n {
		return nil, fmt.Errorf("%w: jump matrix is %dx%d for %d states", ErrInvalidChain, r, c, n)
	}
	for i, rate := range holdingRates {
		if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
			return nil, fmt.Errorf("%w: holding rate of state %d is %g", ErrInvalidChain, i, rate)
		}
	}
	for i := 0; i < n; i++ {
		if jump.At(i, i) != 0 {
			return nil, fmt.Errorf("%w: jump matrix diagonal entry (%d,%d) is nonzero", ErrInvalidChain, i, i)
		}
		var rowSum float64
		for j := 0; j < n; j++ {
			p := jump.At(i, j)
			if p < 0 {
				return nil, fmt.Errorf("%w: negative jump probability at (%d,%d)", ErrInvalidChain, i, j)
			}
			rowSum += p
		}
		if math.Abs(rowSum-1) > 1e-9 {
			return nil, fmt.Errorf("%w: jump matrix row %d sums to %g", ErrInvalidChain, i, rowSum)
		}
	}

	return &Chain{
		numStates:    n,
		holdingRates: append([]float64(nil), holdingRates...),
		jump:         mat.DenseCopyOf(jump),
	}, nil
}

// NumStates returns the number of states.
func (c *Chain) NumStates() int { return c.numStates }

// Trace samples the chain at n equally spaced times delta apart, starting
// from initial, using exact exponential holding times. The returned slice
// holds the state index at each sample time. Deterministic for a fixed
// source.
func (c *Chain) Trace(n int, delta float64, initial int, src rand.Source) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: trace length must be positive, got %d", ErrInvalidChain, n)
	}
	if delta <= 0 {
		return nil, fmt.Errorf("%w: sample spacing must be positive, got %g", ErrInvalidChain, delta)
	}
	if initial < 0 || initial >= c.numStates {
		return nil, fmt.Errorf("%w: initial state %d outside [0,%d)", ErrInvalidChain, initial, c.numStates)
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	rng := rand.New(src)

	trace := make([]int, n)
	state := initial
	// nextJump is the absolute time of the next state change.
	nextJump := c.holdingTime(state, src)

	for i := 0; i < n; i++ {
		t := float64(i) * delta
		for t >= nextJump {
			state = c.nextState(state, rng)
			nextJump += c.holdingTime(state, src)
		}
		trace[i] = state
	}
	return trace, nil
}

func (c *Chain) holdingTime(state int, src rand.Source) float64 {
	return distuv.Exponential{Rate: c.holdingRates[state], Src: src}.Rand()
}

func (c *Chain) nextState(state int, rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for j := 0; j < c.numStates; j++ {
		cum += c.jump.At(state, j)
		if u < cum {
			return j
		}
	}
	// Row sums to 1 within tolerance; rounding can leave u just above cum.
	return c.numStates - 1
}

// StationaryDistribution solves pi*Q = 0 with sum(pi) = 1 for the embedded
// generator Q (off-diagonal Q_ij = rate_i * jump_ij, diagonal -rate_i). The
// overdetermined system is solved by least squares.
func (c *Chain) StationaryDistribution() ([]float64, error) {
	n := c.numStates

	// Stack Q^T on top of a row of ones: A*pi = (0,...,0,1).
	a := mat.NewDense(n+1, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var q float64
			if i == j {
				q = -c.holdingRates[i]
			} else {
				q = c.holdingRates[i] * c.jump.At(i, j)
			}
			a.Set(j, i, q) // transposed
		}
	}
	for j := 0; j < n; j++ {
		a.Set(n, j, 1)
	}

	b := mat.NewVecDense(n+1, nil)
	b.SetVec(n, 1)

	pi := mat.NewVecDense(n, nil)
	if err := pi.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: stationary solve failed: %v", ErrInvalidChain, err)
	}

	out := make([]float64, n)
	copy(out, pi.RawVector().Data)
	return out, nil
}
