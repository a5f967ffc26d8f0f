package markov

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func twoState(t *testing.T, rateUp, rateDown float64) *Chain {
	t.Helper()
	c, err := NewChain([]float64{rateUp, rateDown}, mat.NewDense(2, 2, []float64{
		0, 1,
		1, 0,
	}))
	require.NoError(t, err)
	return c
}

func TestNewChain_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rates []float64
		jump  *mat.Dense
	}{
		{
			name:  "single state",
			rates: []float64{1},
			jump:  mat.NewDense(1, 1, []float64{0}),
		},
		{
			name:  "zero rate",
			rates: []float64{0, 1},
			jump:  mat.NewDense(2, 2, []float64{0, 1, 1, 0}),
		},
		{
			name:  "negative rate",
			rates: []float64{-1, 1},
			jump:  mat.NewDense(2, 2, []float64{0, 1, 1, 0}),
		},
		{
			name:  "dimension mismatch",
			rates: []float64{1, 1},
			jump:  mat.NewDense(3, 3, nil),
		},
		{
			name:  "nonzero diagonal",
			rates: []float64{1, 1},
			jump:  mat.NewDense(2, 2, []float64{0.5, 0.5, 1, 0}),
		},
		{
			name:  "row does not sum to one",
			rates: []float64{1, 1},
			jump:  mat.NewDense(2, 2, []float64{0, 0.5, 1, 0}),
		},
		{
			name:  "negative probability",
			rates: []float64{1, 1},
			jump:  mat.NewDense(2, 2, []float64{0, 1, 2, -1}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChain(tt.rates, tt.jump)
			assert.ErrorIs(t, err, ErrInvalidChain)
			assert.Nil(t, c)
		})
	}
}

func TestTrace_StatesWithinRange(t *testing.T) {
	c := twoState(t, 0.01, 0.015)

	trace, err := c.Trace(5000, 1, 0, rand.NewPCG(1, 2))
	require.NoError(t, err)
	require.Len(t, trace, 5000)

	seen := map[int]bool{}
	for _, s := range trace {
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 2)
		seen[s] = true
	}
	assert.True(t, seen[0] && seen[1], "both states visited over a long trace")
}

func TestTrace_DeterministicUnderFixedSeed(t *testing.T) {
	c := twoState(t, 0.01, 0.02)

	a, err := c.Trace(2000, 1, 0, rand.NewPCG(7, 7))
	require.NoError(t, err)
	b, err := c.Trace(2000, 1, 0, rand.NewPCG(7, 7))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestTrace_InvalidArguments(t *testing.T) {
	c := twoState(t, 1, 1)

	_, err := c.Trace(0, 1, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidChain)

	_, err = c.Trace(10, 0, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidChain)

	_, err = c.Trace(10, 1, 2, nil)
	assert.ErrorIs(t, err, ErrInvalidChain)
}

func TestStationaryDistribution_TwoStateClosedForm(t *testing.T) {
	rateUp, rateDown := 10e3, 15e3
	c := twoState(t, rateUp, rateDown)

	pi, err := c.StationaryDistribution()
	require.NoError(t, err)
	require.Len(t, pi, 2)

	// pi = (r_dn, r_up) / (r_up + r_dn) for the two-state flip chain.
	total := rateUp + rateDown
	assert.InDelta(t, rateDown/total, pi[0], 1e-9)
	assert.InDelta(t, rateUp/total, pi[1], 1e-9)
}

func TestStationaryDistribution_SumsToOne(t *testing.T) {
	c, err := NewChain([]float64{2, 3, 5}, mat.NewDense(3, 3, []float64{
		0, 0.5, 0.5,
		0.25, 0, 0.75,
		0.6, 0.4, 0,
	}))
	require.NoError(t, err)

	pi, err := c.StationaryDistribution()
	require.NoError(t, err)

	var sum float64
	for _, p := range pi {
		assert.GreaterOrEqual(t, p, -1e-12)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTrace_OccupancyMatchesStationary(t *testing.T) {
	// Slow flips relative to sampling so dwell statistics accumulate, long
	// trace so the empirical occupancy converges.
	c := twoState(t, 0.004, 0.006)

	trace, err := c.Trace(200000, 1, 0, rand.NewPCG(42, 42))
	require.NoError(t, err)

	var up int
	for _, s := range trace {
		up += s
	}
	frac := float64(up) / float64(len(trace))

	// Stationary up-occupancy is 0.004/(0.004+0.006) = 0.4.
	assert.InDelta(t, 0.4, frac, 0.05)
}
