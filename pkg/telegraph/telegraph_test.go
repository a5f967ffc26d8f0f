package telegraph

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDurations_AllBoundaryCases(t *testing.T) {
	// Hand-built traces around split = 0.5. Durations are in samples;
	// partial segments at the edges are discarded.
	tests := []struct {
		name     string
		trace    []float64
		wantDown []int
		wantUp   []int
	}{
		{
			name:     "starts down ends down",
			trace:    []float64{0, 0, 1, 1, 1, 0, 0, 0, 0, 1, 0},
			wantDown: []int{4},
			wantUp:   []int{3, 1},
		},
		{
			name:     "starts down ends up",
			trace:    []float64{0, 1, 1, 0, 0, 0, 1, 1},
			wantDown: []int{3},
			wantUp:   []int{2},
		},
		{
			name:     "starts up ends down",
			trace:    []float64{1, 1, 0, 0, 1, 1, 1, 0},
			wantDown: []int{2},
			wantUp:   []int{3},
		},
		{
			name:     "starts up ends up",
			trace:    []float64{1, 0, 0, 0, 1, 1, 0, 1},
			wantDown: []int{3, 1},
			wantUp:   []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			down, up := SplitDurations(tt.trace, 0.5)
			assert.Equal(t, tt.wantDown, down)
			assert.Equal(t, tt.wantUp, up)
		})
	}
}

func TestSplitDurations_NoTransitions(t *testing.T) {
	down, up := SplitDurations([]float64{0, 0, 0, 0}, 0.5)
	assert.Empty(t, down)
	assert.Empty(t, up)

	// A single transition yields no complete dwell either.
	down, up = SplitDurations([]float64{0, 0, 1, 1}, 0.5)
	assert.Empty(t, down)
	assert.Empty(t, up)
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := GenerateOptions{Seed: 99}

	a, err := Generate(5000, opts)
	require.NoError(t, err)
	b, err := Generate(5000, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Generate(5000, GenerateOptions{Seed: 100})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerate_LevelsNearZeroAndOne(t *testing.T) {
	trace, err := Generate(20000, GenerateOptions{
		Seed:          7,
		GaussianNoise: 0.01,
		UniformNoise:  0.01,
	})
	require.NoError(t, err)
	require.Len(t, trace, 20000)

	var nearDown, nearUp int
	for _, v := range trace {
		if v > -0.2 && v < 0.2 {
			nearDown++
		}
		if v > 0.8 && v < 1.2 {
			nearUp++
		}
	}
	assert.Equal(t, len(trace), nearDown+nearUp, "every sample sits on one of the two levels")
	assert.Positive(t, nearDown)
	assert.Positive(t, nearUp)
}

func TestGenerate_InvalidLength(t *testing.T) {
	_, err := Generate(0, GenerateOptions{})
	assert.Error(t, err)
}

func TestAnalyze_RequiresSampleRate(t *testing.T) {
	trace, err := Generate(1000, GenerateOptions{Seed: 3})
	require.NoError(t, err)

	_, err = Analyze(trace, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample rate")
}

func TestAnalyze_RandomDataIsNotRTS(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	trace := make([]float64, 10000)
	for i := range trace {
		trace[i] = rng.Float64()
	}

	_, err := Analyze(trace, Options{SampleRate: 10e6})
	assert.ErrorIs(t, err, ErrLevelsUnresolved)
}

func TestAnalyze_RecoversTunnelRates(t *testing.T) {
	const (
		sampleRate = 1e6
		rateUp     = 200e3
		rateDown   = 20e3
	)

	trace, err := Generate(100000, GenerateOptions{
		SampleRate:    sampleRate,
		RateUp:        rateUp,
		RateDown:      rateDown,
		GaussianNoise: 0.01,
		UniformNoise:  0.01,
		Seed:          11,
	})
	require.NoError(t, err)

	res, err := Analyze(trace, Options{
		SampleRate:    sampleRate,
		MinSeparation: 1.0,
		MaxSeparation: 2222,
		MinDuration:   1,
		NumBins:       40,
	})
	require.NoError(t, err)
	require.True(t, res.RatesResolved)

	// The down level empties at rateUp, the up level at rateDown. Dwell
	// statistics from a finite trace carry sizable spread; mirror the
	// reference tolerances (100 kHz and 10 kHz).
	assert.InDelta(t, rateUp, res.DownRateHz, 100e3)
	assert.InDelta(t, rateDown, res.UpRateHz, 10e3)

	assert.Positive(t, res.DownSegments.Mean)
	assert.Positive(t, res.UpSegments.Mean)
	assert.Positive(t, res.DownSegments.Count)
	assert.Positive(t, res.UpSegments.Count)
}

func TestAnalyze_SegmentStatisticsWithoutRates(t *testing.T) {
	// A short trace: levels resolve but the dwell histograms are too thin
	// for rate fits, so only segment statistics are reported.
	trace, err := Generate(3000, GenerateOptions{
		SampleRate:    1e6,
		RateUp:        10e3,
		RateDown:      20e3,
		GaussianNoise: 0.02,
		UniformNoise:  0.02,
		Seed:          21,
	})
	require.NoError(t, err)

	res, err := Analyze(trace, Options{SampleRate: 1e6, MinSeparation: 1.0, MaxSeparation: 2222, MinDuration: 1})
	if err != nil {
		// Short traces can legitimately fail level resolution; that path is
		// covered elsewhere. Only the successful path is asserted here.
		assert.ErrorIs(t, err, ErrLevelsUnresolved)
		return
	}
	assert.False(t, res.RatesResolved)
	assert.Zero(t, res.DownRateHz)
	assert.Positive(t, res.DownSegments.Mean)
	assert.Equal(t, 1e6, res.SampleRate)
}

func TestAnalyze_SeparationWindow(t *testing.T) {
	trace, err := Generate(50000, GenerateOptions{
		SampleRate:    1e6,
		GaussianNoise: 0.05,
		Seed:          31,
	})
	require.NoError(t, err)

	// Demanding an absurdly large minimum separation must reject the trace.
	_, err = Analyze(trace, Options{SampleRate: 1e6, MinSeparation: 500})
	assert.ErrorIs(t, err, ErrLevelsUnresolved)

	// A maximum below the minimum observable separation rejects it too.
	_, err = Analyze(trace, Options{SampleRate: 1e6, MaxSeparation: 0.001})
	assert.ErrorIs(t, err, ErrLevelsUnresolved)
}
