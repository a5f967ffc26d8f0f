// Package telegraph analyses random telegraph signals: two-level traces
// produced by a single charge tunneling on and off a quantum dot. The
// analysis splits the trace into its two levels with a double-Gaussian fit,
// segments it into dwell durations, and recovers the up/down tunnel rates
// from exponential-decay fits of the dwell-time histograms.
package telegraph

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/qdotlab/dotscope/pkg/curvefit"
)

// ErrLevelsUnresolved reports a trace whose two levels could not be
// separated: the double-Gaussian fit produced a peak separation outside the
// accepted window, or every dwell was shorter than the minimum duration.
var ErrLevelsUnresolved = errors.New("telegraph levels unresolved")

// minFirstBinCounts is the smallest first-bin count of a dwell-time
// histogram for which the exponential-decay rate fit is considered reliable.
// Below it, only dwell statistics are reported.
const minFirstBinCounts = 50

// Options tune one analysis call. SampleRate is required; zero values of the
// other fields select the defaults.
type Options struct {
	// SampleRate of the acquisition, in Hz.
	SampleRate float64

	// MinSeparation and MaxSeparation bound the accepted double-Gaussian
	// peak separation, in units of the summed standard deviations.
	// Separations outside the window mean the fit locked onto noise rather
	// than two levels. Defaults: 2 and 7.
	MinSeparation float64
	MaxSeparation float64

	// MinDuration drops dwells shorter than this many samples from the
	// rate analysis. Default: 5.
	MinDuration int

	// NumBins for the signal histogram. Default: sqrt(len(trace)).
	NumBins int

	Logger *zerolog.Logger
}

func (o Options) withDefaults(traceLen int) (Options, error) {
	if o.SampleRate <= 0 {
		return o, fmt.Errorf("sample rate must be positive, got %g", o.SampleRate)
	}
	if o.MinSeparation == 0 {
		o.MinSeparation = 2.0
	}
	if o.MaxSeparation == 0 {
		o.MaxSeparation = 7.0
	}
	if o.MinDuration == 0 {
		o.MinDuration = 5
	}
	if o.NumBins == 0 {
		o.NumBins = int(math.Sqrt(float64(traceLen)))
	}
	return o, nil
}

// SegmentStats summarizes the dwell durations of one level, computed over
// all segments (before the minimum-duration filter).
type SegmentStats struct {
	Count  int
	Mean   float64 // seconds
	Median float64 // seconds
}

// Analysis is the result of one RTS analysis.
type Analysis struct {
	SampleRate float64

	// DoubleGaussianParams are the fitted histogram parameters in the order
	// ampDown, ampUp, sigmaDown, sigmaUp, meanDown, meanUp.
	DoubleGaussianParams []float64
	Separation           float64
	Split                float64

	DownSegments SegmentStats
	UpSegments   SegmentStats

	// RatesResolved is true when both dwell-time histograms held enough
	// counts for the exponential-decay fits.
	RatesResolved bool
	DownRateHz    float64 // tunnel rate out of the down level
	UpRateHz      float64 // tunnel rate out of the up level
}

// SplitDurations classifies trace samples against the split level, locates
// the level transitions, and returns the dwell durations (in samples) of the
// down and up levels. The partial segments before the first and after the
// last transition are discarded.
func SplitDurations(trace []float64, split float64) (down, up []int) {
	var transDown, transUp []int // sample index right before each transition
	for i := 0; i+1 < len(trace); i++ {
		a, b := trace[i] > split, trace[i+1] > split
		switch {
		case a && !b:
			transDown = append(transDown, i)
		case !a && b:
			transUp = append(transUp, i)
		}
	}
	if len(transDown) == 0 || len(transUp) == 0 {
		return nil, nil
	}

	diff := func(a, b []int) []int {
		out := make([]int, len(a))
		for i := range a {
			out[i] = a[i] - b[i]
		}
		return out
	}

	startsUp := trace[0] > split
	endsUp := trace[len(trace)-1] > split
	switch {
	case !startsUp && !endsUp:
		up = diff(transDown, transUp)
		down = diff(transUp[1:], transDown[:len(transDown)-1])
	case !startsUp && endsUp:
		up = diff(transDown, transUp[:len(transUp)-1])
		down = diff(transUp[1:], transDown)
	case startsUp && !endsUp:
		up = diff(transDown[1:], transUp)
		down = diff(transUp, transDown[:len(transDown)-1])
	default:
		up = diff(transDown[1:], transUp[:len(transUp)-1])
		down = diff(transUp, transDown)
	}
	return down, up
}

// Analyze runs the full RTS analysis on a trace. The trace must hold a real
// two-level signal: unresolvable levels fail with ErrLevelsUnresolved.
// Tunnel rates are only reported when the dwell-time histograms carry enough
// statistics; dwell summaries are reported regardless.
func Analyze(trace []float64, opts Options) (*Analysis, error) {
	opts, err := opts.withDefaults(len(trace))
	if err != nil {
		return nil, err
	}
	if len(trace) < 2 {
		return nil, fmt.Errorf("trace has %d samples, need at least 2", len(trace))
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	// Histogram the signal and fit the two levels.
	centres, counts := histogram(trace, opts.NumBins)
	dg, err := curvefit.FitDoubleGaussian(centres, counts)
	if err != nil {
		return nil, fmt.Errorf("%w: double-gaussian fit: %w", ErrLevelsUnresolved, err)
	}
	log.Debug().
		Float64("separation", dg.Separation).
		Float64("split", dg.Split).
		Msg("double gaussian fitted")

	if dg.Separation < opts.MinSeparation {
		return nil, fmt.Errorf("%w: peak separation %.2f below %.2f std", ErrLevelsUnresolved, dg.Separation, opts.MinSeparation)
	}
	if dg.Separation > opts.MaxSeparation {
		return nil, fmt.Errorf("%w: peak separation %.2f above %.2f std", ErrLevelsUnresolved, dg.Separation, opts.MaxSeparation)
	}

	downAll, upAll := SplitDurations(trace, dg.Split)

	analysis := &Analysis{
		SampleRate:           opts.SampleRate,
		DoubleGaussianParams: dg.Params,
		Separation:           dg.Separation,
		Split:                dg.Split,
		DownSegments:         segmentStats(downAll, opts.SampleRate),
		UpSegments:           segmentStats(upAll, opts.SampleRate),
	}

	down := filterDurations(downAll, opts.MinDuration)
	up := filterDurations(upAll, opts.MinDuration)
	if len(down) == 0 {
		return nil, fmt.Errorf("%w: all down dwells shorter than %d samples", ErrLevelsUnresolved, opts.MinDuration)
	}
	if len(up) == 0 {
		return nil, fmt.Errorf("%w: all up dwells shorter than %d samples", ErrLevelsUnresolved, opts.MinDuration)
	}

	downCentres, downCounts := durationHistogram(down, opts.SampleRate)
	upCentres, upCounts := durationHistogram(up, opts.SampleRate)

	if downCounts[0] < minFirstBinCounts || upCounts[0] < minFirstBinCounts {
		log.Warn().
			Float64("down_first_bin", downCounts[0]).
			Float64("up_first_bin", upCounts[0]).
			Msg("not enough dwell statistics for rate fits, reporting segment means only")
		return analysis, nil
	}

	downFit, err := curvefit.FitExpDecay(downCentres, downCounts)
	if err != nil {
		return nil, fmt.Errorf("%w: down-level decay fit: %w", ErrLevelsUnresolved, err)
	}
	upFit, err := curvefit.FitExpDecay(upCentres, upCounts)
	if err != nil {
		return nil, fmt.Errorf("%w: up-level decay fit: %w", ErrLevelsUnresolved, err)
	}

	analysis.RatesResolved = true
	analysis.DownRateHz = downFit.Params[2]
	analysis.UpRateHz = upFit.Params[2]
	log.Debug().
		Float64("down_rate_hz", analysis.DownRateHz).
		Float64("up_rate_hz", analysis.UpRateHz).
		Msg("tunnel rates fitted")
	return analysis, nil
}

func filterDurations(durations []int, minDuration int) []int {
	out := make([]int, 0, len(durations))
	for _, d := range durations {
		if d >= minDuration {
			out = append(out, d)
		}
	}
	return out
}

func segmentStats(durations []int, sampleRate float64) SegmentStats {
	if len(durations) == 0 {
		return SegmentStats{}
	}
	secs := make([]float64, len(durations))
	for i, d := range durations {
		secs[i] = float64(d) / sampleRate
	}
	mean, _ := stats.Mean(secs)
	median, _ := stats.Median(secs)
	return SegmentStats{Count: len(durations), Mean: mean, Median: median}
}

// histogram bins data into numBins equal-width bins, returning bin centres
// and counts as float slices ready for fitting.
func histogram(data []float64, numBins int) (centres, counts []float64) {
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(numBins)

	counts = make([]float64, numBins)
	for _, v := range data {
		bin := int((v - lo) / width)
		if bin >= numBins {
			bin = numBins - 1
		}
		counts[bin]++
	}
	centres = make([]float64, numBins)
	for i := range centres {
		centres[i] = lo + (float64(i)+0.5)*width
	}
	return centres, counts
}

// durationHistogram bins integer dwell durations with bin edges aligned to
// the sampling grid (edges at half-sample offsets, integer bin widths) and
// converts the centres to seconds.
func durationHistogram(durations []int, sampleRate float64) (centres, counts []float64) {
	lo, hi := durations[0], durations[0]
	for _, d := range durations {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}

	numBins := int(math.Sqrt(float64(len(durations))))
	if numBins < 1 {
		numBins = 1
	}
	binSize := int(math.Ceil(float64(hi-lo) / float64(numBins)))
	if binSize < 1 {
		binSize = 1
	}

	first := float64(lo) - 0.5
	n := int(math.Ceil((float64(hi)+0.5-first)/float64(binSize))) + 1
	counts = make([]float64, 0, n)
	centres = make([]float64, 0, n)
	for edge := first; edge < float64(hi)+0.5; edge += float64(binSize) {
		var c float64
		for _, d := range durations {
			if float64(d) >= edge && float64(d) < edge+float64(binSize) {
				c++
			}
		}
		counts = append(counts, c)
		centres = append(centres, (edge+float64(binSize)/2)/sampleRate)
	}
	return centres, counts
}
