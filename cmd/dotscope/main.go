// Package main is the dotscope batch runner: a demonstration driver for the
// quantum-dot analysis library. It builds a virtual double-dot system,
// simulates its charge-stability diagram, fits a synthetic polarization line,
// and analyses a generated random-telegraph-signal trace, logging the results
// as it goes.
//
// The runner exists so the library can be exercised end to end without an
// experiment station attached; all numbers below are typical GaAs double-dot
// values. SIGINT cancels a running simulation between grid rows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"gonum.org/v1/gonum/mat"

	"github.com/qdotlab/dotscope/internal/config"
	"github.com/qdotlab/dotscope/pkg/dotsystem"
	"github.com/qdotlab/dotscope/pkg/honeycomb"
	"github.com/qdotlab/dotscope/pkg/logger"
	"github.com/qdotlab/dotscope/pkg/polarization"
	"github.com/qdotlab/dotscope/pkg/progress"
	"github.com/qdotlab/dotscope/pkg/telegraph"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	logHostInfo(log)
	log.Info().Int("workers", cfg.Workers).Msg("dotscope starting")

	// SIGINT/SIGTERM cancel between grid rows; a partially swept diagram is
	// discarded rather than reported.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("interrupted, shutting down")
			return
		}
		log.Fatal().Err(err).Msg("run failed")
	}
	log.Info().Msg("dotscope finished")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := runStabilityDiagram(ctx, cfg, log); err != nil {
		return err
	}
	if err := runPolarizationFit(log); err != nil {
		return err
	}
	return runTelegraphAnalysis(log)
}

// runStabilityDiagram simulates the honeycomb diagram of a capacitively
// coupled double dot over its two detuning axes.
func runStabilityDiagram(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	sys, err := dotsystem.New(2, []dotsystem.Pair{{A: 0, B: 1}}, 3)
	if err != nil {
		return err
	}
	// Typical double-dot energy scales, in meV.
	if err := sys.SetOnSiteCharging(0, 2.5); err != nil {
		return err
	}
	if err := sys.SetOnSiteCharging(1, 2.3); err != nil {
		return err
	}
	if err := sys.SetInterSiteCharging(0, 1, 0.4); err != nil {
		return err
	}
	if err := sys.SetTunnelCoupling(0, 1, 0.01); err != nil {
		return err
	}
	// Plunger cross-capacitance: each gate mostly moves its own dot.
	if err := sys.SetLeverArm(mat.NewDense(2, 2, []float64{
		0.12, 0.03,
		0.02, 0.14,
	})); err != nil {
		return err
	}

	reporter := progress.NewLogReporter(log, cfg.ProgressThrottle)
	sim, err := honeycomb.New(sys, honeycomb.Config{
		Workers:       cfg.Workers,
		SensorWeights: []float64{1.0, 0.7},
		Reporter:      reporter,
		Logger:        &log,
	})
	if err != nil {
		return err
	}

	res, err := sim.Simulate(ctx, honeycomb.SweepSpec{
		ParamX: "det1",
		ParamY: "det2",
		StepsX: 201,
		StepsY: 201,
		Range:  12,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", res.RunID).
		Dur("elapsed", res.Elapsed).
		Int("max_total_charge", maxCharge(res.TotalCharge)).
		Msg("stability diagram computed")
	return nil
}

// runPolarizationFit generates a noiseless polarization line from known
// parameters and verifies the fit engine recovers them.
func runPolarizationFit(log zerolog.Logger) error {
	truth := polarization.Params{
		TunnelCoupling: 5,
		Center:         0,
		Offset:         0,
		SlopeLeft:      0.1,
		SlopeRight:     -0.1,
		Height:         1,
	}
	const kT = 5.0 // ueV at ~58 mK electron temperature

	detuning := make([]float64, 201)
	for i := range detuning {
		detuning[i] = -100 + float64(i)
	}
	signal := polarization.Curve(detuning, truth, kT)

	res, err := polarization.Fit(detuning, signal, kT)
	if err != nil {
		return err
	}

	log.Info().
		Float64("tunnel_coupling", res.Params.TunnelCoupling).
		Float64("center", res.Params.Center).
		Float64("height", res.Params.Height).
		Float64("rss", res.RSS).
		Int("func_evals", res.FuncEvals).
		Msg("polarization line fitted")
	return nil
}

// runTelegraphAnalysis generates an RTS trace with known tunnel rates and
// recovers them from the dwell-time statistics.
func runTelegraphAnalysis(log zerolog.Logger) error {
	const (
		sampleRate = 1e6
		rateUp     = 200e3
		rateDown   = 20e3
	)

	trace, err := telegraph.Generate(100000, telegraph.GenerateOptions{
		SampleRate:    sampleRate,
		RateUp:        rateUp,
		RateDown:      rateDown,
		GaussianNoise: 0.01,
		Seed:          1,
	})
	if err != nil {
		return err
	}

	res, err := telegraph.Analyze(trace, telegraph.Options{
		SampleRate:    sampleRate,
		MinSeparation: 1.0,
		MaxSeparation: 2222,
		MinDuration:   1,
		NumBins:       40,
		Logger:        &log,
	})
	if err != nil {
		return err
	}

	ev := log.Info().
		Float64("separation", res.Separation).
		Float64("split", res.Split).
		Float64("down_dwell_mean_s", res.DownSegments.Mean).
		Float64("up_dwell_mean_s", res.UpSegments.Mean)
	if res.RatesResolved {
		ev = ev.
			Float64("down_rate_khz", res.DownRateHz/1e3).
			Float64("up_rate_khz", res.UpRateHz/1e3)
	}
	ev.Msg("telegraph trace analysed")
	return nil
}

func maxCharge(grid [][]int) int {
	var m int
	for _, row := range grid {
		for _, v := range row {
			if v > m {
				m = v
			}
		}
	}
	return m
}

// logHostInfo records the host's compute resources for run provenance.
func logHostInfo(log zerolog.Logger) {
	if counts, err := cpu.Counts(false); err == nil {
		log.Debug().Int("physical_cores", counts).Msg("host cpu")
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		log.Debug().
			Uint64("total_mb", vm.Total/1024/1024).
			Float64("used_percent", vm.UsedPercent).
			Msg("host memory")
	}
}
