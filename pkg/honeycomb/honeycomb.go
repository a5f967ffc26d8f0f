// Package honeycomb computes charge-stability diagrams: 2D sweeps of two
// control parameters over a coupled quantum-dot system, recording the
// classical ground-state electron configuration at every grid point.
//
// Grid rows are independent and evaluated on a worker pool; progress is
// reported at most once per completed row. Cancellation is honored between
// rows, never inside one.
package honeycomb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qdotlab/dotscope/internal/workers"
	"github.com/qdotlab/dotscope/pkg/dotsystem"
	"github.com/qdotlab/dotscope/pkg/progress"
)

// SweepSpec describes one 2D sweep. Parameter names address either a plunger
// gate ("P1".."PN", swept in mV through the lever-arm matrix) or a detuning
// axis ("det1".."detN", swept in meV directly). Each axis spans
// [-Range/2, +Range/2], added to the system's fixed operating point.
type SweepSpec struct {
	ParamX string // column axis
	ParamY string // row axis
	StepsX int
	StepsY int
	Range  float64
}

// Result is one computed stability diagram. Immutable after creation; all
// grids are indexed [row][col] and aligned with each other.
type Result struct {
	RunID  string
	ParamX string
	ParamY string

	// SweptValues maps each axis name to the grid of its swept values.
	SweptValues map[string][][]float64

	// Configurations holds the ground-state occupation vector per point.
	Configurations [][]dotsystem.Configuration

	// TotalCharge holds the total electron count per point.
	TotalCharge [][]int

	// Sensor holds the synthetic sensor response per point; nil unless the
	// simulator was configured with sensor weights.
	Sensor [][]float64

	Elapsed time.Duration
}

// OccupationGrid extracts the per-dot occupation map for one dot.
func (r *Result) OccupationGrid(dot int) [][]int {
	grid := make([][]int, len(r.Configurations))
	for y, row := range r.Configurations {
		grid[y] = make([]int, len(row))
		for x, cfg := range row {
			grid[y][x] = cfg[dot]
		}
	}
	return grid
}

// Config tunes a Simulator. The zero value uses the worker pool default and
// a no-op logger.
type Config struct {
	// Workers sets the grid-evaluation worker count; zero or less uses the
	// pool default.
	Workers int

	// SensorWeights, when non-nil, enables the synthetic sensor grid
	// sum_i w_i*n_i standing in for a sensing dot. Length must equal the
	// number of dots.
	SensorWeights []float64

	// Progress receives one call per completed grid row (and one per
	// completed diagram during scans). Callbacks run on worker goroutines
	// and must be cheap.
	Progress progress.Callback

	// Reporter, when non-nil, receives throttled detailed updates.
	Reporter *progress.Reporter

	Logger *zerolog.Logger
}

// Simulator evaluates stability diagrams for one dot system.
type Simulator struct {
	sys      *dotsystem.System
	pool     *workers.Pool
	weights  []float64
	progress progress.Callback
	reporter *progress.Reporter
	log      zerolog.Logger
}

// New builds a simulator around sys. Sensor-weight dimension mismatches are
// rejected here, before any sweep starts.
func New(sys *dotsystem.System, cfg Config) (*Simulator, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	if cfg.SensorWeights != nil && len(cfg.SensorWeights) != sys.NumDots() {
		return nil, fmt.Errorf("%w: %d sensor weights for %d dots",
			dotsystem.ErrInvalidTopology, len(cfg.SensorWeights), sys.NumDots())
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	return &Simulator{
		sys:      sys,
		pool:     workers.NewPool(cfg.Workers),
		weights:  cfg.SensorWeights,
		progress: cfg.Progress,
		reporter: cfg.Reporter,
		log:      log,
	}, nil
}

type axisKind int

const (
	axisGate axisKind = iota
	axisDetuning
)

type axis struct {
	name string
	kind axisKind
	dot  int // zero-based
}

// parseAxis resolves a sweep parameter name against the system size.
// Unknown names fail at configuration time, never mid-sweep.
func parseAxis(name string, numDots int) (axis, error) {
	var kind axisKind
	var numPart string
	switch {
	case strings.HasPrefix(name, "det"):
		kind, numPart = axisDetuning, name[3:]
	case strings.HasPrefix(name, "P"):
		kind, numPart = axisGate, name[1:]
	default:
		return axis{}, fmt.Errorf("%w: unknown sweep parameter %q", dotsystem.ErrInvalidTopology, name)
	}

	k, err := strconv.Atoi(numPart)
	if err != nil || k < 1 || k > numDots {
		return axis{}, fmt.Errorf("%w: sweep parameter %q does not address a dot in [1,%d]",
			dotsystem.ErrInvalidTopology, name, numDots)
	}
	return axis{name: name, kind: kind, dot: k - 1}, nil
}

func (s *Simulator) resolveSpec(spec SweepSpec) (ax, ay axis, err error) {
	if spec.StepsX < 2 || spec.StepsY < 2 {
		return ax, ay, fmt.Errorf("%w: grid shape %dx%d, need at least 2x2",
			dotsystem.ErrInvalidTopology, spec.StepsX, spec.StepsY)
	}
	if spec.Range <= 0 {
		return ax, ay, fmt.Errorf("%w: sweep range must be positive, got %g",
			dotsystem.ErrInvalidTopology, spec.Range)
	}
	if ax, err = parseAxis(spec.ParamX, s.sys.NumDots()); err != nil {
		return ax, ay, err
	}
	if ay, err = parseAxis(spec.ParamY, s.sys.NumDots()); err != nil {
		return ax, ay, err
	}
	if spec.ParamX == spec.ParamY {
		return ax, ay, fmt.Errorf("%w: both axes sweep %q", dotsystem.ErrInvalidTopology, spec.ParamX)
	}

	// A detuning axis back-solves the dependent gate voltages, which needs
	// an invertible lever-arm matrix. Probe the inversion up front.
	if ax.kind == axisDetuning || ay.kind == axisDetuning {
		if _, err := s.sys.DetuningToGate(make([]float64, s.sys.NumDots())); err != nil {
			return ax, ay, err
		}
	}
	return ax, ay, nil
}

// axisValues spans [-rng/2, +rng/2] in steps points.
func axisValues(rng float64, steps int) []float64 {
	vals := make([]float64, steps)
	step := rng / float64(steps-1)
	for i := range vals {
		vals[i] = -rng/2 + float64(i)*step
	}
	return vals
}

// Simulate computes the stability diagram for spec. Grid rows are evaluated
// in parallel; each row writes only its own index, so the merge is free. On
// cancellation the context error is returned and no partial result escapes.
func (s *Simulator) Simulate(ctx context.Context, spec SweepSpec) (*Result, error) {
	ax, ay, err := s.resolveSpec(spec)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	start := time.Now()
	s.log.Debug().
		Str("run_id", runID).
		Str("param_x", spec.ParamX).
		Str("param_y", spec.ParamY).
		Int("steps_x", spec.StepsX).
		Int("steps_y", spec.StepsY).
		Float64("range", spec.Range).
		Msg("starting stability diagram")

	valsX := axisValues(spec.Range, spec.StepsX)
	valsY := axisValues(spec.Range, spec.StepsY)

	res := &Result{
		RunID:          runID,
		ParamX:         spec.ParamX,
		ParamY:         spec.ParamY,
		SweptValues:    map[string][][]float64{spec.ParamX: nil, spec.ParamY: nil},
		Configurations: make([][]dotsystem.Configuration, spec.StepsY),
		TotalCharge:    make([][]int, spec.StepsY),
	}
	gridX := make([][]float64, spec.StepsY)
	gridY := make([][]float64, spec.StepsY)
	if s.weights != nil {
		res.Sensor = make([][]float64, spec.StepsY)
	}

	// The candidate basis is shared read-only across workers.
	basis := s.sys.Configurations()
	numDots := s.sys.NumDots()

	var rowsDone atomic.Int64
	err = s.pool.ForEach(ctx, spec.StepsY, func(row int) error {
		cfgRow := make([]dotsystem.Configuration, spec.StepsX)
		chargeRow := make([]int, spec.StepsX)
		xRow := make([]float64, spec.StepsX)
		yRow := make([]float64, spec.StepsX)
		var sensorRow []float64
		if s.weights != nil {
			sensorRow = make([]float64, spec.StepsX)
		}

		gateDelta := make([]float64, numDots)
		detuning := make([]float64, numDots)

		for col := 0; col < spec.StepsX; col++ {
			vx, vy := valsX[col], valsY[row]
			xRow[col] = vx
			yRow[col] = vy

			for i := range gateDelta {
				gateDelta[i] = 0
				detuning[i] = 0
			}
			applyAxis(ax, vx, gateDelta, detuning)
			applyAxis(ay, vy, gateDelta, detuning)

			if ax.kind == axisGate || ay.kind == axisGate {
				eps, err := s.sys.GateToDetuning(gateDelta)
				if err != nil {
					return err
				}
				for i := range detuning {
					detuning[i] += eps[i]
				}
			}

			cfg, _ := s.sys.GroundState(basis, detuning)
			cfgRow[col] = cfg
			chargeRow[col] = cfg.TotalCharge()
			if sensorRow != nil {
				var sig float64
				for i, w := range s.weights {
					sig += w * float64(cfg[i])
				}
				sensorRow[col] = sig
			}
		}

		res.Configurations[row] = cfgRow
		res.TotalCharge[row] = chargeRow
		gridX[row] = xRow
		gridY[row] = yRow
		if sensorRow != nil {
			res.Sensor[row] = sensorRow
		}

		done := int(rowsDone.Add(1))
		progress.Call(s.progress, done, spec.StepsY, "grid rows completed")
		s.reporter.Report(progress.Update{
			Phase:   "grid_rows",
			Current: done,
			Total:   spec.StepsY,
			Message: "grid rows completed",
			Details: map[string]any{"run_id": runID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.SweptValues[spec.ParamX] = gridX
	res.SweptValues[spec.ParamY] = gridY
	res.Elapsed = time.Since(start)

	s.log.Debug().
		Str("run_id", runID).
		Dur("elapsed", res.Elapsed).
		Int("basis_size", len(basis)).
		Msg("stability diagram complete")
	return res, nil
}

func applyAxis(a axis, value float64, gateDelta, detuning []float64) {
	switch a.kind {
	case axisGate:
		gateDelta[a.dot] += value
	case axisDetuning:
		detuning[a.dot] += value
	}
}
