package honeycomb

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/qdotlab/dotscope/pkg/dotsystem"
	"github.com/qdotlab/dotscope/pkg/progress"
)

// ScanSpec describes a parameter scan: one full stability diagram per entry
// of Values, with Apply mutating a cloned system before each run.
type ScanSpec struct {
	Sweep  SweepSpec
	Values []float64

	// Apply sets the scanned parameter on a private clone of the system.
	// It must not retain the clone.
	Apply func(sys *dotsystem.System, value float64) error

	// MaxParallel bounds how many diagrams run concurrently. Zero or less
	// means sequential.
	MaxParallel int
}

// ScanValues simulates one diagram per scan value. Each run works on its own
// clone of the system, so runs are independent; whole-diagram parallelism is
// bounded by MaxParallel. Results are ordered like Values. The first failure
// (or cancellation) aborts the remaining runs.
func (s *Simulator) ScanValues(ctx context.Context, spec ScanSpec) ([]*Result, error) {
	if len(spec.Values) == 0 {
		return nil, fmt.Errorf("%w: scan has no values", dotsystem.ErrInvalidTopology)
	}
	if spec.Apply == nil {
		return nil, fmt.Errorf("%w: scan has no apply function", dotsystem.ErrInvalidTopology)
	}

	// Validate the sweep once against the unmutated system so bad specs
	// fail before the first clone.
	if _, _, err := s.resolveSpec(spec.Sweep); err != nil {
		return nil, err
	}

	limit := spec.MaxParallel
	if limit < 1 {
		limit = 1
	}

	results := make([]*Result, len(spec.Values))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var done atomic.Int64
	for i, v := range spec.Values {
		g.Go(func() error {
			clone := s.sys.Clone()
			if err := spec.Apply(clone, v); err != nil {
				return fmt.Errorf("scan value %g: %w", v, err)
			}

			// The per-run simulator inherits weights and logging but not
			// row-level progress: scans report per completed diagram.
			run := &Simulator{
				sys:     clone,
				pool:    s.pool,
				weights: s.weights,
				log:     s.log,
			}
			res, err := run.Simulate(gctx, spec.Sweep)
			if err != nil {
				return fmt.Errorf("scan value %g: %w", v, err)
			}
			results[i] = res

			d := int(done.Add(1))
			progress.Call(s.progress, d, len(spec.Values), "scan values completed")
			s.reporter.Report(progress.Update{
				Phase:   "scan_values",
				Current: d,
				Total:   len(spec.Values),
				Message: "scan values completed",
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
