// Package dotsystem models a system of N electrostatically coupled quantum
// dots: its charging energies, chemical potentials, lever-arm matrix, and the
// classical ground-state charge configuration at a given detuning point.
//
// Topology (the number of dots and which pairs are coupled) is fixed at
// construction; energy parameters are mutable between simulation runs.
package dotsystem

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidTopology reports a configuration error detected before any
	// grid evaluation: a coupling referencing a dot outside the system, an
	// occupancy bound below one, or a dimension mismatch.
	ErrInvalidTopology = errors.New("invalid dot system topology")

	// ErrSingularMatrix reports a lever-arm matrix that cannot be inverted
	// for the requested detuning-to-gate conversion.
	ErrSingularMatrix = errors.New("lever-arm matrix is singular")
)

// maxLeverArmCondition is the condition-number threshold above which the
// lever-arm matrix is treated as effectively singular.
const maxLeverArmCondition = 1e12

// Pair identifies an unordered pair of coupled dots by index.
type Pair struct {
	A, B int
}

// normalized returns the pair with A < B so that (0,1) and (1,0) address the
// same coupling.
func (p Pair) normalized() Pair {
	if p.A > p.B {
		return Pair{A: p.B, B: p.A}
	}
	return p
}

// System holds the parameters of N coupled quantum dots.
//
// Energies are in meV, gate voltages in mV, and the lever-arm matrix in
// meV/mV. Only relative units matter to the ground-state search.
type System struct {
	numDots      int
	maxOccupancy int

	onSite    []float64 // U_i, on-site charging energy per dot
	chemical  []float64 // mu_i, chemical-potential offset per dot
	interSite map[Pair]float64
	tunnel    map[Pair]float64

	leverArm *mat.Dense
}

// New constructs a system of numDots dots with the given coupled pairs and
// per-dot occupancy bound. The lever-arm matrix defaults to the identity; all
// energy parameters default to zero.
func New(numDots int, coupledPairs []Pair, maxOccupancy int) (*System, error) {
	if numDots < 1 {
		return nil, fmt.Errorf("%w: number of dots must be at least 1, got %d", ErrInvalidTopology, numDots)
	}
	if maxOccupancy < 1 {
		return nil, fmt.Errorf("%w: max occupancy must be at least 1, got %d", ErrInvalidTopology, maxOccupancy)
	}

	s := &System{
		numDots:      numDots,
		maxOccupancy: maxOccupancy,
		onSite:       make([]float64, numDots),
		chemical:     make([]float64, numDots),
		interSite:    make(map[Pair]float64, len(coupledPairs)),
		tunnel:       make(map[Pair]float64, len(coupledPairs)),
		leverArm:     identity(numDots),
	}

	for _, p := range coupledPairs {
		if p.A == p.B {
			return nil, fmt.Errorf("%w: dot %d coupled to itself", ErrInvalidTopology, p.A)
		}
		if p.A < 0 || p.A >= numDots || p.B < 0 || p.B >= numDots {
			return nil, fmt.Errorf("%w: coupling (%d,%d) references a dot outside [0,%d)", ErrInvalidTopology, p.A, p.B, numDots)
		}
		s.interSite[p.normalized()] = 0
	}

	return s, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// NumDots returns the number of dots in the system.
func (s *System) NumDots() int { return s.numDots }

// MaxOccupancy returns the per-dot electron bound used by the candidate
// enumeration.
func (s *System) MaxOccupancy() int { return s.maxOccupancy }

// CoupledPairs returns the declared inter-site couplings in normalized order.
func (s *System) CoupledPairs() []Pair {
	pairs := make([]Pair, 0, len(s.interSite))
	for p := range s.interSite {
		pairs = append(pairs, p)
	}
	return pairs
}

func (s *System) checkDot(dot int) error {
	if dot < 0 || dot >= s.numDots {
		return fmt.Errorf("%w: dot %d outside [0,%d)", ErrInvalidTopology, dot, s.numDots)
	}
	return nil
}

// SetOnSiteCharging sets the on-site charging energy U for one dot.
func (s *System) SetOnSiteCharging(dot int, energy float64) error {
	if err := s.checkDot(dot); err != nil {
		return err
	}
	s.onSite[dot] = energy
	return nil
}

// OnSiteCharging returns the on-site charging energy of one dot.
func (s *System) OnSiteCharging(dot int) float64 { return s.onSite[dot] }

// SetChemicalPotential sets the chemical-potential offset mu for one dot.
func (s *System) SetChemicalPotential(dot int, offset float64) error {
	if err := s.checkDot(dot); err != nil {
		return err
	}
	s.chemical[dot] = offset
	return nil
}

// ChemicalPotential returns the chemical-potential offset of one dot.
func (s *System) ChemicalPotential(dot int) float64 { return s.chemical[dot] }

// SetInterSiteCharging sets the inter-site charging energy V for a coupled
// pair. The pair must have been declared at construction.
func (s *System) SetInterSiteCharging(a, b int, energy float64) error {
	p := Pair{A: a, B: b}.normalized()
	if _, ok := s.interSite[p]; !ok {
		return fmt.Errorf("%w: pair (%d,%d) is not a declared coupling", ErrInvalidTopology, a, b)
	}
	s.interSite[p] = energy
	return nil
}

// SetTunnelCoupling sets the tunnel coupling for a coupled pair. Tunnel
// couplings broaden polarization lines but do not enter the classical
// ground-state selection.
func (s *System) SetTunnelCoupling(a, b int, coupling float64) error {
	p := Pair{A: a, B: b}.normalized()
	if _, ok := s.interSite[p]; !ok {
		return fmt.Errorf("%w: pair (%d,%d) is not a declared coupling", ErrInvalidTopology, a, b)
	}
	s.tunnel[p] = coupling
	return nil
}

// TunnelCoupling returns the tunnel coupling of a coupled pair, zero when the
// pair is unknown or unset.
func (s *System) TunnelCoupling(a, b int) float64 {
	return s.tunnel[Pair{A: a, B: b}.normalized()]
}

// SetLeverArm replaces the lever-arm matrix. The matrix must be numDots by
// numDots; invertibility is only required (and checked) when a
// detuning-to-gate conversion is requested.
func (s *System) SetLeverArm(leverArm *mat.Dense) error {
	r, c := leverArm.Dims()
	if r != s.numDots || c != s.numDots {
		return fmt.Errorf("%w: lever-arm matrix is %dx%d, want %dx%d", ErrInvalidTopology, r, c, s.numDots, s.numDots)
	}
	s.leverArm = mat.DenseCopyOf(leverArm)
	return nil
}

// LeverArm returns a copy of the lever-arm matrix.
func (s *System) LeverArm() *mat.Dense {
	return mat.DenseCopyOf(s.leverArm)
}

// GateToDetuning maps a plunger-gate voltage vector to the detuning vector
// through the lever-arm matrix.
func (s *System) GateToDetuning(gates []float64) ([]float64, error) {
	if len(gates) != s.numDots {
		return nil, fmt.Errorf("%w: gate vector has %d entries, want %d", ErrInvalidTopology, len(gates), s.numDots)
	}
	out := mat.NewVecDense(s.numDots, nil)
	out.MulVec(s.leverArm, mat.NewVecDense(s.numDots, gates))
	det := make([]float64, s.numDots)
	copy(det, out.RawVector().Data)
	return det, nil
}

// DetuningToGate maps a detuning vector back to gate voltages by inverting
// the lever-arm matrix. A singular or ill-conditioned matrix fails with
// ErrSingularMatrix.
func (s *System) DetuningToGate(detuning []float64) ([]float64, error) {
	if len(detuning) != s.numDots {
		return nil, fmt.Errorf("%w: detuning vector has %d entries, want %d", ErrInvalidTopology, len(detuning), s.numDots)
	}

	var lu mat.LU
	lu.Factorize(s.leverArm)
	if cond := lu.Cond(); cond > maxLeverArmCondition {
		return nil, fmt.Errorf("%w: condition number %g", ErrSingularMatrix, cond)
	}

	out := mat.NewVecDense(s.numDots, nil)
	if err := lu.SolveVecTo(out, false, mat.NewVecDense(s.numDots, detuning)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}
	gates := make([]float64, s.numDots)
	copy(gates, out.RawVector().Data)
	return gates, nil
}

// Clone returns an independent copy of the system. Parameter changes on the
// copy do not affect the original; used by parameter scans that mutate one
// value per run.
func (s *System) Clone() *System {
	c := &System{
		numDots:      s.numDots,
		maxOccupancy: s.maxOccupancy,
		onSite:       append([]float64(nil), s.onSite...),
		chemical:     append([]float64(nil), s.chemical...),
		interSite:    make(map[Pair]float64, len(s.interSite)),
		tunnel:       make(map[Pair]float64, len(s.tunnel)),
		leverArm:     mat.DenseCopyOf(s.leverArm),
	}
	for p, v := range s.interSite {
		c.interSite[p] = v
	}
	for p, v := range s.tunnel {
		c.tunnel[p] = v
	}
	return c
}
