package dotsystem

// Configuration assigns a non-negative electron count to each dot.
type Configuration []int

// TotalCharge returns the total electron count of the configuration.
func (c Configuration) TotalCharge() int {
	var total int
	for _, n := range c {
		total += n
	}
	return total
}

// Clone returns an independent copy of the configuration.
func (c Configuration) Clone() Configuration {
	return append(Configuration(nil), c...)
}

// less reports whether c orders before other lexicographically. Both must
// have equal length.
func (c Configuration) less(other Configuration) bool {
	for i := range c {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return false
}

// Configurations enumerates the full candidate basis in ascending
// lexicographic order: every occupation vector with each entry in
// [0, MaxOccupancy]. The basis has (MaxOccupancy+1)^NumDots entries.
func (s *System) Configurations() []Configuration {
	base := s.maxOccupancy + 1
	count := 1
	for i := 0; i < s.numDots; i++ {
		count *= base
	}

	basis := make([]Configuration, count)
	current := make(Configuration, s.numDots)
	for i := range basis {
		basis[i] = current.Clone()
		// Increment like a base-(MaxOccupancy+1) odometer, last dot fastest,
		// which keeps the sequence lexicographically ascending.
		for d := s.numDots - 1; d >= 0; d-- {
			current[d]++
			if current[d] < base {
				break
			}
			current[d] = 0
		}
	}
	return basis
}

// Energy computes the total classical electrostatic energy of a
// configuration at the given detuning vector:
//
//	E = sum_i [ U_i*n_i*(n_i-1)/2 + (mu_i - eps_i)*n_i ] + sum_(i,j) V_ij*n_i*n_j
//
// Tunnel couplings are excluded: the coarse stability diagram uses the
// classical ground state only.
func (s *System) Energy(cfg Configuration, detuning []float64) float64 {
	var e float64
	for i, n := range cfg {
		ni := float64(n)
		e += s.onSite[i] * ni * (ni - 1) / 2
		e += (s.chemical[i] - detuning[i]) * ni
	}
	for p, v := range s.interSite {
		e += v * float64(cfg[p.A]) * float64(cfg[p.B])
	}
	return e
}

// GroundState returns the minimum-energy configuration over the candidate
// basis at the given detuning vector, together with its energy. When two
// candidates are exactly energy-degenerate the lexicographically smallest
// configuration wins; the enumeration order makes that the first minimum
// encountered, and the explicit comparison keeps the rule independent of
// enumeration order.
func (s *System) GroundState(basis []Configuration, detuning []float64) (Configuration, float64) {
	best := basis[0]
	bestE := s.Energy(best, detuning)
	for _, cfg := range basis[1:] {
		e := s.Energy(cfg, detuning)
		if e < bestE || (e == bestE && cfg.less(best)) {
			best = cfg
			bestE = e
		}
	}
	return best, bestE
}

// Validate re-checks the system invariants that can drift after parameter
// mutation. Called by the simulator before each run so configuration errors
// surface before any grid evaluation.
func (s *System) Validate() error {
	if s.numDots < 1 {
		return ErrInvalidTopology
	}
	if s.maxOccupancy < 1 {
		return ErrInvalidTopology
	}
	r, c := s.leverArm.Dims()
	if r != s.numDots || c != s.numDots {
		return ErrInvalidTopology
	}
	return nil
}
