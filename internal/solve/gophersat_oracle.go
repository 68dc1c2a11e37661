package solve

import "github.com/crillab/gophersat/solver"

// GophersatOracle runs crillab/gophersat's CDCL solver as a stateless
// oracle: every call builds a fresh problem, since the driver always
// has the complete clause set and assumption list in hand.
type GophersatOracle struct{}

func (GophersatOracle) Solve(numVars int, clauses [][]int, assumptions []int) (bool, []bool, error) {
	all := make([][]int, 0, len(clauses)+len(assumptions))
	all = append(all, clauses...)
	for _, lit := range assumptions {
		all = append(all, []int{lit})
	}

	pb := solver.ParseSliceNb(all, numVars)
	pb.SetCostFunc(nil, nil)
	s := solver.New(pb)
	if cost := s.Minimize(); cost < 0 {
		return false, nil, nil
	}
	return true, s.Model(), nil
}
