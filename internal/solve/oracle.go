// Package solve drives a CDCL oracle through the two-phase resolution
// procedure: a feasibility pass, then a deterministic optimization pass
// that prefers latest versions and then the smallest installed set.
package solve

// Oracle abstracts a CDCL SAT solver so the driver and diagnostic
// search can be tested against a small in-memory stub instead of a
// real solver.
type Oracle interface {
	// Solve reports satisfiability of clauses over numVars variables,
	// with assumptions treated as additional unit clauses. model is
	// 0-indexed by (variable-1) and only valid when sat is true.
	Solve(numVars int, clauses [][]int, assumptions []int) (sat bool, model []bool, err error)
}
