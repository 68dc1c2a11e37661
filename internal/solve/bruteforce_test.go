package solve

// bruteForceOracle exhaustively tries every assignment; only usable in
// tests against encodings small enough to enumerate (a handful of
// variables), which keeps driver/diagnose tests independent of the
// real CDCL solver.
type bruteForceOracle struct{}

func (bruteForceOracle) Solve(numVars int, clauses [][]int, assumptions []int) (bool, []bool, error) {
	all := make([][]int, 0, len(clauses)+len(assumptions))
	all = append(all, clauses...)
	for _, lit := range assumptions {
		all = append(all, []int{lit})
	}

	assign := make([]bool, numVars)
	var try func(i int) []bool
	try = func(i int) []bool {
		if i == numVars {
			if satisfies(all, assign) {
				out := make([]bool, numVars)
				copy(out, assign)
				return out
			}
			return nil
		}
		assign[i] = false
		if m := try(i + 1); m != nil {
			return m
		}
		assign[i] = true
		return try(i + 1)
	}
	model := try(0)
	return model != nil, model, nil
}

// greedyOracle is identical to bruteForceOracle except it tries each
// variable true before false, so a feasibility solve naturally returns
// a maximal model. This isolates the minimal-footprint optimization
// pass in tests: without it, an over-inclusive selection would stick.
type greedyOracle struct{}

func (greedyOracle) Solve(numVars int, clauses [][]int, assumptions []int) (bool, []bool, error) {
	all := make([][]int, 0, len(clauses)+len(assumptions))
	all = append(all, clauses...)
	for _, lit := range assumptions {
		all = append(all, []int{lit})
	}

	assign := make([]bool, numVars)
	var try func(i int) []bool
	try = func(i int) []bool {
		if i == numVars {
			if satisfies(all, assign) {
				out := make([]bool, numVars)
				copy(out, assign)
				return out
			}
			return nil
		}
		assign[i] = true
		if m := try(i + 1); m != nil {
			return m
		}
		assign[i] = false
		return try(i + 1)
	}
	model := try(0)
	return model != nil, model, nil
}

func satisfies(clauses [][]int, assign []bool) bool {
	for _, clause := range clauses {
		ok := false
		for _, lit := range clause {
			v := lit
			neg := v < 0
			if neg {
				v = -v
			}
			val := assign[v-1]
			if neg {
				val = !val
			}
			if val {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
