package solve

import (
	"sort"

	"github.com/AOSC-Dev/omakase/internal/encode"
)

// diagnose performs a deletion-based minimal unsatisfiable subset
// search restricted to blueprint-origin clauses: repeatedly try
// dropping one entry and re-solving; if the remainder is still UNSAT,
// the dropped entry is exonerated and stays dropped, otherwise it is
// restored. What remains at the end is the minimal conflicting set,
// found in at most len(blueprint) solver calls.
func (d *Driver) diagnose(enc *encode.Encoding) ([]string, error) {
	active := make([]bool, len(enc.BlueprintClauses))
	for i := range active {
		active[i] = true
	}

	order := make([]int, len(enc.BlueprintClauses))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return enc.BlueprintClauses[order[i]].EntryName < enc.BlueprintClauses[order[j]].EntryName
	})

	for _, idx := range order {
		active[idx] = false
		clauses := d.activeClauses(enc, active)
		sat, _, err := d.Oracle.Solve(enc.NumVars(), clauses, nil)
		if err != nil {
			return nil, err
		}
		if !sat {
			continue // still UNSAT without this entry: it isn't to blame
		}
		active[idx] = true // this entry was load-bearing for the conflict
	}

	var names []string
	for i, a := range active {
		if a {
			names = append(names, enc.BlueprintClauses[i].EntryName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Driver) activeClauses(enc *encode.Encoding, active []bool) [][]int {
	out := make([][]int, 0, len(enc.BaseClauses)+len(enc.BlueprintClauses))
	out = append(out, enc.BaseClauses...)
	for i, bc := range enc.BlueprintClauses {
		if active[i] {
			out = append(out, append([]int(nil), bc.Literals...))
		}
	}
	return out
}
