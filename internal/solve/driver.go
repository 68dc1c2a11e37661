package solve

import (
	"sort"

	"github.com/AOSC-Dev/omakase/internal/encode"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

// Outcome is the Solver Driver's final result: either a selected set of
// package identities, or a minimal conflicting blueprint entry set.
type Outcome struct {
	SAT      bool
	Selected []pkgdb.Identity // sorted by (name, version); only set if SAT
	Conflict []string         // blueprint entry names; only set if !SAT
}

// Driver runs the two-phase resolution procedure over an Encoding.
type Driver struct {
	Oracle Oracle
}

// NewDriver returns a Driver backed by the real CDCL oracle.
func NewDriver() *Driver { return &Driver{Oracle: GophersatOracle{}} }

// Solve runs Phase 1 (feasibility) and, if satisfiable, Phase 2
// (latest-version then minimal-footprint optimization).
func (d *Driver) Solve(enc *encode.Encoding) (*Outcome, error) {
	base := allHardClauses(enc)

	sat, model, err := d.Oracle.Solve(enc.NumVars(), base, nil)
	if err != nil {
		return nil, err
	}
	if !sat {
		conflict, err := d.diagnose(enc)
		if err != nil {
			return nil, err
		}
		return &Outcome{SAT: false, Conflict: conflict}, nil
	}

	selected := modelToSelected(enc, model)
	pinned := pinnedNames(enc)

	selected = d.preferLatest(enc, base, selected)
	selected = d.preferMinimalFootprint(enc, base, selected, pinned)

	return &Outcome{SAT: true, Selected: sortedIdentities(selected)}, nil
}

// allHardClauses concatenates the base clauses with every blueprint
// entry's resolved clause, in the fixed order the encoder produced them.
func allHardClauses(enc *encode.Encoding) [][]int {
	out := make([][]int, 0, len(enc.BaseClauses)+len(enc.BlueprintClauses))
	out = append(out, enc.BaseClauses...)
	for _, bc := range enc.BlueprintClauses {
		out = append(out, append([]int(nil), bc.Literals...))
	}
	return out
}

func modelToSelected(enc *encode.Encoding, model []bool) map[pkgdb.Identity]bool {
	selected := map[pkgdb.Identity]bool{}
	for v := 1; v <= enc.NumVars(); v++ {
		if v-1 >= len(model) || !model[v-1] {
			continue
		}
		id := enc.IDOf[v]
		if id.Name == "" {
			continue // the FalseVar sentinel, never a real package
		}
		selected[id] = true
	}
	return selected
}

func pinnedNames(enc *encode.Encoding) map[string]bool {
	names := map[string]bool{}
	for _, bc := range enc.BlueprintClauses {
		names[bc.EntryName] = true
	}
	return names
}

func sortedIdentities(set map[pkgdb.Identity]bool) []pkgdb.Identity {
	out := make([]pkgdb.Identity, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version.Less(out[j].Version)
	})
	return out
}

// preferLatest repeatedly attempts to bump each selected package to the
// newest available candidate, accepting the bump only when it causes no
// collateral churn elsewhere, per the "prefer latest version" criterion.
func (d *Driver) preferLatest(enc *encode.Encoding, base [][]int, selected map[pkgdb.Identity]bool) map[pkgdb.Identity]bool {
	for {
		changed := false
		for _, name := range selectedNamesSorted(selected) {
			cur, ok := currentVersion(selected, name)
			if !ok {
				continue
			}
			versions := enc.DB.Versions(name)
			if len(versions) == 0 {
				continue
			}
			latest := versions[len(versions)-1].ID
			if !cur.Version.Less(latest.Version) {
				continue // already at the newest candidate
			}

			var assumptions []int
			for _, rec := range versions {
				if rec.ID.Version.Less(latest.Version) {
					assumptions = append(assumptions, -enc.VarOf[rec.ID])
				}
			}

			sat, model, err := d.Oracle.Solve(enc.NumVars(), base, assumptions)
			if err != nil || !sat {
				continue
			}
			candidate := modelToSelected(enc, model)
			if symmetricDiffIsJustVersionBump(selected, candidate, name) {
				selected = candidate
				changed = true
			}
		}
		if !changed {
			return selected
		}
	}
}

func selectedNamesSorted(selected map[pkgdb.Identity]bool) []string {
	seen := map[string]bool{}
	var names []string
	for id := range selected {
		if !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
	}
	sort.Strings(names)
	return names
}

func currentVersion(selected map[pkgdb.Identity]bool, name string) (pkgdb.Identity, bool) {
	for id := range selected {
		if id.Name == name {
			return id, true
		}
	}
	return pkgdb.Identity{}, false
}

// symmetricDiffIsJustVersionBump reports whether candidate differs from
// selected only by swapping name's version, with no other package
// added or removed.
func symmetricDiffIsJustVersionBump(selected, candidate map[pkgdb.Identity]bool, name string) bool {
	for id := range selected {
		if id.Name == name {
			continue
		}
		if !candidate[id] {
			return false
		}
	}
	for id := range candidate {
		if id.Name == name {
			continue
		}
		if !selected[id] {
			return false
		}
	}
	return true
}

// preferMinimalFootprint drops every selected, unpinned package whose
// removal leaves the problem satisfiable, visiting candidates leaves
// first (fewest dependents among the current selection), then by name.
func (d *Driver) preferMinimalFootprint(enc *encode.Encoding, base [][]int, selected map[pkgdb.Identity]bool, pinned map[string]bool) map[pkgdb.Identity]bool {
	order := footprintOrder(enc, selected)
	for _, id := range order {
		if !selected[id] || pinned[id.Name] {
			continue
		}
		var assumptions []int
		for _, rec := range enc.DB.Versions(id.Name) {
			assumptions = append(assumptions, -enc.VarOf[rec.ID])
		}
		sat, model, err := d.Oracle.Solve(enc.NumVars(), base, assumptions)
		if err != nil || !sat {
			continue
		}
		selected = modelToSelected(enc, model)
	}
	return selected
}

// footprintOrder computes a deterministic visiting order: ascending by
// how many other currently-selected packages directly depend on this
// one, then by name.
func footprintOrder(enc *encode.Encoding, selected map[pkgdb.Identity]bool) []pkgdb.Identity {
	dependents := map[pkgdb.Identity]int{}
	for id := range selected {
		dependents[id] = 0
	}
	for id := range selected {
		rec, ok := enc.DB.Lookup(id)
		if !ok {
			continue
		}
		clauses := append(append([]pkgdb.Clause{}, rec.Depends...), rec.PreDepends...)
		for _, clause := range clauses {
			for _, cand := range enc.DB.ResolveClause(clause) {
				if _, ok := dependents[cand]; ok {
					dependents[cand]++
				}
			}
		}
	}

	out := sortedIdentities(selected)
	sort.SliceStable(out, func(i, j int) bool {
		if dependents[out[i]] != dependents[out[j]] {
			return dependents[out[i]] < dependents[out[j]]
		}
		return out[i].Name < out[j].Name
	})
	return out
}
