// Package encode compiles the universe of candidate packages and the
// blueprint into Boolean clauses over one variable per candidate
// identity, ready to hand to a SAT oracle.
package encode

import (
	"github.com/AOSC-Dev/omakase/internal/blueprint"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

// BlueprintClause is one blueprint entry's resolved hard clause, kept
// separate from the always-active base clauses so the Diagnostic
// Reporter can selectively drop entries during MUS search.
type BlueprintClause struct {
	EntryName string
	Literals  []int
}

// Encoding is the compiled SAT problem: the candidate universe, the
// variable numbering, and the clause sets.
type Encoding struct {
	DB *pkgdb.Database

	VarOf map[pkgdb.Identity]int
	IDOf  []pkgdb.Identity // 1-indexed; IDOf[0] is unused

	BaseClauses      [][]int // at-most-one, dependency, conflict
	BlueprintClauses []BlueprintClause

	// FalseVar is a variable forced false by a unit base clause. A
	// blueprint entry with no candidate provider is encoded as the
	// single-literal clause [FalseVar], which is always unsatisfiable
	// on its own but still drops cleanly out of a MUS search like any
	// other blueprint clause.
	FalseVar int
}

// NumVars returns the number of SAT variables in the encoding.
func (e *Encoding) NumVars() int { return len(e.IDOf) - 1 }

// Build compiles db and bp into an Encoding. Clauses are emitted in a
// fixed order (by ascending variable id, then by the record's own
// dependency/conflict clause order) so that repeated builds over
// identical inputs produce byte-identical clause streams, per the
// determinism requirement in the concurrency design.
func Build(db *pkgdb.Database, bp *blueprint.Blueprint) (*Encoding, error) {
	all := db.All() // already sorted by (name, version)

	e := &Encoding{
		DB:    db,
		VarOf: make(map[pkgdb.Identity]int, len(all)),
		IDOf:  make([]pkgdb.Identity, 1, len(all)+1),
	}
	for _, rec := range all {
		e.VarOf[rec.ID] = len(e.IDOf)
		e.IDOf = append(e.IDOf, rec.ID)
	}
	e.FalseVar = len(e.IDOf)
	e.IDOf = append(e.IDOf, pkgdb.Identity{})
	e.BaseClauses = append(e.BaseClauses, []int{-e.FalseVar})

	e.addAtMostOneVersion(all)
	if err := e.addDependencyAndConflictClauses(all); err != nil {
		return nil, err
	}
	if err := e.addBlueprintClauses(bp); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Encoding) addAtMostOneVersion(all []*pkgdb.Record) {
	byName := map[string][]int{}
	var names []string
	for _, rec := range all {
		if _, ok := byName[rec.ID.Name]; !ok {
			names = append(names, rec.ID.Name)
		}
		byName[rec.ID.Name] = append(byName[rec.ID.Name], e.VarOf[rec.ID])
	}
	for _, name := range names {
		vars := byName[name]
		for i := 0; i < len(vars); i++ {
			for j := i + 1; j < len(vars); j++ {
				e.BaseClauses = append(e.BaseClauses, []int{-vars[i], -vars[j]})
			}
		}
	}
}

func (e *Encoding) addDependencyAndConflictClauses(all []*pkgdb.Record) error {
	for _, rec := range all {
		p := e.VarOf[rec.ID]

		for _, clause := range append(append([]pkgdb.Clause{}, rec.Depends...), rec.PreDepends...) {
			candidates := e.DB.ResolveClause(clause)
			if len(candidates) == 0 {
				e.BaseClauses = append(e.BaseClauses, []int{-p})
				continue
			}
			lits := []int{-p}
			for _, id := range candidates {
				lits = append(lits, e.VarOf[id])
			}
			e.BaseClauses = append(e.BaseClauses, lits)
		}

		for _, clause := range rec.Conflicts {
			candidates := e.DB.ResolveClause(clause)
			for _, id := range candidates {
				if id == rec.ID {
					// An identity never conflicts with itself via a
					// shared virtual.
					continue
				}
				e.BaseClauses = append(e.BaseClauses, []int{-p, -e.VarOf[id]})
			}
		}
	}
	return nil
}

func (e *Encoding) addBlueprintClauses(bp *blueprint.Blueprint) error {
	for _, entry := range bp.Sorted() {
		candidates := e.DB.ResolveName(entry.Name, entry.Preds)
		bc := BlueprintClause{EntryName: entry.Name}
		if len(candidates) == 0 {
			// No candidate provider at all: encode as a reference to
			// the always-false sentinel so this entry still behaves
			// like an ordinary droppable clause during MUS search.
			bc.Literals = []int{e.FalseVar}
			e.BlueprintClauses = append(e.BlueprintClauses, bc)
			continue
		}
		for _, id := range candidates {
			bc.Literals = append(bc.Literals, e.VarOf[id])
		}
		e.BlueprintClauses = append(e.BlueprintClauses, bc)
	}
	return nil
}
