// Package plan computes the concrete install/upgrade/downgrade/remove
// actions needed to move from an installed snapshot to a solved
// assignment, and orders them so prerequisites run before dependents
// and removals run after their dependents.
package plan

import (
	"fmt"
	"sort"

	"github.com/AOSC-Dev/omakase/internal/installedstate"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

// Verb names the kind of change an Action performs.
type Verb string

const (
	VerbInstall   Verb = "install"
	VerbUpgrade   Verb = "upgrade"
	VerbDowngrade Verb = "downgrade"
	VerbRemove    Verb = "remove"
)

// Action is one concrete change the Effector must apply.
type Action struct {
	Verb Verb
	Name string
	// To is the target identity for install/upgrade/downgrade; zero
	// value for remove.
	To pkgdb.Identity
	// From is the previously installed record for upgrade/downgrade/
	// remove; zero value for a fresh install.
	From installedstate.Record
}

func (a Action) String() string {
	switch a.Verb {
	case VerbInstall:
		return fmt.Sprintf("install %s=%s", a.Name, a.To.Version)
	case VerbRemove:
		return fmt.Sprintf("remove %s=%s", a.Name, a.From.Version)
	default:
		return fmt.Sprintf("%s %s %s -> %s", a.Verb, a.Name, a.From.Version, a.To.Version)
	}
}

// BrokenEdge records a dependency edge dropped to break a cycle during
// topological ordering, so callers can log it.
type BrokenEdge struct {
	From, To string
}

// Build computes the symmetric difference between assignment (the
// Solver Driver's chosen identities) and installed, then returns the
// actions in dependency order.
func Build(db *pkgdb.Database, assignment []pkgdb.Identity, installed installedstate.Snapshot) ([]Action, []BrokenEdge) {
	byName := map[string]pkgdb.Identity{}
	for _, id := range assignment {
		byName[id.Name] = id
	}

	var actions []Action
	for name, id := range byName {
		rec, wasInstalled := installed[name]
		if !wasInstalled {
			actions = append(actions, Action{Verb: VerbInstall, Name: name, To: id})
			continue
		}
		if rec.Version.Equal(id.Version) {
			continue
		}
		verb := VerbUpgrade
		if id.Version.Less(rec.Version) {
			verb = VerbDowngrade
		}
		actions = append(actions, Action{Verb: verb, Name: name, To: id, From: rec})
	}
	for name, rec := range installed {
		if _, stillWanted := byName[name]; stillWanted {
			continue
		}
		actions = append(actions, Action{Verb: VerbRemove, Name: name, From: rec})
	}

	ordered, broken := order(db, actions)
	return ordered, broken
}

// order topologically sorts actions so installs/upgrades/downgrades
// run with prerequisites first and removals run with dependents first,
// breaking any cycle at the edge whose source sorts first by name.
func order(db *pkgdb.Database, actions []Action) ([]Action, []BrokenEdge) {
	byName := make(map[string]Action, len(actions))
	for _, a := range actions {
		byName[a.Name] = a
	}

	names := make([]string, 0, len(actions))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	// Build an adjacency list: edge A -> B means "A must be applied
	// before B". For install/upgrade/downgrade actions this follows
	// the dependency graph (depend-on comes first); for removals the
	// graph is inverted (dependents are removed first).
	adj := make(map[string][]string, len(names))
	for _, n := range names {
		adj[n] = nil
	}
	for _, n := range names {
		a := byName[n]
		rec, ok := recordFor(db, a)
		if !ok {
			continue
		}
		clauses := append(append([]pkgdb.Clause{}, rec.Depends...), rec.PreDepends...)
		for _, clause := range clauses {
			for _, dep := range db.ResolveClause(clause) {
				depAction, inSet := byName[dep.Name]
				if !inSet {
					continue
				}
				if a.Verb == VerbRemove {
					// Remove dependents before the package they depend on.
					if depAction.Verb == VerbRemove {
						adj[n] = append(adj[n], dep.Name)
					}
				} else if depAction.Verb != VerbRemove {
					adj[dep.Name] = append(adj[dep.Name], n)
				}
			}
		}
	}
	for n := range adj {
		sort.Strings(adj[n])
	}

	sorted, broken := topoSort(names, adj)
	out := make([]Action, len(sorted))
	for i, n := range sorted {
		out[i] = byName[n]
	}
	return out, broken
}

// recordFor returns the package record whose Depends/Pre-Depends
// determine ordering for this action: the target for installs and
// upgrades, the previously-installed identity for removals.
func recordFor(db *pkgdb.Database, a Action) (*pkgdb.Record, bool) {
	switch a.Verb {
	case VerbRemove:
		return db.Lookup(pkgdb.Identity{Name: a.Name, Version: a.From.Version, Arch: a.From.Arch})
	default:
		return db.Lookup(a.To)
	}
}

// topoSort repeatedly runs Tarjan SCC detection and, for each
// remaining nontrivial component, drops one edge from that component's
// lowest-named node to its lowest-named intra-component successor,
// until the graph is acyclic. It then runs Kahn's algorithm, breaking
// ties among ready nodes by name, for a fully deterministic order.
func topoSort(names []string, adj map[string][]string) ([]string, []BrokenEdge) {
	edges := make(map[string][]string, len(adj))
	for n, ns := range adj {
		edges[n] = append([]string(nil), ns...)
	}

	var broken []BrokenEdge
	for {
		sccs := tarjanSCCs(names, edges)
		progressed := false
		for _, scc := range sccs {
			if len(scc) < 2 {
				continue
			}
			inSCC := make(map[string]bool, len(scc))
			for _, n := range scc {
				inSCC[n] = true
			}
			cycle := append([]string(nil), scc...)
			sort.Strings(cycle)
			source := cycle[0]

			var targets []string
			for _, t := range edges[source] {
				if inSCC[t] {
					targets = append(targets, t)
				}
			}
			if len(targets) == 0 {
				continue
			}
			sort.Strings(targets)
			target := targets[0]

			kept := make([]string, 0, len(edges[source]))
			removedOne := false
			for _, t := range edges[source] {
				if !removedOne && t == target {
					removedOne = true
					continue
				}
				kept = append(kept, t)
			}
			edges[source] = kept
			broken = append(broken, BrokenEdge{From: source, To: target})
			progressed = true
		}
		if !progressed {
			break
		}
	}

	indegree := make(map[string]int, len(names))
	for _, n := range names {
		indegree[n] = 0
	}
	for _, n := range names {
		for _, t := range edges[n] {
			indegree[t]++
		}
	}

	var queue []string
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	var out []string
	for len(queue) > 0 {
		sort.Strings(queue)
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)
		for _, t := range edges[n] {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}

	return out, broken
}

// tarjanSCCs computes strongly connected components over adj in a
// deterministic order (iterating names and their adjacency lists in
// sorted order), returning each component as a slice of node names.
func tarjanSCCs(names []string, adj map[string][]string) [][]string {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range names {
		if _, seen := indices[n]; !seen {
			strongconnect(n)
		}
	}
	return sccs
}
