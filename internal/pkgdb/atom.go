// Package pkgdb is the in-memory catalog of known packages across all
// repositories, keyed by (name, version, architecture) with
// dependency/conflict rules normalized into atoms and clauses.
package pkgdb

import (
	"fmt"
	"strings"

	"github.com/AOSC-Dev/omakase/internal/debversion"
)

// Op is a version comparison operator.
type Op string

const (
	OpEQ Op = "="
	OpNE Op = "!="
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
)

// ParseOp recognizes both the generic operator tokens used by the
// blueprint grammar (=, !=, <, <=, >, >=) and the Debian control-file
// dependency tokens (<<, <=, =, >=, >>).
func ParseOp(tok string) (Op, error) {
	switch tok {
	case "=":
		return OpEQ, nil
	case "!=":
		return OpNE, nil
	case "<", "<<":
		return OpLT, nil
	case "<=":
		return OpLE, nil
	case ">", ">>":
		return OpGT, nil
	case ">=":
		return OpGE, nil
	default:
		return "", fmt.Errorf("unrecognized version operator %q", tok)
	}
}

// Predicate pairs an operator with a reference version.
type Predicate struct {
	Op      Op
	Version debversion.Version
}

// Satisfies reports whether v satisfies the predicate.
func (p Predicate) Satisfies(v debversion.Version) bool {
	c := v.Compare(p.Version)
	switch p.Op {
	case OpEQ:
		return c == 0
	case OpNE:
		return c != 0
	case OpLT:
		return c < 0
	case OpLE:
		return c <= 0
	case OpGT:
		return c > 0
	case OpGE:
		return c >= 0
	default:
		return false
	}
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s%s", p.Op, p.Version.String())
}

// Atom is a structured reference to a package or virtual name, with an
// optional version predicate and architecture qualifier. Whether the
// name is concrete or virtual is resolved lazily against the database
// rather than tagged up front, since a name can be both at once.
type Atom struct {
	Name string
	Pred *Predicate // nil means "any version"
	Arch string      // empty means "no qualifier"
}

func (a Atom) String() string {
	s := a.Name
	if a.Pred != nil {
		s += fmt.Sprintf(" (%s)", a.Pred)
	}
	if a.Arch != "" {
		s += fmt.Sprintf(" [%s]", a.Arch)
	}
	return s
}

// Clause is a disjunction of atoms ("A | B | C").
type Clause []Atom

func (c Clause) String() string {
	parts := make([]string, len(c))
	for i, a := range c {
		parts[i] = a.String()
	}
	return strings.Join(parts, " | ")
}

// ParseDependencyField parses a Debian Depends/Pre-Depends/Conflicts/
// Breaks-style field value: a comma-separated list of clauses, each
// clause a pipe-separated list of atoms of the form
// "name" or "name (OP version)" or "name (OP version) [arch]".
func ParseDependencyField(value string) ([]Clause, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var clauses []Clause
	for _, rawClause := range splitTopLevel(value, ',') {
		rawClause = strings.TrimSpace(rawClause)
		if rawClause == "" {
			continue
		}
		var clause Clause
		for _, rawAtom := range strings.Split(rawClause, "|") {
			atom, err := parseAtom(rawAtom)
			if err != nil {
				return nil, fmt.Errorf("parsing dependency field %q: %w", value, err)
			}
			clause = append(clause, atom)
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

// splitTopLevel splits on sep but never inside parentheses, since
// version predicates can legally contain most characters.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		default:
			if s[i] == sep && depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseAtom(raw string) (Atom, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Atom{}, fmt.Errorf("empty atom")
	}

	arch := ""
	if idx := strings.Index(raw, "["); idx >= 0 {
		end := strings.Index(raw[idx:], "]")
		if end < 0 {
			return Atom{}, fmt.Errorf("unterminated architecture qualifier in %q", raw)
		}
		arch = strings.TrimSpace(raw[idx+1 : idx+end])
		raw = strings.TrimSpace(raw[:idx])
	}

	name := raw
	var pred *Predicate
	if idx := strings.Index(raw, "("); idx >= 0 {
		end := strings.LastIndex(raw, ")")
		if end < idx {
			return Atom{}, fmt.Errorf("unterminated version predicate in %q", raw)
		}
		name = strings.TrimSpace(raw[:idx])
		predRaw := strings.TrimSpace(raw[idx+1 : end])
		p, err := parsePredicate(predRaw)
		if err != nil {
			return Atom{}, err
		}
		pred = &p
	}

	name = strings.TrimSpace(name)
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		// "name:arch" qualifier form; fold into the bracket qualifier.
		if arch == "" {
			arch = name[idx+1:]
		}
		name = name[:idx]
	}
	if name == "" {
		return Atom{}, fmt.Errorf("atom with empty name in %q", raw)
	}
	return Atom{Name: name, Pred: pred, Arch: arch}, nil
}

func parsePredicate(raw string) (Predicate, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return Predicate{}, fmt.Errorf("malformed version predicate %q", raw)
	}
	op, err := ParseOp(fields[0])
	if err != nil {
		return Predicate{}, err
	}
	v, err := debversion.Parse(fields[1])
	if err != nil {
		return Predicate{}, fmt.Errorf("malformed version in predicate %q: %w", raw, err)
	}
	return Predicate{Op: op, Version: v}, nil
}
