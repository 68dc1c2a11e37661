// Package blueprint parses the user's declared package intents: the
// top-level blueprint file plus any vendored overlay files.
// Contradictory predicates are never rejected at parse time; they
// surface later as an Unsatisfiable result from the solver.
package blueprint

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AOSC-Dev/omakase/internal/debversion"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

// Entry is a package name plus zero or more version predicates,
// combined by conjunction.
type Entry struct {
	Name  string
	Preds []pkgdb.Predicate
}

// Blueprint is the full set of entries after merging the user file and
// every overlay file, with duplicate names' predicate sets unioned.
type Blueprint struct {
	Entries map[string]*Entry // keyed by name, insertion order tracked separately
	order   []string
}

// Sorted returns entries in a deterministic order (by name).
func (b *Blueprint) Sorted() []*Entry {
	names := append([]string(nil), b.order...)
	sort.Strings(names)
	out := make([]*Entry, 0, len(names))
	for _, n := range names {
		out = append(out, b.Entries[n])
	}
	return out
}

// Load reads userFile and every *.blueprint file under overlayDir (if it
// exists), merging them into one Blueprint.
func Load(userFile, overlayDir string) (*Blueprint, error) {
	b := &Blueprint{Entries: map[string]*Entry{}}

	if err := b.loadFile(userFile); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(overlayDir)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("reading overlay directory %s: %w", overlayDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".blueprint") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names) // deterministic merge order across overlay files
	for _, n := range names {
		if err := b.loadFile(filepath.Join(overlayDir, n)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Blueprint) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening blueprint %s: %w", path, err)
	}
	defer f.Close()
	return b.loadReader(f, path)
}

func (b *Blueprint) loadReader(r io.Reader, label string) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", label, lineNo, err)
		}
		b.merge(entry)
	}
	return scanner.Err()
}

func (b *Blueprint) merge(e *Entry) {
	existing, ok := b.Entries[e.Name]
	if !ok {
		b.Entries[e.Name] = e
		b.order = append(b.order, e.Name)
		return
	}
	existing.Preds = append(existing.Preds, e.Preds...)
}

// parseLine parses one syntactic blueprint line: "NAME" or
// "NAME (PRED[, PRED]*)".
func parseLine(line string) (*Entry, error) {
	name := line
	var predPart string
	if idx := strings.Index(line, "("); idx >= 0 {
		end := strings.LastIndex(line, ")")
		if end < idx {
			return nil, fmt.Errorf("unterminated predicate list in %q", line)
		}
		name = strings.TrimSpace(line[:idx])
		predPart = strings.TrimSpace(line[idx+1 : end])
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("missing package name in %q", line)
	}

	e := &Entry{Name: name}
	if predPart == "" {
		return e, nil
	}
	for _, raw := range strings.Split(predPart, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		fields := strings.Fields(raw)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed predicate %q in %q", raw, line)
		}
		op, err := pkgdb.ParseOp(fields[0])
		if err != nil {
			return nil, fmt.Errorf("in %q: %w", line, err)
		}
		ver, err := debversion.Parse(fields[1])
		if err != nil {
			return nil, fmt.Errorf("in %q: %w", line, err)
		}
		e.Preds = append(e.Preds, pkgdb.Predicate{Op: op, Version: ver})
	}
	return e, nil
}

// Serialize writes the blueprint back out in the canonical line syntax,
// one entry per line, sorted by name then by predicate for a
// deterministic round trip.
func (b *Blueprint) Serialize(w io.Writer) error {
	for _, e := range b.Sorted() {
		line := e.Name
		if len(e.Preds) > 0 {
			preds := append([]pkgdb.Predicate(nil), e.Preds...)
			sort.Slice(preds, func(i, j int) bool {
				if preds[i].Op != preds[j].Op {
					return preds[i].Op < preds[j].Op
				}
				return preds[i].Version.Compare(preds[j].Version) < 0
			})
			parts := make([]string, len(preds))
			for i, p := range preds {
				parts[i] = fmt.Sprintf("%s %s", p.Op, p.Version)
			}
			line += " (" + strings.Join(parts, ", ") + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
