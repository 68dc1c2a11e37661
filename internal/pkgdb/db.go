package pkgdb

import (
	"fmt"
	"io"
	"sort"

	"github.com/armon/go-radix"
	"github.com/pkg/errors"

	"github.com/AOSC-Dev/omakase/internal/control"
	"github.com/AOSC-Dev/omakase/internal/debversion"
	"github.com/AOSC-Dev/omakase/internal/errs"
)

// ArchAll is the architecture wildcard that matches any primary
// architecture.
const ArchAll = "all"

// Identity is a package's (name, version, architecture) triple.
type Identity struct {
	Name    string
	Version debversion.Version
	Arch    string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s=%s:%s", id.Name, id.Version, id.Arch)
}

// Provide is a (virtual-name, optional version) pair declared by a
// Record's Provides field.
type Provide struct {
	Name    string
	Version *debversion.Version
}

// Record is a package's full identity plus its normalized dependency,
// conflict, and provides data.
type Record struct {
	ID Identity

	Depends    []Clause
	PreDepends []Clause
	Conflicts  []Clause // Breaks is folded in here; see DESIGN.md.
	Provides   []Provide

	Size     int64
	Filename string
	SHA256   string
}

// Database is the in-memory catalog built from one or more repositories'
// indices, after deduplication and architecture filtering.
type Database struct {
	primaryArch string

	byIdentity map[Identity]*Record
	byName     *radix.Tree // string(name) -> []*Record, sorted ascending by version
	providedBy *radix.Tree // string(virtual name) -> []*Record
}

// Load parses every stanza from indices (each entry is one index file's
// raw bytes, tagged with a label for error messages), deduplicates by
// identity, and builds the secondary lookup indices. Records whose
// architecture is neither primaryArch nor ArchAll are dropped before
// indexing, per the SAT Encoder's architecture qualification rule.
func Load(indices []IndexSource, primaryArch string) (*Database, error) {
	db := &Database{
		primaryArch: primaryArch,
		byIdentity:  map[Identity]*Record{},
		byName:      radix.New(),
		providedBy:  radix.New(),
	}

	byNameBuild := map[string][]*Record{}
	provBuild := map[string][]*Record{}

	for _, src := range indices {
		stanzas, err := control.ParseStanzas(src.Reader, src.Label)
		if err != nil {
			return nil, errs.New(errs.KindMetadataParse, fmt.Sprintf("parsing %s", src.Label), err)
		}
		for _, st := range stanzas {
			rec, err := recordFromStanza(st)
			if err != nil {
				return nil, errs.New(errs.KindMetadataParse, fmt.Sprintf("parsing stanza in %s", src.Label), err)
			}
			if rec.ID.Arch != primaryArch && rec.ID.Arch != ArchAll {
				continue
			}
			if _, exists := db.byIdentity[rec.ID]; exists {
				// Deterministic: first-seen (in caller-supplied, stable
				// repo/component/arch order) wins; later duplicates from
				// a different repository are ignored rather than erroring,
				// since cross-repository collisions are common in practice
				// (e.g. a package mirrored by more than one component).
				continue
			}
			db.byIdentity[rec.ID] = rec
			byNameBuild[rec.ID.Name] = append(byNameBuild[rec.ID.Name], rec)
			for _, p := range rec.Provides {
				provBuild[p.Name] = append(provBuild[p.Name], rec)
			}
		}
	}

	for name, recs := range byNameBuild {
		sort.Slice(recs, func(i, j int) bool { return recs[i].ID.Version.Less(recs[j].ID.Version) })
		db.byName.Insert(name, recs)
	}
	for name, recs := range provBuild {
		db.providedBy.Insert(name, recs)
	}

	return db, nil
}

// IndexSource names one decompressed index file for Load.
type IndexSource struct {
	Label  string
	Reader io.Reader
}

func recordFromStanza(st *control.Stanza) (*Record, error) {
	name, ok := st.Get("Package")
	if !ok || name == "" {
		return nil, errors.New("stanza missing Package field")
	}
	verStr, ok := st.Get("Version")
	if !ok {
		return nil, errors.Errorf("package %s missing Version field", name)
	}
	ver, err := debversion.Parse(verStr)
	if err != nil {
		return nil, errors.Wrapf(err, "package %s", name)
	}
	arch, ok := st.Get("Architecture")
	if !ok || arch == "" {
		return nil, errors.Errorf("package %s missing Architecture field", name)
	}

	rec := &Record{ID: Identity{Name: name, Version: ver, Arch: arch}}

	if v, ok := st.Get("Depends"); ok {
		if rec.Depends, err = ParseDependencyField(v); err != nil {
			return nil, errors.Wrapf(err, "package %s", name)
		}
	}
	if v, ok := st.Get("Pre-Depends"); ok {
		if rec.PreDepends, err = ParseDependencyField(v); err != nil {
			return nil, errors.Wrapf(err, "package %s", name)
		}
	}
	var conflicts, breaks []Clause
	if v, ok := st.Get("Conflicts"); ok {
		if conflicts, err = ParseDependencyField(v); err != nil {
			return nil, errors.Wrapf(err, "package %s", name)
		}
	}
	if v, ok := st.Get("Breaks"); ok {
		if breaks, err = ParseDependencyField(v); err != nil {
			return nil, errors.Wrapf(err, "package %s", name)
		}
	}
	// Breaks is modeled identically to Conflicts: both are hard exclusions.
	rec.Conflicts = append(conflicts, breaks...)

	if v, ok := st.Get("Provides"); ok {
		clauses, err := ParseDependencyField(v)
		if err != nil {
			return nil, errors.Wrapf(err, "package %s provides", name)
		}
		for _, clause := range clauses {
			for _, atom := range clause {
				p := Provide{Name: atom.Name}
				if atom.Pred != nil {
					v := atom.Pred.Version
					p.Version = &v
				}
				rec.Provides = append(rec.Provides, p)
			}
		}
	}

	rec.Filename, _ = st.Get("Filename")
	if sz, ok := st.Get("Size"); ok {
		fmt.Sscanf(sz, "%d", &rec.Size)
	}
	rec.SHA256, _ = st.Get("SHA256")

	return rec, nil
}

// Lookup returns the record for an exact identity, if known.
func (db *Database) Lookup(id Identity) (*Record, bool) {
	r, ok := db.byIdentity[id]
	return r, ok
}

// Versions returns every known record for a concrete package name,
// ascending by version.
func (db *Database) Versions(name string) []*Record {
	v, ok := db.byName.Get(name)
	if !ok {
		return nil
	}
	return v.([]*Record)
}

// Providers returns every record that provides the given virtual name.
func (db *Database) Providers(virtual string) []*Record {
	v, ok := db.providedBy.Get(virtual)
	if !ok {
		return nil
	}
	return v.([]*Record)
}

// All returns every record in the database, in a deterministic order
// (by name, then ascending version) suitable for stable clause emission.
func (db *Database) All() []*Record {
	var out []*Record
	db.byName.Walk(func(_ string, v interface{}) bool {
		out = append(out, v.([]*Record)...)
		return false
	})
	return out
}

// ResolveAtom returns the set of concrete identities that satisfy atom,
// respecting Provides (a virtual atom is satisfied by any package
// providing a matching virtual entry) and architecture qualification.
// The returned slice is deduplicated and stably ordered by (name, version).
func (db *Database) ResolveAtom(atom Atom) []Identity {
	seen := map[Identity]bool{}
	var out []Identity

	add := func(rec *Record) {
		if rec.ID.Arch != db.primaryArch && rec.ID.Arch != ArchAll {
			return
		}
		if atom.Arch != "" && atom.Arch != rec.ID.Arch && rec.ID.Arch != ArchAll {
			return
		}
		if seen[rec.ID] {
			return
		}
		seen[rec.ID] = true
		out = append(out, rec.ID)
	}

	for _, rec := range db.Versions(atom.Name) {
		if atom.Pred == nil || atom.Pred.Satisfies(rec.ID.Version) {
			add(rec)
		}
	}
	for _, rec := range db.Providers(atom.Name) {
		ok := true
		for _, p := range rec.Provides {
			if p.Name != atom.Name {
				continue
			}
			if atom.Pred != nil {
				if p.Version == nil || !atom.Pred.Satisfies(*p.Version) {
					ok = false
				}
			}
		}
		if ok {
			add(rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version.Less(out[j].Version)
	})
	return out
}

// ResolveName returns the candidate identities for a bare name under a
// conjunction of predicates (used by the Blueprint Model, where a single
// entry may carry several predicates joined by "and"). Both concrete
// versions and virtual providers are checked against every predicate.
func (db *Database) ResolveName(name string, preds []Predicate) []Identity {
	satisfiesAll := func(v debversion.Version) bool {
		for _, p := range preds {
			if !p.Satisfies(v) {
				return false
			}
		}
		return true
	}

	seen := map[Identity]bool{}
	var out []Identity
	add := func(rec *Record) {
		if rec.ID.Arch != db.primaryArch && rec.ID.Arch != ArchAll {
			return
		}
		if seen[rec.ID] {
			return
		}
		seen[rec.ID] = true
		out = append(out, rec.ID)
	}

	for _, rec := range db.Versions(name) {
		if satisfiesAll(rec.ID.Version) {
			add(rec)
		}
	}
	for _, rec := range db.Providers(name) {
		ok := true
		for _, p := range rec.Provides {
			if p.Name != name {
				continue
			}
			if len(preds) > 0 && (p.Version == nil || !satisfiesAll(*p.Version)) {
				ok = false
			}
		}
		if ok {
			add(rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version.Less(out[j].Version)
	})
	return out
}

// ResolveClause resolves every atom in a clause and unions the results,
// preserving atom order so the emitted SAT clause is deterministic.
func (db *Database) ResolveClause(c Clause) []Identity {
	seen := map[Identity]bool{}
	var out []Identity
	for _, atom := range c {
		for _, id := range db.ResolveAtom(atom) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
