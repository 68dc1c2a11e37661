// Package installedstate reads a snapshot of currently installed
// packages. The snapshot is taken once per
// reconciliation and not re-polled.
package installedstate

import (
	"io"
	"os"
	"strings"

	"github.com/AOSC-Dev/omakase/internal/control"
	"github.com/AOSC-Dev/omakase/internal/debversion"
	"github.com/AOSC-Dev/omakase/internal/errs"
)

// Record is one installed package's identity.
type Record struct {
	Name    string
	Version debversion.Version
	Arch    string
}

// Snapshot maps package name to its installed record.
type Snapshot map[string]Record

// ReadFile parses a dpkg-style status file (a sequence of control
// stanzas with a Status field) at path.
func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, errs.New(errs.KindMetadataParse, "opening installed-state file", err)
	}
	defer f.Close()
	return Read(f, path)
}

// Read parses stanzas from r, keeping only those whose Status field
// indicates a fully installed package ("install ok installed").
func Read(r io.Reader, label string) (Snapshot, error) {
	stanzas, err := control.ParseStanzas(r, label)
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "parsing installed-state snapshot", err)
	}

	snap := Snapshot{}
	for _, st := range stanzas {
		status, _ := st.Get("Status")
		if !isInstalled(status) {
			continue
		}
		name, ok := st.Get("Package")
		if !ok {
			continue
		}
		verStr, ok := st.Get("Version")
		if !ok {
			continue
		}
		ver, err := debversion.Parse(verStr)
		if err != nil {
			return nil, errs.New(errs.KindMetadataParse, "parsing installed package version for "+name, err)
		}
		arch, _ := st.Get("Architecture")
		snap[name] = Record{Name: name, Version: ver, Arch: arch}
	}
	return snap, nil
}

func isInstalled(status string) bool {
	fields := strings.Fields(status)
	for _, f := range fields {
		if f == "installed" {
			return true
		}
	}
	return false
}
