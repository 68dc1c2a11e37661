// Package releasemanifest parses a repository's Release file: the
// control stanza whose SHA256 field lists every index file's relative
// path, size, and hash, one per continuation line.
package releasemanifest

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/AOSC-Dev/omakase/internal/control"
	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/metadatastore"
)

// Parse reads the single stanza in data and returns its SHA256-listed
// entries.
func Parse(data []byte, label string) ([]metadatastore.ManifestEntry, error) {
	stanzas, err := control.ParseStanzas(bytes.NewReader(data), label)
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "parsing release manifest "+label, err)
	}
	if len(stanzas) == 0 {
		return nil, errs.New(errs.KindMetadataParse, "release manifest "+label+" has no stanza", nil)
	}

	raw, ok := stanzas[0].Get("SHA256")
	if !ok {
		return nil, errs.New(errs.KindMetadataParse, "release manifest "+label+" missing SHA256 field", nil)
	}

	var entries []metadatastore.ManifestEntry
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, errs.New(errs.KindMetadataParse,
				"malformed SHA256 entry in "+label+": "+line, nil)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errs.New(errs.KindMetadataParse, "malformed size in "+label+": "+line, err)
		}
		entries = append(entries, metadatastore.ManifestEntry{
			Hash: fields[0],
			Size: size,
			Path: fields[2],
		})
	}
	return entries, nil
}
