// Package refresh wires the Fetcher, the signature verifier, the
// release manifest parser, and the Metadata Store together into one
// "pull the latest index for a repo" operation.
package refresh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AOSC-Dev/omakase/internal/config"
	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/fetch"
	"github.com/AOSC-Dev/omakase/internal/metadatastore"
	"github.com/AOSC-Dev/omakase/internal/releasemanifest"
	"github.com/AOSC-Dev/omakase/internal/sigverify"
)

// Refresher pulls the Release file for every configured repo, verifies
// it, and updates the Metadata Store with whatever index files changed.
type Refresher struct {
	Fetcher *fetch.Fetcher
	Store   *metadatastore.Store
	Keyring *sigverify.Keyring
}

// New builds a Refresher from its collaborators.
func New(f *fetch.Fetcher, store *metadatastore.Store, kr *sigverify.Keyring) *Refresher {
	return &Refresher{Fetcher: f, Store: store, Keyring: kr}
}

// All refreshes every repo named in cfg.Repos, stopping at the first
// failure.
func (r *Refresher) All(ctx context.Context, cfg *config.Config) error {
	for name, repo := range cfg.Repos {
		if err := r.One(ctx, name, repo); err != nil {
			return err
		}
	}
	return nil
}

// One refreshes a single named repo.
func (r *Refresher) One(ctx context.Context, name string, repo config.RepoConfig) error {
	work, err := os.MkdirTemp("", "oma-refresh-*")
	if err != nil {
		return errs.New(errs.KindMetadataParse, "creating refresh workdir", err)
	}
	defer os.RemoveAll(work)

	roots, err := r.resolveRoots(ctx, name, repo, work)
	if err != nil {
		return err
	}

	releasePath := filepath.Join(work, "Release")
	sigPath := filepath.Join(work, "Release.gpg")
	releaseMirrors := make([]string, len(roots))
	sigMirrors := make([]string, len(roots))
	for i, root := range roots {
		distBase := root + "/dists/" + repo.Distribution + "/"
		releaseMirrors[i] = distBase + "Release"
		sigMirrors[i] = distBase + "Release.gpg"
	}

	results := r.Fetcher.Fetch(ctx, []fetch.Task{
		{Mirrors: releaseMirrors, Destination: releasePath},
		{Mirrors: sigMirrors, Destination: sigPath},
	})
	if err := results[0].Err; err != nil {
		return errs.New(errs.KindNetwork, "fetching Release for "+name, err)
	}
	if err := results[1].Err; err != nil {
		return errs.New(errs.KindNetwork, "fetching Release.gpg for "+name, err)
	}

	releaseBytes, err := os.ReadFile(releasePath)
	if err != nil {
		return errs.New(errs.KindMetadataParse, "reading fetched Release for "+name, err)
	}
	sigBytes, err := os.ReadFile(sigPath)
	if err != nil {
		return errs.New(errs.KindMetadataParse, "reading fetched Release.gpg for "+name, err)
	}
	if err := r.Keyring.Verify(releaseBytes, sigBytes); err != nil {
		return err
	}

	allEntries, err := releasemanifest.Parse(releaseBytes, "Release of "+name)
	if err != nil {
		return err
	}
	resolved := wanted(allEntries, repo.Components)

	manifestEntries := make([]metadatastore.ManifestEntry, len(resolved))
	byFinalPath := make(map[string]resolvedEntry, len(resolved))
	for i, re := range resolved {
		manifestEntries[i] = metadatastore.ManifestEntry{Path: re.finalPath, Hash: re.hash, Size: re.size}
		byFinalPath[re.finalPath] = re
	}

	stale, err := r.Store.NeedsFetch(name, manifestEntries)
	if err != nil {
		return err
	}

	fetched := make(map[string]string, len(resolved))
	isStale := make(map[string]bool, len(stale))
	for _, s := range stale {
		isStale[s.Path] = true
	}
	// Indices whose cached copy still matches the manifest are carried
	// over from the live generation into the new one.
	liveDir := filepath.Dir(r.Store.Manifest(name))
	for _, re := range resolved {
		if !isStale[re.finalPath] {
			fetched[re.finalPath] = filepath.Join(liveDir, re.finalPath)
		}
	}
	var tasks []fetch.Task
	for _, s := range stale {
		re := byFinalPath[s.Path]
		dst := filepath.Join(work, strings.ReplaceAll(re.finalPath, "/", "_"))
		fetched[re.finalPath] = dst
		mirrors := make([]string, len(roots))
		for i, root := range roots {
			mirrors[i] = root + "/" + re.fetchPath
		}
		tasks = append(tasks, fetch.Task{
			Mirrors:      mirrors,
			Destination:  dst,
			ExpectedHash: re.hash,
			ExpectedSize: re.size,
			Decompress:   re.decompress,
		})
	}
	if len(tasks) > 0 {
		for i, res := range r.Fetcher.Fetch(ctx, tasks) {
			if res.Err != nil {
				return errs.New(errs.KindNetwork, fmt.Sprintf("fetching index %s for %s", tasks[i].Destination, name), res.Err)
			}
		}
	}

	return r.Store.Refresh(name, releasePath, fetched)
}

// resolveRoots returns the ordered list of candidate base URLs (no
// trailing slash) to try for repo, fetched in the order a mirror ranks
// them. When repo.MirrorList is unset, Source is itself the one root.
// Otherwise Source is fetched through the Fetcher as a plain text
// mirror list, one candidate base URL per line, blank lines and lines
// starting with "#" skipped.
func (r *Refresher) resolveRoots(ctx context.Context, name string, repo config.RepoConfig, work string) ([]string, error) {
	source := strings.TrimRight(repo.Source, "/")
	if !repo.MirrorList {
		return []string{source}, nil
	}

	dst := filepath.Join(work, "mirrorlist")
	results := r.Fetcher.Fetch(ctx, []fetch.Task{
		{Mirrors: []string{repo.Source}, Destination: dst},
	})
	if err := results[0].Err; err != nil {
		return nil, errs.New(errs.KindNetwork, "fetching mirror list for "+name, err)
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "reading fetched mirror list for "+name, err)
	}

	var roots []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		roots = append(roots, strings.TrimRight(line, "/"))
	}
	if len(roots) == 0 {
		return nil, errs.New(errs.KindMetadataParse, "mirror list for "+name+" contained no URLs", nil)
	}
	return roots, nil
}

// resolvedEntry is one index file wanted resolved to its final,
// decompressed cache path, its remote path (possibly still carrying a
// .gz/.xz suffix), and whether the Fetcher must decompress it on the
// way in.
type resolvedEntry struct {
	finalPath  string // cache path, always uncompressed, e.g. "main/amd64/Packages"
	fetchPath  string // path appended to repo.Source to fetch, e.g. "main/amd64/Packages.gz"
	hash       string // hash of the bytes at fetchPath, as the manifest lists it
	size       int64
	decompress bool
}

// wanted restricts entries to the Packages files under the repo's
// configured components, resolving each component/arch pair to a
// single variant: the uncompressed Packages file when the manifest
// lists one, otherwise whichever compressed (.gz/.xz) variant it lists,
// transparently decompressed on fetch. Preferring the uncompressed
// variant avoids decompression work entirely when the repo offers one;
// falling back to a compressed variant lets a repo that only publishes
// compressed indices (as real Debian-style repositories commonly do)
// still be fetched.
//
// NeedsFetch's staleness check hashes the cached (decompressed) file
// against the selected variant's manifest hash. For an uncompressed
// selection those match directly. For a compressed-only selection they
// never will, since the manifest only hashes the compressed bytes, so
// such an index is refetched on every refresh; the Fetcher's own hash
// check against the downloaded bytes still guarantees what lands on
// disk is exactly what the manifest promised.
func wanted(entries []metadatastore.ManifestEntry, components []string) []resolvedEntry {
	allowed := make(map[string]bool, len(components))
	for _, c := range components {
		allowed[c] = true
	}

	byFinal := map[string]resolvedEntry{}
	var order []string
	for _, e := range entries {
		base, decompress := stripCompressionSuffix(e.Path)
		if !strings.HasSuffix(base, "/Packages") {
			continue
		}
		parts := strings.Split(base, "/")
		if len(parts) < 3 || !allowed[parts[0]] {
			continue
		}
		if cur, exists := byFinal[base]; exists && !cur.decompress {
			// Already have an uncompressed variant for this path; never
			// let a compressed one override it.
			continue
		} else if !exists {
			order = append(order, base)
		}
		byFinal[base] = resolvedEntry{
			finalPath:  base,
			fetchPath:  e.Path,
			hash:       e.Hash,
			size:       e.Size,
			decompress: decompress,
		}
	}

	out := make([]resolvedEntry, 0, len(order))
	for _, p := range order {
		out = append(out, byFinal[p])
	}
	return out
}

func stripCompressionSuffix(path string) (base string, decompress bool) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return strings.TrimSuffix(path, ".gz"), true
	case strings.HasSuffix(path, ".xz"):
		return strings.TrimSuffix(path, ".xz"), true
	default:
		return path, false
	}
}
