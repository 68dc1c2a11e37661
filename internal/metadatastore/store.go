// Package metadatastore implements a content-addressed directory per
// repository holding the most recently verified release manifest plus
// each named index file, refreshed atomically and guarded by an
// advisory lock.
package metadatastore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	shutil "github.com/termie/go-shutil"
	flock "github.com/theckman/go-flock"

	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

// ManifestEntry names one index file's path (relative to the
// repository's cache directory), size, and content hash, as listed in
// the release manifest.
type ManifestEntry struct {
	Path string
	Size int64
	Hash string // hex sha256
}

// Store manages the on-disk cache layout:
// <cache_root>/<repo>/manifest and <cache_root>/<repo>/<component>/<arch>/Packages.
type Store struct {
	cacheRoot string
}

// New returns a Store rooted at cacheRoot.
func New(cacheRoot string) *Store { return &Store{cacheRoot: cacheRoot} }

func (s *Store) repoDir(repo string) string    { return filepath.Join(s.cacheRoot, repo) }
func (s *Store) stagingDir(repo string) string { return filepath.Join(s.cacheRoot, repo+".staging") }
func (s *Store) oldDir(repo string) string     { return filepath.Join(s.cacheRoot, repo+".old") }
func (s *Store) lockPath(repo string) string   { return filepath.Join(s.cacheRoot, repo+".lock") }

// NeedsFetch returns the subset of entries whose local copy is missing
// or whose hash no longer matches the manifest, per the freshness rule
// here.
func (s *Store) NeedsFetch(repo string, entries []ManifestEntry) ([]ManifestEntry, error) {
	var stale []ManifestEntry
	for _, e := range entries {
		local := filepath.Join(s.repoDir(repo), e.Path)
		hash, err := hashFile(local)
		if err != nil {
			if os.IsNotExist(err) {
				stale = append(stale, e)
				continue
			}
			return nil, errs.New(errs.KindMetadataParse, "hashing cached index "+e.Path, err)
		}
		if hash != e.Hash {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Refresh atomically promotes a freshly fetched manifest and index set
// into place. manifestPath and fetchedIndices (relative path -> fetched
// file path) are files already on disk, typically Fetcher destinations
// reused as-is or freshly downloaded. Either the entire new set is
// promoted, or (on any failure before the final rename) the old set is
// left intact: refresh is all-or-nothing.
// The repository directory is held under an advisory lock for the
// duration of the call, per the concurrency design.
func (s *Store) Refresh(repo, manifestPath string, fetchedIndices map[string]string) (err error) {
	fl := flock.New(s.lockPath(repo))
	if err := fl.Lock(); err != nil {
		return errs.New(errs.KindMetadataParse, "acquiring metadata store lock for "+repo, err)
	}
	defer fl.Unlock()

	staging := s.stagingDir(repo)
	if err := os.RemoveAll(staging); err != nil {
		return errs.New(errs.KindMetadataParse, "clearing stale staging directory", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return errs.New(errs.KindMetadataParse, "creating staging directory", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(staging)
		}
	}()

	if err := shutil.CopyFile(manifestPath, filepath.Join(staging, "manifest"), true); err != nil {
		return errs.New(errs.KindMetadataParse, "staging release manifest", err)
	}
	for relPath, fetchedPath := range fetchedIndices {
		dst := filepath.Join(staging, relPath)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return errs.New(errs.KindMetadataParse, "creating staging subdirectory for "+relPath, err)
		}
		if err := shutil.CopyFile(fetchedPath, dst, true); err != nil {
			return errs.New(errs.KindMetadataParse, "staging index "+relPath, err)
		}
	}

	live := s.repoDir(repo)
	old := s.oldDir(repo)
	if err := os.RemoveAll(old); err != nil {
		return errs.New(errs.KindMetadataParse, "clearing stale backup directory", err)
	}
	if _, statErr := os.Stat(live); statErr == nil {
		if err := os.Rename(live, old); err != nil {
			return errs.New(errs.KindMetadataParse, "retiring previous metadata generation", err)
		}
	}
	// This rename is the atomic promotion point: either it lands (the
	// new generation is live) or it doesn't (old, if any, stays put
	// since we haven't removed it yet). The Metadata Store promotion
	// step is uninterruptible, per the concurrency design.
	if err := os.Rename(staging, live); err != nil {
		if _, statErr := os.Stat(old); statErr == nil {
			os.Rename(old, live)
		}
		return errs.New(errs.KindMetadataParse, "promoting new metadata generation", err)
	}
	os.RemoveAll(old)
	return nil
}

// Manifest returns the path to repo's cached release manifest, if present.
func (s *Store) Manifest(repo string) string {
	return filepath.Join(s.repoDir(repo), "manifest")
}

// Indices returns every cached Packages index file under repo's live
// directory, labeled by path relative to the cache root.
func (s *Store) Indices(repo string) ([]pkgdb.IndexSource, error) {
	root := s.repoDir(repo)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var paths []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() && filepath.Base(osPathname) == "Packages" {
				paths = append(paths, osPathname)
			}
			return nil
		},
	})
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "scanning metadata store for "+repo, err)
	}

	var sources []pkgdb.IndexSource
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, errs.New(errs.KindMetadataParse, "opening index "+p, err)
		}
		rel, _ := filepath.Rel(root, p)
		sources = append(sources, pkgdb.IndexSource{Label: filepath.Join(repo, rel), Reader: f})
	}
	return sources, nil
}
