package metadatastore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "src-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestRefreshPromotesAtomically(t *testing.T) {
	cacheRoot := t.TempDir()
	store := New(cacheRoot)

	manifest := writeTempFile(t, "manifest v1")
	pkgIndex := writeTempFile(t, "Package: foo\nVersion: 1.0\nArchitecture: amd64\n\n")

	err := store.Refresh("main", manifest, map[string]string{
		"main/amd64/Packages": pkgIndex,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cacheRoot, "main", "manifest"))
	require.NoError(t, err)
	assert.Equal(t, "manifest v1", string(data))

	sources, err := store.Indices("main")
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestNeedsFetchDetectsStaleAndMissing(t *testing.T) {
	cacheRoot := t.TempDir()
	store := New(cacheRoot)

	require.NoError(t, os.MkdirAll(filepath.Join(cacheRoot, "main", "main", "amd64"), 0o755))
	content := []byte("Package: foo\n")
	path := filepath.Join(cacheRoot, "main", "main", "amd64", "Packages")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	sum := sha256.Sum256(content)

	stale, err := store.NeedsFetch("main", []ManifestEntry{
		{Path: "main/amd64/Packages", Hash: hex.EncodeToString(sum[:])},
		{Path: "contrib/amd64/Packages", Hash: "deadbeef"},
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "contrib/amd64/Packages", stale[0].Path)
}

func TestRefreshLeavesOldIntactOnFailure(t *testing.T) {
	cacheRoot := t.TempDir()
	store := New(cacheRoot)

	manifest := writeTempFile(t, "manifest v1")
	require.NoError(t, store.Refresh("main", manifest, nil))

	// A refresh referencing a nonexistent fetched file must fail before
	// promotion, leaving the previous generation in place.
	err := store.Refresh("main", manifest, map[string]string{
		"main/amd64/Packages": "/nonexistent/path",
	})
	require.Error(t, err)

	data, err := os.ReadFile(filepath.Join(cacheRoot, "main", "manifest"))
	require.NoError(t, err)
	assert.Equal(t, "manifest v1", string(data))
}
