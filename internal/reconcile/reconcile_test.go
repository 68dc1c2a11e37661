package reconcile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AOSC-Dev/omakase/internal/config"
	"github.com/AOSC-Dev/omakase/internal/effector/memeffector"
	"github.com/AOSC-Dev/omakase/internal/metadatastore"
)

const samplePackagesIndex = `Package: app
Version: 1.0
Architecture: amd64
Depends: lib

Package: lib
Version: 1.0
Architecture: amd64

`

func setupFixture(t *testing.T) (*config.Config, *metadatastore.Store) {
	t.Helper()
	root := t.TempDir()

	configRoot := filepath.Join(root, "etc")
	require.NoError(t, os.MkdirAll(configRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configRoot, "user.blueprint"), []byte("app\n"), 0o644))

	dpkgStatus := filepath.Join(root, "status")
	require.NoError(t, os.WriteFile(dpkgStatus, []byte{}, 0o644))

	cacheRoot := filepath.Join(root, "cache")
	store := metadatastore.New(cacheRoot)

	manifest := filepath.Join(root, "manifest")
	require.NoError(t, os.WriteFile(manifest, []byte("manifest"), 0o644))
	index := filepath.Join(root, "Packages")
	require.NoError(t, os.WriteFile(index, []byte(samplePackagesIndex), 0o644))
	require.NoError(t, store.Refresh("main", manifest, map[string]string{
		"main/amd64/Packages": index,
	}))

	cfg := &config.Config{
		Arch:           "amd64",
		Repos:          map[string]config.RepoConfig{"main": {Source: "https://example.org", Distribution: "stable", Components: []string{"main"}}},
		ConfigRoot:     configRoot,
		CacheRoot:      cacheRoot,
		DpkgStatusPath: dpkgStatus,
	}
	return cfg, store
}

func TestRunDryRunComputesPlanWithoutApplying(t *testing.T) {
	cfg, store := setupFixture(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eff := memeffector.New()

	report, err := Run(context.Background(), log, cfg, store, eff, false)
	require.NoError(t, err)
	assert.Len(t, report.Actions, 2)
	assert.Empty(t, eff.Applied, "dry run must not call the effector")
}

func TestRunAppliesActionsInOrder(t *testing.T) {
	cfg, store := setupFixture(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eff := memeffector.New()

	report, err := Run(context.Background(), log, cfg, store, eff, true)
	require.NoError(t, err)
	require.Len(t, eff.Applied, 2)

	libIdx, appIdx := -1, -1
	for i, a := range eff.Applied {
		switch a.Name {
		case "lib":
			libIdx = i
		case "app":
			appIdx = i
		}
	}
	assert.Less(t, libIdx, appIdx)
	assert.Len(t, report.Actions, 2)
}

func TestRunUnsatisfiableBlueprintReturnsError(t *testing.T) {
	cfg, store := setupFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ConfigRoot, "user.blueprint"), []byte("nonexistent\n"), 0o644))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eff := memeffector.New()

	_, err := Run(context.Background(), log, cfg, store, eff, false)
	require.Error(t, err)
}

func TestRunAbortsOnFirstEffectorFailure(t *testing.T) {
	cfg, store := setupFixture(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eff := memeffector.New()
	eff.FailAt = 0

	_, err := Run(context.Background(), log, cfg, store, eff, true)
	require.Error(t, err)
	assert.Empty(t, eff.Applied)
}
