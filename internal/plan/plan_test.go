package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AOSC-Dev/omakase/internal/debversion"
	"github.com/AOSC-Dev/omakase/internal/installedstate"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

func loadDB(t *testing.T, stanzas string) *pkgdb.Database {
	t.Helper()
	db, err := pkgdb.Load([]pkgdb.IndexSource{{Label: "Packages", Reader: strings.NewReader(stanzas)}}, "amd64")
	require.NoError(t, err)
	return db
}

func mustV(s string) debversion.Version { return debversion.MustParse(s) }

func TestBuildClassifiesInstallUpgradeDowngradeRemove(t *testing.T) {
	db := loadDB(t, `Package: fresh
Version: 1.0
Architecture: amd64

Package: newer
Version: 2.0
Architecture: amd64

Package: older
Version: 1.0
Architecture: amd64

`)
	installed := installedstate.Snapshot{
		"newer":   {Name: "newer", Version: mustV("1.0"), Arch: "amd64"},
		"older":   {Name: "older", Version: mustV("2.0"), Arch: "amd64"},
		"gone":    {Name: "gone", Version: mustV("1.0"), Arch: "amd64"},
	}
	assignment := []pkgdb.Identity{
		{Name: "fresh", Version: mustV("1.0"), Arch: "amd64"},
		{Name: "newer", Version: mustV("2.0"), Arch: "amd64"},
		{Name: "older", Version: mustV("1.0"), Arch: "amd64"},
	}

	actions, broken := Build(db, assignment, installed)
	assert.Empty(t, broken)

	byName := map[string]Action{}
	for _, a := range actions {
		byName[a.Name] = a
	}
	require.Contains(t, byName, "fresh")
	assert.Equal(t, VerbInstall, byName["fresh"].Verb)
	require.Contains(t, byName, "newer")
	assert.Equal(t, VerbUpgrade, byName["newer"].Verb)
	require.Contains(t, byName, "older")
	assert.Equal(t, VerbDowngrade, byName["older"].Verb)
	require.Contains(t, byName, "gone")
	assert.Equal(t, VerbRemove, byName["gone"].Verb)
}

func TestBuildOrdersPrerequisitesBeforeDependents(t *testing.T) {
	db := loadDB(t, `Package: app
Version: 1.0
Architecture: amd64
Depends: lib

Package: lib
Version: 1.0
Architecture: amd64

`)
	assignment := []pkgdb.Identity{
		{Name: "app", Version: mustV("1.0"), Arch: "amd64"},
		{Name: "lib", Version: mustV("1.0"), Arch: "amd64"},
	}
	actions, broken := Build(db, assignment, installedstate.Snapshot{})
	assert.Empty(t, broken)

	libIdx, appIdx := -1, -1
	for i, a := range actions {
		switch a.Name {
		case "lib":
			libIdx = i
		case "app":
			appIdx = i
		}
	}
	assert.Less(t, libIdx, appIdx, "lib must be installed before app depends on it")
}

func TestBuildOrdersRemovalsDependentsFirst(t *testing.T) {
	db := loadDB(t, `Package: app
Version: 1.0
Architecture: amd64
Depends: lib

Package: lib
Version: 1.0
Architecture: amd64

`)
	installed := installedstate.Snapshot{
		"app": {Name: "app", Version: mustV("1.0"), Arch: "amd64"},
		"lib": {Name: "lib", Version: mustV("1.0"), Arch: "amd64"},
	}
	actions, broken := Build(db, nil, installed)
	assert.Empty(t, broken)

	libIdx, appIdx := -1, -1
	for i, a := range actions {
		switch a.Name {
		case "lib":
			libIdx = i
		case "app":
			appIdx = i
		}
	}
	assert.Less(t, appIdx, libIdx, "app must be removed before lib it depends on")
}

func TestBuildBreaksCyclesDeterministically(t *testing.T) {
	db := loadDB(t, `Package: a
Version: 1.0
Architecture: amd64
Depends: b

Package: b
Version: 1.0
Architecture: amd64
Depends: a

`)
	assignment := []pkgdb.Identity{
		{Name: "a", Version: mustV("1.0"), Arch: "amd64"},
		{Name: "b", Version: mustV("1.0"), Arch: "amd64"},
	}
	actions, broken := Build(db, assignment, installedstate.Snapshot{})
	require.Len(t, actions, 2)
	require.Len(t, broken, 1)
	assert.Equal(t, "a", broken[0].From)
}
