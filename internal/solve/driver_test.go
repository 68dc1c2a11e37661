package solve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AOSC-Dev/omakase/internal/blueprint"
	"github.com/AOSC-Dev/omakase/internal/encode"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
)

func loadDB(t *testing.T, stanzas string) *pkgdb.Database {
	t.Helper()
	db, err := pkgdb.Load([]pkgdb.IndexSource{{Label: "Packages", Reader: strings.NewReader(stanzas)}}, "amd64")
	require.NoError(t, err)
	return db
}

func loadBlueprint(t *testing.T, text string) *blueprint.Blueprint {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blueprint")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	bp, err := blueprint.Load(path, filepath.Join(dir, "nonexistent.d"))
	require.NoError(t, err)
	return bp
}

func TestSolveSimpleFeasible(t *testing.T) {
	db := loadDB(t, `Package: foo
Version: 1.0
Architecture: amd64

`)
	bp := loadBlueprint(t, "foo\n")
	enc, err := encode.Build(db, bp)
	require.NoError(t, err)

	d := &Driver{Oracle: bruteForceOracle{}}
	out, err := d.Solve(enc)
	require.NoError(t, err)
	require.True(t, out.SAT)
	require.Len(t, out.Selected, 1)
	assert.Equal(t, "foo", out.Selected[0].Name)
}

func TestSolveUnsatisfiableEntryDiagnosed(t *testing.T) {
	db := loadDB(t, `Package: foo
Version: 1.0
Architecture: amd64

`)
	bp := loadBlueprint(t, "foo\nbar\n")
	enc, err := encode.Build(db, bp)
	require.NoError(t, err)

	d := &Driver{Oracle: bruteForceOracle{}}
	out, err := d.Solve(enc)
	require.NoError(t, err)
	require.False(t, out.SAT)
	assert.Equal(t, []string{"bar"}, out.Conflict)
}

func TestSolveConflictingPinsDiagnosed(t *testing.T) {
	db := loadDB(t, `Package: foo
Version: 1.0
Architecture: amd64

Package: foo
Version: 2.0
Architecture: amd64

`)
	bp := loadBlueprint(t, "foo (= 1.0)\nfoo (= 2.0)\n")
	enc, err := encode.Build(db, bp)
	require.NoError(t, err)

	d := &Driver{Oracle: bruteForceOracle{}}
	out, err := d.Solve(enc)
	require.NoError(t, err)
	require.False(t, out.SAT)
	// Both entries share the name "foo"; the MUS search operates on
	// blueprint entries, and a single conjoined entry cannot itself be
	// split, so the single conflicting "foo" entry is reported twice
	// if merge ever produced two distinct keys. Since blueprint merges
	// same-name entries into one, this instead exercises the merged,
	// jointly-impossible predicate set under one name.
	assert.Equal(t, []string{"foo"}, out.Conflict)
}

func TestPreferLatestUpgradesWithoutCollateral(t *testing.T) {
	db := loadDB(t, `Package: foo
Version: 1.0
Architecture: amd64

Package: foo
Version: 2.0
Architecture: amd64

`)
	bp := loadBlueprint(t, "foo\n")
	enc, err := encode.Build(db, bp)
	require.NoError(t, err)

	d := &Driver{Oracle: bruteForceOracle{}}
	out, err := d.Solve(enc)
	require.NoError(t, err)
	require.True(t, out.SAT)
	require.Len(t, out.Selected, 1)
	assert.Equal(t, "2.0", out.Selected[0].Version.String())
}

func TestPreferLatestRejectsUpgradeWithCollateralChurn(t *testing.T) {
	db := loadDB(t, `Package: bar
Version: 1.0
Architecture: amd64

Package: foo
Version: 1.0
Architecture: amd64

Package: foo
Version: 2.0
Architecture: amd64
Depends: bar

`)
	bp := loadBlueprint(t, "foo\n")
	enc, err := encode.Build(db, bp)
	require.NoError(t, err)

	d := &Driver{Oracle: bruteForceOracle{}}
	out, err := d.Solve(enc)
	require.NoError(t, err)
	require.True(t, out.SAT)

	// foo 2.0 pulls in bar, which foo 1.0 doesn't need: that's
	// collateral churn beyond the version bump itself, so the upgrade
	// is rejected and foo stays at 1.0 with bar left out entirely.
	require.Len(t, out.Selected, 1)
	assert.Equal(t, "foo", out.Selected[0].Name)
	assert.Equal(t, "1.0", out.Selected[0].Version.String())
}

func TestPreferMinimalFootprintDropsUnneeded(t *testing.T) {
	db := loadDB(t, `Package: foo
Version: 1.0
Architecture: amd64
Depends: bar

Package: bar
Version: 1.0
Architecture: amd64

Package: baz
Version: 1.0
Architecture: amd64

`)
	bp := loadBlueprint(t, "foo\n")
	enc, err := encode.Build(db, bp)
	require.NoError(t, err)

	d := &Driver{Oracle: greedyOracle{}}
	out, err := d.Solve(enc)
	require.NoError(t, err)
	require.True(t, out.SAT)

	names := map[string]bool{}
	for _, id := range out.Selected {
		names[id.Name] = true
	}
	assert.True(t, names["foo"])
	assert.True(t, names["bar"])
	assert.False(t, names["baz"], "baz is unreferenced by the blueprint and must not be selected")
}
