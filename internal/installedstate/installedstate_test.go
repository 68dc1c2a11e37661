package installedstate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStatus = `Package: foo
Status: install ok installed
Version: 1.0-1
Architecture: amd64

Package: bar
Status: deinstall ok config-files
Version: 0.5-1
Architecture: amd64

Package: baz
Status: install ok installed
Version: 2.0
Architecture: all
`

func TestReadOnlyInstalled(t *testing.T) {
	snap, err := Read(strings.NewReader(sampleStatus), "status")
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	_, ok := snap["bar"]
	assert.False(t, ok, "deinstalled package must not appear in the snapshot")
	foo, ok := snap["foo"]
	require.True(t, ok)
	assert.Equal(t, "amd64", foo.Arch)
}

func TestReadFileMissingIsEmpty(t *testing.T) {
	snap, err := ReadFile("/nonexistent/path/to/status")
	require.NoError(t, err)
	assert.Empty(t, snap)
}
