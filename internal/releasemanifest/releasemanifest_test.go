package releasemanifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRelease = `Origin: example
Label: example
Suite: stable
SHA256:
 abcd1234 1024 main/amd64/Packages
 ef567890 512 main/amd64/Packages.gz
`

func TestParseExtractsEntries(t *testing.T) {
	entries, err := Parse([]byte(sampleRelease), "Release")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "main/amd64/Packages", entries[0].Path)
	assert.Equal(t, int64(1024), entries[0].Size)
	assert.Equal(t, "abcd1234", entries[0].Hash)
}

func TestParseMissingSHA256Field(t *testing.T) {
	_, err := Parse([]byte("Origin: example\n"), "Release")
	assert.Error(t, err)
}

func TestParseMalformedEntry(t *testing.T) {
	_, err := Parse([]byte("SHA256:\n bad-line\n"), "Release")
	assert.Error(t, err)
}
