package sigverify

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"
)

func writeArmoredPublicKey(t *testing.T, dir, name string, entity *openpgp.Entity) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	w, err := armor.Encode(f, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
}

func TestVerifyAcceptsTrustedSignature(t *testing.T) {
	entity, err := openpgp.NewEntity("Release Signer", "", "signer@example.org", nil)
	require.NoError(t, err)

	dir := t.TempDir()
	writeArmoredPublicKey(t, dir, "trusted.asc", entity)

	kr, err := LoadKeyring(dir)
	require.NoError(t, err)

	payload := []byte("Origin: example\nLabel: example\n")
	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, entity, bytes.NewReader(payload), nil))

	require.NoError(t, kr.Verify(payload, sig.Bytes()))
}

func TestVerifyRejectsUntrustedSignature(t *testing.T) {
	trusted, err := openpgp.NewEntity("Trusted", "", "trusted@example.org", nil)
	require.NoError(t, err)
	untrusted, err := openpgp.NewEntity("Untrusted", "", "untrusted@example.org", nil)
	require.NoError(t, err)

	dir := t.TempDir()
	writeArmoredPublicKey(t, dir, "trusted.asc", trusted)

	kr, err := LoadKeyring(dir)
	require.NoError(t, err)

	payload := []byte("Origin: example\n")
	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, untrusted, bytes.NewReader(payload), nil))

	require.Error(t, kr.Verify(payload, sig.Bytes()))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	entity, err := openpgp.NewEntity("Release Signer", "", "signer@example.org", nil)
	require.NoError(t, err)

	dir := t.TempDir()
	writeArmoredPublicKey(t, dir, "trusted.asc", entity)
	kr, err := LoadKeyring(dir)
	require.NoError(t, err)

	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, entity, bytes.NewReader([]byte("original")), nil))

	require.Error(t, kr.Verify([]byte("tampered"), sig.Bytes()))
}
