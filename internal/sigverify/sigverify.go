// Package sigverify implements OpenPGP detached-signature verification
// of a release manifest against a trusted keyring.
package sigverify

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/errors"

	"github.com/AOSC-Dev/omakase/internal/errs"
)

// Keyring loads trusted public keys from a directory of ASCII-armored
// *.asc files under the configuration root's keys directory.
type Keyring struct {
	entities openpgp.EntityList
}

// LoadKeyring reads every *.asc file under dir into one combined keyring.
func LoadKeyring(dir string) (*Keyring, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "reading keys directory", err)
	}
	kr := &Keyring{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".asc" {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errs.New(errs.KindMetadataParse, "opening key file "+e.Name(), err)
		}
		ents, err := openpgp.ReadArmoredKeyRing(f)
		f.Close()
		if err != nil {
			return nil, errs.New(errs.KindMetadataParse, "reading key file "+e.Name(), err)
		}
		kr.entities = append(kr.entities, ents...)
	}
	if len(kr.entities) == 0 {
		return nil, errs.New(errs.KindMetadataParse, "no trusted keys found in "+dir, nil)
	}
	return kr, nil
}

// Verify checks a detached signature over payload against the keyring.
// It returns nil iff some key in the keyring produced the signature and
// the signature is neither expired nor revoked. A structural error
// (malformed packet, unsupported algorithm) is a hard failure, distinct
// from "no matching key" -- both surface as errs.KindIntegrity, since
// either way the repository's metadata cannot be trusted.
func (k *Keyring) Verify(payload, signature []byte) error {
	_, err := openpgp.CheckDetachedSignature(k.entities, bytes.NewReader(payload), bytes.NewReader(signature), nil)
	if err != nil {
		if err == errors.ErrUnknownIssuer {
			return errs.New(errs.KindIntegrity, "signature not produced by any trusted key", err)
		}
		return errs.New(errs.KindIntegrity, "signature verification failed", err)
	}
	return nil
}
