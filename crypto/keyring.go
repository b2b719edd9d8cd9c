// Package crypto implements the cryptographic engine of the
// processing pipeline on top of the ProtonMail OpenPGP library: key
// ring handling, session key recovery, bulk decryption and signature
// verification. The process package drives the engine through its
// collaborator interfaces.
package crypto

import (
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/armor"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// KeyRing holds the keys available to the engine: public keys for
// signature verification and secret keys for session key decryption.
type KeyRing struct {
	entities openpgp.EntityList
}

// NewKeyRing returns a key ring over already parsed key material.
func NewKeyRing(entities openpgp.EntityList) *KeyRing {
	return &KeyRing{entities: entities}
}

// ReadKeyRing reads a binary key ring.
func ReadKeyRing(r io.Reader) (*KeyRing, error) {
	entities, err := openpgp.ReadKeyRing(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading key ring")
	}
	return &KeyRing{entities: entities}, nil
}

// ReadArmoredKeyRing reads an ASCII armored key ring. Any armor block
// other than a key block is skipped.
func ReadArmoredKeyRing(r io.Reader) (*KeyRing, error) {
	p := pipeline.New(pipeline.NewStream(r))
	if err := p.Push(armor.NewFilter(armor.FilterOptions{OnlyKeyblocks: true})); err != nil {
		return nil, err
	}
	return ReadKeyRing(p.Stream())
}

// Entities returns the underlying key material.
func (kr *KeyRing) Entities() openpgp.EntityList {
	return kr.entities
}

// CountEntities returns the number of keys in the ring.
func (kr *KeyRing) CountEntities() int {
	return len(kr.entities)
}

// Unlock decrypts the secret key material of every key in the ring
// with the given passphrase.
func (kr *KeyRing) Unlock(passphrase []byte) error {
	for _, e := range kr.entities {
		if err := e.DecryptPrivateKeys(passphrase); err != nil {
			return errors.Wrap(err, "unlocking key ring")
		}
	}
	return nil
}

// LookupUserID resolves a key ID, primary or subkey, to the user ID
// string the key carries. It returns the empty string when the key is
// not in the ring, which makes it suitable as a process.Config lookup
// hook.
func (kr *KeyRing) LookupUserID(keyID uint64) string {
	if kr == nil {
		return ""
	}
	for _, key := range kr.entities.KeysById(keyID) {
		if key.Entity == nil {
			continue
		}
		for _, id := range key.Entity.Identities {
			return id.Name
		}
	}
	return ""
}

// keysByID returns the keys matching an issuer or recipient key ID. A
// zero ID means a hidden recipient; every key holding secret material
// is a candidate then.
func (kr *KeyRing) keysByID(keyID uint64) []openpgp.Key {
	if kr == nil {
		return nil
	}
	if keyID == 0 {
		return kr.entities.DecryptionKeys()
	}
	return kr.entities.KeysById(keyID)
}
