package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProtonMail/pgpstream/armor"
)

func TestReadKeyRing(t *testing.T) {
	alice := newTestEntity(t, "Alice Tester", "alice@example.org")
	bob := newTestEntity(t, "Bob Tester", "bob@example.org")

	kr, err := ReadKeyRing(bytes.NewReader(serializePublic(t, alice, bob)))
	require.NoError(t, err)

	assert.Equal(t, 2, kr.CountEntities())
	assert.Equal(t, "Alice Tester <alice@example.org>", kr.LookupUserID(alice.PrimaryKey.KeyId))
	assert.Equal(t, "Bob Tester <bob@example.org>", kr.LookupUserID(bob.PrimaryKey.KeyId))
	assert.Equal(t, "", kr.LookupUserID(0xdeadbeef))

	// a subkey ID resolves to the identity of its parent
	require.NotEmpty(t, alice.Subkeys)
	assert.Equal(t, "Alice Tester <alice@example.org>",
		kr.LookupUserID(alice.Subkeys[0].PublicKey.KeyId))
}

func TestReadArmoredKeyRing(t *testing.T) {
	ent := newTestEntity(t, "Alice Tester", "alice@example.org")

	armored, err := armor.Armor(serializePublic(t, ent), armor.BlockPublicKey)
	require.NoError(t, err)

	// leading prose must not confuse the armor detection
	input := "Here is my key, see you at the signing party.\n\n" + armored
	kr, err := ReadArmoredKeyRing(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 1, kr.CountEntities())
	assert.Equal(t, "Alice Tester <alice@example.org>", kr.LookupUserID(ent.PrimaryKey.KeyId))
}

func TestKeyRingUnlock(t *testing.T) {
	ent := newTestEntity(t, "Alice Tester", "alice@example.org")
	passphrase := []byte("between the candle and the star")

	kr, err := ReadKeyRing(bytes.NewReader(serializePrivate(t, ent)))
	require.NoError(t, err)
	require.Equal(t, 1, kr.CountEntities())

	locked := kr.Entities()[0]
	require.NoError(t, locked.EncryptPrivateKeys(passphrase, nil))
	require.True(t, locked.PrivateKey.Encrypted)

	require.Error(t, kr.Unlock([]byte("wrong guess")))
	require.True(t, locked.PrivateKey.Encrypted)

	require.NoError(t, kr.Unlock(passphrase))
	assert.False(t, locked.PrivateKey.Encrypted)
	for _, sub := range locked.Subkeys {
		assert.False(t, sub.PrivateKey.Encrypted)
	}
}
