package digest

import (
	"crypto"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProtonMail/pgpstream/constants"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
)

func TestContextMultipleAlgorithms(t *testing.T) {
	c := New()
	require.NoError(t, c.Enable(constants.DigestSHA1))
	require.NoError(t, c.Enable(constants.DigestMD5))
	require.NoError(t, c.Enable(constants.DigestSHA1)) // no-op

	_, err := c.Write([]byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, []uint8{constants.DigestSHA1, constants.DigestMD5}, c.Algorithms())
	assert.Equal(t,
		"a9993e364706816aba3e25717850c26c9cd0d89d",
		hex.EncodeToString(c.Sum(constants.DigestSHA1)))
	assert.Equal(t,
		"900150983cd24fb0d6963f7d28e17f72",
		hex.EncodeToString(c.Sum(constants.DigestMD5)))
	assert.Nil(t, c.Sum(constants.DigestSHA256))
}

func TestContextUnsupportedAlgorithm(t *testing.T) {
	c := New()
	err := c.Enable(constants.DigestTIGER)
	var algoErr pgpErrors.DigestAlgoError
	require.ErrorAs(t, err, &algoErr)
	assert.Equal(t, constants.DigestTIGER, uint8(algoErr))
}

func TestHashCloneIsIndependent(t *testing.T) {
	c := New()
	require.NoError(t, c.Enable(constants.DigestSHA1))
	_, err := c.Write([]byte("hello "))
	require.NoError(t, err)

	clone, err := c.Hash(constants.DigestSHA1)
	require.NoError(t, err)
	clone.Write([]byte("world"))

	want := sha1.Sum([]byte("hello world"))
	assert.Equal(t, want[:], clone.Sum(nil))

	// the context keeps hashing from where it was
	_, err = c.Write([]byte("there"))
	require.NoError(t, err)
	wantCtx := sha1.Sum([]byte("hello there"))
	assert.Equal(t, wantCtx[:], c.Sum(constants.DigestSHA1))
}

func TestRIPEMD160Clone(t *testing.T) {
	c := New()
	require.NoError(t, c.Enable(constants.DigestRIPEMD160))
	_, err := c.Write([]byte("a"))
	require.NoError(t, err)

	clone, err := c.Hash(constants.DigestRIPEMD160)
	require.NoError(t, err)
	clone.Write([]byte("bc"))

	// RIPEMD160("abc")
	assert.Equal(t, "8eb208f7e05d987a9b044a8e98c6b087f15a0bfc",
		hex.EncodeToString(clone.Sum(nil)))
	// original still at RIPEMD160("a")
	assert.Equal(t, "0bdc9d2d256b3ee9daae347be6f4dc835a467ffe",
		hex.EncodeToString(c.Sum(constants.DigestRIPEMD160)))
}

func TestContextCopy(t *testing.T) {
	c := New()
	require.NoError(t, c.Enable(constants.DigestSHA256))
	require.NoError(t, c.Enable(constants.DigestRIPEMD160))
	_, err := c.Write([]byte("data"))
	require.NoError(t, err)

	cp, err := c.Copy()
	require.NoError(t, err)
	_, err = cp.Write([]byte("more"))
	require.NoError(t, err)

	assert.NotEqual(t, c.Sum(constants.DigestSHA256), cp.Sum(constants.DigestSHA256))
	assert.Equal(t, c.Algorithms(), cp.Algorithms())
}

func TestCryptoHashMapping(t *testing.T) {
	ch, ok := ToCryptoHash(constants.DigestSHA512)
	require.True(t, ok)
	assert.Equal(t, crypto.SHA512, ch)

	algo, ok := FromCryptoHash(crypto.SHA512)
	require.True(t, ok)
	assert.Equal(t, constants.DigestSHA512, algo)

	_, ok = ToCryptoHash(constants.DigestTIGER)
	assert.False(t, ok)
}
