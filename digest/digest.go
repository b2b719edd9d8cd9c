// Package digest implements a message digest context that hashes a
// single data stream with any number of algorithms at once.
package digest

import (
	"crypto"
	"crypto/md5"  //nolint:gosec
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"crypto/sha512"
	"encoding"
	"hash"
	"reflect"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck

	"github.com/ProtonMail/pgpstream/constants"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
)

var newHash = map[uint8]func() hash.Hash{
	constants.DigestMD5:       md5.New,
	constants.DigestSHA1:      sha1.New,
	constants.DigestRIPEMD160: ripemd160.New,
	constants.DigestSHA256:    sha256.New,
	constants.DigestSHA384:    sha512.New384,
	constants.DigestSHA512:    sha512.New,
	constants.DigestSHA224:    sha256.New224,
}

var cryptoHashes = map[uint8]crypto.Hash{
	constants.DigestMD5:       crypto.MD5,
	constants.DigestSHA1:      crypto.SHA1,
	constants.DigestRIPEMD160: crypto.RIPEMD160,
	constants.DigestSHA256:    crypto.SHA256,
	constants.DigestSHA384:    crypto.SHA384,
	constants.DigestSHA512:    crypto.SHA512,
	constants.DigestSHA224:    crypto.SHA224,
}

var names = map[uint8]string{
	constants.DigestMD5:       "MD5",
	constants.DigestSHA1:      "SHA1",
	constants.DigestRIPEMD160: "RIPEMD160",
	constants.DigestTIGER:     "TIGER192",
	constants.DigestSHA256:    "SHA256",
	constants.DigestSHA384:    "SHA384",
	constants.DigestSHA512:    "SHA512",
	constants.DigestSHA224:    "SHA224",
}

// Name returns the canonical name of a digest algorithm identifier,
// or the empty string if the identifier is unknown.
func Name(algo uint8) string {
	return names[algo]
}

// NewHash returns a fresh hash for the given algorithm identifier.
func NewHash(algo uint8) (hash.Hash, error) {
	newFn, ok := newHash[algo]
	if !ok {
		return nil, pgpErrors.DigestAlgoError(algo)
	}
	return newFn(), nil
}

// ToCryptoHash maps an algorithm identifier to the crypto.Hash it
// implements.
func ToCryptoHash(algo uint8) (crypto.Hash, bool) {
	h, ok := cryptoHashes[algo]
	return h, ok
}

// FromCryptoHash maps a crypto.Hash back to its algorithm identifier.
func FromCryptoHash(h crypto.Hash) (uint8, bool) {
	for algo, ch := range cryptoHashes {
		if ch == h {
			return algo, true
		}
	}
	return 0, false
}

// Context hashes one data stream with several digest algorithms. The
// zero value is not usable, call New.
type Context struct {
	hashes map[uint8]hash.Hash
	order  []uint8
}

// New returns an empty digest context. Algorithms are added with
// Enable before writing data.
func New() *Context {
	return &Context{hashes: make(map[uint8]hash.Hash)}
}

// Enable adds an algorithm to the context. Data written before the
// call is not hashed with the new algorithm. Enabling an algorithm
// twice is a no-op.
func (c *Context) Enable(algo uint8) error {
	if _, ok := c.hashes[algo]; ok {
		return nil
	}
	h, err := NewHash(algo)
	if err != nil {
		return err
	}
	c.hashes[algo] = h
	c.order = append(c.order, algo)
	return nil
}

// Enabled reports whether the algorithm has been enabled.
func (c *Context) Enabled(algo uint8) bool {
	_, ok := c.hashes[algo]
	return ok
}

// Algorithms returns the enabled algorithm identifiers in the order
// they were enabled.
func (c *Context) Algorithms() []uint8 {
	return append([]uint8(nil), c.order...)
}

// Write hashes p with every enabled algorithm.
func (c *Context) Write(p []byte) (n int, err error) {
	for _, h := range c.hashes {
		h.Write(p)
	}
	return len(p), nil
}

// Sum returns the current digest for the given algorithm without
// disturbing the running state, or nil if the algorithm is not
// enabled.
func (c *Context) Sum(algo uint8) []byte {
	h, ok := c.hashes[algo]
	if !ok {
		return nil
	}
	return h.Sum(nil)
}

// Hash returns an independent copy of the running hash for the given
// algorithm. The copy can be finalized without disturbing the context.
func (c *Context) Hash(algo uint8) (hash.Hash, error) {
	h, ok := c.hashes[algo]
	if !ok {
		return nil, pgpErrors.DigestAlgoError(algo)
	}
	clone, err := cloneHash(algo, h)
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// Copy returns an independent copy of the whole context.
func (c *Context) Copy() (*Context, error) {
	out := New()
	for _, algo := range c.order {
		clone, err := cloneHash(algo, c.hashes[algo])
		if err != nil {
			return nil, err
		}
		out.hashes[algo] = clone
		out.order = append(out.order, algo)
	}
	return out, nil
}

// cloneHash duplicates the running state of h. The standard library
// digests implement encoding.BinaryMarshaler; ripemd160 does not, but
// its state is a flat struct that a shallow copy duplicates fully.
func cloneHash(algo uint8, h hash.Hash) (hash.Hash, error) {
	if m, ok := h.(encoding.BinaryMarshaler); ok {
		state, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		fresh, err := NewHash(algo)
		if err != nil {
			return nil, err
		}
		if u, ok := fresh.(encoding.BinaryUnmarshaler); ok {
			if err := u.UnmarshalBinary(state); err != nil {
				return nil, err
			}
			return fresh, nil
		}
	}
	v := reflect.ValueOf(h)
	if v.Kind() == reflect.Ptr && v.Elem().Kind() == reflect.Struct {
		clone := reflect.New(v.Elem().Type())
		clone.Elem().Set(v.Elem())
		if hc, ok := clone.Interface().(hash.Hash); ok {
			return hc, nil
		}
	}
	return nil, pgpErrors.DigestAlgoError(algo)
}
