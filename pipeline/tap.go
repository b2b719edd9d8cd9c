package pipeline

import (
	"github.com/ProtonMail/pgpstream/digest"
)

// DigestTap passes data through unchanged while hashing it into a
// digest context.
type DigestTap struct {
	src *Stream
	md  *digest.Context
}

// NewDigestTap returns a tap that hashes into md.
func NewDigestTap(md *digest.Context) *DigestTap {
	return &DigestTap{md: md}
}

// Digest returns the context the tap hashes into.
func (t *DigestTap) Digest() *digest.Context {
	return t.md
}

func (t *DigestTap) Init(src *Stream) error {
	t.src = src
	return nil
}

func (t *DigestTap) Pull(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 {
		_, _ = t.md.Write(p[:n])
	}
	return n, err
}

func (t *DigestTap) Flush() error { return nil }

func (t *DigestTap) Close() error { return nil }
