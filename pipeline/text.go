package pipeline

import (
	"io"

	"github.com/ProtonMail/pgpstream/internal"
)

// TextFilter turns its input into canonical text: trailing whitespace
// is removed from every line and line endings become CR, LF. It is
// stacked under a DigestTap when a text mode signature is checked
// against a local file.
type TextFilter struct {
	src       *Stream
	pending   []byte
	eof       bool
	truncated int
}

// NewTextFilter returns an empty text canonicalization filter.
func NewTextFilter() *TextFilter {
	return &TextFilter{}
}

// Truncated returns the number of input lines that exceeded the
// maximum line length and lost data.
func (t *TextFilter) Truncated() int {
	return t.truncated
}

func (t *TextFilter) Init(src *Stream) error {
	t.src = src
	return nil
}

func (t *TextFilter) Pull(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(t.pending) > 0 {
			c := copy(p[n:], t.pending)
			t.pending = t.pending[c:]
			n += c
			continue
		}
		if t.eof {
			break
		}
		line, truncated, err := t.src.ReadLine(MaxLineLen)
		if truncated {
			t.truncated++
		}
		if err != nil {
			t.eof = true
			if err != io.EOF {
				return n, err
			}
			break
		}
		lfSeen := line[len(line)-1] == '\n'
		line = internal.TrimTrailing(line)
		if lfSeen {
			line = append(line, '\r', '\n')
		}
		t.pending = line
	}
	if n == 0 && t.eof && len(t.pending) == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (t *TextFilter) Flush() error { return nil }

func (t *TextFilter) Close() error { return nil }
