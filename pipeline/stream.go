// Package pipeline provides buffered input streams and the filter
// chain used to process a message layer by layer.
package pipeline

import (
	"bufio"
	"io"
)

// MaxLineLen is the longest line of textual input that is processed
// losslessly. Longer lines are truncated and flagged.
const MaxLineLen = 20000

// Stream is a buffered reader with byte, line and lookahead access.
type Stream struct {
	r    *bufio.Reader
	name string
}

// NewStream wraps r in a Stream.
func NewStream(r io.Reader) *Stream {
	return &Stream{r: bufio.NewReader(r)}
}

// NewNamedStream wraps r in a Stream that carries a display name, such
// as the file name the data was read from.
func NewNamedStream(r io.Reader, name string) *Stream {
	return &Stream{r: bufio.NewReader(r), name: name}
}

// Name returns the display name given to the stream, or "".
func (s *Stream) Name() string {
	return s.name
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *Stream) ReadByte() (byte, error) {
	return s.r.ReadByte()
}

func (s *Stream) UnreadByte() error {
	return s.r.UnreadByte()
}

// Peek returns the next n bytes without advancing the stream.
func (s *Stream) Peek(n int) ([]byte, error) {
	return s.r.Peek(n)
}

// ReadLine reads one line including its trailing newline. A line
// whose length exceeds max is truncated: the first max-1 bytes are
// returned with a newline appended, the rest of the physical line is
// discarded and truncated is set. At the end of input ReadLine
// returns io.EOF; a final line without a newline is returned as is.
func (s *Stream) ReadLine(max int) (line []byte, truncated bool, err error) {
	for {
		c, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return line, false, nil
			}
			return nil, false, err
		}
		if len(line) >= max-1 && c != '\n' {
			// skip the rest of the physical line
			for c != '\n' {
				c, err = s.r.ReadByte()
				if err != nil {
					break
				}
			}
			line = append(line, '\n')
			return line, true, nil
		}
		line = append(line, c)
		if c == '\n' {
			return line, false, nil
		}
	}
}
