package pipeline

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	s := NewStream(strings.NewReader("first\nsecond\r\nlast"))

	line, truncated, err := s.ReadLine(MaxLineLen)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "first\n", string(line))

	line, _, err = s.ReadLine(MaxLineLen)
	require.NoError(t, err)
	assert.Equal(t, "second\r\n", string(line))

	// final line without a newline comes back as is
	line, _, err = s.ReadLine(MaxLineLen)
	require.NoError(t, err)
	assert.Equal(t, "last", string(line))

	_, _, err = s.ReadLine(MaxLineLen)
	assert.Equal(t, io.EOF, err)
}

func TestReadLineTruncation(t *testing.T) {
	const max = 16

	// content of max-1 bytes plus newline fits exactly
	s := NewStream(strings.NewReader(strings.Repeat("x", max-1) + "\nnext\n"))
	line, truncated, err := s.ReadLine(max)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, line, max)

	// one more byte of content truncates and discards the rest
	s = NewStream(strings.NewReader(strings.Repeat("x", max) + "tail\nnext\n"))
	line, truncated, err = s.ReadLine(max)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, line, max)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	line, truncated, err = s.ReadLine(max)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "next\n", string(line))
}

func TestReadLineTruncationAtEOF(t *testing.T) {
	s := NewStream(strings.NewReader(strings.Repeat("y", 64)))
	line, truncated, err := s.ReadLine(16)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, line, 16)

	_, _, err = s.ReadLine(16)
	assert.Equal(t, io.EOF, err)
}

func TestPeekDoesNotConsume(t *testing.T) {
	s := NewNamedStream(strings.NewReader("\x85\x01data"), "cipher.gpg")
	head, err := s.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x85), head[0])
	assert.Equal(t, "cipher.gpg", s.Name())

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x85), b)
}
