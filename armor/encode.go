package armor

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
)

// groupsPerLine keeps armor lines at 64 characters. pgp doesn't like 72.
const groupsPerLine = 64 / 4

// Encoder armors a binary packet stream. The header lines are written
// on the first Write, Close pads the last group and writes the CRC and
// the END line. Output always uses LF line endings.
type Encoder struct {
	w       *bufio.Writer
	block   Block
	comment string
	headers []string

	started bool
	closed  bool
	crc     uint32
	buf     [3]byte
	idx     int
	groups  int // 4 character groups on the current line
}

// NewEncoder returns an Encoder writing an armored block of the given
// kind to w with the default Version and Comment headers.
func NewEncoder(w io.Writer, block Block) (*Encoder, error) {
	return NewEncoderWithComment(w, block, constants.ArmorHeaderComment)
}

// NewEncoderWithComment is NewEncoder with a custom Comment header.
// Line breaks in the comment are escaped; an empty comment omits the
// header. Extra headers are written below it, one "Key: value" line
// each.
func NewEncoderWithComment(w io.Writer, block Block, comment string, headers ...string) (*Encoder, error) {
	if block < 0 || int(block) >= len(beginLabels) || block == BlockSignedMessage {
		return nil, errors.New("pgpstream: block type cannot be armored")
	}
	initTables()
	return &Encoder{
		w:       bufio.NewWriter(w),
		block:   block,
		comment: comment,
		headers: headers,
		crc:     crcInit,
	}, nil
}

var commentEscaper = strings.NewReplacer("\n", "\\n", "\r", "\\r", "\v", "\\v")

// bufio keeps the first write error and reports it again on every
// following call, so only the last error of a run needs checking.
func (e *Encoder) writeHead() error {
	e.w.WriteString("-----")
	e.w.WriteString(beginLabels[e.block])
	e.w.WriteString("-----\n")
	e.w.WriteString("Version: ")
	e.w.WriteString(constants.ArmorHeaderVersion)
	e.w.WriteByte('\n')
	if e.comment != "" {
		e.w.WriteString("Comment: ")
		e.w.WriteString(commentEscaper.Replace(e.comment))
		e.w.WriteByte('\n')
	}
	for _, h := range e.headers {
		e.w.WriteString(h)
		e.w.WriteByte('\n')
	}
	err := e.w.WriteByte('\n')
	e.started = true
	return err
}

func (e *Encoder) writeGroup() error {
	b := &e.buf
	e.w.WriteByte(bintoasc[(b[0]>>2)&0x3f])
	e.w.WriteByte(bintoasc[(b[0]<<4)&0x30|(b[1]>>4)&0x0f])
	e.w.WriteByte(bintoasc[(b[1]<<2)&0x3c|(b[2]>>6)&0x03])
	err := e.w.WriteByte(bintoasc[b[2]&0x3f])
	e.idx = 0
	e.groups++
	if e.groups >= groupsPerLine {
		err = e.w.WriteByte('\n')
		e.groups = 0
	}
	return err
}

func (e *Encoder) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errors.New("pgpstream: write to closed armor encoder")
	}
	if !e.started {
		if err := e.writeHead(); err != nil {
			return 0, err
		}
	}
	e.crc = crc24(e.crc, p)
	total := len(p)
	for len(p) > 0 {
		for e.idx < 3 && len(p) > 0 {
			e.buf[e.idx] = p[0]
			e.idx++
			p = p[1:]
		}
		if e.idx < 3 {
			break
		}
		if err := e.writeGroup(); err != nil {
			return total - len(p), err
		}
	}
	return total, nil
}

// Close pads the final group, writes the CRC line and the END line and
// flushes. An Encoder that was never written to still produces a well
// formed armor of an empty body.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if !e.started {
		if err := e.writeHead(); err != nil {
			return err
		}
	}
	if e.idx > 0 {
		b := &e.buf
		e.w.WriteByte(bintoasc[(b[0]>>2)&0x3f])
		if e.idx == 1 {
			e.w.WriteByte(bintoasc[(b[0]<<4)&0x30])
			e.w.WriteString("==")
		} else {
			e.w.WriteByte(bintoasc[(b[0]<<4)&0x30|(b[1]>>4)&0x0f])
			e.w.WriteByte(bintoasc[(b[1]<<2)&0x3c])
			e.w.WriteByte('=')
		}
		e.groups++
		if e.groups >= groupsPerLine {
			e.w.WriteByte('\n')
			e.groups = 0
		}
	}
	if e.groups > 0 {
		e.w.WriteByte('\n')
	}
	c0, c1, c2 := byte(e.crc>>16), byte(e.crc>>8), byte(e.crc)
	e.w.WriteByte('=')
	e.w.WriteByte(bintoasc[(c0>>2)&0x3f])
	e.w.WriteByte(bintoasc[(c0<<4)&0x30|(c1>>4)&0x0f])
	e.w.WriteByte(bintoasc[(c1<<2)&0x3c|(c2>>6)&0x03])
	e.w.WriteByte(bintoasc[c2&0x3f])
	e.w.WriteByte('\n')
	e.w.WriteString("-----")
	e.w.WriteString(endLabels[e.block])
	e.w.WriteString("-----\n")
	return e.w.Flush()
}

// Armor encodes data as an armored block of the given kind.
func Armor(data []byte, block Block) (string, error) {
	var b strings.Builder
	enc, err := NewEncoderWithComment(&b, block, constants.ArmorHeaderComment)
	if err != nil {
		return "", err
	}
	if _, err := enc.Write(data); err != nil {
		return "", errors.Wrap(err, "armoring data")
	}
	if err := enc.Close(); err != nil {
		return "", errors.Wrap(err, "armoring data")
	}
	return b.String(), nil
}
