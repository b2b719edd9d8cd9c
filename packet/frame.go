package packet

import "io"

const frameChunk = 8192

// appendLength appends a new format definite length encoding of n.
func appendLength(dst []byte, n int) []byte {
	switch {
	case n < 192:
		return append(dst, byte(n))
	case n < 8384:
		n -= 192
		return append(dst, byte(n>>8)+192, byte(n))
	default:
		return append(dst, 0xff, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// FrameBytes wraps a packet body in a new format header with a
// definite length.
func FrameBytes(tag Tag, body []byte) []byte {
	out := appendLength([]byte{0xc0 | byte(tag)}, len(body))
	return append(out, body...)
}

// Frame wraps a streaming packet body in a new format header, using
// partial lengths so the body does not have to be buffered.
func Frame(tag Tag, body io.Reader) io.Reader {
	return &frameReader{src: body, out: []byte{0xc0 | byte(tag)}}
}

type frameReader struct {
	src   io.Reader
	out   []byte
	chunk [frameChunk]byte
	done  bool
}

func (f *frameReader) fill() error {
	n, err := io.ReadFull(f.src, f.chunk[:])
	switch err {
	case nil:
		// A full chunk goes out under a partial length; the final
		// part, possibly empty, follows with a definite length.
		f.out = append(f.out, 0xe0|13)
	case io.EOF, io.ErrUnexpectedEOF:
		f.out = appendLength(f.out, n)
		f.done = true
	default:
		return err
	}
	f.out = append(f.out, f.chunk[:n]...)
	return nil
}

func (f *frameReader) Read(p []byte) (int, error) {
	for len(f.out) == 0 {
		if f.done {
			return 0, io.EOF
		}
		if err := f.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, f.out)
	f.out = f.out[n:]
	return n, nil
}
