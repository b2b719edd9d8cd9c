package packet

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// maxSmallPacket bounds the packets that are read into memory.
// Streaming packets (compressed, encrypted, literal) are exempt.
const maxSmallPacket = 1 << 20

type bodyMode int

const (
	modeDefinite bodyMode = iota
	modePartial           // new format partial lengths
	modeBlocks            // old 2 byte length prefixed chunks
	modeUntilEOF
)

// Parser reads packets from a stream. Packet bodies of streaming
// packets are served lazily; whatever the caller leaves unread is
// drained by the following Next call.
type Parser struct {
	src     *pipeline.Stream
	pending io.Reader
	err     error // sticky, set once parsing cannot continue
}

// NewParser returns a parser reading from src.
func NewParser(src *pipeline.Stream) *Parser {
	return &Parser{src: src}
}

// Next parses the next packet. It returns io.EOF at the end of input.
// An error in the content of a well framed packet leaves the parser
// aligned on the next packet so the caller may skip and go on; a
// broken header or a failing source stops parsing for good, and Err
// reports the stopping error from then on.
func (p *Parser) Next() (Packet, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.pending != nil {
		pending := p.pending
		p.pending = nil
		if _, err := io.Copy(io.Discard, pending); err != nil {
			return nil, p.readFailed(err, "packet body")
		}
	}

	ctb, err := p.src.ReadByte()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		p.err = errors.Wrap(err, "reading packet header")
		return nil, p.err
	}
	if ctb&0x80 == 0 {
		return nil, p.invalid(fmt.Sprintf("invalid packet (ctb=%02x)", ctb))
	}

	var tag Tag
	var length int64
	var mode bodyMode
	if ctb&0x40 != 0 {
		tag = Tag(ctb & 0x3f)
		length, mode, err = readNewLength(p.src)
		if err != nil {
			return nil, p.headerFailed(err)
		}
	} else {
		tag = Tag((ctb >> 2) & 0x0f)
		length, mode, err = p.readOldLength(ctb&0x03, tag)
		if err != nil {
			return nil, err
		}
	}

	switch tag {
	case TagCompressed, TagEncrypted, TagEncryptedMDC, TagPlaintext:
		return p.parseStreaming(tag, length, mode)
	default:
		body, err := p.readSmallBody(length, mode)
		if err != nil {
			return nil, err
		}
		return parseSmall(tag, body)
	}
}

// Err returns the error that stopped the parser for good, or nil while
// parsing can continue.
func (p *Parser) Err() error { return p.err }

// invalid stops the parser with an InvalidPacketError.
func (p *Parser) invalid(reason string) error {
	p.err = pgpErrors.InvalidPacketError(reason)
	return p.err
}

// headerFailed classifies a failed packet header read: truncation is an
// invalid packet, anything else is a failing source. Both are sticky.
func (p *Parser) headerFailed(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return p.invalid("premature end of packet header")
	}
	p.err = errors.Wrap(err, "reading packet header")
	return p.err
}

// readFailed classifies a failed packet body read the same way.
func (p *Parser) readFailed(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return p.invalid("premature end of " + what)
	}
	p.err = errors.Wrap(err, "reading "+what)
	return p.err
}

// readNewLength decodes a new format length octet sequence.
func readNewLength(r io.ByteReader) (int64, bodyMode, error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case c < 192:
		return int64(c), modeDefinite, nil
	case c < 224:
		c2, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		return int64(c-192)<<8 + int64(c2) + 192, modeDefinite, nil
	case c == 255:
		var n uint32
		for i := 0; i < 4; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return 0, 0, err
			}
			n = n<<8 | uint32(b)
		}
		return int64(n), modeDefinite, nil
	default:
		// partial length, always a power of two
		return int64(1) << (c & 0x1f), modePartial, nil
	}
}

func (p *Parser) readOldLength(lentype byte, tag Tag) (int64, bodyMode, error) {
	if lentype == 3 {
		// Indeterminate length. Compressed data runs until the end of
		// input; old literal and encrypted packets use 2 byte length
		// prefixed chunks, the framing faked armor streams rely on.
		switch tag {
		case TagCompressed:
			return 0, modeUntilEOF, nil
		case TagEncrypted, TagPlaintext:
			return 0, modeBlocks, nil
		default:
			return 0, 0, p.invalid(fmt.Sprintf("indeterminate length for %s packet", tag))
		}
	}
	nbytes := 1 << lentype
	var length int64
	for i := 0; i < nbytes; i++ {
		c, err := p.src.ReadByte()
		if err != nil {
			return 0, 0, p.headerFailed(err)
		}
		length = length<<8 | int64(c)
	}
	return length, modeDefinite, nil
}

// readSmallBody collects the whole body of an in-memory packet.
func (p *Parser) readSmallBody(length int64, mode bodyMode) ([]byte, error) {
	switch mode {
	case modeDefinite:
		if length > maxSmallPacket {
			return nil, p.invalid(fmt.Sprintf("packet too large (%d bytes)", length))
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(p.src, body); err != nil {
			return nil, p.readFailed(err, "packet body")
		}
		return body, nil
	case modePartial:
		var body []byte
		n := length
		for {
			if int64(len(body))+n > maxSmallPacket {
				return nil, p.invalid("packet too large")
			}
			part := make([]byte, n)
			if _, err := io.ReadFull(p.src, part); err != nil {
				return nil, p.readFailed(err, "packet body")
			}
			body = append(body, part...)
			var m bodyMode
			var err error
			n, m, err = readNewLength(p.src)
			if err != nil {
				return nil, p.readFailed(err, "continuation length")
			}
			if m == modeDefinite {
				if int64(len(body))+n > maxSmallPacket {
					return nil, p.invalid("packet too large")
				}
				part := make([]byte, n)
				if _, err := io.ReadFull(p.src, part); err != nil {
					return nil, p.readFailed(err, "packet body")
				}
				return append(body, part...), nil
			}
		}
	default:
		return nil, p.invalid("indeterminate length for in-memory packet")
	}
}

// bodyReader builds the streaming reader for a packet body.
func (p *Parser) bodyReader(length int64, mode bodyMode) io.Reader {
	switch mode {
	case modeDefinite:
		return io.LimitReader(p.src, length)
	case modePartial:
		return &partialReader{src: p.src, n: length}
	case modeBlocks:
		return &blockReader{src: p.src}
	default:
		return p.src
	}
}

func (p *Parser) parseStreaming(tag Tag, length int64, mode bodyMode) (Packet, error) {
	body := p.bodyReader(length, mode)
	p.pending = body

	switch tag {
	case TagCompressed:
		var algo [1]byte
		if _, err := io.ReadFull(body, algo[:]); err != nil {
			return nil, p.readFailed(err, "compression algorithm")
		}
		return &Compressed{Algo: algo[0], Body: body}, nil

	case TagEncrypted, TagEncryptedMDC:
		return &Encrypted{MDC: tag == TagEncryptedMDC, Body: body}, nil

	case TagPlaintext:
		var head [2]byte
		if _, err := io.ReadFull(body, head[:]); err != nil {
			return nil, p.readFailed(err, "literal header")
		}
		name := make([]byte, head[1])
		if _, err := io.ReadFull(body, name); err != nil {
			return nil, p.readFailed(err, "literal file name")
		}
		var stamp [4]byte
		if _, err := io.ReadFull(body, stamp[:]); err != nil {
			return nil, p.readFailed(err, "literal timestamp")
		}
		return &Plaintext{
			Mode:      head[0],
			Name:      string(name),
			Timestamp: binary.BigEndian.Uint32(stamp[:]),
			Body:      body,
		}, nil
	}
	panic("unreachable")
}

// partialReader serves a new format body split into partial length
// parts.
type partialReader struct {
	src   *pipeline.Stream
	n     int64
	final bool
}

func (r *partialReader) Read(p []byte) (int, error) {
	for r.n == 0 {
		if r.final {
			return 0, io.EOF
		}
		n, mode, err := readNewLength(r.src)
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		r.n = n
		r.final = mode == modeDefinite
	}
	if int64(len(p)) > r.n {
		p = p[:r.n]
	}
	n, err := r.src.Read(p)
	r.n -= int64(n)
	if err == io.EOF {
		if r.n > 0 || !r.final {
			return n, io.ErrUnexpectedEOF
		}
		err = nil
	}
	return n, err
}

// blockReader serves an old indeterminate length body framed as
// 2 byte big endian length prefixed chunks. A zero length chunk or
// the end of input ends the body.
type blockReader struct {
	src *pipeline.Stream
	n   int
	eof bool
}

func (r *blockReader) Read(p []byte) (int, error) {
	if r.eof {
		return 0, io.EOF
	}
	for r.n == 0 {
		var hdr [2]byte
		if _, err := io.ReadFull(r.src, hdr[:]); err != nil {
			r.eof = true
			return 0, io.EOF
		}
		r.n = int(hdr[0])<<8 | int(hdr[1])
		if r.n == 0 {
			r.eof = true
			return 0, io.EOF
		}
	}
	if len(p) > r.n {
		p = p[:r.n]
	}
	n, err := r.src.Read(p)
	r.n -= n
	if err == io.EOF {
		r.eof = true
		if r.n > 0 {
			return n, io.ErrUnexpectedEOF
		}
		err = nil
	}
	return n, err
}

// parseSmall decodes the fields of an in-memory packet.
func parseSmall(tag Tag, body []byte) (Packet, error) {
	switch tag {
	case TagPubKeyEnc:
		return parsePubKeyEnc(body)
	case TagSymKeyEnc:
		return parseSymKeyEnc(body)
	case TagOnePassSig:
		return parseOnePassSig(body)
	case TagSignature:
		return parseSignature(body)
	case TagPublicKey, TagPublicSubkey, TagSecretKey, TagSecretSubkey:
		return parseKey(tag, body)
	case TagUserID:
		return &UserID{Name: string(body), Raw: body}, nil
	case TagMarker:
		return &Marker{}, nil
	case TagComment, TagOldComment:
		return &Comment{tag: tag, Text: string(body)}, nil
	default:
		return &Unknown{tag: tag, Raw: body}, nil
	}
}

func parsePubKeyEnc(body []byte) (Packet, error) {
	if len(body) < 10 {
		return nil, errors.New("public key encrypted packet too short")
	}
	return &PubKeyEnc{
		Version: int(body[0]),
		KeyID:   binary.BigEndian.Uint64(body[1:9]),
		Algo:    body[9],
		Raw:     body,
	}, nil
}

func parseSymKeyEnc(body []byte) (Packet, error) {
	if len(body) < 4 {
		return nil, errors.New("symmetric key encrypted packet too short")
	}
	pkt := &SymKeyEnc{
		Version:    int(body[0]),
		CipherAlgo: body[1],
		S2KMode:    body[2],
		HashAlgo:   body[3],
		Raw:        body,
	}
	off := 4
	switch pkt.S2KMode {
	case 0:
	case 1:
		off += 8
	case 3:
		off += 9
	default:
		return nil, errors.Errorf("unknown S2K mode %d", pkt.S2KMode)
	}
	if off > len(body) {
		return nil, errors.New("symmetric key encrypted packet too short")
	}
	pkt.SesKeyLen = len(body) - off
	return pkt, nil
}

func parseOnePassSig(body []byte) (Packet, error) {
	if len(body) < 13 {
		return nil, errors.New("one-pass signature packet too short")
	}
	return &OnePassSig{
		Version:    int(body[0]),
		SigClass:   body[1],
		DigestAlgo: body[2],
		PubKeyAlgo: body[3],
		KeyID:      binary.BigEndian.Uint64(body[4:12]),
		Last:       body[12] != 0,
		Raw:        body,
	}, nil
}

func parseSignature(body []byte) (Packet, error) {
	if len(body) < 1 {
		return nil, errors.New("signature packet too short")
	}
	sig := &Signature{Version: int(body[0]), Raw: body}
	switch sig.Version {
	case 2, 3:
		if len(body) < 19 {
			return nil, errors.New("signature packet too short")
		}
		if body[1] != 5 {
			return nil, errors.Errorf("invalid hashed material length %d", body[1])
		}
		sig.SigClass = body[2]
		sig.Timestamp = binary.BigEndian.Uint32(body[3:7])
		sig.KeyID = binary.BigEndian.Uint64(body[7:15])
		sig.PubKeyAlgo = body[15]
		sig.DigestAlgo = body[16]
	case 4, 5:
		if len(body) < 6 {
			return nil, errors.New("signature packet too short")
		}
		sig.SigClass = body[1]
		sig.PubKeyAlgo = body[2]
		sig.DigestAlgo = body[3]
		hlen := int(binary.BigEndian.Uint16(body[4:6]))
		if 6+hlen > len(body) {
			return nil, errors.New("hashed subpackets exceed packet")
		}
		if err := sig.scanSubpackets(body[6 : 6+hlen]); err != nil {
			return nil, err
		}
		rest := body[6+hlen:]
		if len(rest) < 2 {
			return nil, errors.New("signature packet too short")
		}
		ulen := int(binary.BigEndian.Uint16(rest[:2]))
		if 2+ulen > len(rest) {
			return nil, errors.New("unhashed subpackets exceed packet")
		}
		if err := sig.scanSubpackets(rest[2 : 2+ulen]); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown signature version %d", sig.Version)
	}
	return sig, nil
}

// scanSubpackets picks the issuer key ID and the creation time out of
// a subpacket area. Values seen first win, which makes the hashed
// area take precedence when it is scanned first.
func (sig *Signature) scanSubpackets(area []byte) error {
	for len(area) > 0 {
		var sublen int
		switch {
		case area[0] < 192:
			sublen = int(area[0])
			area = area[1:]
		case area[0] < 255:
			if len(area) < 2 {
				return errors.New("truncated subpacket length")
			}
			sublen = int(area[0]-192)<<8 + int(area[1]) + 192
			area = area[2:]
		default:
			if len(area) < 5 {
				return errors.New("truncated subpacket length")
			}
			sublen = int(binary.BigEndian.Uint32(area[1:5]))
			area = area[5:]
		}
		if sublen == 0 || sublen > len(area) {
			return errors.New("malformed subpacket")
		}
		subtype := area[0] & 0x7f
		data := area[1:sublen]
		switch subtype {
		case 2: // creation time
			if len(data) >= 4 && sig.Timestamp == 0 {
				sig.Timestamp = binary.BigEndian.Uint32(data[:4])
			}
		case 16: // issuer key ID
			if len(data) >= 8 && sig.KeyID == 0 {
				sig.KeyID = binary.BigEndian.Uint64(data[:8])
			}
		case 33: // issuer fingerprint
			if len(data) >= 21 && sig.KeyID == 0 {
				sig.KeyID = binary.BigEndian.Uint64(data[len(data)-8:])
			}
		}
		area = area[sublen:]
	}
	return nil
}
