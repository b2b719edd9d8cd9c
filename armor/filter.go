package armor

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/internal"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// FilterOptions configures the armor read filter.
type FilterOptions struct {
	// OnlyKeyblocks restricts detection to public, private and secret
	// key block armors; any other BEGIN line is skipped.
	OnlyKeyblocks bool
	// Status receives machine readable status codes and their
	// argument string.
	Status func(constants.Status, string)
	// Logger receives diagnostics. Nil disables them.
	Logger *slog.Logger
}

type state int

const (
	stateDetect state = iota
	stateBypass
	stateFindBegin
	stateHeaders
	stateClearsign
	stateSigHeaders
	stateRadix64
)

// Filter is a pipeline filter that strips ASCII armor. Unarmored
// input is passed through unchanged once detection decides the stream
// is binary. A clearsigned message is served as a synthesized one-pass
// signature packet sequence whose literal body carries the
// canonicalized text, followed by the decoded signature packets.
// Concatenated armored regions are decoded back to back.
type Filter struct {
	src  *pipeline.Stream
	opts FilterOptions

	state   state
	err     error  // sticky, set once decoding cannot continue
	pending []byte // decoded bytes not yet served
	line    []byte // a read line waiting to be classified

	block          Block // kind of the BEGIN line being processed
	inCleartext    bool
	notDashEscaped bool
	hashes         uint8 // digests declared by Hash: headers

	// clearsign lookahead: the last text line is held back until the
	// next line tells whether its line ending is part of the text
	held     []byte
	haveHeld bool

	// radix-64 decoder state
	crc uint32
	idx int
	val byte

	anyData bool // a complete armored region was decoded
	bypass  bool
}

// NewFilter returns an armor read filter.
func NewFilter(opts FilterOptions) *Filter {
	return &Filter{opts: opts}
}

func (f *Filter) Init(src *pipeline.Stream) error {
	initTables()
	f.src = src
	return nil
}

func (f *Filter) Pull(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for {
		if len(f.pending) > 0 {
			n := copy(p, f.pending)
			f.pending = f.pending[n:]
			return n, nil
		}
		var err error
		switch f.state {
		case stateDetect:
			err = f.detect()
		case stateBypass:
			return f.src.Read(p)
		case stateFindBegin:
			err = f.findBegin()
		case stateHeaders:
			err = f.readHeaders()
		case stateClearsign:
			err = f.nextClearChunk()
		case stateSigHeaders:
			err = f.finishClearsign()
		case stateRadix64:
			n, rerr := f.pullRadix64(p)
			if n > 0 || rerr != nil {
				return n, f.sticky(rerr)
			}
			// region complete without data to deliver: reenter the
			// state machine
		}
		if err != nil {
			return 0, f.sticky(err)
		}
	}
}

// sticky latches any failure other than end of input so that later
// pulls repeat it rather than reading on mid stream.
func (f *Filter) sticky(err error) error {
	if err != nil && err != io.EOF {
		f.err = err
	}
	return err
}

func (f *Filter) Flush() error { return nil }

// Close reports end of session diagnostics. It never fails.
func (f *Filter) Close() error {
	if !f.anyData && !f.bypass {
		f.warn("no valid OpenPGP data found")
		f.emitStatus(constants.StatusNoData, "1")
	}
	return nil
}

func isBlankLine(line []byte) bool {
	return line[0] == '\n' || (line[0] == '\r' && len(line) > 1 && line[1] == '\n')
}

// detect classifies the stream on its first line: empty lines and
// implausible packet bytes mean armor, anything else switches the
// filter into an irreversible bypass that replays the consumed line.
func (f *Filter) detect() error {
	line, truncated, err := f.src.ReadLine(pipeline.MaxLineLen)
	if err != nil {
		return err
	}
	if truncated {
		// line has been truncated: assume not armored
		f.startBypass(line)
		return nil
	}
	if isBlankLine(line) {
		f.line = nil
		f.state = stateFindBegin
		return nil
	}
	if !isArmored(line[0]) {
		f.startBypass(line)
		return nil
	}
	f.line = line
	f.state = stateFindBegin
	return nil
}

func (f *Filter) startBypass(line []byte) {
	f.bypass = true
	f.pending = line
	f.state = stateBypass
}

// findBegin scans for a BEGIN line, skipping any garbage before it.
func (f *Filter) findBegin() error {
	line := f.line
	f.line = nil
	for {
		if line != nil {
			i := beginLineIndex(line)
			if i >= 0 && (!f.opts.OnlyKeyblocks || i == int(BlockPublicKey) ||
				i == int(BlockPrivateKey) || i == int(BlockSecretKey)) {
				f.block = Block(i)
				if f.block == BlockSignedMessage {
					f.inCleartext = true
				}
				f.state = stateHeaders
				return nil
			}
		}
		var err error
		line, err = f.readLineSkipTruncated()
		if err != nil {
			return err
		}
	}
}

func (f *Filter) readLineSkipTruncated() ([]byte, error) {
	for {
		line, truncated, err := f.src.ReadLine(pipeline.MaxLineLen)
		if err != nil {
			return nil, err
		}
		if !truncated {
			return line, nil
		}
	}
}

// readHeaders consumes the armor header block up to the blank line
// and switches into the body mode of the detected BEGIN kind.
func (f *Filter) readHeaders() error {
	for {
		line, err := f.readLineSkipTruncated()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		done, err := f.parseHeaderLine(line)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	if f.inCleartext {
		f.enterClearsign()
	} else {
		f.enterRadix64()
	}
	return nil
}

// parseHeaderLine handles one "Key: value" armor header. In cleartext
// mode only the Hash and NotDashEscaped headers are allowed; outside
// it any well formed header is accepted.
func (f *Filter) parseHeaderLine(line []byte) (done bool, err error) {
	if isBlankLine(line) {
		return true, nil
	}
	line = internal.TrimTrailing(line)
	i := bytes.IndexByte(line, ':')
	if i < 0 || i == len(line)-1 {
		f.warn("invalid armor header", "line", internal.SanitizeString(string(line)))
		return false, f.invalidArmor("invalid armor header")
	}
	f.info("armor header", "line", internal.SanitizeString(string(line)))
	if f.inCleartext {
		if bits := parseHashHeader(line); bits != 0 {
			f.hashes |= bits
		} else if len(line) > 15 && bytes.HasPrefix(line, []byte("NotDashEscaped:")) {
			f.notDashEscaped = true
		} else {
			f.warn("invalid clearsig header", "line", internal.SanitizeString(string(line)))
			return false, f.invalidArmor("invalid clearsig header")
		}
	}
	return false, nil
}

// enterClearsign synthesizes the packets that frame the clear text:
// one one-pass signature packet per declared digest (MD5 when none
// was declared) and the header of a text mode literal packet in the
// old block mode framing, whose chunks the text will be served in.
func (f *Filter) enterClearsign() {
	hashes := f.hashes
	if hashes == 0 {
		hashes = hashMD5 // the old default
	}
	var buf []byte
	for _, e := range onePassHashAlgos {
		if hashes&e.bit == 0 {
			continue
		}
		hashes &^= e.bit
		last := byte(1)
		if hashes != 0 {
			last = 0
		}
		buf = append(buf,
			0x90,   // old format, one-pass signature, 1 length byte
			13,     // length
			3,      // version
			0x01,   // sigclass: canonical text
			e.algo, // digest algorithm
			0,      // public key algorithm unknown
			0, 0, 0, 0, 0, 0, 0, 0, // key ID unknown
			last,
		)
	}
	buf = append(buf,
		0xaf,    // old format, literal data, block mode
		0, 6,    // first chunk: the literal header
		't',     // canonical text mode
		0,       // no file name
		0, 0, 0, 0, // no timestamp
	)
	f.pending = buf
	f.held = nil
	f.haveHeld = false
	f.state = stateClearsign
}

func (f *Filter) enterRadix64() {
	f.crc = crcInit
	f.idx = 0
	f.val = 0
	f.state = stateRadix64
}

// blockChunk frames text as one 2 byte length prefixed chunk of the
// faked literal packet.
func blockChunk(line []byte, crlf bool) []byte {
	n := len(line)
	if crlf {
		n += 2
	}
	chunk := make([]byte, 0, n+2)
	chunk = append(chunk, byte(n>>8), byte(n))
	chunk = append(chunk, line...)
	if crlf {
		chunk = append(chunk, '\r', '\n')
	}
	return chunk
}

// nextClearChunk canonicalizes the next line of clearsigned text into
// a literal packet chunk. A line is held back until the following
// line is seen: a text line owes its predecessor a CR LF, the armor
// line ending the text does not.
func (f *Filter) nextClearChunk() error {
	if !f.haveHeld {
		line, term, err := f.readClearLine()
		if err != nil {
			return err
		}
		if term {
			// empty clear text: only the end marker
			f.pending = []byte{0, 0}
			f.state = stateSigHeaders
			return nil
		}
		f.held = line
		f.haveHeld = true
	}
	line, term, err := f.readClearLine()
	if err == io.EOF {
		// input ended inside the clear text: flush what we have
		f.pending = blockChunk(f.held, true)
		f.haveHeld = false
		return nil
	}
	if err != nil {
		return err
	}
	if term {
		chunk := blockChunk(f.held, false)
		if len(f.held) > 0 {
			chunk = append(chunk, 0, 0) // end marker
		}
		f.pending = chunk
		f.haveHeld = false
		f.state = stateSigHeaders
		return nil
	}
	f.pending = blockChunk(f.held, true)
	f.held = line
	return nil
}

// readClearLine reads one line of clearsigned text, strips trailing
// whitespace, undoes dash escaping, and recognizes the armor line
// that ends the text. A nested SIGNED MESSAGE begin line is invalid
// armor. A truncated line is fatal: the canonical text can no longer
// be reproduced, so any signature over it is lost.
func (f *Filter) readClearLine() (line []byte, term bool, err error) {
	line, truncated, err := f.src.ReadLine(pipeline.MaxLineLen)
	if err != nil {
		return nil, false, err
	}
	if truncated {
		f.warn("clear text line exceeds the line length limit")
		return nil, false, errors.Wrap(pgpErrors.ErrLineTooLong, "clear text line truncated")
	}
	line = internal.TrimTrailing(line)
	if len(line) > 2 && line[0] == '-' {
		switch {
		case line[1] == ' ' && !f.notDashEscaped:
			if line[2] != '-' && !(len(line) > 6 && bytes.Equal(line[2:7], []byte("From "))) {
				f.warn("invalid dash escaped line", "line", internal.SanitizeString(string(line)))
			}
			line = line[2:]
		case len(line) >= 15 && line[1] == '-' && line[2] == '-' && line[3] == '-':
			switch beginLineIndex(line) {
			case int(BlockSignedMessage):
				f.warn("nested clear text signatures")
				return nil, false, f.invalidArmor("nested clear text signatures")
			case int(BlockSignature):
			default:
				f.warn("unexpected armor", "line", internal.SanitizeString(string(line)))
			}
			return nil, true, nil
		}
	}
	return line, false, nil
}

// finishClearsign consumes the header block of the signature armor
// that follows the clear text and switches to radix-64 decoding.
func (f *Filter) finishClearsign() error {
	f.inCleartext = false
	f.block = BlockSignature
	for {
		line, err := f.readLineSkipTruncated()
		if err == io.EOF {
			return errors.Wrap(pgpErrors.ErrIncompleteLine,
				"clearsigned message ends before the signature block")
		}
		if err != nil {
			return err
		}
		done, err := f.parseHeaderLine(line)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	f.enterRadix64()
	return nil
}

// pullRadix64 decodes armor body characters into p until p is full,
// the CRC pad character is seen, or input ends. Whitespace is skipped,
// other characters outside the alphabet are reported and skipped.
func (f *Filter) pullRadix64(p []byte) (int, error) {
	n := 0
	checkCRC := false
	var readErr error
	for n < len(p) {
		c, err := f.src.ReadByte()
		if err != nil {
			readErr = err
			break
		}
		if c == '\n' || c == ' ' || c == '\r' || c == '\t' {
			continue
		}
		if c == '=' { // pad character: stop
			if f.idx == 1 {
				p[n] = f.val
				n++
			}
			checkCRC = true
			break
		}
		v := asctobin[c]
		if v == 255 {
			f.warn("invalid radix64 character skipped", "char", fmt.Sprintf("%02x", c))
			continue
		}
		switch f.idx {
		case 0:
			f.val = v << 2
		case 1:
			f.val |= (v >> 4) & 3
			p[n] = f.val
			n++
			f.val = (v << 4) & 0xf0
		case 2:
			f.val |= (v >> 2) & 15
			p[n] = f.val
			n++
			f.val = (v << 6) & 0xc0
		case 3:
			f.val |= v
			p[n] = f.val
			n++
		}
		f.idx = (f.idx + 1) % 4
	}
	f.crc = crc24(f.crc, p[:n])

	if checkCRC {
		if err := f.checkCRC(); err != nil {
			return n, err
		}
		if err := f.readTail(); err != nil {
			return n, err
		}
		f.anyData = true
		f.state = stateDetect
		return n, nil
	}
	if readErr != nil && n == 0 {
		if readErr == io.EOF {
			return 0, f.invalidArmor("premature eof (no CRC)")
		}
		return 0, readErr
	}
	return n, nil
}

// checkCRC reads the four character CRC that follows the pad and
// compares it against the running value.
func (f *Filter) checkCRC() error {
	var c byte
	for { // skip line ends and pad characters before the CRC
		var err error
		c, err = f.src.ReadByte()
		if err != nil {
			return f.invalidArmor("premature eof (no CRC)")
		}
		if c == '\n' || c == ' ' || c == '\r' || c == '\t' || c == '=' {
			continue
		}
		break
	}
	var mycrc uint32
	var val byte
	for idx := 0; idx < 4; idx++ {
		v := asctobin[c]
		if v == 255 {
			return f.invalidArmor("malformed CRC")
		}
		switch idx {
		case 0:
			val = v << 2
		case 1:
			val |= (v >> 4) & 3
			mycrc |= uint32(val) << 16
			val = (v << 4) & 0xf0
		case 2:
			val |= (v >> 2) & 15
			mycrc |= uint32(val) << 8
			val = (v << 6) & 0xc0
		case 3:
			val |= v
			mycrc |= uint32(val)
		}
		if idx < 3 {
			var err error
			c, err = f.src.ReadByte()
			if err != nil {
				return f.invalidArmor("premature eof (in CRC)")
			}
		}
	}
	if mycrc != f.crc {
		f.warn("CRC error", "want", fmt.Sprintf("%06x", f.crc),
			"got", fmt.Sprintf("%06x", mycrc))
		return f.invalidArmor("CRC error")
	}
	return nil
}

// readTail requires the END line matching the BEGIN of the region.
// Blank lines before it are tolerated.
func (f *Filter) readTail() error {
	for {
		line, _, err := f.src.ReadLine(pipeline.MaxLineLen)
		if err != nil {
			return f.invalidArmor("premature eof (in trailer)")
		}
		if isBlankLine(line) || len(internal.TrimTrailing(line)) == 0 {
			continue
		}
		if endLineIndex(line) != int(f.block) {
			f.warn("error in trailer line", "line", internal.SanitizeString(string(line)))
			return f.invalidArmor("error in trailer line")
		}
		return nil
	}
}

func (f *Filter) invalidArmor(reason string) error {
	f.emitStatus(constants.StatusBadArmor, "")
	return pgpErrors.InvalidArmorError(reason)
}

func (f *Filter) emitStatus(s constants.Status, args string) {
	if f.opts.Status != nil {
		f.opts.Status(s, args)
	}
}

func (f *Filter) warn(msg string, args ...any) {
	if f.opts.Logger != nil {
		f.opts.Logger.Warn(msg, args...)
	}
}

func (f *Filter) info(msg string, args ...any) {
	if f.opts.Logger != nil {
		f.opts.Logger.Info(msg, args...)
	}
}
