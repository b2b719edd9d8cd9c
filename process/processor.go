package process

import (
	"io"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/packet"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// Processor sequences packet streams according to a Config.
type Processor struct {
	cfg Config
}

// New returns a processor for the given configuration.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Packets processes an arbitrary packet stream: key blocks are listed,
// encrypted data is decrypted, signed data is verified.
func (p *Processor) Packets(src *pipeline.Stream) error {
	c := &context{cfg: &p.cfg, src: src}
	return c.run()
}

// SignaturePackets processes a stream that may contain only
// signatures and signed data. Detached signatures are checked against
// signedFiles, or against the data file derived from sigFilename when
// none are given.
func (p *Processor) SignaturePackets(src *pipeline.Stream, signedFiles []string, sigFilename string) error {
	c := &context{
		cfg:         &p.cfg,
		src:         src,
		sigsOnly:    true,
		signedData:  signedFiles,
		sigFilename: sigFilename,
	}
	return c.run()
}

// EncryptionPackets processes a stream that may contain only the
// packets of an encrypted message. Decrypted data re-enters here.
func (p *Processor) EncryptionPackets(src *pipeline.Stream) error {
	c := &context{cfg: &p.cfg, src: src, encryptOnly: true}
	return c.run()
}

// context is the state of one packet sequence. Nested streams
// (decompressed or decrypted data) get a fresh context over the same
// configuration.
type context struct {
	cfg *Config
	src *pipeline.Stream

	sigsOnly    bool
	encryptOnly bool
	signedData  []string
	sigFilename string

	list              *Keyblock
	dek               *DEK
	md                *digest.Context
	lastWasSessionKey int
	haveData          bool
}

// run drives the parse and dispatch loop until the stream ends or a
// fatal error stops it. The pending node list is flushed through the
// tree processor on every exit path; the pending DEK is wiped.
func (c *context) run() error {
	defer func() {
		c.dek.Clear()
		c.dek = nil
	}()

	parser := packet.NewParser(c.src)
	var fatal error
	for {
		pkt, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var invalid pgpErrors.InvalidPacketError
			if errors.As(err, &invalid) {
				c.status(constants.StatusNoData, "3")
				fatal = err
				break
			}
			if parser.Err() != nil {
				// the source failed, no further packet can be read
				fatal = err
				break
			}
			c.warn("skipping broken packet", "err", err)
			continue
		}

		tag := pkt.Tag()
		if c.dek != nil && tag != packet.TagEncrypted && tag != packet.TagEncryptedMDC {
			// stale session key from a previous recipient choice
			c.dek.Clear()
			c.dek = nil
		}

		if err := c.dispatch(pkt); err != nil {
			fatal = err
			break
		}
		if tag != packet.TagSignature {
			c.haveData = tag == packet.TagPlaintext
		}
	}

	flushErr := c.releaseList()
	if fatal != nil {
		return fatal
	}
	return flushErr
}

func (c *context) dispatch(pkt packet.Packet) error {
	switch {
	case c.sigsOnly:
		return c.dispatchSigsOnly(pkt)
	case c.encryptOnly:
		return c.dispatchEncryptOnly(pkt)
	default:
		return c.dispatchFull(pkt)
	}
}

func (c *context) dispatchFull(pkt packet.Packet) error {
	switch pkt := pkt.(type) {
	case *packet.Key:
		if pkt.Primary() {
			if err := c.releaseList(); err != nil {
				return err
			}
			c.list = newKeyblock(pkt)
		} else {
			c.addSubkey(pkt)
		}
	case *packet.UserID:
		c.addUserID(pkt)
	case *packet.Signature:
		c.addSignature(pkt)
	case *packet.OnePassSig:
		return c.addOnePassSig(pkt)
	case *packet.PubKeyEnc:
		c.procPubKeyEnc(pkt)
	case *packet.SymKeyEnc:
		c.procSymKeyEnc(pkt)
	case *packet.Encrypted:
		return c.procEncrypted(pkt)
	case *packet.Plaintext:
		c.procPlaintext(pkt)
	case *packet.Compressed:
		return c.procCompressed(pkt)
	default:
		// markers, comments and unknown packets are dropped
	}
	return nil
}

func (c *context) dispatchSigsOnly(pkt packet.Packet) error {
	switch pkt := pkt.(type) {
	case *packet.Key:
		if pkt.Primary() {
			return pgpErrors.UnexpectedPacketError(pkt.Tag())
		}
		// a stray subkey is dropped like any unknown packet
	case *packet.UserID, *packet.SymKeyEnc, *packet.PubKeyEnc, *packet.Encrypted:
		return pgpErrors.UnexpectedPacketError(pkt.Tag())
	case *packet.Signature:
		c.addSignature(pkt)
	case *packet.OnePassSig:
		return c.addOnePassSig(pkt)
	case *packet.Plaintext:
		c.procPlaintext(pkt)
	case *packet.Compressed:
		return c.procCompressed(pkt)
	default:
	}
	return nil
}

func (c *context) dispatchEncryptOnly(pkt packet.Packet) error {
	switch pkt := pkt.(type) {
	case *packet.Key:
		if pkt.Primary() {
			return pgpErrors.UnexpectedPacketError(pkt.Tag())
		}
	case *packet.UserID:
		return pgpErrors.UnexpectedPacketError(pkt.Tag())
	case *packet.Signature:
		c.addSignature(pkt)
	case *packet.OnePassSig:
		return c.addOnePassSig(pkt)
	case *packet.PubKeyEnc:
		c.procPubKeyEnc(pkt)
	case *packet.SymKeyEnc:
		c.procSymKeyEnc(pkt)
	case *packet.Encrypted:
		return c.procEncrypted(pkt)
	case *packet.Plaintext:
		c.procPlaintext(pkt)
	case *packet.Compressed:
		return c.procCompressed(pkt)
	default:
	}
	return nil
}

// releaseList hands the pending node list to the tree processor and
// clears it.
func (c *context) releaseList() error {
	if c.list == nil {
		return nil
	}
	kb := c.list
	c.list = nil
	return c.procTree(kb)
}

// addOnePassSig starts a signature group or extends the current one.
// Any other pending list is flushed first.
func (c *context) addOnePassSig(pkt *packet.OnePassSig) error {
	if c.list == nil {
		c.list = newKeyblock(pkt)
		return nil
	}
	if _, ok := c.list.Root().(*packet.OnePassSig); !ok {
		c.warn("one-pass signature with another packet in the way")
		if err := c.releaseList(); err != nil {
			return err
		}
		c.list = newKeyblock(pkt)
		return nil
	}
	c.list.append(pkt)
	return nil
}

func (c *context) addUserID(pkt *packet.UserID) {
	if c.list == nil {
		c.warn("orphaned user id", "err", pgpErrors.ErrOrphanPacket)
		return
	}
	c.list.append(pkt)
}

func (c *context) addSubkey(pkt *packet.Key) {
	if c.list == nil {
		c.warn("subkey without a main key", "err", pgpErrors.ErrOrphanPacket)
		return
	}
	c.list.append(pkt)
}

// addSignature appends a signature to the current list. A signature
// with no list starts one: PGP prepends the signature to the signed
// data instead of using one-pass packets.
func (c *context) addSignature(sig *packet.Signature) {
	if c.list == nil {
		c.list = newKeyblock(sig)
		return
	}
	c.list.append(sig)
}

func (c *context) status(s constants.Status, args string) {
	if c.cfg.Status != nil {
		c.cfg.Status(s, args)
	}
}

func (c *context) warn(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Warn(msg, args...)
	}
}

func (c *context) info(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Info(msg, args...)
	}
}
