package process

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/internal"
	"github.com/ProtonMail/pgpstream/packet"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// procPubKeyEnc decodes an asymmetrically encrypted session key into
// the pending DEK. Failures are reported and the packet is dropped so
// that another session key packet may still supply the DEK.
func (c *context) procPubKeyEnc(enc *packet.PubKeyEnc) {
	c.lastWasSessionKey = 1
	switch enc.Algo {
	case constants.PubKeyRSA, constants.PubKeyRSAEncryptOnly, constants.PubKeyRSASignOnly,
		constants.PubKeyElGamalEncrypt, constants.PubKeyElGamal, constants.PubKeyDSA:
		// delete a pending DEK
		c.dek.Clear()
		c.dek = nil
		dek, err := c.sessionKey(enc)
		if err != nil {
			c.warn("public key decryption failed", "err", err)
			return
		}
		c.dek = dek
		c.info("pubkey_enc packet: good DEK")
	default:
		c.warn("public key decryption failed", "err", pgpErrors.PubKeyAlgoError(enc.Algo))
	}
}

// procSymKeyEnc derives the pending DEK from a passphrase.
func (c *context) procSymKeyEnc(enc *packet.SymKeyEnc) {
	if enc.SesKeyLen > 0 {
		c.warn("symkey_enc packet with session keys is not supported")
		return
	}
	c.lastWasSessionKey = 2
	dek, err := c.passphraseDEK(enc.CipherAlgo, enc.S2K())
	if err != nil {
		c.warn("passphrase key derivation failed", "err", err)
		return
	}
	c.dek = dek
}

// procEncrypted decrypts an encrypted data packet and processes the
// decrypted packets in encrypt-only mode. Without a preceding session
// key packet the data is treated as old conventionally encrypted
// material and the DEK is derived from a passphrase.
func (c *context) procEncrypted(enc *packet.Encrypted) error {
	var err error
	if c.dek == nil && c.lastWasSessionKey == 0 {
		algo := c.cfg.DefaultCipherAlgo
		if algo == 0 {
			algo = constants.DefaultCipher
		}
		c.dek, err = c.passphraseDEK(algo, nil)
	} else if c.dek == nil {
		err = pgpErrors.ErrNoSecretKey
	}

	var inner io.ReadCloser
	if err == nil {
		inner, err = c.decryptData(enc, c.dek)
	}
	c.dek.Clear()
	c.dek = nil
	c.lastWasSessionKey = 0
	if err != nil {
		c.warn("decryption failed", "err", err)
		return nil
	}
	defer inner.Close()
	c.info("decryption okay")

	sub := &context{
		cfg:         c.cfg,
		src:         pipeline.NewNamedStream(inner, c.src.Name()),
		encryptOnly: true,
	}
	return sub.run()
}

// procPlaintext streams a literal data packet through a fresh digest
// context to the plaintext sink. The digests to compute come from the
// one-pass packets leading the current list.
func (c *context) procPlaintext(pt *packet.Plaintext) {
	c.info("original file name", "name", internal.SanitizeString(pt.Name))
	c.md = digest.New()
	var any, clearsig bool
	if c.list != nil {
		for i := 0; i < c.list.Len(); i++ {
			ops, ok := c.list.Node(i).(*packet.OnePassSig)
			if !ok {
				continue
			}
			if ops.DigestAlgo != 0 {
				if err := c.md.Enable(ops.DigestAlgo); err != nil {
					c.warn("cannot hash declared algorithm", "algo", ops.DigestAlgo, "err", err)
				}
				any = true
			}
			// A class 0x01 one-pass packet with a zero key ID is one
			// the armor filter faked for a cleartext signature.
			if ops.SigClass == 0x01 && ops.KeyID == 0 {
				clearsig = true
			}
		}
	}
	if !any {
		// no one-pass packet: hash with the standard algorithms
		_ = c.md.Enable(constants.DigestRIPEMD160)
		_ = c.md.Enable(constants.DigestSHA1)
		_ = c.md.Enable(constants.DigestMD5)
	}

	err := c.handlePlaintext(pt, c.md, c.sigsOnly, clearsig)
	if errors.Is(err, pgpErrors.ErrCreateFile) && !c.sigsOnly {
		// can't write the output, but hash the data anyway so the
		// signature can still be checked
		err = c.handlePlaintext(pt, c.md, true, clearsig)
	}
	if err != nil {
		c.warn("handle plaintext failed", "err", err)
	}
	c.lastWasSessionKey = 0
}

// procCompressed decompresses a compressed data packet and processes
// the inner packets in the current mode.
func (c *context) procCompressed(zd *packet.Compressed) error {
	inner, err := decompress(zd)
	if err != nil {
		c.warn("uncompressing failed", "err", err)
		c.lastWasSessionKey = 0
		return nil
	}
	defer inner.Close()

	sub := &context{
		cfg:         c.cfg,
		src:         pipeline.NewNamedStream(inner, c.src.Name()),
		sigsOnly:    c.sigsOnly,
		encryptOnly: c.encryptOnly,
	}
	if c.sigsOnly {
		sub.signedData = c.signedData
		sub.sigFilename = c.sigFilename
	}
	err = sub.run()
	c.lastWasSessionKey = 0
	return err
}

// decompress opens the decompressed view of a compressed data packet.
func decompress(zd *packet.Compressed) (io.ReadCloser, error) {
	switch zd.Algo {
	case constants.CompressionNone:
		return io.NopCloser(zd.Body), nil
	case constants.CompressionZIP:
		return flate.NewReader(zd.Body), nil
	case constants.CompressionZLIB:
		return zlib.NewReader(zd.Body)
	default:
		return nil, errors.Errorf("compression algorithm %d not supported", zd.Algo)
	}
}

// hook plumbing with nil guards

func (c *context) sessionKey(enc *packet.PubKeyEnc) (*DEK, error) {
	if c.cfg.Sessions == nil {
		return nil, pgpErrors.ErrNoSecretKey
	}
	return c.cfg.Sessions.SessionKey(enc)
}

func (c *context) passphraseDEK(cipherAlgo uint8, s2k []byte) (*DEK, error) {
	if c.cfg.Sessions == nil {
		return nil, pgpErrors.ErrNoSecretKey
	}
	return c.cfg.Sessions.PassphraseDEK(cipherAlgo, s2k)
}

func (c *context) decryptData(enc *packet.Encrypted, dek *DEK) (io.ReadCloser, error) {
	if c.cfg.Decrypter == nil {
		return nil, pgpErrors.ErrNoSecretKey
	}
	return c.cfg.Decrypter.DecryptData(enc, dek)
}

func (c *context) handlePlaintext(pt *packet.Plaintext, md *digest.Context, noOutput, clearsig bool) error {
	sink := c.cfg.Plaintext
	if sink == nil {
		sink = &writerSink{out: c.cfg.Output}
	}
	return sink.HandlePlaintext(pt, md, noOutput, clearsig)
}

// writerSink is the default plaintext sink. It hashes the literal
// body as is and copies it to the output writer, converting canonical
// CR LF line ends back to plain line feeds for text data.
type writerSink struct {
	out io.Writer
}

func (s *writerSink) HandlePlaintext(pt *packet.Plaintext, md *digest.Context, noOutput, clearsig bool) error {
	var out io.Writer
	if !noOutput && s.out != nil {
		out = s.out
	}
	convert := pt.Mode == 't' || clearsig

	buf := make([]byte, 8192)
	pendingCR := false
	for {
		n, err := pt.Body.Read(buf)
		if n > 0 {
			_, _ = md.Write(buf[:n])
			if out != nil {
				if werr := writeConverted(out, buf[:n], convert, &pendingCR); werr != nil {
					return errors.Wrap(werr, "writing plaintext")
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "reading literal data")
		}
	}
	if pendingCR && out != nil {
		if _, err := out.Write([]byte{'\r'}); err != nil {
			return errors.Wrap(err, "writing plaintext")
		}
	}
	return nil
}

// writeConverted copies p to out, turning CR LF into LF when convert
// is set. A trailing CR is held back across calls in pendingCR.
func writeConverted(out io.Writer, p []byte, convert bool, pendingCR *bool) error {
	if !convert {
		_, err := out.Write(p)
		return err
	}
	for len(p) > 0 {
		if *pendingCR {
			*pendingCR = false
			if p[0] != '\n' {
				if _, err := out.Write([]byte{'\r'}); err != nil {
					return err
				}
			}
		}
		i := bytes.IndexByte(p, '\r')
		if i < 0 {
			_, err := out.Write(p)
			return err
		}
		if i > 0 {
			if _, err := out.Write(p[:i]); err != nil {
				return err
			}
		}
		*pendingCR = true
		p = p[i+1:]
	}
	return nil
}
