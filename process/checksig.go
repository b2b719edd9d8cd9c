package process

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/packet"
)

// doCheckSig verifies the signature at node n of a list. Data
// signatures (class 0x00 and 0x01) are checked against a copy of the
// running digest; key binding classes are delegated to the engine
// together with the containing key block. selfsig reports whether a
// key signature was issued by the block's own key.
func (c *context) doCheckSig(kb *Keyblock, n int) (selfsig bool, err error) {
	sig := kb.Node(n).(*packet.Signature)

	if sig.DigestAlgo == 0 {
		return false, pgpErrors.PubKeyAlgoError(sig.PubKeyAlgo)
	}
	if _, err := digest.NewHash(sig.DigestAlgo); err != nil {
		return false, err
	}

	switch {
	case sig.SigClass == 0x00 || sig.SigClass == 0x01:
		md := c.md
		if md == nil {
			// nothing was hashed; the verifier enables the digest and
			// the check can only establish a mismatch
			md = digest.New()
		} else {
			var cerr error
			if md, cerr = md.Copy(); cerr != nil {
				return false, cerr
			}
		}
		return false, c.checkSignature(sig, md)

	case sig.SigClass&^3 == 0x10 || sig.SigClass == 0x18 ||
		sig.SigClass == 0x20 || sig.SigClass == 0x30:
		root := kb.Root().Tag()
		if root == packet.TagPublicKey || root == packet.TagPublicSubkey {
			return c.checkKeySignature(kb, n)
		}
		c.warn("invalid root packet for signature class",
			"class", fmt.Sprintf("%02x", sig.SigClass))
		return false, pgpErrors.SigClassError(sig.SigClass)

	default:
		return false, pgpErrors.SigClassError(sig.SigClass)
	}
}

func (c *context) checkSignature(sig *packet.Signature, md *digest.Context) error {
	if c.cfg.Verifier == nil {
		return pgpErrors.ErrNoPubKey
	}
	return c.cfg.Verifier.CheckSignature(sig, md)
}

func (c *context) checkKeySignature(kb *Keyblock, n int) (bool, error) {
	if c.cfg.Verifier == nil {
		return false, pgpErrors.ErrNoPubKey
	}
	return c.cfg.Verifier.CheckKeySignature(kb, n)
}

// errsigCode maps a verification failure to the numeric reason field
// of an ERRSIG status: 9 when the public key is missing, 4 for an
// unusable algorithm, 1 otherwise.
func errsigCode(err error) int {
	var pkAlgo pgpErrors.PubKeyAlgoError
	var mdAlgo pgpErrors.DigestAlgoError
	switch {
	case errors.Is(err, pgpErrors.ErrNoPubKey):
		return 9
	case errors.As(err, &pkAlgo), errors.As(err, &mdAlgo):
		return 4
	default:
		return 1
	}
}
