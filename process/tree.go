package process

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/packet"
)

// procTree processes an assembled node list: key blocks are listed,
// signature groups are verified against the hashed data.
func (c *context) procTree(kb *Keyblock) error {
	switch root := kb.Root().(type) {
	case *packet.Key:
		if root.Tag() == packet.TagSecretSubkey {
			c.warn("invalid root packet in node list", "tag", root.Tag().String())
			return nil
		}
		c.listNode(kb, 0)
		return nil

	case *packet.OnePassSig:
		if !c.haveData {
			// detached signatures: hash the external data with every
			// digest the trailing signatures declare
			c.md = digest.New()
			for i := kb.nextSignature(0); i >= 0; i = kb.nextSignature(i) {
				sig := kb.Node(i).(*packet.Signature)
				if err := c.md.Enable(sig.DigestAlgo); err != nil {
					c.warn("cannot hash declared algorithm", "algo", sig.DigestAlgo, "err", err)
				}
			}
			textmode := false
			if i := kb.nextSignature(0); i >= 0 {
				textmode = kb.Node(i).(*packet.Signature).SigClass == 0x01
			}
			if err := c.hashDetached(textmode); err != nil {
				c.warn("can't hash datafile", "err", err)
				return nil
			}
		}
		for i := kb.nextSignature(0); i >= 0; i = kb.nextSignature(i) {
			if err := c.checkSigAndPrint(kb, i); err != nil {
				return err
			}
		}
		return nil

	case *packet.Signature:
		if !c.haveData {
			c.md = digest.New()
			if err := c.md.Enable(root.DigestAlgo); err != nil {
				c.warn("cannot hash declared algorithm", "algo", root.DigestAlgo, "err", err)
			}
			if err := c.hashDetached(root.SigClass == 0x01); err != nil {
				c.warn("can't hash datafile", "err", err)
				return nil
			}
		} else {
			c.info("old style signature")
		}
		return c.checkSigAndPrint(kb, 0)

	default:
		c.warn("invalid root packet in node list", "tag", kb.Root().Tag().String())
		return nil
	}
}

// hashDetached feeds the out-of-band signed data into the digest
// context. In sigs-only mode the data comes from the named files; an
// interactive caller is asked through the detached source hook
// otherwise. Text mode canonicalizes the data before hashing.
func (c *context) hashDetached(textmode bool) error {
	if c.sigsOnly {
		return c.hashDatafiles(c.md, c.signedData, c.sigFilename, textmode)
	}
	return c.askForDetachedData(c.md, c.src.Name())
}

// checkSigAndPrint verifies one signature node and reports the
// outcome through the log and the status callback. The returned error
// is non-nil only when batch mode aborts on a failure.
func (c *context) checkSigAndPrint(kb *Keyblock, n int) error {
	sig := kb.Node(n).(*packet.Signature)
	if c.cfg.SkipVerify {
		c.info("signature verification suppressed")
		return nil
	}

	c.info("signature made",
		"when", time.Unix(int64(sig.Timestamp), 0).UTC().Format(time.ANSIC),
		"algo", pubKeyAlgoString(sig.PubKeyAlgo),
		"keyid", fmt.Sprintf("%08X", uint32(sig.KeyID)))

	_, rc := c.doCheckSig(kb, n)
	if rc == nil || errors.Is(rc, pgpErrors.ErrBadSignature) {
		uid := c.cfg.userID(sig.KeyID)
		args := fmt.Sprintf("%016X %s", sig.KeyID, uid)
		if rc == nil {
			c.status(constants.StatusGoodSig, args)
			c.info("good signature", "from", uid)
			if terr := c.checkTrust(sig); terr != nil {
				c.warn("signature trust check failed", "err", terr)
				rc = terr
			}
		} else {
			c.status(constants.StatusBadSig, args)
			c.warn("bad signature", "from", uid)
		}
		if c.cfg.Batch && rc != nil {
			return rc
		}
		return nil
	}

	c.status(constants.StatusErrSig, fmt.Sprintf("%016X %d %d %02x %d %d",
		sig.KeyID, sig.PubKeyAlgo, sig.DigestAlgo, sig.SigClass, sig.Timestamp, errsigCode(rc)))
	c.warn("can't check signature", "err", rc)
	return nil
}

func (c *context) checkTrust(sig *packet.Signature) error {
	if c.cfg.Trust == nil {
		return nil
	}
	return c.cfg.Trust.CheckTrust(sig)
}

func (c *context) hashDatafiles(md *digest.Context, names []string, sigName string, textmode bool) error {
	src := c.cfg.Detached
	if src == nil {
		src = FileSource{}
	}
	return src.HashDatafiles(md, names, sigName, textmode)
}

func (c *context) askForDetachedData(md *digest.Context, name string) error {
	src := c.cfg.Detached
	if src == nil {
		src = FileSource{}
	}
	return src.AskForDetachedData(md, name)
}

// pubKeyAlgoString names a public key algorithm for reports.
func pubKeyAlgoString(algo uint8) string {
	switch algo {
	case constants.PubKeyRSA:
		return "RSA"
	case constants.PubKeyRSAEncryptOnly:
		return "RSA-E"
	case constants.PubKeyRSASignOnly:
		return "RSA-S"
	case constants.PubKeyElGamalEncrypt:
		return "ELG-E"
	case constants.PubKeyElGamal:
		return "ELG"
	case constants.PubKeyDSA:
		return "DSA"
	default:
		return "?"
	}
}
