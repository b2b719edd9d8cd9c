package process

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/internal"
	"github.com/ProtonMail/pgpstream/packet"
)

// listNode writes one node of a key block in the plain listing
// format. For a primary key the rest of the block (user IDs,
// signatures, subkeys) is listed along with it.
func (c *context) listNode(kb *Keyblock, n int) {
	switch node := kb.Node(n).(type) {
	case *packet.Key:
		c.listKeyNode(kb, n, node)
	case *packet.Signature:
		c.listSigNode(kb, n, node)
	default:
		c.warn("invalid node in key listing", "tag", node.Tag().String())
	}
}

func (c *context) listKeyNode(kb *Keyblock, n int, key *packet.Key) {
	w := c.listWriter()
	fmt.Fprintf(w, "%s  %4d%c/%08X %s ",
		keyKind(key), key.NBits, pubKeyLetter(key.Algo), uint32(key.KeyID), datestr(key.Timestamp))
	if !key.Primary() {
		fmt.Fprintln(w)
		return
	}

	// the first user ID continues the key line; everything after it
	// starts a line of its own
	any := false
	for i := n + 1; i < kb.Len(); i++ {
		switch sub := kb.Node(i).(type) {
		case *packet.Signature:
			if !any {
				if sub.SigClass == constants.SigTypeKeyRevocation {
					fmt.Fprintln(w, "[revoked]")
				} else {
					fmt.Fprintln(w)
				}
				any = true
			}
			c.listNode(kb, i)
		case *packet.UserID:
			if any {
				fmt.Fprintf(w, "uid%*s", 28, "")
			}
			fmt.Fprintln(w, internal.SanitizeString(sub.Name))
			if c.cfg.WithFingerprint && !any {
				printFingerprint(w, key.Fingerprint)
			}
			any = true
		case *packet.Key:
			if !sub.Primary() && sub.Secret() == key.Secret() {
				if !any {
					fmt.Fprintln(w)
					any = true
				}
				c.listNode(kb, i)
			}
		}
	}
	if !any {
		fmt.Fprintln(w)
	}
}

func (c *context) listSigNode(kb *Keyblock, n int, sig *packet.Signature) {
	if !c.cfg.ListSigs {
		return
	}
	w := c.listWriter()

	label := "sig"
	if sig.SigClass == constants.SigTypeKeyRevocation ||
		sig.SigClass == constants.SigTypeCertificationRevocation {
		label = "rev"
	}

	sigrc := byte(' ')
	var selfsig bool
	var checkErr error
	if c.cfg.CheckSigs {
		selfsig, checkErr = c.doCheckSig(kb, n)
		switch {
		case checkErr == nil:
			sigrc = '!'
		case errors.Is(checkErr, pgpErrors.ErrBadSignature):
			sigrc = '-'
		case errors.Is(checkErr, pgpErrors.ErrNoPubKey):
			sigrc = '?'
		default:
			sigrc = '%'
		}
	} else if root, ok := kb.Root().(*packet.Key); ok && root.Primary() {
		selfsig = root.KeyID == sig.KeyID
	}

	fmt.Fprintf(w, "%s%c       %08X %s   ", label, sigrc, uint32(sig.KeyID), datestr(sig.Timestamp))
	switch {
	case sigrc == '%':
		fmt.Fprintf(w, "[%s] ", checkErr)
	case sigrc == '?':
	case selfsig:
		if sig.SigClass == constants.SigTypeSubkeyBinding {
			fmt.Fprint(w, "[keybind]")
		} else {
			fmt.Fprint(w, "[selfsig]")
		}
	default:
		fmt.Fprint(w, internal.SanitizeString(c.cfg.userID(sig.KeyID)))
	}
	fmt.Fprintln(w)
}

func (c *context) listWriter() io.Writer {
	if c.cfg.ListWriter != nil {
		return c.cfg.ListWriter
	}
	return io.Discard
}

// printFingerprint writes a fingerprint line: SHA1 fingerprints in
// two-byte groups with a gap in the middle, MD5 fingerprints byte by
// byte with a gap every eight.
func printFingerprint(w io.Writer, fpr []byte) {
	fmt.Fprint(w, "     Key fingerprint =")
	if len(fpr) == 20 {
		for i := 0; i < len(fpr); i += 2 {
			if i == 10 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, " %02X%02X", fpr[i], fpr[i+1])
		}
	} else {
		for i, b := range fpr {
			if i > 0 && i%8 == 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, " %02X", b)
		}
	}
	fmt.Fprintln(w)
}

func keyKind(key *packet.Key) string {
	switch key.Tag() {
	case packet.TagPublicKey:
		return "pub"
	case packet.TagPublicSubkey:
		return "sub"
	case packet.TagSecretKey:
		return "sec"
	default:
		return "ssb"
	}
}

// pubKeyLetter is the one letter algorithm code of key listings.
func pubKeyLetter(algo uint8) byte {
	switch algo {
	case constants.PubKeyRSA:
		return 'R'
	case constants.PubKeyRSAEncryptOnly:
		return 'r'
	case constants.PubKeyRSASignOnly:
		return 's'
	case constants.PubKeyElGamalEncrypt:
		return 'g'
	case constants.PubKeyElGamal:
		return 'G'
	case constants.PubKeyDSA:
		return 'D'
	default:
		return '?'
	}
}

func datestr(ts uint32) string {
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02")
}
