// Package process drives OpenPGP message processing: it sequences the
// packets of a stream into node lists, decrypts encrypted data,
// hashes signed data and hands the assembled trees to a verification
// engine. The cryptographic work itself is done by collaborators the
// caller plugs into the Config.
package process

import (
	"io"
	"log/slog"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/digest"
	"github.com/ProtonMail/pgpstream/packet"
)

// SessionDecrypter recovers data encryption keys from session key
// packets.
type SessionDecrypter interface {
	// SessionKey decrypts an asymmetrically encrypted session key.
	SessionKey(enc *packet.PubKeyEnc) (*DEK, error)

	// PassphraseDEK derives a key from a passphrase. s2k is the raw
	// string-to-key specifier from a symmetric session key packet, or
	// nil for the old conventional scheme (simple MD5).
	PassphraseDEK(cipherAlgo uint8, s2k []byte) (*DEK, error)
}

// DataDecrypter opens the bulk cipher stream of an encrypted data
// packet.
type DataDecrypter interface {
	DecryptData(enc *packet.Encrypted, dek *DEK) (io.ReadCloser, error)
}

// SignatureVerifier checks signatures against hashed data and key
// blocks.
type SignatureVerifier interface {
	// CheckSignature verifies a data signature against the digest
	// context the signed bytes were hashed into.
	CheckSignature(sig *packet.Signature, md *digest.Context) error

	// CheckKeySignature verifies the signature at node index n of a
	// key block against the block. It reports whether the signature
	// was issued by the block's own key.
	CheckKeySignature(kb *Keyblock, n int) (selfsig bool, err error)
}

// TrustChecker decides whether a good signature is also trustworthy.
type TrustChecker interface {
	CheckTrust(sig *packet.Signature) error
}

// PlaintextSink consumes literal data. The body must be read
// completely and written through md so the digest sees exactly the
// signed bytes; noOutput suppresses the plaintext output but not the
// hashing.
type PlaintextSink interface {
	HandlePlaintext(pt *packet.Plaintext, md *digest.Context, noOutput, clearsig bool) error
}

// DetachedSource supplies the signed material for detached
// signatures.
type DetachedSource interface {
	// HashDatafiles feeds the named files into md. When names is
	// empty the data file name is derived from sigName. In text mode
	// the data is canonicalized to CRLF line endings first.
	HashDatafiles(md *digest.Context, names []string, sigName string, textmode bool) error

	// AskForDetachedData obtains the signed data interactively. name
	// identifies the stream the signature came from.
	AskForDetachedData(md *digest.Context, name string) error
}

// Config carries the processing options and the collaborator hooks.
// The zero value processes packets without checking anything: no
// engine, no output, no listing.
type Config struct {
	// CheckSigs verifies the signatures of listed key blocks.
	CheckSigs bool
	// ListSigs includes signature lines in key block listings.
	ListSigs bool
	// WithFingerprint adds fingerprint lines to key block listings.
	WithFingerprint bool
	// Batch aborts processing when a signature turns out bad or
	// untrusted instead of carrying on with the next packet.
	Batch bool
	// SkipVerify skips signature verification entirely.
	SkipVerify bool

	// DefaultCipherAlgo is used for conventionally encrypted data
	// that does not announce a cipher. Zero means CAST5.
	DefaultCipherAlgo uint8

	// Output receives decoded literal data. A nil writer discards it.
	Output io.Writer
	// ListWriter receives key block listings. A nil writer discards
	// them.
	ListWriter io.Writer

	// Status receives machine readable processing events.
	Status func(constants.Status, string)
	// Logger receives diagnostics. A nil logger is silent.
	Logger *slog.Logger

	// LookupUserID resolves a key ID to a printable user ID for
	// reports and listings.
	LookupUserID func(keyID uint64) string

	Sessions  SessionDecrypter
	Decrypter DataDecrypter
	Verifier  SignatureVerifier
	Trust     TrustChecker
	Plaintext PlaintextSink
	Detached  DetachedSource
}

// userID resolves a key ID for display.
func (cfg *Config) userID(keyID uint64) string {
	if cfg.LookupUserID != nil {
		if uid := cfg.LookupUserID(keyID); uid != "" {
			return uid
		}
	}
	return "[User id not found]"
}
