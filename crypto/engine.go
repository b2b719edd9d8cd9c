package crypto

import (
	"bytes"
	"crypto/md5"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	openpgpErrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	openpgpPacket "github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/ProtonMail/go-crypto/openpgp/s2k"
	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/digest"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/packet"
	"github.com/ProtonMail/pgpstream/process"
)

// Engine performs the public key and cipher operations the packet
// processor delegates: it recovers session keys with the secret keys
// of its ring or with a passphrase, opens encrypted data packets and
// checks signatures. It implements process.SessionDecrypter,
// process.DataDecrypter and process.SignatureVerifier.
type Engine struct {
	// KeyRing supplies verification and decryption keys. A nil ring
	// fails every key lookup.
	KeyRing *KeyRing
	// Passphrase unlocks encrypted secret keys and derives the keys
	// of symmetrically encrypted messages. Nil means none available.
	Passphrase []byte
	// Config is passed through to the OpenPGP library. Nil selects
	// its defaults.
	Config *openpgpPacket.Config
}

// NewEngine returns an engine over a key ring.
func NewEngine(kr *KeyRing) *Engine {
	return &Engine{KeyRing: kr}
}

// SessionKey decrypts an asymmetrically encrypted session key with
// the matching secret key of the ring. Encrypted secret keys are
// unlocked with the configured passphrase; keys that cannot be
// unlocked are skipped.
func (e *Engine) SessionKey(enc *packet.PubKeyEnc) (*process.DEK, error) {
	p, err := openpgpPacket.Read(bytes.NewReader(packet.FrameBytes(packet.TagPubKeyEnc, enc.Raw)))
	if err != nil {
		return nil, errors.Wrap(err, "parsing session key packet")
	}
	ek, ok := p.(*openpgpPacket.EncryptedKey)
	if !ok {
		return nil, errors.New("unexpected packet type for a session key")
	}

	for _, key := range e.keysByID(enc.KeyID) {
		priv := key.PrivateKey
		if priv == nil || priv.Dummy() {
			continue
		}
		if priv.Encrypted {
			if e.Passphrase == nil {
				continue
			}
			if priv.Decrypt(e.Passphrase) != nil {
				continue
			}
		}
		if ek.Decrypt(priv, e.Config) != nil {
			continue
		}
		if len(ek.Key) == 0 {
			continue
		}
		return &process.DEK{Algo: uint8(ek.CipherFunc), Key: ek.Key}, nil
	}
	return nil, pgpErrors.ErrNoSecretKey
}

// PassphraseDEK derives the data encryption key of a symmetrically
// encrypted message from the configured passphrase. spec is the raw
// string-to-key specifier of the session key packet; nil selects the
// old conventional scheme, a plain MD5 digest of the passphrase.
func (e *Engine) PassphraseDEK(cipherAlgo uint8, spec []byte) (*process.DEK, error) {
	if e.Passphrase == nil {
		return nil, pgpErrors.ErrNoSecretKey
	}
	size := openpgpPacket.CipherFunction(cipherAlgo).KeySize()
	if size == 0 {
		return nil, pgpErrors.CipherAlgoError(cipherAlgo)
	}
	key := make([]byte, size)
	if spec == nil {
		s2k.Simple(key, md5.New(), e.Passphrase)
	} else {
		derive, err := s2k.Parse(bytes.NewReader(spec))
		if err != nil {
			return nil, errors.Wrap(err, "parsing string-to-key specifier")
		}
		derive(key, e.Passphrase)
	}
	return &process.DEK{Algo: cipherAlgo, Key: key}, nil
}

// DecryptData opens the cipher stream of an encrypted data packet.
// The integrity protection of an MDC packet is checked by the
// returned reader and reported as an error at the end of the stream.
func (e *Engine) DecryptData(enc *packet.Encrypted, dek *process.DEK) (io.ReadCloser, error) {
	p, err := openpgpPacket.Read(packet.Frame(enc.Tag(), enc.Body))
	if err != nil {
		return nil, errors.Wrap(err, "parsing encrypted data packet")
	}
	data, ok := p.(openpgpPacket.EncryptedDataPacket)
	if !ok {
		return nil, errors.New("unexpected packet type for encrypted data")
	}
	rc, err := data.Decrypt(openpgpPacket.CipherFunction(dek.Algo), dek.Key)
	if err != nil {
		return nil, errors.Wrap(err, "opening encrypted data")
	}
	return rc, nil
}

// CheckSignature verifies a data signature against the digest context
// the signed bytes were hashed into.
func (e *Engine) CheckSignature(sig *packet.Signature, md *digest.Context) error {
	gsig, err := parseSignature(sig)
	if err != nil {
		return err
	}
	if sig.KeyID == 0 {
		return pgpErrors.ErrNoPubKey
	}
	keys := e.keysByID(sig.KeyID)
	if len(keys) == 0 {
		return pgpErrors.ErrNoPubKey
	}

	var failure error
	for _, key := range keys {
		if key.PublicKey == nil {
			continue
		}
		h, herr := md.Hash(sig.DigestAlgo)
		if herr != nil {
			return herr
		}
		verr := key.PublicKey.VerifySignature(h, gsig)
		if verr == nil {
			return nil
		}
		failure = verr
	}
	return mapVerifyError(failure, sig)
}

// CheckKeySignature verifies the signature at node n of a key block:
// certifications and their revocations against the nearest preceding
// user ID, binding signatures against the nearest preceding subkey
// and key revocations against the key itself. selfsig reports whether
// the issuer is the block's own key.
func (e *Engine) CheckKeySignature(kb *process.Keyblock, n int) (selfsig bool, err error) {
	sig, ok := kb.Node(n).(*packet.Signature)
	if !ok {
		return false, errors.New("key block node is not a signature")
	}
	root, ok := kb.Root().(*packet.Key)
	if !ok {
		return false, pgpErrors.SigClassError(sig.SigClass)
	}
	gsig, err := parseSignature(sig)
	if err != nil {
		return false, err
	}
	rootKey, err := parsePublicKey(root)
	if err != nil {
		return false, err
	}

	selfsig = sig.KeyID == root.KeyID
	signer := rootKey
	if !selfsig {
		signer = nil
		if sig.KeyID != 0 {
			for _, key := range e.keysByID(sig.KeyID) {
				if key.PublicKey != nil {
					signer = key.PublicKey
					break
				}
			}
		}
		if signer == nil {
			return false, pgpErrors.ErrNoPubKey
		}
	}

	switch {
	case sig.SigClass&^3 == 0x10 || sig.SigClass == 0x30:
		uid := precedingUserID(kb, n)
		if uid == nil {
			return selfsig, pgpErrors.SigClassError(sig.SigClass)
		}
		return selfsig, mapVerifyError(signer.VerifyUserIdSignature(uid.Name, rootKey, gsig), sig)

	case sig.SigClass == 0x18:
		sub := precedingSubkey(kb, n)
		if sub == nil {
			return selfsig, pgpErrors.SigClassError(sig.SigClass)
		}
		subKey, err := parsePublicKey(sub)
		if err != nil {
			return selfsig, err
		}
		return selfsig, mapVerifyError(signer.VerifyKeySignature(subKey, gsig), sig)

	case sig.SigClass == 0x20:
		if !selfsig {
			// the library checks self revocations only
			return false, pgpErrors.ErrNoPubKey
		}
		return true, mapVerifyError(rootKey.VerifyRevocationSignature(gsig), sig)

	default:
		return selfsig, pgpErrors.SigClassError(sig.SigClass)
	}
}

func (e *Engine) keysByID(keyID uint64) []openpgp.Key {
	return e.KeyRing.keysByID(keyID)
}

// parseSignature turns a raw signature packet body into the library
// representation. Version 3 signatures are not supported there and
// fail here.
func parseSignature(sig *packet.Signature) (*openpgpPacket.Signature, error) {
	p, err := openpgpPacket.Read(bytes.NewReader(packet.FrameBytes(packet.TagSignature, sig.Raw)))
	if err != nil {
		return nil, errors.Wrap(err, "parsing signature packet")
	}
	gsig, ok := p.(*openpgpPacket.Signature)
	if !ok {
		return nil, errors.New("unexpected packet type for a signature")
	}
	return gsig, nil
}

func parsePublicKey(key *packet.Key) (*openpgpPacket.PublicKey, error) {
	p, err := openpgpPacket.Read(bytes.NewReader(packet.FrameBytes(key.Tag(), key.Raw)))
	if err != nil {
		return nil, errors.Wrap(err, "parsing key packet")
	}
	pub, ok := p.(*openpgpPacket.PublicKey)
	if !ok {
		return nil, errors.New("unexpected packet type for a key")
	}
	return pub, nil
}

// precedingUserID returns the nearest user ID node before index n,
// not counting the root.
func precedingUserID(kb *process.Keyblock, n int) *packet.UserID {
	for i := n - 1; i > 0; i-- {
		if uid, ok := kb.Node(i).(*packet.UserID); ok {
			return uid
		}
	}
	return nil
}

// precedingSubkey returns the nearest subkey node before index n.
func precedingSubkey(kb *process.Keyblock, n int) *packet.Key {
	for i := n - 1; i > 0; i-- {
		if key, ok := kb.Node(i).(*packet.Key); ok && !key.Primary() {
			return key
		}
	}
	return nil
}

// mapVerifyError translates library verification failures into the
// errors the processor reports on: a signature that does not verify
// becomes ErrBadSignature, a key that cannot make signatures becomes
// PubKeyAlgoError. Anything else is passed through.
func mapVerifyError(err error, sig *packet.Signature) error {
	if err == nil {
		return nil
	}
	var sigErr openpgpErrors.SignatureError
	if errors.As(err, &sigErr) {
		return pgpErrors.ErrBadSignature
	}
	var argErr openpgpErrors.InvalidArgumentError
	if errors.As(err, &argErr) {
		return pgpErrors.PubKeyAlgoError(sig.PubKeyAlgo)
	}
	return err
}
