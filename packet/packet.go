// Package packet parses OpenPGP packet framing and the packet fields
// needed to sequence a message. It accepts algorithm identifiers it
// cannot handle itself; deciding what to do with them is left to the
// processing layer.
package packet

import (
	"io"
)

// Tag identifies a packet type.
type Tag uint8

const (
	TagNone         Tag = 0
	TagPubKeyEnc    Tag = 1
	TagSignature    Tag = 2
	TagSymKeyEnc    Tag = 3
	TagOnePassSig   Tag = 4
	TagSecretKey    Tag = 5
	TagPublicKey    Tag = 6
	TagSecretSubkey Tag = 7
	TagCompressed   Tag = 8
	TagEncrypted    Tag = 9
	TagMarker       Tag = 10
	TagPlaintext    Tag = 11
	TagRingTrust    Tag = 12
	TagUserID       Tag = 13
	TagPublicSubkey Tag = 14
	TagOldComment   Tag = 16
	TagAttribute    Tag = 17
	TagEncryptedMDC Tag = 18
	TagMDC          Tag = 19
	TagComment      Tag = 61
)

var tagNames = map[Tag]string{
	TagPubKeyEnc:    "public key encrypted session key",
	TagSignature:    "signature",
	TagSymKeyEnc:    "symmetric key encrypted session key",
	TagOnePassSig:   "one-pass signature",
	TagSecretKey:    "secret key",
	TagPublicKey:    "public key",
	TagSecretSubkey: "secret subkey",
	TagCompressed:   "compressed data",
	TagEncrypted:    "encrypted data",
	TagMarker:       "marker",
	TagPlaintext:    "literal data",
	TagRingTrust:    "trust",
	TagUserID:       "user ID",
	TagPublicSubkey: "public subkey",
	TagOldComment:   "comment",
	TagAttribute:    "user attribute",
	TagEncryptedMDC: "encrypted data with MDC",
	TagMDC:          "MDC",
	TagComment:      "comment",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "unknown"
}

// Packet is one parsed packet. The concrete type depends on the tag;
// packets the sequencer has no use for come back as *Unknown.
type Packet interface {
	Tag() Tag
}

// PubKeyEnc is a session key encrypted to a public key (tag 1).
type PubKeyEnc struct {
	Version int
	KeyID   uint64
	Algo    uint8
	Raw     []byte // packet body, for the decryption engine
}

func (p *PubKeyEnc) Tag() Tag { return TagPubKeyEnc }

// SymKeyEnc is a passphrase protected session key (tag 3).
type SymKeyEnc struct {
	Version    int
	CipherAlgo uint8
	S2KMode    uint8
	HashAlgo   uint8
	SesKeyLen  int // length of the embedded encrypted session key, usually 0
	Raw        []byte
}

func (p *SymKeyEnc) Tag() Tag { return TagSymKeyEnc }

// S2K returns the raw string-to-key specifier, starting with the mode
// octet, as the key derivation expects it.
func (p *SymKeyEnc) S2K() []byte {
	return p.Raw[2 : len(p.Raw)-p.SesKeyLen]
}

// OnePassSig announces a signature that follows the signed data
// (tag 4).
type OnePassSig struct {
	Version    int
	SigClass   uint8
	DigestAlgo uint8
	PubKeyAlgo uint8
	KeyID      uint64
	Last       bool
	Raw        []byte
}

func (p *OnePassSig) Tag() Tag { return TagOnePassSig }

// Signature is a signature packet (tag 2). Only the fields needed for
// sequencing and reporting are parsed; Raw carries the whole body for
// the verification engine.
type Signature struct {
	Version    int
	SigClass   uint8
	PubKeyAlgo uint8
	DigestAlgo uint8
	KeyID      uint64 // issuer key ID, 0 when absent
	Timestamp  uint32 // creation time
	Raw        []byte
}

func (p *Signature) Tag() Tag { return TagSignature }

// Key is a key packet: public or secret, primary or subkey
// (tags 5, 6, 7 and 14). Secret keys parse their public fields only.
type Key struct {
	tag         Tag
	Version     int
	Timestamp   uint32
	Algo        uint8
	NBits       int // size of the first public MPI
	KeyID       uint64
	Fingerprint []byte
	Raw         []byte
}

func (p *Key) Tag() Tag { return p.tag }

// Primary reports whether this is a primary key packet.
func (p *Key) Primary() bool {
	return p.tag == TagPublicKey || p.tag == TagSecretKey
}

// Secret reports whether this is a secret key packet.
func (p *Key) Secret() bool {
	return p.tag == TagSecretKey || p.tag == TagSecretSubkey
}

// UserID is a user ID packet (tag 13).
type UserID struct {
	Name string
	Raw  []byte
}

func (p *UserID) Tag() Tag { return TagUserID }

// Compressed is a compressed data packet (tag 8). Body streams the
// compressed payload.
type Compressed struct {
	Algo uint8
	Body io.Reader
}

func (p *Compressed) Tag() Tag { return TagCompressed }

// Encrypted is an encrypted data packet, with or without integrity
// protection (tags 18 and 9). Body streams the whole packet body.
type Encrypted struct {
	MDC  bool
	Body io.Reader
}

func (p *Encrypted) Tag() Tag {
	if p.MDC {
		return TagEncryptedMDC
	}
	return TagEncrypted
}

// Plaintext is a literal data packet (tag 11). Body streams the
// literal content.
type Plaintext struct {
	Mode      byte // 'b', 't' or 'u'
	Name      string
	Timestamp uint32
	Body      io.Reader
}

func (p *Plaintext) Tag() Tag { return TagPlaintext }

// Marker is a marker packet (tag 10). It is skipped.
type Marker struct{}

func (p *Marker) Tag() Tag { return TagMarker }

// Comment is a comment packet (tags 16 and 61). It is skipped.
type Comment struct {
	tag  Tag
	Text string
}

func (p *Comment) Tag() Tag { return p.tag }

// Unknown is a packet the sequencer has no use for. The body is
// consumed and kept.
type Unknown struct {
	tag Tag
	Raw []byte
}

func (p *Unknown) Tag() Tag { return p.tag }
