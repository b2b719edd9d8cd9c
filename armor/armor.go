// Package armor detects and decodes OpenPGP ASCII armor, including
// clearsigned messages, and produces armored output. The read side is
// a pipeline filter that turns armored input back into a binary packet
// stream; clearsigned text is rewritten as a synthesized one-pass
// signature sequence so the packet layer never sees armor.
package armor

import (
	"bytes"
	"strings"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/packet"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// Block identifies the armor block type, in the index order of the
// BEGIN line table.
type Block int

const (
	BlockMessage Block = iota
	BlockPublicKey
	BlockSignature
	BlockSignedMessage
	BlockArmoredFile // gnupg extension
	BlockPrivateKey
	BlockSecretKey // only used by pgp2
)

var beginLabels = [...]string{
	"BEGIN PGP MESSAGE",
	"BEGIN PGP PUBLIC KEY BLOCK",
	"BEGIN PGP SIGNATURE",
	"BEGIN PGP SIGNED MESSAGE",
	"BEGIN PGP ARMORED FILE",
	"BEGIN PGP PRIVATE KEY BLOCK",
	"BEGIN PGP SECRET KEY BLOCK",
}

var endLabels = [...]string{
	"END PGP MESSAGE",
	"END PGP PUBLIC KEY BLOCK",
	"END PGP SIGNATURE",
	"END dummy", // signed message blocks have no end line
	"END PGP ARMORED FILE",
	"END PGP PRIVATE KEY BLOCK",
	"END PGP SECRET KEY BLOCK",
}

var dashes = []byte("-----")

// armorLineIndex matches line against a label table. The line must be
// five dashes, the label, five dashes, and at most a line ending.
func armorLineIndex(line []byte, labels []string) int {
	if len(line) < 15 {
		return -1
	}
	if !bytes.HasPrefix(line, dashes) {
		return -1
	}
	rest := line[5:]
	i := bytes.Index(rest, dashes)
	if i < 0 {
		return -1
	}
	tail := rest[i+5:]
	if len(tail) > 0 && tail[0] == '\r' {
		tail = tail[1:]
	}
	if len(tail) > 0 && tail[0] == '\n' {
		tail = tail[1:]
	}
	if len(tail) != 0 {
		return -1 // garbage after the dashes
	}
	label := string(rest[:i])
	for k, s := range labels {
		if label == s {
			return k
		}
	}
	return -1
}

func beginLineIndex(line []byte) int { return armorLineIndex(line, beginLabels[:]) }
func endLineIndex(line []byte) int   { return armorLineIndex(line, endLabels[:]) }

const (
	hashRIPEMD160 = 1 << iota
	hashSHA1
	hashMD5
	hashTIGER
	hashSHA224
	hashSHA256
	hashSHA384
	hashSHA512
)

// hashHeaderNames maps Hash: names to the digest bitmask used for the
// synthesized one-pass packets. Matching keeps the loose prefix
// semantics of classic implementations.
var hashHeaderNames = []struct {
	name string
	bit  uint8
}{
	{"RIPEMD160", hashRIPEMD160},
	{"SHA1", hashSHA1},
	{"MD5", hashMD5},
	{"TIGER", hashTIGER},
	{"SHA224", hashSHA224},
	{"SHA256", hashSHA256},
	{"SHA384", hashSHA384},
	{"SHA512", hashSHA512},
}

func hashHeaderBit(token string) uint8 {
	for _, e := range hashHeaderNames {
		if strings.HasPrefix(e.name, token) {
			return e.bit
		}
	}
	return 0
}

// parseHashHeader parses the "Hash: A, B" header of a clearsigned
// message into a digest bitmask, or 0 when the line is not a valid
// hash header. The line must already be stripped of trailing
// whitespace.
func parseHashHeader(line []byte) uint8 {
	if len(line) < 6 || len(line) > 60 {
		return 0 // too short or too long
	}
	if !bytes.HasPrefix(line, []byte("Hash:")) {
		return 0
	}
	var found uint8
	s := line[5:]
	for {
		for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
			s = s[1:]
		}
		if len(s) == 0 {
			break
		}
		j := 1
		for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != ',' {
			j++
		}
		bit := hashHeaderBit(string(s[:j]))
		if bit == 0 {
			return 0
		}
		found |= bit
		s = s[j:]
		for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
			s = s[1:]
		}
		if len(s) > 0 && s[0] != ',' {
			return 0
		}
		if len(s) > 0 {
			s = s[1:]
		}
	}
	return found
}

// onePassHashAlgos lists, in emission order, the digest algorithm
// each bit of the hash header mask synthesizes a one-pass packet for.
var onePassHashAlgos = []struct {
	bit  uint8
	algo uint8
}{
	{hashRIPEMD160, constants.DigestRIPEMD160},
	{hashSHA1, constants.DigestSHA1},
	{hashMD5, constants.DigestMD5},
	{hashTIGER, constants.DigestTIGER},
	{hashSHA224, constants.DigestSHA224},
	{hashSHA256, constants.DigestSHA256},
	{hashSHA384, constants.DigestSHA384},
	{hashSHA512, constants.DigestSHA512},
}

// isArmored guesses from the first byte of the input whether it is
// armored. A byte that cannot start a regular packet means armor.
func isArmored(b byte) bool {
	if b&0x80 == 0 {
		return true // invalid packet: assume it is armored
	}
	var tag packet.Tag
	if b&0x40 != 0 {
		tag = packet.Tag(b & 0x3f)
	} else {
		tag = packet.Tag((b >> 2) & 0x0f)
	}
	switch tag {
	case packet.TagMarker, packet.TagSymKeyEnc, packet.TagPublicKey,
		packet.TagSecretKey, packet.TagPubKeyEnc, packet.TagSignature,
		packet.TagComment, packet.TagOldComment, packet.TagPlaintext,
		packet.TagCompressed, packet.TagEncrypted:
		return false // seems to be a regular packet
	}
	return true
}

// UseArmorFilter peeks at the stream and reports whether an armor
// filter should be pushed onto the pipeline.
func UseArmorFilter(src *pipeline.Stream) bool {
	b, err := src.Peek(1)
	if err != nil || len(b) == 0 {
		return err == nil // cannot check: try armored. EOF: does not matter
	}
	return isArmored(b[0])
}
