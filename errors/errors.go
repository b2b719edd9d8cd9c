// Package errors defines the error types reported while processing
// OpenPGP messages.
package errors

import (
	"strconv"
)

// InvalidArmorError is returned when ASCII armored input is malformed:
// a corrupt radix64 stream, a CRC mismatch, a broken armor header or a
// missing trailer line.
type InvalidArmorError string

func (e InvalidArmorError) Error() string {
	return "pgpstream: invalid armor: " + string(e)
}

// InvalidPacketError is returned when a packet header cannot be parsed
// or announces an impossible length.
type InvalidPacketError string

func (e InvalidPacketError) Error() string {
	return "pgpstream: invalid packet: " + string(e)
}

// UnexpectedPacketError is returned when a well formed packet is not
// acceptable in the current processing mode. The value is the packet
// tag.
type UnexpectedPacketError uint8

func (e UnexpectedPacketError) Error() string {
	return "pgpstream: unexpected packet (tag " + strconv.Itoa(int(e)) + ")"
}

// PubKeyAlgoError is returned when a packet uses a public key
// algorithm that is not supported. The value is the algorithm
// identifier.
type PubKeyAlgoError uint8

func (e PubKeyAlgoError) Error() string {
	return "pgpstream: unsupported public key algorithm " + strconv.Itoa(int(e))
}

// DigestAlgoError is returned when a signature uses a digest algorithm
// that is not supported. The value is the algorithm identifier.
type DigestAlgoError uint8

func (e DigestAlgoError) Error() string {
	return "pgpstream: unsupported digest algorithm " + strconv.Itoa(int(e))
}

// CipherAlgoError is returned when encrypted data uses a symmetric
// cipher that is not supported. The value is the algorithm identifier.
type CipherAlgoError uint8

func (e CipherAlgoError) Error() string {
	return "pgpstream: unsupported cipher algorithm " + strconv.Itoa(int(e))
}

// SigClassError is returned when a signature carries a class that
// cannot be checked. The value is the signature class octet.
type SigClassError uint8

func (e SigClassError) Error() string {
	return "pgpstream: unsupported signature class 0x" + strconv.FormatUint(uint64(e), 16)
}

type errorString string

func (e errorString) Error() string {
	return "pgpstream: " + string(e)
}

var (
	// ErrLineTooLong is returned when a line of textual input exceeds
	// the maximum length and cannot be processed losslessly.
	ErrLineTooLong error = errorString("line too long")

	// ErrIncompleteLine is returned when the input ends in the middle
	// of a structure that requires more lines, such as an armor header
	// block without its matching data.
	ErrIncompleteLine error = errorString("incomplete line")

	// ErrNoSecretKey is returned when none of the available keys can
	// decrypt a message.
	ErrNoSecretKey error = errorString("secret key not available")

	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature error = errorString("bad signature")

	// ErrNoPubKey is returned when the key needed to check a signature
	// is not available.
	ErrNoPubKey error = errorString("public key not found")

	// ErrOrphanPacket is returned when a packet arrives without the
	// packet it has to be attached to, such as a subkey without a
	// preceding key.
	ErrOrphanPacket error = errorString("orphaned packet")

	// ErrCreateFile is returned when the plaintext output could not be
	// created.
	ErrCreateFile error = errorString("can't create plaintext output")
)
