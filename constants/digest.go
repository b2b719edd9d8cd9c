package constants

// Digest algorithm identifiers.
// uint8 to match the wire encoding of the algorithm octet.
const (
	DigestMD5       uint8 = 1
	DigestSHA1      uint8 = 2
	DigestRIPEMD160 uint8 = 3
	DigestTIGER     uint8 = 6
	DigestSHA256    uint8 = 8
	DigestSHA384    uint8 = 9
	DigestSHA512    uint8 = 10
	DigestSHA224    uint8 = 11
)
