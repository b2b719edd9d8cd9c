package constants

// Symmetric cipher algorithm identifiers.
// uint8 to match the wire encoding of the algorithm octet.
const (
	CipherIDEA     uint8 = 1
	Cipher3DES     uint8 = 2
	CipherCAST5    uint8 = 3
	CipherBlowfish uint8 = 4
	CipherAES128   uint8 = 7
	CipherAES192   uint8 = 8
	CipherAES256   uint8 = 9
	CipherTwofish  uint8 = 10
)

// DefaultCipher is used for symmetrically encrypted data that carries
// no session key packet announcing the algorithm.
const DefaultCipher = CipherCAST5
