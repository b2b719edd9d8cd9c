package constants

// Public key algorithm identifiers.
// uint8 to match the wire encoding of the algorithm octet.
const (
	PubKeyRSA            uint8 = 1
	PubKeyRSAEncryptOnly uint8 = 2
	PubKeyRSASignOnly    uint8 = 3
	PubKeyElGamalEncrypt uint8 = 16
	PubKeyDSA            uint8 = 17
	PubKeyElGamal        uint8 = 20
)
