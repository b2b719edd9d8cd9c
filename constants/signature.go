package constants

// OpenPGP signature types.
// uint8 to match the wire encoding of the signature class octet.
const (
	SigTypeBinary                  uint8 = 0x00
	SigTypeText                    uint8 = 0x01
	SigTypeGenericCert             uint8 = 0x10
	SigTypePersonaCert             uint8 = 0x11
	SigTypeCasualCert              uint8 = 0x12
	SigTypePositiveCert            uint8 = 0x13
	SigTypeSubkeyBinding           uint8 = 0x18
	SigTypePrimaryKeyBinding       uint8 = 0x19
	SigTypeDirectSignature         uint8 = 0x1F
	SigTypeKeyRevocation           uint8 = 0x20
	SigTypeSubkeyRevocation        uint8 = 0x28
	SigTypeCertificationRevocation uint8 = 0x30
)
