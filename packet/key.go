package packet

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/constants"
)

// numPublicMPIs returns how many MPIs the public part of a key with
// the given algorithm carries, or 0 for unknown algorithms.
func numPublicMPIs(algo uint8) int {
	switch algo {
	case constants.PubKeyRSA, constants.PubKeyRSAEncryptOnly, constants.PubKeyRSASignOnly:
		return 2
	case constants.PubKeyElGamalEncrypt, constants.PubKeyElGamal:
		return 3
	case constants.PubKeyDSA:
		return 4
	default:
		return 0
	}
}

// walkMPIs reads count MPIs starting at off and returns their raw
// values without the bit count headers, plus the offset just past the
// last one.
func walkMPIs(body []byte, off, count int) ([][]byte, int, error) {
	mpis := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if off+2 > len(body) {
			return nil, 0, errors.New("truncated MPI")
		}
		bits := int(binary.BigEndian.Uint16(body[off : off+2]))
		nbytes := (bits + 7) / 8
		off += 2
		if off+nbytes > len(body) {
			return nil, 0, errors.New("truncated MPI")
		}
		mpis = append(mpis, body[off:off+nbytes])
		off += nbytes
	}
	return mpis, off, nil
}

func parseKey(tag Tag, body []byte) (Packet, error) {
	if len(body) < 6 {
		return nil, errors.New("key packet too short")
	}
	key := &Key{tag: tag, Version: int(body[0]), Raw: body}

	var mpiOff int
	switch key.Version {
	case 2, 3:
		if len(body) < 8 {
			return nil, errors.New("key packet too short")
		}
		key.Timestamp = binary.BigEndian.Uint32(body[1:5])
		// 2 octets of validity period, then the algorithm
		key.Algo = body[7]
		mpiOff = 8
	case 4:
		key.Timestamp = binary.BigEndian.Uint32(body[1:5])
		key.Algo = body[5]
		mpiOff = 6
	default:
		return nil, errors.Errorf("unsupported key version %d", key.Version)
	}

	count := numPublicMPIs(key.Algo)
	mpis, pubEnd, err := walkMPIs(body, mpiOff, count)
	if err != nil && key.Secret() {
		return nil, err
	}
	if len(mpis) > 0 {
		key.NBits = int(binary.BigEndian.Uint16(body[mpiOff : mpiOff+2]))
	}

	switch key.Version {
	case 2, 3:
		// The key ID of a v3 RSA key is the low 64 bits of the
		// modulus; the fingerprint hashes modulus and exponent.
		if len(mpis) == 2 {
			n, e := mpis[0], mpis[1]
			if len(n) >= 8 {
				key.KeyID = binary.BigEndian.Uint64(n[len(n)-8:])
			}
			md := md5.New()
			md.Write(n)
			md.Write(e)
			key.Fingerprint = md.Sum(nil)
		}
	case 4:
		pub := body
		if key.Secret() {
			pub = body[:pubEnd]
		}
		h := sha1.New()
		h.Write([]byte{0x99, byte(len(pub) >> 8), byte(len(pub))})
		h.Write(pub)
		key.Fingerprint = h.Sum(nil)
		key.KeyID = binary.BigEndian.Uint64(key.Fingerprint[len(key.Fingerprint)-8:])
	}
	return key, nil
}
