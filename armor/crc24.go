package armor

import "sync"

const (
	crcInit = 0xB704CE
	crcPoly = 0x864CFB
)

var (
	tablesOnce sync.Once
	crcTable   [256]uint32
	asctobin   [256]byte
)

const bintoasc = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789+/"

// initTables builds the CRC lookup table and the radix-64 reverse
// table. Called on the first filter or encoder initialization.
func initTables() {
	tablesOnce.Do(func() {
		for i := range crcTable {
			crc := uint32(i) << 16
			for j := 0; j < 8; j++ {
				crc <<= 1
				if crc&0x1000000 != 0 {
					crc ^= crcPoly
				}
			}
			crcTable[i] = crc & 0xffffff
		}
		for i := range asctobin {
			asctobin[i] = 255 // marks invalid characters
		}
		for i := 0; i < len(bintoasc); i++ {
			asctobin[bintoasc[i]] = byte(i)
		}
	})
}

// crc24 updates a running CRC-24 over data.
func crc24(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = (crc<<8)&0xffffff ^ crcTable[byte(crc>>16)^b]
	}
	return crc
}
