package process

import (
	"github.com/ProtonMail/pgpstream/internal"
)

// DEK is a data encryption key: the session key for one encrypted
// data packet together with the cipher it belongs to.
type DEK struct {
	Algo uint8
	Key  []byte
}

// Clear wipes the key material. The DEK must not be used afterwards.
func (d *DEK) Clear() {
	if d == nil {
		return
	}
	internal.ClearMem(d.Key)
	d.Key = nil
}
