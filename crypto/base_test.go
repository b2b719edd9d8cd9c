package crypto

import (
	"bytes"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	openpgpPacket "github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/require"

	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/packet"
	"github.com/ProtonMail/pgpstream/pipeline"
)

// sigTimestamp keeps signature creation times in tests predictable.
const sigTimestamp = 1136073600

func testTime() time.Time {
	return time.Unix(sigTimestamp, 0)
}

// newTestEntity generates a small RSA key so the listing code sees an
// algorithm it knows.
func newTestEntity(t *testing.T, name, email string) *openpgp.Entity {
	t.Helper()
	cfg := &openpgpPacket.Config{
		Algorithm: openpgpPacket.PubKeyAlgoRSA,
		RSABits:   1024,
		Time:      testTime,
	}
	ent, err := openpgp.NewEntity(name, "", email, cfg)
	require.NoError(t, err)
	return ent
}

func serializePublic(t *testing.T, ents ...*openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range ents {
		require.NoError(t, e.Serialize(&buf))
	}
	return buf.Bytes()
}

func serializePrivate(t *testing.T, ents ...*openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range ents {
		require.NoError(t, e.SerializePrivate(&buf, nil))
	}
	return buf.Bytes()
}

func packetStream(chunks ...[]byte) *pipeline.Stream {
	return pipeline.NewStream(bytes.NewReader(bytes.Join(chunks, nil)))
}

type statusEvent struct {
	code constants.Status
	args string
}

func statusRecorder(events *[]statusEvent) func(constants.Status, string) {
	return func(code constants.Status, args string) {
		*events = append(*events, statusEvent{code: code, args: args})
	}
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(b []byte, v uint64) []byte {
	return append(appendUint32(b, uint32(v>>32)), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func literalPacket(mode byte, name, data string) []byte {
	body := []byte{mode, byte(len(name))}
	body = append(body, name...)
	body = appendUint32(body, 0)
	body = append(body, data...)
	return packet.FrameBytes(packet.TagPlaintext, body)
}
