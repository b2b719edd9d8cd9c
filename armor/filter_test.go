package armor

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProtonMail/pgpstream/constants"
	pgpErrors "github.com/ProtonMail/pgpstream/errors"
	"github.com/ProtonMail/pgpstream/packet"
	"github.com/ProtonMail/pgpstream/pipeline"
)

type statusEvent struct {
	code constants.Status
	args string
}

func statusRecorder(events *[]statusEvent) func(constants.Status, string) {
	return func(code constants.Status, args string) {
		*events = append(*events, statusEvent{code, args})
	}
}

func runArmorFilter(t *testing.T, input string, opts FilterOptions) ([]byte, *Filter, error) {
	t.Helper()
	f := NewFilter(opts)
	p := pipeline.New(pipeline.NewStream(strings.NewReader(input)))
	require.NoError(t, p.Push(f))
	out, err := io.ReadAll(p.Stream())
	return out, f, err
}

func mustArmor(t *testing.T, payload []byte, block Block) string {
	t.Helper()
	armored, err := Armor(payload, block)
	if err != nil {
		t.Fatal("Expected no error while armoring, got:", err)
	}
	return armored
}

// fakeSig is a marker packet standing in for the signature packets of
// a clearsigned message; the filter does not look inside the armor.
var fakeSig = []byte{0xca, 3, 'P', 'G', 'P'}

func clearsignDoc(t *testing.T, headers []string, text string, sig []byte) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("-----BEGIN PGP SIGNED MESSAGE-----\n")
	for _, h := range headers {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(text)
	b.WriteString(mustArmor(t, sig, BlockSignature))
	return b.String()
}

func fakedOnePass(algo, last byte) []byte {
	return []byte{0x90, 13, 3, 0x01, algo, 0, 0, 0, 0, 0, 0, 0, 0, 0, last}
}

var fakedLiteralHeader = []byte{0xaf, 0, 6, 't', 0, 0, 0, 0, 0}

func textChunk(s string, crlf bool) []byte {
	if crlf {
		s += "\r\n"
	}
	return append([]byte{byte(len(s) >> 8), byte(len(s))}, s...)
}

func TestFilterRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 2, 3, 4, 5, 57, 200, 4096} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i*7 + size)
		}
		out, _, err := runArmorFilter(t, mustArmor(t, payload, BlockMessage), FilterOptions{})
		if err != nil {
			t.Fatal("Expected no error while decoding, got:", err)
		}
		assert.Exactly(t, payload, out, "size %d", size)
	}
}

func TestFilterRoundTripCRLF(t *testing.T) {
	payload := []byte("payload with\nline breaks\x00and binary\xff")
	armored := strings.ReplaceAll(mustArmor(t, payload, BlockMessage), "\n", "\r\n")

	out, _, err := runArmorFilter(t, armored, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, payload, out)
}

func TestFilterBlankFirstLine(t *testing.T) {
	payload := []byte("after blank lines")
	input := "\n\r\n" + mustArmor(t, payload, BlockMessage)

	out, _, err := runArmorFilter(t, input, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, payload, out)
}

func TestFilterSkipsGarbageBeforeBegin(t *testing.T) {
	payload := []byte("the payload")
	input := "Return-Path: <someone@example.com>\n" +
		"Subject: an armored message\n" +
		"\n" +
		"random text before the armor\n" +
		mustArmor(t, payload, BlockMessage)

	out, _, err := runArmorFilter(t, input, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, payload, out)
}

func TestFilterSkipsInvalidBodyCharacters(t *testing.T) {
	payload := []byte("tolerate stray characters")
	armored := mustArmor(t, payload, BlockMessage)
	i := strings.Index(armored, "\n\n") + 2
	armored = armored[:i+3] + "*?" + armored[i+3:]

	out, _, err := runArmorFilter(t, armored, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, payload, out)
}

func TestFilterConcatenatedRegions(t *testing.T) {
	first := []byte("first region")
	second := []byte("second region")
	input := mustArmor(t, first, BlockMessage) + mustArmor(t, second, BlockMessage)

	out, _, err := runArmorFilter(t, input, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, append(append([]byte{}, first...), second...), out)
}

func TestFilterTrailingBinaryAfterRegion(t *testing.T) {
	payload := []byte("armored part")
	binary := "\x85\x02\x03raw bytes after the armor"
	input := mustArmor(t, payload, BlockMessage) + binary

	out, _, err := runArmorFilter(t, input, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, append(append([]byte{}, payload...), binary...), out)
}

func TestFilterBypassesBinaryInput(t *testing.T) {
	input := "\x85\x0c\x04binary\npacket\ndata-----BEGIN PGP MESSAGE-----\nnot armor"
	var events []statusEvent

	out, f, err := runArmorFilter(t, input, FilterOptions{Status: statusRecorder(&events)})
	if err != nil {
		t.Fatal("Expected no error while reading, got:", err)
	}
	assert.Exactly(t, []byte(input), out)

	require.NoError(t, f.Close())
	assert.Empty(t, events, "bypassed input must not be reported")
}

func TestFilterReportsNoValidData(t *testing.T) {
	var events []statusEvent

	out, f, err := runArmorFilter(t, "just some text\nwithout any armor\n",
		FilterOptions{Status: statusRecorder(&events)})
	if err != nil {
		t.Fatal("Expected no error while reading, got:", err)
	}
	assert.Empty(t, out)

	require.NoError(t, f.Close())
	require.Len(t, events, 1)
	assert.Equal(t, constants.StatusNoData, events[0].code)
	assert.Equal(t, "1", events[0].args)
}

func TestFilterOnlyKeyblocks(t *testing.T) {
	keyish := []byte("pretend key material")
	out, _, err := runArmorFilter(t, mustArmor(t, keyish, BlockPublicKey),
		FilterOptions{OnlyKeyblocks: true})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	assert.Exactly(t, keyish, out)

	// a message armor is not a key block and gets skipped entirely
	out, f, err := runArmorFilter(t, mustArmor(t, []byte("message"), BlockMessage),
		FilterOptions{OnlyKeyblocks: true})
	if err != nil {
		t.Fatal("Expected no error while reading, got:", err)
	}
	assert.Empty(t, out)
	require.NoError(t, f.Close())
}

func TestFilterCRCMismatch(t *testing.T) {
	armored := mustArmor(t, []byte("checksummed payload"), BlockMessage)
	i := strings.LastIndex(armored, "\n=") + 2
	flip := byte('A')
	if armored[i] == 'A' {
		flip = 'B'
	}
	armored = armored[:i] + string(flip) + armored[i+1:]

	var events []statusEvent
	_, _, err := runArmorFilter(t, armored, FilterOptions{Status: statusRecorder(&events)})

	var invalid pgpErrors.InvalidArmorError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "CRC error")
	require.Len(t, events, 1)
	assert.Equal(t, constants.StatusBadArmor, events[0].code)
}

func TestFilterMalformedCRC(t *testing.T) {
	armored := mustArmor(t, []byte("payload"), BlockMessage)
	i := strings.LastIndex(armored, "\n=") + 2
	armored = armored[:i] + "*" + armored[i+1:]

	_, _, err := runArmorFilter(t, armored, FilterOptions{})
	var invalid pgpErrors.InvalidArmorError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "malformed CRC")
}

func TestFilterTruncatedBeforeCRC(t *testing.T) {
	armored := mustArmor(t, []byte("payload that will be cut"), BlockMessage)
	armored = armored[:strings.LastIndex(armored, "\n=")+1]

	_, _, err := runArmorFilter(t, armored, FilterOptions{})
	var invalid pgpErrors.InvalidArmorError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "premature eof (no CRC)")
}

func TestFilterWrongTrailer(t *testing.T) {
	armored := mustArmor(t, []byte("payload"), BlockMessage)
	armored = strings.Replace(armored, "END PGP MESSAGE", "END PGP SIGNATURE", 1)

	_, _, err := runArmorFilter(t, armored, FilterOptions{})
	var invalid pgpErrors.InvalidArmorError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "trailer line")
}

func TestFilterMissingTrailer(t *testing.T) {
	armored := mustArmor(t, []byte("payload"), BlockMessage)
	armored = armored[:strings.Index(armored, "-----END")]

	_, _, err := runArmorFilter(t, armored, FilterOptions{})
	var invalid pgpErrors.InvalidArmorError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "premature eof (in trailer)")
}

func TestFilterInvalidArmorHeaders(t *testing.T) {
	for _, header := range []string{
		"a line without a colon",
		"Comment:",
		"   \t ",
	} {
		armored := mustArmor(t, []byte("payload"), BlockMessage)
		armored = strings.Replace(armored, "\nComment:", "\n"+header+"\nComment:", 1)

		var events []statusEvent
		_, _, err := runArmorFilter(t, armored, FilterOptions{Status: statusRecorder(&events)})

		var invalid pgpErrors.InvalidArmorError
		require.ErrorAs(t, err, &invalid, "header %q", header)
		assert.Contains(t, err.Error(), "invalid armor header")
		require.Len(t, events, 1)
		assert.Equal(t, constants.StatusBadArmor, events[0].code)
	}
}

func TestClearsignFakesOnePassAndLiteral(t *testing.T) {
	doc := clearsignDoc(t, []string{"Hash: SHA256"}, "hello world\nline two\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA256, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("hello world", true)...)
	want = append(want, textChunk("line two", false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignDefaultsToMD5(t *testing.T) {
	doc := clearsignDoc(t, nil, "x\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	var want []byte
	want = append(want, fakedOnePass(constants.DigestMD5, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("x", false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignMultipleHashes(t *testing.T) {
	doc := clearsignDoc(t, []string{"Hash: SHA1, RIPEMD160"}, "multi\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	// one one-pass packet per digest, only the last one flagged final
	var want []byte
	want = append(want, fakedOnePass(constants.DigestRIPEMD160, 0)...)
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("multi", false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignEmptyText(t *testing.T) {
	doc := clearsignDoc(t, []string{"Hash: SHA1"}, "", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, 0, 0) // zero length literal
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignDashEscaping(t *testing.T) {
	text := "- -escaped\n" +
		"- From the mailer\n" +
		"- x\n" +
		"--double\n" +
		"-\n" +
		"normal\n"
	doc := clearsignDoc(t, []string{"Hash: SHA1"}, text, fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("-escaped", true)...)
	want = append(want, textChunk("From the mailer", true)...)
	want = append(want, textChunk("x", true)...)
	want = append(want, textChunk("--double", true)...)
	want = append(want, textChunk("-", true)...)
	want = append(want, textChunk("normal", false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignNotDashEscaped(t *testing.T) {
	doc := clearsignDoc(t, []string{"NotDashEscaped: by the signer"},
		"- kept as is\n-- also kept\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	var want []byte
	want = append(want, fakedOnePass(constants.DigestMD5, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("- kept as is", true)...)
	want = append(want, textChunk("-- also kept", false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignTrimsTrailingWhitespace(t *testing.T) {
	doc := clearsignDoc(t, []string{"Hash: SHA1"}, "padded   \t\nclean\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("padded", true)...)
	want = append(want, textChunk("clean", false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)
}

func TestClearsignRejectsUnknownHeaders(t *testing.T) {
	for _, header := range []string{
		"Charset: utf-8",
		"Hash: SHA1 SHA256", // missing comma
	} {
		doc := clearsignDoc(t, []string{header}, "text\n", fakeSig)

		var events []statusEvent
		_, _, err := runArmorFilter(t, doc, FilterOptions{Status: statusRecorder(&events)})

		var invalid pgpErrors.InvalidArmorError
		require.ErrorAs(t, err, &invalid, "header %q", header)
		assert.Contains(t, err.Error(), "invalid clearsig header")
		require.Len(t, events, 1)
		assert.Equal(t, constants.StatusBadArmor, events[0].code)
	}
}

func TestClearsignTextEndsAtEOF(t *testing.T) {
	doc := "-----BEGIN PGP SIGNED MESSAGE-----\n" +
		"Hash: SHA1\n" +
		"\n" +
		"line a\n" +
		"line b"

	out, f, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while reading, got:", err)
	}

	// the literal packet stays open, later layers notice the missing
	// signature
	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("line a", true)...)
	want = append(want, textChunk("line b", true)...)
	assert.Exactly(t, want, out)

	var events []statusEvent
	f.opts.Status = statusRecorder(&events)
	require.NoError(t, f.Close())
	require.Len(t, events, 1)
	assert.Equal(t, constants.StatusNoData, events[0].code)
}

func TestClearsignEOFInSignatureHeaders(t *testing.T) {
	doc := "-----BEGIN PGP SIGNED MESSAGE-----\n" +
		"Hash: SHA1\n" +
		"\n" +
		"the text\n" +
		"-----BEGIN PGP SIGNATURE-----\n"

	var events []statusEvent
	out, _, err := runArmorFilter(t, doc, FilterOptions{Status: statusRecorder(&events)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, pgpErrors.ErrIncompleteLine))
	assert.Empty(t, events, "an incomplete signature block is not bad armor")

	// the clear text was already delivered when the input ran out
	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk("the text", false)...)
	want = append(want, 0, 0)
	assert.Exactly(t, want, out)
}

func TestClearsignRejectsOverlongLines(t *testing.T) {
	long := strings.Repeat("a", pipeline.MaxLineLen+5000)
	doc := clearsignDoc(t, []string{"Hash: SHA1"}, "short\n"+long+"\n", fakeSig)

	var events []statusEvent
	_, _, err := runArmorFilter(t, doc, FilterOptions{Status: statusRecorder(&events)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, pgpErrors.ErrLineTooLong))
	assert.Empty(t, events, "an overlong line is a framing error, not bad armor")
}

func TestClearsignRejectsNested(t *testing.T) {
	doc := "-----BEGIN PGP SIGNED MESSAGE-----\n" +
		"Hash: SHA1\n" +
		"\n" +
		"outer text\n" +
		"-----BEGIN PGP SIGNED MESSAGE-----\n" +
		"Hash: SHA1\n" +
		"\n" +
		"inner text\n"

	var events []statusEvent
	f := NewFilter(FilterOptions{Status: statusRecorder(&events)})
	p := pipeline.New(pipeline.NewStream(strings.NewReader(doc)))
	require.NoError(t, p.Push(f))

	_, err := io.ReadAll(p.Stream())
	var invalid pgpErrors.InvalidArmorError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "nested clear text signatures")
	require.Len(t, events, 1)
	assert.Equal(t, constants.StatusBadArmor, events[0].code)

	// the failure sticks, the filter does not resume behind it
	_, err2 := p.Stream().Read(make([]byte, 16))
	assert.Equal(t, err, err2)
	assert.Len(t, events, 1)
}

func TestClearsignLineLengthBoundary(t *testing.T) {
	// a line of MaxLineLen bytes including the newline passes, one
	// more byte does not
	fits := strings.Repeat("b", pipeline.MaxLineLen-1)
	doc := clearsignDoc(t, []string{"Hash: SHA1"}, fits+"\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}
	var want []byte
	want = append(want, fakedOnePass(constants.DigestSHA1, 1)...)
	want = append(want, fakedLiteralHeader...)
	want = append(want, textChunk(fits, false)...)
	want = append(want, 0, 0)
	want = append(want, fakeSig...)
	assert.Exactly(t, want, out)

	doc = clearsignDoc(t, []string{"Hash: SHA1"}, fits+"b\n", fakeSig)
	_, _, err = runArmorFilter(t, doc, FilterOptions{})
	assert.True(t, errors.Is(err, pgpErrors.ErrLineTooLong))
}

func TestClearsignThroughPacketParser(t *testing.T) {
	doc := clearsignDoc(t, []string{"Hash: SHA1, RIPEMD160"}, "signed text\n", fakeSig)

	out, _, err := runArmorFilter(t, doc, FilterOptions{})
	if err != nil {
		t.Fatal("Expected no error while decoding, got:", err)
	}

	parser := packet.NewParser(pipeline.NewStream(bytes.NewReader(out)))

	pkt, err := parser.Next()
	require.NoError(t, err)
	ops, ok := pkt.(*packet.OnePassSig)
	require.True(t, ok)
	assert.Equal(t, constants.DigestRIPEMD160, ops.DigestAlgo)
	assert.False(t, ops.Last)

	pkt, err = parser.Next()
	require.NoError(t, err)
	ops, ok = pkt.(*packet.OnePassSig)
	require.True(t, ok)
	assert.Equal(t, constants.DigestSHA1, ops.DigestAlgo)
	assert.True(t, ops.Last)

	pkt, err = parser.Next()
	require.NoError(t, err)
	lit, ok := pkt.(*packet.Plaintext)
	require.True(t, ok)
	assert.Equal(t, byte('t'), lit.Mode)
	assert.Empty(t, lit.Name)

	body, err := io.ReadAll(lit.Body)
	require.NoError(t, err)
	assert.Equal(t, "signed text", string(body))

	pkt, err = parser.Next()
	require.NoError(t, err)
	_, ok = pkt.(*packet.Marker)
	assert.True(t, ok, "the armored signature bytes follow the literal")
}
