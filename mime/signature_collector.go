package mime

import (
	"bytes"
	"io"
	"mime"
	"net/textproto"

	gomime "github.com/ProtonMail/go-mime"
	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/internal"
)

// signatureCollector intercepts the multipart/signed layer of a
// walked message. The signed part is passed along to the wrapped
// acceptor while its raw bytes and the signature part are kept for
// verification.
type signatureCollector struct {
	target gomime.VisitAcceptor

	signed    bool
	signature string
	body      []byte
}

func newSignatureCollector(target gomime.VisitAcceptor) *signatureCollector {
	return &signatureCollector{target: target}
}

func (sc *signatureCollector) Accept(
	part io.Reader, header textproto.MIMEHeader,
	hasPlainSibling, isFirst, isLast bool,
) error {
	parentMediaType, params, _ := mime.ParseMediaType(header.Get("Content-Type"))
	if parentMediaType != "multipart/signed" {
		return sc.target.Accept(part, header, hasPlainSibling, isFirst, isLast)
	}

	newPart, rawBody := gomime.GetRawMimePart(part, "--"+params["boundary"])
	parts, partHeaders, err := gomime.GetMultipartParts(newPart, params)
	if err != nil {
		return errors.Wrap(err, "splitting signed message")
	}

	hasPlainChild := false
	for _, h := range partHeaders {
		mediaType, _, _ := mime.ParseMediaType(h.Get("Content-Type"))
		if mediaType == "text/plain" {
			hasPlainChild = true
		}
	}

	if len(parts) != 2 {
		// not the two part shape a signed layer requires, walk the
		// children as ordinary parts
		if _, err := io.Copy(io.Discard, rawBody); err != nil {
			return errors.Wrap(err, "draining raw part")
		}
		for i, p := range parts {
			if err := sc.target.Accept(p, partHeaders[i], hasPlainChild, true, true); err != nil {
				return err
			}
		}
		return nil
	}

	if err := sc.target.Accept(parts[0], partHeaders[0], hasPlainChild, true, true); err != nil {
		return errors.Wrap(err, "walking signed part")
	}

	sigData, err := io.ReadAll(parts[1])
	if err != nil {
		return errors.Wrap(err, "reading signature part")
	}
	decoded := gomime.DecodeContentEncoding(
		bytes.NewReader(sigData), partHeaders[1].Get("Content-Transfer-Encoding"))
	sigBytes, err := io.ReadAll(decoded)
	if err != nil {
		return errors.Wrap(err, "decoding signature part")
	}
	sigBytes, err = gomime.DecodeCharset(sigBytes, parentMediaType, params)
	if err != nil {
		return errors.Wrap(err, "decoding signature charset")
	}

	raw, err := io.ReadAll(rawBody)
	if err != nil {
		return errors.Wrap(err, "reading raw signed part")
	}
	sc.signed = true
	sc.signature = string(sigBytes)
	// signed bytes are the raw part, trimmed per line, CRLF ended
	sc.body = internal.CanonicalizeBytes(internal.TrimEachLineBytes(raw))
	return nil
}
