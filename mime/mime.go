// Package mime verifies PGP/MIME signed mail. The message is walked
// part by part, collecting the body and the attachments; the detached
// signature of a multipart/signed layer is checked against the raw
// signed part.
package mime

import (
	"bytes"
	"io"
	"log/slog"
	"net/mail"
	"net/textproto"
	"strings"

	gomime "github.com/ProtonMail/go-mime"
	"github.com/pkg/errors"

	"github.com/ProtonMail/pgpstream/armor"
	"github.com/ProtonMail/pgpstream/constants"
	"github.com/ProtonMail/pgpstream/digest"
	"github.com/ProtonMail/pgpstream/internal"
	"github.com/ProtonMail/pgpstream/pipeline"
	"github.com/ProtonMail/pgpstream/process"
)

// Verification is the outcome of checking the mail signature, ordered
// from best to worst.
type Verification int

const (
	// SignatureGood means the signature verified against a known key.
	SignatureGood Verification = iota
	// SignatureNotSigned means the mail carries no signature.
	SignatureNotSigned
	// SignatureNoKey means the signing key is not available.
	SignatureNoKey
	// SignatureBad means a signature is there but does not verify.
	SignatureBad
)

func (v Verification) String() string {
	switch v {
	case SignatureGood:
		return "good"
	case SignatureNotSigned:
		return "not signed"
	case SignatureNoKey:
		return "no public key"
	case SignatureBad:
		return "bad"
	default:
		return "unknown"
	}
}

// Attachment is a mail part collected during the walk, in its
// transfer decoded form.
type Attachment struct {
	Headers string
	Data    []byte
}

// Mail is the result of walking a signed mail message.
type Mail struct {
	Body        string
	BodyType    string
	Attachments []Attachment

	// Signature holds the armored signature of the multipart/signed
	// layer, empty when the mail is not signed.
	Signature    string
	Verification Verification
}

// Config carries the collaborators for mail verification. Status and
// Logger may be nil. A nil Verifier reports every signature as made
// by an unknown key.
type Config struct {
	// Verifier checks the detached signature.
	Verifier process.SignatureVerifier
	// LookupUserID resolves a key ID to a printable user ID for
	// status lines.
	LookupUserID func(keyID uint64) string
	// Status receives the machine readable events of the signature
	// check.
	Status func(constants.Status, string)
	// Logger receives diagnostics. A nil logger is silent.
	Logger *slog.Logger
}

// VerifySignedMail walks a MIME mail message and verifies the
// signature of its multipart/signed layer, if any. The returned Mail
// has the body and the attachments filled in either way; Verification
// tells how the signature check went.
func VerifySignedMail(message io.Reader, cfg Config) (*Mail, error) {
	mm, err := mail.ReadMessage(message)
	if err != nil {
		return nil, errors.Wrap(err, "reading mail message")
	}
	body, err := io.ReadAll(mm.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading mail body")
	}

	printer := gomime.NewMIMEPrinter()
	bodyCollector := gomime.NewBodyCollector(printer)
	attCollector := gomime.NewAttachmentsCollector(bodyCollector)
	visitor := gomime.NewMimeVisitor(attCollector)
	sigCollector := newSignatureCollector(visitor)

	err = gomime.VisitAll(bytes.NewReader(body), textproto.MIMEHeader(mm.Header), sigCollector)
	if err != nil {
		return nil, errors.Wrap(err, "walking mail parts")
	}

	bodyText, bodyType := bodyCollector.GetBody()
	m := &Mail{
		Body:     internal.SanitizeString(bodyText),
		BodyType: bodyType,
	}
	atts := attCollector.GetAttachments()
	headers := attCollector.GetAttHeaders()
	for i := range atts {
		m.Attachments = append(m.Attachments, Attachment{
			Headers: headers[i],
			Data:    []byte(atts[i]),
		})
	}

	if !sigCollector.signed {
		m.Verification = SignatureNotSigned
		return m, nil
	}
	m.Signature = sigCollector.signature
	m.Verification = cfg.checkSignature([]byte(sigCollector.signature), sigCollector.body)
	return m, nil
}

// checkSignature runs the detached signature through the signature
// pipeline against the raw signed part and condenses the status
// events into one verdict. The worst event wins.
func (cfg *Config) checkSignature(signature, signedPart []byte) Verification {
	worst := SignatureGood
	checked := false
	status := func(code constants.Status, args string) {
		if cfg.Status != nil {
			cfg.Status(code, args)
		}
		var v Verification
		switch code {
		case constants.StatusGoodSig:
			v = SignatureGood
		case constants.StatusBadSig:
			v = SignatureBad
		case constants.StatusErrSig:
			// the trailing field carries the reason; 9 means the
			// public key is missing
			v = SignatureBad
			if args[strings.LastIndexByte(args, ' ')+1:] == "9" {
				v = SignatureNoKey
			}
		default:
			return
		}
		checked = true
		if v > worst {
			worst = v
		}
	}

	pl := pipeline.New(pipeline.NewNamedStream(bytes.NewReader(signature), "signature"))
	if err := pl.Push(armor.NewFilter(armor.FilterOptions{Status: status, Logger: cfg.Logger})); err != nil {
		cfg.warn("signature part not readable", "err", err)
		return SignatureBad
	}

	p := process.New(process.Config{
		Verifier:     cfg.Verifier,
		LookupUserID: cfg.LookupUserID,
		Status:       status,
		Logger:       cfg.Logger,
		Detached:     partSource{data: signedPart},
	})
	err := p.SignaturePackets(pl.Stream(), nil, "")
	if cerr := pl.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cfg.warn("signature check failed", "err", err)
		return SignatureBad
	}
	if !checked {
		cfg.warn("signature part carries no checkable signature")
		return SignatureBad
	}
	return worst
}

func (cfg *Config) warn(msg string, args ...any) {
	if cfg.Logger != nil {
		cfg.Logger.Warn(msg, args...)
	}
}

// partSource feeds the raw signed part to the digest as the detached
// data. Mail signatures cover the canonical CRLF form, which is what
// the part bytes already are, so text mode needs no extra conversion.
type partSource struct {
	data []byte
}

func (s partSource) HashDatafiles(md *digest.Context, names []string, sigName string, textmode bool) error {
	_, err := md.Write(s.data)
	return err
}

func (s partSource) AskForDetachedData(md *digest.Context, name string) error {
	_, err := md.Write(s.data)
	return err
}
