// Package dkim reports on the DKIM signature of a raw message. The
// cryptographic check is pluggable; this package owns the verdict record
// and the DKIM-Signature tag-value parsing that fills it.
package dkim

import (
	"fmt"
	"strings"
)

// VerifyFunc performs the cryptographic verification of the first
// DKIM-Signature on a raw message.
type VerifyFunc func(raw []byte) (bool, error)

// Verdict is the outcome of checking one message.
type Verdict struct {
	Verified  bool
	Domain    string
	Selector  string
	Algorithm string
	Signature string
	Message   string
}

// Verifier wraps a VerifyFunc. A nil fn yields unverified verdicts that
// still carry the signature metadata, so callers can display who claims
// to have signed a message without doing any crypto.
type Verifier struct {
	fn VerifyFunc
}

func NewVerifier(fn VerifyFunc) *Verifier {
	return &Verifier{fn: fn}
}

// Verify checks raw against its DKIM-Signature header. signatureHeader is
// the header value as found on the message; pass the empty string if the
// message carries none.
func (v *Verifier) Verify(raw []byte, signatureHeader string) Verdict {
	if strings.TrimSpace(signatureHeader) == "" {
		return Verdict{Message: "no dkim signature found in email"}
	}

	tags := ParseTagValue(signatureHeader)
	verdict := Verdict{
		Domain:    tagOrUnknown(tags, "d"),
		Selector:  tagOrUnknown(tags, "s"),
		Algorithm: tagOrUnknown(tags, "a"),
		Signature: truncateSignature(tags["b"]),
	}

	if v.fn == nil {
		verdict.Message = "dkim signature present, verification skipped"
		return verdict
	}

	ok, err := v.fn(raw)
	if err != nil {
		verdict.Message = fmt.Sprintf("dkim verification error: %v", err)
		return verdict
	}
	if !ok {
		verdict.Message = "dkim signature verification failed"
		return verdict
	}

	verdict.Verified = true
	verdict.Message = "dkim signature verified successfully"
	return verdict
}

// ParseTagValue splits a DKIM-Signature value into its tag=value pairs.
// Folding whitespace inside values is removed, as the signature is
// transmitted folded across header lines. Malformed fragments without an
// "=" are ignored.
func ParseTagValue(header string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tags[name] = stripFolding(value)
	}
	return tags
}

func stripFolding(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r', '\n':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tagOrUnknown(tags map[string]string, name string) string {
	if v, ok := tags[name]; ok && v != "" {
		return v
	}
	return "unknown"
}

// truncateSignature shortens the b= value for display.
func truncateSignature(sig string) string {
	const max = 50
	if len(sig) > max {
		return sig[:max] + "..."
	}
	return sig
}
