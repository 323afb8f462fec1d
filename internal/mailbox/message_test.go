package mailbox

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
)

func gzipBytes(t *testing.T, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		t.Fatalf("could not write gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("could not close gzip: %v", err)
	}
	return buf.Bytes()
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParse(t *testing.T) {
	t.Parallel()

	payload := gzipBytes(t, []byte("<feedback></feedback>"))
	raw := crlf(fmt.Sprintf(`From: noreply@mailer.example.net
To: dmarc@example.com
Subject: Report Domain: example.com Submitter: mailer.example.net Report-ID: 42
Date: Thu, 27 Jun 2024 10:00:00 +0000
Authentication-Results: mx.example.com; dmarc=pass
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

This is an aggregate report.
--b1
Content-Type: application/gzip; name="report.xml.gz"
Content-Disposition: attachment; filename="report.xml.gz"
Content-Transfer-Encoding: base64

%s
--b1--
`, base64.StdEncoding.EncodeToString(payload)))

	email, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("could not parse: %v", err)
	}

	if email.Sender != "noreply@mailer.example.net" {
		t.Errorf("wrong sender: %q", email.Sender)
	}
	if !strings.HasPrefix(email.Subject, "Report Domain: example.com") {
		t.Errorf("wrong subject: %q", email.Subject)
	}
	if email.Date.IsZero() {
		t.Error("date not parsed")
	}
	if got := email.Header("Authentication-Results"); !strings.Contains(got, "dmarc=pass") {
		t.Errorf("header lookup failed: %q", got)
	}
	if !strings.Contains(email.Body, "aggregate report") {
		t.Errorf("body missing: %q", email.Body)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(email.Attachments))
	}
	att := email.Attachments[0]
	if att.Filename != "report.xml.gz" {
		t.Errorf("wrong filename: %q", att.Filename)
	}
	if !bytes.Equal(att.Content, payload) {
		t.Error("attachment content does not match the original payload")
	}
	if att.Size != int64(len(payload)) {
		t.Errorf("wrong size: %d", att.Size)
	}
}

func TestParseInlineArchive(t *testing.T) {
	t.Parallel()

	payload := gzipBytes(t, []byte("<feedback></feedback>"))
	raw := crlf(fmt.Sprintf(`From: noreply@mailer.example.net
Subject: report
MIME-Version: 1.0
Content-Type: application/gzip; name="inline.xml.gz"
Content-Disposition: inline; filename="inline.xml.gz"
Content-Transfer-Encoding: base64

%s
`, base64.StdEncoding.EncodeToString(payload)))

	email, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("could not parse: %v", err)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("inline archive not detected, got %d attachments", len(email.Attachments))
	}
	if email.Attachments[0].Filename != "inline.xml.gz" {
		t.Errorf("wrong filename: %q", email.Attachments[0].Filename)
	}
	if email.Body != "" {
		t.Errorf("archive bytes leaked into the body: %q", email.Body)
	}
}

func TestParsePlainText(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: someone@example.com
Subject: hello
Content-Type: text/plain; charset=utf-8

just a normal email
`)

	email, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("could not parse: %v", err)
	}
	if len(email.Attachments) != 0 {
		t.Errorf("unexpected attachments: %d", len(email.Attachments))
	}
	if !strings.Contains(email.Body, "just a normal email") {
		t.Errorf("body missing: %q", email.Body)
	}
	if email.Header("Missing-Header") != "" {
		t.Error("lookup of a missing header must return the empty string")
	}
}
