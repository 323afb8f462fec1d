package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dmarcwatch/dmarcwatch/internal/mailbox"
)

// report emails use subjects and bodies like
// "Report Domain: example.com; Submitter: google.com; Report-ID: 123"
var reportPatterns = []string{
	"report domain:",
	"report-id:",
	"submitter:",
}

var (
	// receiver "!" policy-domain "!" begin-timestamp "!" end-timestamp
	domainToken = regexp.MustCompile(`[a-z0-9][a-z0-9-]*(\.[a-z0-9-]+)+`)
	dateToken   = regexp.MustCompile(`\d{8,}|\d{4}-\d{2}-\d{2}`)
)

// Signals is the fixed set of report evidence derived from one email. It is
// a pure function of the email, no hidden state and no I/O.
type Signals struct {
	SubjectHasReportPattern bool
	BodyHasReportPattern    bool
	HasReportAttachment     bool
	BodyHasFeedbackXML      bool
	SenderDomainPresent     bool
}

// ExtractSignals derives the Signals for one email. Matching is
// case-insensitive on literal substrings.
//
// An Authentication-Results header saying dmarc=pass means the mail passed a
// DMARC check, not that it is a report. Header contents are deliberately not
// part of any signal.
func ExtractSignals(email *mailbox.Email) Signals {
	subject := strings.ToLower(email.Subject)
	body := strings.ToLower(email.Body)

	s := Signals{
		SubjectHasReportPattern: containsAny(subject, reportPatterns),
		BodyHasReportPattern:    containsAny(body, reportPatterns),
		SenderDomainPresent:     senderDomainPresent(email.Sender),
	}

	// both tags must be present, a mail merely mentioning DMARC in prose
	// will have neither
	s.BodyHasFeedbackXML = strings.Contains(body, "<feedback") && strings.Contains(body, "<record")

	textEvidence := s.SubjectHasReportPattern || s.BodyHasReportPattern || s.BodyHasFeedbackXML
	for _, att := range email.Attachments {
		if attachmentLooksLikeReport(att.Filename, textEvidence) {
			s.HasReportAttachment = true
			break
		}
	}

	return s
}

// attachmentLooksLikeReport checks the declared filename. The extension has
// to match either way; the typical report filename shape (a domain plus a
// timestamp) may be substituted by textual evidence from subject or body
// since some reporters use free-form names. The extension on its own is not
// enough.
func attachmentLooksLikeReport(filename string, textEvidence bool) bool {
	name := strings.ToLower(filename)
	switch filepath.Ext(name) {
	case ".zip", ".gz", ".xml":
	default:
		return false
	}
	if domainToken.MatchString(name) && dateToken.MatchString(name) {
		return true
	}
	return textEvidence
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func senderDomainPresent(sender string) bool {
	idx := strings.LastIndex(sender, "@")
	if idx < 0 || idx == len(sender)-1 {
		return false
	}
	return strings.Contains(sender[idx+1:], ".")
}
