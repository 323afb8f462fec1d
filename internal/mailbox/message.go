package mailbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/helper"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
)

// Header is a single raw mail header. Order is preserved and duplicate
// names are allowed.
type Header struct {
	Name  string
	Value string
}

// Attachment is one decoded MIME attachment.
type Attachment struct {
	// Filename as declared in the message, already MIME-decoded. May be
	// empty if the sender did not declare one.
	Filename string
	Content  []byte
	// Size of the decoded content. Used together with the filename for
	// duplicate detection, we never hash attachment bytes.
	Size int64
}

// Email is one fetched message. Immutable once built, owned by the caller
// for the duration of a classification and extraction pass.
type Email struct {
	// ID is the mailbox assigned identifier (IMAP UID), opaque to the core.
	ID          string
	Sender      string
	Subject     string
	Headers     []Header
	Body        string
	Attachments []Attachment
	// Date from the Date header. Zero if the header is missing or
	// unparsable, callers fall back to the processing date.
	Date time.Time
	// Raw holds the undecoded message for the DKIM verifier.
	Raw []byte
}

// Header returns the first value of the named header, or "".
func (e *Email) Header(name string) string {
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// FromIMAP converts a fetched IMAP message into an Email. The whole body
// section must have been requested on fetch.
func FromIMAP(msg *goimap.Message) (*Email, error) {
	r := msg.GetBody(&goimap.BodySectionName{})
	if r == nil {
		return nil, fmt.Errorf("server didn't return message body")
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read message body: %w", err)
	}

	email, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	email.ID = fmt.Sprintf("%d", msg.Uid)
	return email, nil
}

// Parse builds an Email from a raw RFC 5322 message.
func Parse(raw []byte) (*Email, error) {
	m, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("could not create reader: %w", err)
	}
	defer m.Close()

	email := &Email{Raw: raw}

	fields := m.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			// keep the undecodable header raw rather than dropping it
			value = fields.Value()
		}
		email.Headers = append(email.Headers, Header{Name: fields.Key(), Value: value})
	}

	if subject, err := m.Header.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = email.Header("Subject")
	}
	if from, err := m.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.Sender = from[0].Address
	} else {
		email.Sender = email.Header("From")
	}
	if date, err := m.Header.Date(); err == nil {
		email.Date = date
	}

	var body strings.Builder
	for {
		p, err := m.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("could not get next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("could not read inline body: %w", err)
			}

			// sometimes the report archive is inlined, check the magic bytes
			if helper.IsSupportedArchive(b) {
				filename := inlineFilename(h)
				email.Attachments = append(email.Attachments, Attachment{
					Filename: filename,
					Content:  b,
					Size:     int64(len(b)),
				})
				continue
			}
			body.Write(b)
		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil {
				filename = ""
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("could not read attachment: %w", err)
			}
			email.Attachments = append(email.Attachments, Attachment{
				Filename: filename,
				Content:  b,
				Size:     int64(len(b)),
			})
		}
	}

	email.Body = body.String()
	return email, nil
}

func inlineFilename(h *mail.InlineHeader) string {
	_, params, err := h.ContentDisposition()
	if err == nil {
		if filename, ok := params["filename"]; ok {
			return filename
		}
	}
	_, params, err = h.ContentType()
	if err == nil {
		if name, ok := params["name"]; ok {
			return name
		}
	}
	return ""
}
