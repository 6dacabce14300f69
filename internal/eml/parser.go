// Package eml parses raw RFC 822 messages into the fields the invoice
// pipeline consumes: headers, text/html bodies, and attachments.
package eml

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// maxBodyBytes caps extracted body text per email to avoid pathological
// memory use on huge messages.
const maxBodyBytes = 512 * 1024

// Email holds the parsed content of a single message.
type Email struct {
	Subject   string
	From      string // full display form: `Name <addr@host>`
	Date      time.Time
	MessageID string
	TextBody  string
	HTMLBody  string

	Attachments []Attachment
}

// Attachment is a decoded MIME attachment.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// Parse decodes a raw message. Header decoding failures fall back to the raw
// value; a malformed part is skipped rather than failing the whole message.
func Parse(raw []byte) (*Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	h := mr.Header
	email := &Email{}

	if subject, err := h.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = h.Get("Subject")
	}
	email.From = fromDisplay(h)
	if date, err := h.Date(); err == nil {
		email.Date = date
	}
	if id, err := h.MessageID(); err == nil {
		email.MessageID = id
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Broken part; keep whatever was already extracted.
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				if email.HTMLBody == "" {
					email.HTMLBody = string(body)
				}
			case strings.HasPrefix(ct, "text/plain"), ct == "":
				if email.TextBody == "" {
					email.TextBody = string(body)
				}
			}
		case *mail.AttachmentHeader:
			ct, _, _ := ph.ContentType()
			filename, _ := ph.Filename()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			email.Attachments = append(email.Attachments, Attachment{
				Filename:    filename,
				ContentType: ct,
				Size:        int64(len(content)),
				Content:     content,
			})
		}
	}

	return email, nil
}

// fromDisplay renders the From header as `Name <addr>`, falling back to the
// raw header value when the address list does not parse.
func fromDisplay(h mail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("From"))
	}
	from := addrs[0]
	if from.Name != "" {
		return fmt.Sprintf("%s <%s>", from.Name, from.Address)
	}
	return from.Address
}
