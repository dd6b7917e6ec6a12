// Package email builds raw RFC 5322 messages for parser and ingestion tests.
package email

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type attachment struct {
	filename    string
	contentType string
	data        []byte
}

type header struct {
	key   string
	value string
}

// Message assembles a raw message through a fluent API. The zero value from
// NewMessage carries a complete plain-text message, so a test only sets the
// fields it cares about.
type Message struct {
	from        string
	to          string
	cc          string
	subject     string
	date        string
	contentType string
	body        string
	extra       []header
	attachments []attachment
	crlf        bool
}

// NewMessage returns a builder preloaded with a minimal valid message.
func NewMessage() *Message {
	return &Message{
		from:    "sender@example.com",
		to:      "recipient@example.com",
		subject: "Test Message",
		date:    "Mon, 01 Jan 2024 12:00:00 +0000",
		body:    "This is a test message body.",
	}
}

func (m *Message) From(v string) *Message { m.from = v; return m }

func (m *Message) To(v string) *Message { m.to = v; return m }

func (m *Message) Cc(v string) *Message { m.cc = v; return m }

func (m *Message) Subject(v string) *Message { m.subject = v; return m }

func (m *Message) Date(v string) *Message { m.date = v; return m }

func (m *Message) Body(v string) *Message { m.body = v; return m }

// ContentType overrides the Content-Type header of a single-part message.
func (m *Message) ContentType(v string) *Message { m.contentType = v; return m }

// Header appends an arbitrary extra header line.
func (m *Message) Header(key, value string) *Message {
	m.extra = append(m.extra, header{key: key, value: value})
	return m
}

// WithAttachment turns the message into multipart/mixed with the given
// base64-encoded attachment part.
func (m *Message) WithAttachment(filename, contentType string, data []byte) *Message {
	m.attachments = append(m.attachments, attachment{
		filename:    filename,
		contentType: contentType,
		data:        data,
	})
	return m
}

// CRLF switches line endings from \n to \r\n.
func (m *Message) CRLF() *Message { m.crlf = true; return m }

// Bytes renders the raw message.
func (m *Message) Bytes() []byte {
	nl := "\n"
	if m.crlf {
		nl = "\r\n"
	}

	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteString(nl)
	}

	line("From: %s", m.from)
	line("To: %s", m.to)
	if m.cc != "" {
		line("Cc: %s", m.cc)
	}
	line("Subject: %s", m.subject)
	line("Date: %s", m.date)
	for _, h := range m.extra {
		line("%s: %s", h.key, h.value)
	}

	if len(m.attachments) == 0 {
		ct := m.contentType
		if ct == "" {
			ct = `text/plain; charset="utf-8"`
		}
		line("Content-Type: %s", ct)
		line("")
		line("%s", m.body)
		return []byte(sb.String())
	}

	const boundary = "part-boundary"
	line("MIME-Version: 1.0")
	line("Content-Type: multipart/mixed; boundary=%q", boundary)
	line("")

	line("--%s", boundary)
	line(`Content-Type: text/plain; charset="utf-8"`)
	line("")
	line("%s", m.body)

	for _, a := range m.attachments {
		ct := a.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		line("--%s", boundary)
		line("Content-Type: %s; name=%q", ct, a.filename)
		line("Content-Disposition: attachment; filename=%q", a.filename)
		line("Content-Transfer-Encoding: base64")
		line("")
		line("%s", base64.StdEncoding.EncodeToString(a.data))
	}
	line("--%s--", boundary)

	return []byte(sb.String())
}
