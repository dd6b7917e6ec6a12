// Package extract reduces a message body to the author's new text: the
// content that is actually theirs once quoted history, signatures, and
// leading structured header blocks are removed.
package extract

import (
	"strings"

	"mailtriage/internal/textutil"
)

// Content sources recorded alongside the extracted text.
const (
	SourceBody    = "body"
	SourceSubject = "subject"
	SourceNone    = "none"
)

// Content is the result of extraction.
type Content struct {
	Source             string
	Text               string
	TrimmedQuote       bool
	TrimmedSignature   bool
	HasStructuredBlock bool
}

// quotePrefixes mark the start of quoted history in common clients.
var quotePrefixes = []string{"on ", "from:", "sent:", "-----original message-----"}

// NewText extracts the author's new text from a body, falling back to the
// subject when the body is empty or reduces to nothing.
func NewText(subject, body string) Content {
	subject = strings.TrimSpace(subject)

	if strings.TrimSpace(body) == "" {
		if subject != "" {
			return Content{Source: SourceSubject, Text: subject}
		}
		return Content{Source: SourceNone}
	}

	text := Normalize(textutil.EnsureUTF8(body))
	text, structured := stripStructuredBlocks(text)
	text, trimmedQuote := stripQuotes(text)
	text, trimmedSig := stripSignature(text)

	c := Content{
		Source:             SourceBody,
		Text:               text,
		TrimmedQuote:       trimmedQuote,
		TrimmedSignature:   trimmedSig,
		HasStructuredBlock: structured,
	}
	if text == "" {
		if subject != "" {
			c.Source = SourceSubject
			c.Text = subject
		} else {
			c.Source = SourceNone
		}
	}
	return c
}

// Normalize unifies line endings, strips trailing whitespace per line, and
// caps runs of blank lines at two.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	blank := 0
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimRight(ln, " \t")
		if strings.TrimSpace(ln) == "" {
			blank++
			if blank <= 2 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripStructuredBlocks drops a leading run of lines that look like a
// forwarded header block or machine preamble: indented lines, or lines with
// a colon in the first 20 characters. The block ends at the first line that
// looks like prose.
func stripStructuredBlocks(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	structured := false
	var result []string

	inBlock := true
	for _, ln := range lines {
		head := ln
		if len(head) > 20 {
			head = head[:20]
		}
		if inBlock && (strings.HasPrefix(ln, " ") || strings.Contains(head, ":")) {
			structured = true
			continue
		}
		inBlock = false
		result = append(result, ln)
	}
	return strings.TrimSpace(strings.Join(result, "\n")), structured
}

// stripQuotes cuts the text at the first quoted line or quote introduction.
// Everything after that point belongs to the quoted history, including any
// interleaved replies.
func stripQuotes(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		low := strings.ToLower(strings.TrimSpace(ln))
		if strings.HasPrefix(low, ">") {
			return strings.TrimSpace(strings.Join(lines[:i], "\n")), true
		}
		for _, p := range quotePrefixes {
			if strings.HasPrefix(low, p) {
				return strings.TrimSpace(strings.Join(lines[:i], "\n")), true
			}
		}
	}
	return text, false
}

// stripSignature cuts the text at the conventional "--" delimiter line.
// Clients pad the delimiter in both directions ("-- " with a trailing
// space is the classic form), so whitespace on either side still counts.
func stripSignature(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		if strings.Trim(ln, " \t") == "--" {
			return strings.TrimSpace(strings.Join(lines[:i], "\n")), true
		}
	}
	return text, false
}

// signatureStops are closing lines that end an excerpt.
var signatureStops = map[string]bool{
	"thanks,":    true,
	"thank you,": true,
	"best,":      true,
	"regards,":   true,
}

// Excerpt condenses extracted text into at most maxLines short lines for a
// report entry. It stops at the first blank line, quoted line, "wrote:"
// introduction, or signature opener.
func Excerpt(text string, maxLines int) []string {
	var out []string
	for _, ln := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" || trimmed == "--" {
			break
		}
		low := strings.ToLower(trimmed)
		if strings.HasPrefix(low, ">") {
			break
		}
		if strings.HasPrefix(low, "on ") && strings.Contains(low, "wrote:") {
			break
		}
		if signatureStops[low] {
			break
		}
		out = append(out, trimmed)
		if len(out) >= maxLines {
			break
		}
	}
	return out
}
