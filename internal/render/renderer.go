// Package render materializes agent and user content into safe displayable
// form. Text is converted from lightweight markup when needed and always
// passed through an HTML sanitizer; binary payloads are decoded in full and
// handed to a Downloader.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// FallbackMessage replaces absent or empty content so the transcript never
// holds an empty terminal entry.
const FallbackMessage = "No message received."

// PDFConfirmation replaces a binary payload in the transcript once the
// download has been handed off.
const PDFConfirmation = "PDF generated. It should start downloading shortly."

// PDFFileName is the download name for deep-search PDF output.
const PDFFileName = "deep_search_output.pdf"

// blockMarkupPattern detects content that already contains HTML markup, in
// which case it is sanitized as-is instead of being treated as markdown.
var blockMarkupPattern = regexp.MustCompile(`(?is)<[a-z].*>`)

// Rendered is a transcript-ready materialization of one message. HTML is
// sanitized display markup; Text is the plain-text projection used for
// history derivation.
type Rendered struct {
	HTML string
	Text string
}

// Renderer converts raw content into sanitized displayable form.
type Renderer struct {
	markdown  goldmark.Markdown
	policy    *bluemonday.Policy
	stripper  *bluemonday.Policy
	downloads Downloader
}

// New creates a renderer. downloads receives decoded binary payloads; it
// must not be nil.
func New(downloads Downloader) *Renderer {
	return &Renderer{
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:    bluemonday.UGCPolicy(),
		stripper:  bluemonday.StrictPolicy(),
		downloads: downloads,
	}
}

// Text materializes textual content. Content that already carries HTML
// markup is sanitized directly; anything else is treated as lightweight
// markup first. Empty content yields the literal fallback. The returned
// HTML never contains executable content regardless of origin.
func (r *Renderer) Text(content string) Rendered {
	if content == "" {
		return Rendered{HTML: FallbackMessage, Text: FallbackMessage}
	}

	var raw string
	if blockMarkupPattern.MatchString(content) {
		raw = content
	} else {
		var buf bytes.Buffer
		if err := r.markdown.Convert([]byte(content), &buf); err != nil {
			// Conversion failure falls back to the escaped source text.
			raw = html.EscapeString(content)
		} else {
			raw = buf.String()
		}
	}

	clean := r.policy.Sanitize(raw)
	text := r.TextContent(clean)
	if text == "" {
		// Sanitization can strip a message down to nothing (e.g. a bare
		// script tag). The transcript still needs a non-empty entry.
		return Rendered{HTML: FallbackMessage, Text: FallbackMessage}
	}
	return Rendered{HTML: strings.TrimSpace(clean), Text: text}
}

// TextContent strips all markup from sanitized HTML, returning the plain
// text a reader would see.
func (r *Renderer) TextContent(markup string) string {
	return strings.TrimSpace(html.UnescapeString(r.stripper.Sanitize(markup)))
}

// PDF decodes a base64 payload and hands the complete byte sequence to the
// downloader. Either the full decoded file becomes available under the
// returned path, or an error is returned and nothing is written.
func (r *Renderer) PDF(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode pdf payload: %w", err)
	}
	return r.Binary(data)
}

// Binary hands an already-decoded payload to the downloader.
func (r *Renderer) Binary(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty binary payload")
	}
	path, err := r.downloads.Save(PDFFileName, data)
	if err != nil {
		return "", fmt.Errorf("save download: %w", err)
	}
	return path, nil
}
