package render

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	return New(&FileDownloader{Dir: t.TempDir()})
}

func TestTextMarkdownConversion(t *testing.T) {
	t.Parallel()
	r := newTestRenderer(t)

	got := r.Text("some *emphasis* here")
	if !strings.Contains(got.HTML, "<em>emphasis</em>") {
		t.Errorf("expected markdown emphasis to be converted, got %q", got.HTML)
	}
	if got.Text != "some emphasis here" {
		t.Errorf("unexpected text projection: %q", got.Text)
	}
}

func TestTextExistingMarkupSanitizedInPlace(t *testing.T) {
	t.Parallel()
	r := newTestRenderer(t)

	got := r.Text("<p>already <strong>markup</strong></p>")
	if !strings.Contains(got.HTML, "<strong>markup</strong>") {
		t.Errorf("expected markup preserved, got %q", got.HTML)
	}
	if strings.Contains(got.HTML, "<em>") {
		t.Errorf("markup content should not pass through markdown: %q", got.HTML)
	}
}

func TestTextScriptNeverSurvives(t *testing.T) {
	t.Parallel()
	r := newTestRenderer(t)

	cases := []string{
		`<script>alert("pwned")</script>hello`,
		`<p onclick="alert(1)">hello</p>`,
		`<a href="javascript:alert(1)">hello</a>`,
		"hello <img src=x onerror=alert(1)>",
	}
	for _, c := range cases {
		got := r.Text(c)
		if strings.Contains(got.HTML, "<script") {
			t.Errorf("script tag survived sanitization of %q: %q", c, got.HTML)
		}
		if strings.Contains(got.HTML, "onclick") || strings.Contains(got.HTML, "onerror") {
			t.Errorf("event handler survived sanitization of %q: %q", c, got.HTML)
		}
		if strings.Contains(got.HTML, "javascript:") {
			t.Errorf("javascript URI survived sanitization of %q: %q", c, got.HTML)
		}
		if !strings.Contains(got.Text, "hello") {
			t.Errorf("non-executable text lost from %q: %q", c, got.Text)
		}
	}
}

func TestTextEmptyContentFallback(t *testing.T) {
	t.Parallel()
	r := newTestRenderer(t)

	got := r.Text("")
	if got.Text != FallbackMessage {
		t.Errorf("expected fallback for empty content, got %q", got.Text)
	}
}

func TestTextSanitizedToNothingFallback(t *testing.T) {
	t.Parallel()
	r := newTestRenderer(t)

	got := r.Text("<script>alert(1)</script>")
	if got.Text != FallbackMessage {
		t.Errorf("expected fallback when sanitization empties content, got %q", got.Text)
	}
}

func TestPDFRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := New(&FileDownloader{Dir: dir})

	payload := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	encoded := base64.StdEncoding.EncodeToString(payload)

	path, err := r.PDF(encoded)
	if err != nil {
		t.Fatalf("PDF failed: %v", err)
	}
	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read download: %v", err)
	}
	if base64.StdEncoding.EncodeToString(written) != encoded {
		t.Error("decoded payload does not match the encoded input")
	}
}

func TestPDFInvalidBase64(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := New(&FileDownloader{Dir: dir})

	if _, err := r.PDF("not!!!base64"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list download dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files after failed decode, found %d", len(entries))
	}
}

func TestFileDownloaderCollisionSuffix(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	d := &FileDownloader{Dir: dir}

	first, err := d.Save(PDFFileName, []byte("one"))
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := d.Save(PDFFileName, []byte("two"))
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct paths, both %q", first)
	}
	if filepath.Base(second) != "deep_search_output-1.pdf" {
		t.Errorf("unexpected collision name: %q", filepath.Base(second))
	}
}

func TestFileDownloaderNoPartialFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	d := &FileDownloader{Dir: dir}

	if _, err := d.Save("out.pdf", []byte("data")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list download dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".download-") {
			t.Errorf("temp file left behind: %q", e.Name())
		}
	}
}
