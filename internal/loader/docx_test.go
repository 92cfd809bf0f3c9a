package loader

import (
	"strings"
	"testing"
)

const docxSample = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:tab/><w:t>column</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestDocxText(t *testing.T) {
	text, err := docxText(strings.NewReader(docxSample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %q", len(lines), text)
	}
	if lines[0] != "First paragraph." {
		t.Errorf("unexpected first paragraph: %q", lines[0])
	}
	if lines[1] != "Second\tcolumn" {
		t.Errorf("expected tab between runs, got %q", lines[1])
	}
}

func TestDocxText_InvalidXML(t *testing.T) {
	if _, err := docxText(strings.NewReader("<w:document><unclosed")); err == nil {
		t.Error("expected error for malformed document.xml")
	}
}
