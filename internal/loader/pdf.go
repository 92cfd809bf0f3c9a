package loader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF extracts plain text per page. Pages that fail to parse or carry
// no text are skipped rather than failing the whole document.
func extractPDF(path string) ([]page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pageCount := r.NumPage()
	pages := make([]page, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}
	return pages, nil
}
