// Package pdfutil reads text back out of generated PDFs so the contract
// worker can check what it is about to store.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText returns the plain text of every page, one page per line.
func ExtractText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	for page := 1; page <= doc.NumPage(); page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// ContainsAll reports which of needles are missing from the document text.
// Whitespace is ignored on both sides since layout may split or join lines.
func ContainsAll(data []byte, needles ...string) ([]string, error) {
	text, err := ExtractText(data)
	if err != nil {
		return nil, err
	}
	haystack := squash(text)
	var missing []string
	for _, n := range needles {
		if !strings.Contains(haystack, squash(n)) {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}
