package parser

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"analytics-rag/internal/helper"
	"analytics-rag/internal/models"
)

var (
	paragraphRegex = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	textRunRegex   = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
)

// parseDOCX stages the upload in a temp file for the docx reader and returns
// the document text as a single record.
func parseDOCX(f File) ([]models.Record, error) {
	var content string
	err := helper.WithTempFile("upload-*.docx", f.Data, func(path string) error {
		r, err := docx.ReadDocxFile(path)
		if err != nil {
			return fmt.Errorf("failed to open docx: %w", err)
		}
		defer r.Close()

		content = extractDocxText(r.Editable().GetContent())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []models.Record{{Content: content, Metadata: sourceMetadata(f.Name)}}, nil
}

// extractDocxText pulls the visible text out of word/document.xml, one line
// per paragraph.
func extractDocxText(xml string) string {
	var paragraphs []string
	for _, p := range paragraphRegex.FindAllString(xml, -1) {
		var b strings.Builder
		for _, m := range textRunRegex.FindAllStringSubmatch(p, -1) {
			b.WriteString(html.UnescapeString(m[1]))
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n")
}
