package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"analytics-rag/internal/models"
)

// parsePDF returns one record per page that has text. Pages are 1-based.
func parsePDF(f File) (records []models.Record, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		md := sourceMetadata(f.Name)
		md[models.MetaPage] = i
		md[models.MetaTotalPages] = numPages
		records = append(records, models.Record{Content: text, Metadata: md})
	}
	return records, nil
}
