package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"analytics-rag/internal/models"
)

var ErrUnsupportedExtension = errors.New("unsupported file format")

// File is an uploaded file: its original name and raw bytes
type File struct {
	Name string
	Data []byte
}

// Parse turns a batch of uploaded files into records, in input order.
// Unsupported files are logged and skipped. Loader failures are returned.
func Parse(ctx context.Context, files []File) ([]models.Record, error) {
	var records []models.Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parsed, err := ParseFile(f)
		if errors.Is(err, ErrUnsupportedExtension) {
			log.Warn().Str("file", f.Name).Msg("Skipping file with unsupported extension")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name, err)
		}

		log.Info().Str("file", f.Name).Int("records", len(parsed)).Msg("Parsed file")
		records = append(records, parsed...)
	}
	return records, nil
}

// ParseFile dispatches on the file extension.
func ParseFile(f File) ([]models.Record, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	switch ext {
	case ".csv":
		return parseCSV(f), nil
	case ".pdf":
		return parsePDF(f)
	case ".docx":
		return parseDOCX(f)
	case ".txt", ".ts", ".tsx":
		return parseText(f)
	case ".md":
		return parseMarkdown(f)
	case ".xlsx":
		return parseXLSX(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
}

// IsSupported reports whether ParseFile has a loader for name
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".pdf", ".docx", ".txt", ".ts", ".tsx", ".md", ".xlsx":
		return true
	}
	return false
}

func parseCSV(f File) []models.Record {
	previewCSV(f)

	records := StructureCSV(f.Data)
	for i := range records {
		md := records[i].Metadata
		md[models.MetaSource] = f.Name

		userID, hasUser := md["userid"]
		eventType, hasEvent := md["eventtype"]
		if hasUser && hasEvent {
			records[i].Content += fmt.Sprintf(models.CSVRecordSentence, userID, eventType)
		}
	}
	return records
}

func sourceMetadata(name string) map[string]any {
	return map[string]any{models.MetaSource: name}
}
