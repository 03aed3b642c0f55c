package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"

	"analytics-rag/internal/models"
)

const sniffSampleSize = 1024

var (
	// tried in order after the sniffed delimiter
	candidateDelimiters = []rune{',', '\t', ';', '|', ' '}

	// sniffing preference, first consistent one wins
	sniffDelimiters = []rune{',', '\t', ';', '|', ' ', ':'}

	errNoHeader = errors.New("header has no column names")
)

// StructureCSV converts CSV bytes into one record per data row. The delimiter
// and encoding are guessed. Unreadable input yields no records.
func StructureCSV(data []byte) []models.Record {
	content, err := decodeCSV(data)
	if err != nil {
		log.Error().Err(err).Msg("Error reading CSV content")
		return nil
	}

	var delimiters []rune
	if d, ok := sniffDelimiter(content); ok {
		delimiters = append(delimiters, d)
	} else {
		log.Debug().Msg("Could not detect delimiter, trying common delimiters")
	}
	for _, d := range candidateDelimiters {
		if !containsRune(delimiters, d) {
			delimiters = append(delimiters, d)
		}
	}

	for _, d := range delimiters {
		records, err := parseDelimited(content, d)
		if err != nil {
			log.Debug().Err(err).Str("delimiter", string(d)).Msg("Delimiter rejected")
			continue
		}
		if len(records) > 0 {
			log.Debug().Str("delimiter", string(d)).Int("rows", len(records)).Msg("Processed CSV")
			return records
		}
	}

	log.Warn().Msg("Could not process CSV with any of the common delimiters")
	return nil
}

func decodeCSV(data []byte) (string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode latin-1: %w", err)
	}
	return string(decoded), nil
}

// sniffDelimiter trial-parses a sample with each delimiter and picks the first
// one that splits every complete record into the same number of fields, more
// than one. Quoted fields are honoured, so delimiters inside quotes don't count.
func sniffDelimiter(content string) (rune, bool) {
	sample := content
	truncated := false
	if utf8.RuneCountInString(sample) > sniffSampleSize {
		sample = string([]rune(sample)[:sniffSampleSize])
		truncated = true
	}

	for _, d := range sniffDelimiters {
		if fieldCount(sample, d, truncated) > 1 {
			return d, true
		}
	}
	return 0, false
}

// fieldCount returns the field count shared by every record of sample, or 0
// when the counts differ. The last record of a truncated sample is ignored.
func fieldCount(sample string, delimiter rune, truncated bool) int {
	r := csv.NewReader(strings.NewReader(sample))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var counts []int
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if truncated {
				break
			}
			return 0
		}
		counts = append(counts, len(row))
	}
	if truncated && len(counts) > 1 {
		counts = counts[:len(counts)-1]
	}
	if len(counts) == 0 {
		return 0
	}
	for _, n := range counts[1:] {
		if n != counts[0] {
			return 0
		}
	}
	return counts[0]
}

func parseDelimited(content string, delimiter rune) ([]models.Record, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errNoHeader
	}
	if err != nil {
		return nil, err
	}
	if !hasColumnName(header) {
		return nil, errNoHeader
	}

	var records []models.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, composeRow(header, row, len(records)))
	}
	return records, nil
}

// composeRow renders one table row as retrieval-friendly text. Cells beyond
// the header are ignored and missing cells are empty.
func composeRow(header, row []string, index int) models.Record {
	metadata := make(map[string]any, len(header)+1)
	lines := []string{fmt.Sprintf("CSV Row %d Data:", index+1)}
	var userID, eventType *string
	var summary []string

	for i, field := range header {
		if field == "" {
			continue
		}
		value := ""
		if i < len(row) {
			value = row[i]
		}
		metadata[field] = value

		if value != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", field, value))
		}

		lower := strings.ToLower(field)
		switch {
		case lower == "userid" && userID == nil:
			userID = &value
		case lower == "eventtype" && eventType == nil:
			eventType = &value
		}
		if models.SummaryFields[lower] && value != "" {
			summary = append(summary, fmt.Sprintf("%s=%s", field, value))
		}
	}
	metadata[models.MetaRowIndex] = index

	if userID != nil {
		lines = append(lines, "User ID: "+*userID)
	}
	if eventType != nil {
		lines = append(lines, "Event Type: "+*eventType)
	}

	content := strings.Join(lines, "\n")
	if len(summary) > 0 {
		content += "\n\nSummary: " + strings.Join(summary, ", ")
	}

	return models.Record{Content: content, Metadata: metadata}
}

// previewCSV logs the first lines of a CSV upload.
func previewCSV(f File) {
	if !log.Debug().Enabled() {
		return
	}
	content, err := decodeCSV(f.Data)
	if err != nil {
		return
	}
	lines := strings.SplitN(content, "\n", 6)
	for i, l := range lines[:min(5, len(lines))] {
		log.Debug().Str("file", f.Name).Msgf("Line %d: %s", i+1, strings.TrimSpace(l))
	}
}

func hasColumnName(header []string) bool {
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			return true
		}
	}
	return false
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}
