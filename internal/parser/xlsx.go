package parser

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"analytics-rag/internal/models"
)

// parseXLSX treats the first row of every sheet as a header and renders
// each following row like a CSV row.
func parseXLSX(f File) ([]models.Record, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer wb.Close()

	var records []models.Record
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheet).Msg("Error reading sheet")
			continue
		}
		if len(rows) < 2 || !hasColumnName(rows[0]) {
			continue
		}

		header := rows[0]
		index := 0
		for _, row := range rows[1:] {
			if isBlankRow(row) {
				continue
			}
			r := composeRow(header, row, index)
			r.Metadata[models.MetaSource] = f.Name
			r.Metadata[models.MetaSheet] = sheet
			records = append(records, r)
			index++
		}
	}
	return records, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
