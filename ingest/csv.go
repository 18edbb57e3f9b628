package ingest

import (
	"encoding/csv"
	"errors"
	"strings"
)

// ParseCSV parses header-driven CSV into rows keyed by trimmed header names.
// Ragged records are tolerated: missing cells become nil, surplus cells are
// dropped. Cell values are whitespace-trimmed. NUL bytes mark the content as
// non-CSV so binary uploads reach the later probes.
func ParseCSV(text string) ([]Row, error) {
	if strings.ContainsRune(text, 0) {
		return nil, errors.New("content contains NUL byte")
	}
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Row{}, nil
	}

	keys := make([]string, len(records[0]))
	for i, h := range records[0] {
		keys[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(keys))
		for i, key := range keys {
			if i < len(record) {
				row[key] = strings.TrimSpace(record[i])
			} else {
				row[key] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
