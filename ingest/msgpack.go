package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// maxRecordFields caps the number of keys one msgpack record may carry.
	maxRecordFields = 256
	// maxRecordFieldSize caps individual string values.
	maxRecordFieldSize = 50000
	// maxRecordKeySize caps field names.
	maxRecordKeySize = 256
)

// ParseMsgpack decodes a stream of msgpack-encoded record maps into rows.
// Decoding stops cleanly at EOF; a corrupt element or an oversized record
// fails the whole parse.
func ParseMsgpack(data []byte) ([]Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	rows := make([]Row, 0, 64)
	for {
		record, err := dec.DecodeMap()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(rows)+1, err)
		}
		if err := validateRecord(record); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(rows)+1, err)
		}
		rows = append(rows, normalizeRecord(record))
	}
	return rows, nil
}

// validateRecord enforces the field-count and value-size caps.
func validateRecord(record map[string]any) error {
	if len(record) > maxRecordFields {
		return fmt.Errorf("too many fields: %d (max %d)", len(record), maxRecordFields)
	}
	for key, value := range record {
		if len(key) > maxRecordKeySize {
			return fmt.Errorf("field name too long: %d bytes", len(key))
		}
		if s, ok := value.(string); ok && len(s) > maxRecordFieldSize {
			return fmt.Errorf("field %q value too large: %d bytes (max %d)", key, len(s), maxRecordFieldSize)
		}
	}
	return nil
}

// normalizeRecord flattens decoder-specific value types into the shapes the
// text parsers produce, so row coercion sees one vocabulary.
func normalizeRecord(record map[string]any) Row {
	row := make(Row, len(record))
	for key, value := range record {
		switch v := value.(type) {
		case []byte:
			row[key] = string(v)
		case int:
			row[key] = int64(v)
		case int8:
			row[key] = int64(v)
		case int16:
			row[key] = int64(v)
		case int32:
			row[key] = int64(v)
		case uint:
			row[key] = int64(v)
		case uint8:
			row[key] = int64(v)
		case uint16:
			row[key] = int64(v)
		case uint32:
			row[key] = int64(v)
		case float32:
			row[key] = float64(v)
		default:
			row[key] = value
		}
	}
	return row
}
