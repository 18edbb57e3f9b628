package ingest

import "strings"

// ParseFallbackLines wraps every non-empty line into a raw-only row. Last
// resort when no structured format matched; the detection engine still gets
// to scan the raw text.
func ParseFallbackLines(text string) []Row {
	rows := make([]Row, 0, 64)
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, Row{"raw": line})
	}
	return rows
}
