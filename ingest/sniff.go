package ingest

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Format tags returned by SmartParse.
const (
	FormatAuth0    = "auth0-jsonl"
	FormatCSV      = "csv"
	FormatMsgpack  = "msgpack"
	FormatFallback = "fallback"
)

// expectedKeys mark a CSV parse as plausible when they show up as columns.
var expectedKeys = map[string]struct{}{
	"time": {}, "timestamp": {}, "ts": {},
	"src_ip": {}, "srcip": {}, "client_ip": {},
	"user": {}, "status": {}, "url": {},
}

// SmartParse sniffs the upload format and returns parsed rows plus a format
// tag. Probe order: explicit .msgpack uploads first, then JSONL-looking
// content as Auth0 lines, then CSV when at least 30% of rows carry an
// expected column, a second Auth0 attempt, msgpack for binary content, and
// raw fallback lines for everything else.
func SmartParse(content []byte, filename string) ([]Row, string) {
	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".msgpack") {
		if rows, err := ParseMsgpack(content); err == nil && len(rows) > 0 {
			return rows, FormatMsgpack
		}
	}

	text := string(content)
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	looksJSONL := strings.HasSuffix(name, ".jsonl") ||
		strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
	if looksJSONL {
		if rows, err := ParseAuth0JSONL(text, DefaultAuthDomain); err == nil {
			return rows, FormatAuth0
		}
	}

	if rows, err := ParseCSV(text); err == nil {
		good := 0
		for _, r := range rows {
			if hasExpectedKey(r) {
				good++
			}
		}
		threshold := int(0.3 * float64(max(1, len(rows))))
		if threshold < 1 {
			threshold = 1
		}
		if good >= threshold {
			return rows, FormatCSV
		}
	}

	if rows, err := ParseAuth0JSONL(text, DefaultAuthDomain); err == nil {
		return rows, FormatAuth0
	}

	if looksBinary(content) {
		if rows, err := ParseMsgpack(content); err == nil && len(rows) > 0 {
			return rows, FormatMsgpack
		}
	}

	return ParseFallbackLines(text), FormatFallback
}

func hasExpectedKey(r Row) bool {
	for key := range r {
		if _, ok := expectedKeys[key]; ok {
			return true
		}
	}
	return false
}

// looksBinary reports content that cannot be a text log: NUL bytes in the
// first kilobyte or invalid UTF-8 anywhere.
func looksBinary(data []byte) bool {
	probe := data
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}
