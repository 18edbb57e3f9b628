package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"warptrace/core"
)

// Row is one loosely-typed record produced by a parser. Keys follow the
// upstream log vocabulary (time, src_ip, user, url, action, status, bytes,
// user_agent, raw) but none are mandatory.
type Row map[string]any

// rowTimeKeys is the probe order for a usable timestamp. A value that fails
// to parse falls through to the next key.
var rowTimeKeys = []string{"time", "timestamp", "ts"}

// Event coerces the row into a storable log event. String fields take the
// first non-empty alias; status and bytes accept only unsigned digit values,
// anything else (zero, negatives, floats, words) stays NULL.
func (r Row) Event() *core.LogEvent {
	ev := &core.LogEvent{
		SourceIP:  r.text("src_ip", "srcip", "client_ip"),
		User:      r.text("user", "username"),
		URL:       r.text("url", "host"),
		Action:    r.text("action"),
		UserAgent: r.text("user_agent", "ua"),
		Raw:       r.text("raw"),
	}
	for _, key := range rowTimeKeys {
		if s, ok := r[key].(string); ok {
			if ts := parseWhen(s); ts != nil {
				ev.Timestamp = ts
				break
			}
		}
	}
	if n, ok := digitValue(r["status"]); ok {
		status := int(n)
		ev.Status = &status
	}
	if n, ok := digitValue(r["bytes"]); ok {
		ev.Bytes = &n
	}
	return ev
}

// text returns the first key holding a non-empty string.
func (r Row) text(keys ...string) string {
	for _, key := range keys {
		if s, ok := r[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// digitValue accepts unsigned digit strings and positive integers. Zero is
// treated as absent, matching the upstream bytes column behavior.
func digitValue(v any) (int64, bool) {
	var s string
	switch n := v.(type) {
	case string:
		s = n
	case int:
		if n == 0 {
			return 0, false
		}
		s = strconv.Itoa(n)
	case int64:
		if n == 0 {
			return 0, false
		}
		s = strconv.FormatInt(n, 10)
	case uint64:
		if n == 0 {
			return 0, false
		}
		s = strconv.FormatUint(n, 10)
	default:
		return 0, false
	}
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// timestampLayouts are the accepted row timestamp formats. A trailing Z or z
// is rewritten to an explicit UTC offset before matching.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWhen(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// splitLines splits raw text on \n, \r\n, or \r line endings.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// stringValue returns v when it is a string, otherwise "".
func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// scalarString renders a decoded JSON scalar for embedding in raw text.
func scalarString(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprintf("%v", n)
	}
}
