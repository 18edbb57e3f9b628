package engine

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"warptrace/core"
)

// RawEvent is one producer-defined log record before normalization. Any
// field may be absent or malformed; unrecognized keys are ignored.
type RawEvent = map[string]any

// Event is the canonical view of one RawEvent used by the detection passes.
// Construction never fails: every coercion degrades to a zero value instead
// of erroring.
type Event struct {
	ID        int64      // 0 when the producer supplied no identifier
	Timestamp *time.Time // nil when missing or unparseable
	Status    *int
	SourceIP  string
	User      string
	UserAgent string // trimmed
	Action    string // trimmed, lower-cased
	URL       string
	Host      string // lower-cased hostname of URL, empty on any parse failure
	Raw       string // lower-cased free text
}

// Normalize coerces raw events into canonical records, preserving input
// length and order. Producer key aliases are accepted: time/timestamp/ts for
// the timestamp, src_ip/srcip/client_ip for the source address, user/username,
// user_agent/ua, and event_id falling back to id.
func Normalize(raws []RawEvent) []Event {
	events := make([]Event, 0, len(raws))
	for _, r := range raws {
		events = append(events, normalizeOne(r))
	}
	return events
}

func normalizeOne(r RawEvent) Event {
	rawURL := stringOf(r, "url")
	return Event{
		ID:        idOf(r),
		Timestamp: timeOf(r, "ts", "time", "timestamp"),
		Status:    asInt(r["status"]),
		SourceIP:  stringOf(r, "src_ip", "srcip", "client_ip"),
		User:      stringOf(r, "user", "username"),
		UserAgent: strings.TrimSpace(stringOf(r, "user_agent", "ua")),
		Action:    strings.ToLower(strings.TrimSpace(stringOf(r, "action"))),
		URL:       rawURL,
		Host:      hostOf(rawURL),
		Raw:       strings.ToLower(stringOf(r, "raw")),
	}
}

// stringOf returns the first non-empty string coercion among the given keys.
func stringOf(r RawEvent, keys ...string) string {
	for _, k := range keys {
		if s := asString(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// timeOf returns the first parseable timestamp among the given keys.
func timeOf(r RawEvent, keys ...string) *time.Time {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if t := asTime(v); t != nil {
				return t
			}
		}
	}
	return nil
}

// idOf reads the event identifier, preferring event_id over id.
func idOf(r RawEvent) int64 {
	if v, ok := r["event_id"]; ok && v != nil {
		return asID(v)
	}
	return asID(r["id"])
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// asInt parses integer-looking inputs; anything else yields nil.
func asInt(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		i := n
		return &i
	case int64:
		i := int(n)
		return &i
	case uint64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		return &i
	default:
		return nil
	}
}

func asID(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}

// asTime parses ISO-8601 timestamps (trailing Z/z treated as UTC) with a
// space-separated fallback pattern. Unparseable input yields nil.
func asTime(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return nil
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// hostOf extracts the lower-cased hostname from a URL's authority component.
func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// bucketMinute renders a minute-truncated timestamp key; events without a
// timestamp share the "unknown" bucket.
func bucketMinute(ts *time.Time) string {
	if ts == nil {
		return "unknown"
	}
	return core.MinuteKey(*ts)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
