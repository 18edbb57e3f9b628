package core

import "time"

// LogEvent is one normalized access-log record belonging to an upload.
// Nullable columns map to pointer fields so absent values serialize as JSON null.
type LogEvent struct {
	ID        int64      `json:"id" example:"42"`
	UploadID  string     `json:"-"`
	Timestamp *time.Time `json:"ts" swaggertype:"string" example:"2023-10-31T12:00:00Z"`
	SourceIP  string     `json:"src_ip" example:"203.0.113.7"`
	User      string     `json:"user" example:"alice"`
	URL       string     `json:"url" example:"https://auth.warptrace.corp/authorize"`
	Action    string     `json:"action" example:"allow"`
	Status    *int       `json:"status" example:"401"`
	Bytes     *int64     `json:"bytes"`
	UserAgent string     `json:"user_agent" example:"Mozilla/5.0"`
	Raw       string     `json:"raw"`
}

// RawMap converts the stored row back into the loose key/value shape the
// detection engine consumes. The row id travels along as event_id so findings
// stay traceable to stored rows.
func (e *LogEvent) RawMap() map[string]any {
	m := map[string]any{
		"event_id":   e.ID,
		"src_ip":     e.SourceIP,
		"user":       e.User,
		"url":        e.URL,
		"action":     e.Action,
		"user_agent": e.UserAgent,
		"raw":        e.Raw,
	}
	if e.Timestamp != nil {
		m["ts"] = *e.Timestamp
	}
	if e.Status != nil {
		m["status"] = *e.Status
	}
	if e.Bytes != nil {
		m["bytes"] = *e.Bytes
	}
	return m
}

// EventIndex maps row ids to events for finding attribution lookups.
type EventIndex map[int64]*LogEvent

// NewEventIndex builds an id lookup over a slice of events.
func NewEventIndex(events []*LogEvent) EventIndex {
	idx := make(EventIndex, len(events))
	for _, e := range events {
		idx[e.ID] = e
	}
	return idx
}
