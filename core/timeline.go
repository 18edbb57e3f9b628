package core

import (
	"sort"
	"time"
)

// TimelinePoint is one per-minute event count used as narrative context.
type TimelinePoint struct {
	Minute string `json:"minute" example:"2023-10-31T12:05:00Z"`
	Count  int    `json:"count" example:"17"`
}

// MinuteKey renders a timestamp truncated to its minute, RFC 3339 formatted.
// The same key format is used for timeline points and finding metadata so
// they can be correlated downstream.
func MinuteKey(t time.Time) string {
	return t.Truncate(time.Minute).Format("2006-01-02T15:04:05Z07:00")
}

// BuildTimeline counts events per minute. Events without timestamps are
// skipped. Points are ordered by minute key.
func BuildTimeline(events []*LogEvent) []TimelinePoint {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Timestamp == nil {
			continue
		}
		counts[MinuteKey(*e.Timestamp)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	points := make([]TimelinePoint, 0, len(keys))
	for _, k := range keys {
		points = append(points, TimelinePoint{Minute: k, Count: counts[k]})
	}
	return points
}

// TailPoints returns the trailing n points of a timeline.
func TailPoints(points []TimelinePoint, n int) []TimelinePoint {
	if n < 0 || len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
