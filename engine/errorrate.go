package engine

import (
	"fmt"
	"time"
)

const (
	errorRateWindowMin = 10
	errorRateMinEvents = 20
	errorRateThreshold = 0.65
)

// errorBucketKey partitions time-sorted events into fixed 10-minute buckets,
// keyed separately by user and by host. The floored bucket timestamp is a
// formatted string so bucket identity never depends on time.Location
// pointer equality.
type errorBucketKey struct {
	dim    string // "user" or "host"
	who    string
	bucket string
}

// passErrorRate emits a finding for every 10-minute bucket with at least 20
// events whose HTTP error ratio (4xx/5xx) reaches 0.65.
func (e *Engine) passErrorRate(b *batch, c *collector) {
	buckets := make(map[errorBucketKey][]*Event)
	var order []errorBucketKey
	add := func(k errorBucketKey, ev *Event) {
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], ev)
	}

	for _, ev := range b.timeSorted {
		// UTC-normalized so the same instant at different offsets shares
		// a bucket.
		bucket := floorToWindow(*ev.Timestamp).UTC().Format(time.RFC3339)
		add(errorBucketKey{dim: "user", who: ev.User, bucket: bucket}, ev)
		add(errorBucketKey{dim: "host", who: ev.Host, bucket: bucket}, ev)
	}

	for _, k := range order {
		lst := buckets[k]
		if len(lst) < errorRateMinEvents {
			continue
		}
		errors := 0
		for _, ev := range lst {
			if ev.Status != nil && *ev.Status >= 400 && *ev.Status < 600 {
				errors++
			}
		}
		ratio := float64(errors) / float64(len(lst))
		if ratio < errorRateThreshold {
			continue
		}
		score := 0.75
		if ratio >= 0.8 {
			score = 0.82
		}
		ids := make([]int64, 0, maxFindingIDs)
		for _, ev := range lst {
			if ev.ID != 0 {
				ids = append(ids, ev.ID)
				if len(ids) == maxFindingIDs {
					break
				}
			}
		}
		c.emit("web.error_"+k.dim,
			fmt.Sprintf("High error rate (%.0f%%) in 10-min window for %s", ratio*100, k.who),
			score,
			map[string]any{
				"events":    len(lst),
				"errors":    errors,
				"event_ids": ids,
			})
	}
}

// floorToWindow truncates a timestamp to its 10-minute bucket boundary in
// the timestamp's own offset.
func floorToWindow(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	return t.Add(-time.Duration(t.Minute()%errorRateWindowMin) * time.Minute)
}
