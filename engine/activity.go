package engine

import (
	"fmt"
	"strings"
)

// activityKey clusters recognizer matches by minute, user, and address.
type activityKey struct {
	minute string
	user   string
	ip     string
}

// activityBuckets accumulates matched event ids per key in first-touch
// order, so emission order is a function of input order alone.
type activityBuckets struct {
	order []activityKey
	ids   map[activityKey][]int64
}

func newActivityBuckets() *activityBuckets {
	return &activityBuckets{ids: make(map[activityKey][]int64)}
}

// add records a match. The bucket is created even when the event carries no
// id, so a bucket full of id-less matches still emits.
func (ab *activityBuckets) add(k activityKey, id int64) {
	if _, ok := ab.ids[k]; !ok {
		ab.order = append(ab.order, k)
		ab.ids[k] = nil
	}
	if id != 0 {
		ab.ids[k] = append(ab.ids[k], id)
	}
}

// passActivity buckets events whose derived text matches an activity
// recognizer and emits one finding per recognizer per bucket. Built-in
// recognizers cover password reset/change and MFA activity; custom
// recognizers loaded from configuration participate identically.
func (e *Engine) passActivity(b *batch, c *collector) {
	buckets := make([]*activityBuckets, len(e.recognizers))
	for i := range buckets {
		buckets[i] = newActivityBuckets()
	}

	for i := range b.events {
		ev := &b.events[i]
		text := eventText(ev)
		key := activityKey{
			minute: bucketMinute(ev.Timestamp),
			user:   orDefault(strings.TrimSpace(ev.User), "<unknown>"),
			ip:     orDefault(strings.TrimSpace(ev.SourceIP), "<ip?>"),
		}
		for ri := range e.recognizers {
			if e.recognizers[ri].Classifier.Match(text) {
				buckets[ri].add(key, ev.ID)
			}
		}
	}

	for ri := range e.recognizers {
		r := &e.recognizers[ri]
		for _, key := range buckets[ri].order {
			c.emit(r.Kind, fmt.Sprintf(r.Reason, key.user), r.Score, map[string]any{
				"user":      key.user,
				"src_ip":    key.ip,
				"minute":    key.minute,
				"event_ids": capIDs(buckets[ri].ids[key], maxFindingIDs),
			})
		}
	}
}
