package engine

import "time"

// window is a time-bounded ordered buffer of (timestamp, id) entries. Each
// detection pass owns its windows exclusively; there is no cross-pass
// sharing.
type window struct {
	entries []windowEntry
}

type windowEntry struct {
	ts time.Time
	id int64
}

// push appends an entry, then evicts entries older than span relative to the
// newest timestamp. Entries exactly span old are kept.
func (w *window) push(ts time.Time, id int64, span time.Duration) {
	w.entries = append(w.entries, windowEntry{ts: ts, id: id})
	cut := 0
	for cut < len(w.entries) && ts.Sub(w.entries[cut].ts) > span {
		cut++
	}
	if cut > 0 {
		w.entries = w.entries[cut:]
	}
}

func (w *window) size() int { return len(w.entries) }

// ids returns up to max non-zero entry ids in window order.
func (w *window) ids(max int) []int64 {
	ids := make([]int64, 0, len(w.entries))
	for _, e := range w.entries {
		if e.id == 0 {
			continue
		}
		ids = append(ids, e.id)
		if len(ids) == max {
			break
		}
	}
	return ids
}

// clear resets the window after a trigger so the same burst cannot
// immediately re-trigger.
func (w *window) clear() { w.entries = nil }

// grab returns the window for key, creating it on first touch.
func grab[K comparable](wins map[K]*window, key K) *window {
	w, ok := wins[key]
	if !ok {
		w = &window{}
		wins[key] = w
	}
	return w
}
