package core

import "time"

// Finding is one scored anomaly candidate produced by the detection engine.
// Kind is a stable dotted tag (e.g. auth.bruteforce_user) used downstream for
// grouping and narrative selection. Score is a heuristic confidence weight in
// [0,1], not a probability.
type Finding struct {
	Kind   string         `json:"kind" example:"auth.bruteforce_user"`
	Reason string         `json:"reason" example:"Brute-force suspected against user alice"`
	Score  float64        `json:"score" example:"0.95"`
	Meta   map[string]any `json:"meta"`
}

// EventIDs returns the contributing event ids recorded in Meta, in order.
// Handles both the native []int64 the engine emits and the []any shape a
// JSON round trip produces.
func (f *Finding) EventIDs() []int64 {
	if f.Meta == nil {
		return nil
	}
	switch v := f.Meta["event_ids"].(type) {
	case []int64:
		return v
	case []any:
		ids := make([]int64, 0, len(v))
		for _, x := range v {
			switch n := x.(type) {
			case int64:
				ids = append(ids, n)
			case float64:
				ids = append(ids, int64(n))
			case int:
				ids = append(ids, int64(n))
			}
		}
		return ids
	default:
		return nil
	}
}

// PrimaryEventID returns the first contributing event id, or 0 if the finding
// carries none.
func (f *Finding) PrimaryEventID() int64 {
	if ids := f.EventIDs(); len(ids) > 0 {
		return ids[0]
	}
	return 0
}

// Anomaly is the persisted trace of one finding. EventID is 0 when the
// finding had no attributable event.
type Anomaly struct {
	ID        int64     `json:"id"`
	UploadID  string    `json:"-"`
	EventID   int64     `json:"event_id,omitempty"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}
