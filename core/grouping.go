package core

import "sort"

// AnomalyGroup aggregates findings of one kind for presentation.
type AnomalyGroup struct {
	Kind      string      `json:"kind"`
	Count     int         `json:"count"`
	Reasons   []string    `json:"reasons"`
	Users     []string    `json:"users"`
	SourceIPs []string    `json:"src_ips"`
	Samples   []*LogEvent `json:"samples"`
}

type groupAccum struct {
	kind    string
	count   int
	reasons map[string]struct{}
	users   map[string]struct{}
	ips     map[string]struct{}
	seenIDs []int64
	samples []*LogEvent
}

func (g *groupAccum) sawID(id int64) bool {
	for _, s := range g.seenIDs {
		if s == id {
			return true
		}
	}
	return false
}

// GroupFindings buckets findings by kind, collecting distinct reasons, the
// users and source addresses of referenced events, and up to MaxGroupSamples
// sample events per kind. Groups are ordered by descending finding count;
// ties keep first-appearance order.
func GroupFindings(findings []Finding, index EventIndex) []AnomalyGroup {
	accums := make(map[string]*groupAccum)
	var order []string

	for i := range findings {
		f := &findings[i]
		kind := f.Kind
		if kind == "" {
			kind = "other"
		}
		g, ok := accums[kind]
		if !ok {
			g = &groupAccum{
				kind:    kind,
				reasons: make(map[string]struct{}),
				users:   make(map[string]struct{}),
				ips:     make(map[string]struct{}),
			}
			accums[kind] = g
			order = append(order, kind)
		}
		g.count++
		if f.Reason != "" {
			g.reasons[f.Reason] = struct{}{}
		}
		ids := f.EventIDs()
		for _, id := range ids {
			if ev, ok := index[id]; ok {
				if ev.User != "" {
					g.users[ev.User] = struct{}{}
				}
				if ev.SourceIP != "" {
					g.ips[ev.SourceIP] = struct{}{}
				}
			}
		}
		// Distinct sample ids are capped even when the id has no stored row,
		// so repeated references cannot crowd out other findings' samples.
		for _, id := range ids {
			if len(g.seenIDs) >= MaxGroupSamples {
				break
			}
			if g.sawID(id) {
				continue
			}
			g.seenIDs = append(g.seenIDs, id)
			if ev, ok := index[id]; ok {
				g.samples = append(g.samples, ev)
			}
		}
	}

	out := make([]AnomalyGroup, 0, len(order))
	for _, kind := range order {
		g := accums[kind]
		samples := g.samples
		if samples == nil {
			samples = []*LogEvent{}
		}
		out = append(out, AnomalyGroup{
			Kind:      g.kind,
			Count:     g.count,
			Reasons:   sortedCapped(g.reasons, MaxGroupReasons),
			Users:     sortedCapped(g.users, MaxGroupUsers),
			SourceIPs: sortedCapped(g.ips, MaxGroupIPs),
			Samples:   samples,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func sortedCapped(set map[string]struct{}, limit int) []string {
	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	if len(vals) > limit {
		vals = vals[:limit]
	}
	return vals
}
