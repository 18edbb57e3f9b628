package engine

import "fmt"

const (
	rareUAMinCount   = 2
	maxRareUASamples = 10
)

// passRareUA flags user-agent strings seen fewer than twice across the whole
// batch. Each distinct value emits at most once, with up to 10 sample ids.
func (e *Engine) passRareUA(b *batch, c *collector) {
	seen := make(map[string]struct{})
	for i := range b.events {
		ua := b.events[i].UserAgent
		if ua == "" {
			continue
		}
		if _, dup := seen[ua]; dup {
			continue
		}
		count := b.uaCounts[ua]
		if count >= rareUAMinCount {
			continue
		}
		ids := make([]int64, 0, maxRareUASamples)
		for j := range b.events {
			if b.events[j].UserAgent == ua && b.events[j].ID != 0 {
				ids = append(ids, b.events[j].ID)
				if len(ids) == maxRareUASamples {
					break
				}
			}
		}
		score := 0.58
		if count == 1 {
			score = 0.62
		}
		c.emit("web.rare_ua",
			fmt.Sprintf("Rare user-agent observed: '%s'", ua),
			score,
			map[string]any{
				"count":     count,
				"event_ids": ids,
			})
		seen[ua] = struct{}{}
	}
}
