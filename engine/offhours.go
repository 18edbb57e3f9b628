package engine

const (
	offHoursStart = 0
	offHoursEnd   = 5
)

// passOffHours collects successful logins (status 200) whose local hour
// falls between 00 and 05 inclusive into a single aggregate finding.
func (e *Engine) passOffHours(b *batch, c *collector) {
	ids := make([]int64, 0)
	for _, ev := range b.timeSorted {
		if ev.Status == nil || *ev.Status != 200 {
			continue
		}
		if h := ev.Timestamp.Hour(); h >= offHoursStart && h <= offHoursEnd && ev.ID != 0 {
			ids = append(ids, ev.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	c.emit("auth.offhours",
		"Off-hours successful logins detected",
		0.55,
		map[string]any{
			"event_ids": capIDs(ids, maxFindingIDs),
		})
}
