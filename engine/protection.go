package engine

import (
	"fmt"
	"strings"
)

// passBlocked flags logins the identity provider itself rejected: status 403
// with attack vocabulary in the raw text. One finding per matching event.
func (e *Engine) passBlocked(b *batch, c *collector) {
	for i := range b.events {
		ev := &b.events[i]
		if ev.Status == nil || *ev.Status != 403 {
			continue
		}
		if !strings.Contains(ev.Raw, "brute-force") && !strings.Contains(ev.Raw, "blocked") {
			continue
		}
		c.emit("auth.blocked",
			fmt.Sprintf("Auth0 protection blocked login (user=%s ip=%s)", ev.User, ev.SourceIP),
			0.9,
			map[string]any{
				"status":    *ev.Status,
				"event_ids": singleID(ev.ID),
			})
	}
}
