package engine

import (
	"fmt"
	"strings"
	"time"
)

const (
	tokenBurstWindow   = 300 * time.Second
	tokenBurstMinFails = 15
)

// passTokenBurst tracks failed token exchanges (status 401 on /oauth/token)
// in a 300-second sliding window per host. Reaching 15 failures emits a
// finding and clears that host's window.
func (e *Engine) passTokenBurst(b *batch, c *collector) {
	wins := make(map[string]*window)
	for _, ev := range b.timeSorted {
		if ev.Status == nil || *ev.Status != 401 {
			continue
		}
		if !strings.Contains(ev.URL, "/oauth/token") {
			continue
		}
		host := orDefault(ev.Host, "<auth>")
		w := grab(wins, host)
		w.push(*ev.Timestamp, ev.ID, tokenBurstWindow)
		if w.size() >= tokenBurstMinFails {
			c.emit("auth.token_fail_burst",
				fmt.Sprintf("Spike of token-exchange failures at %s", host),
				0.8,
				map[string]any{
					"window_sec": int(tokenBurstWindow.Seconds()),
					"failures":   w.size(),
					"event_ids":  w.ids(maxFindingIDs),
				})
			w.clear()
		}
	}
}
