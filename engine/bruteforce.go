package engine

import (
	"fmt"
	"time"
)

const (
	bruteForceWindow   = 120 * time.Second
	bruteForceMinFails = 10
)

type bruteForcePair struct {
	user string
	ip   string
}

// passBruteForce tracks failed logins (status 401) in 120-second sliding
// windows, grouped by user alone and by user+address pair. Reaching 10
// failures in a window emits a finding and clears that window, so the same
// burst does not immediately re-trigger.
func (e *Engine) passBruteForce(b *batch, c *collector) {
	userWins := make(map[string]*window)
	pairWins := make(map[bruteForcePair]*window)

	for _, ev := range b.timeSorted {
		if ev.Status == nil || *ev.Status != 401 {
			continue
		}
		user := orDefault(ev.User, "<unknown>")
		pair := bruteForcePair{user: user, ip: orDefault(ev.SourceIP, "<ip?>")}

		uw := grab(userWins, user)
		pw := grab(pairWins, pair)
		uw.push(*ev.Timestamp, ev.ID, bruteForceWindow)
		pw.push(*ev.Timestamp, ev.ID, bruteForceWindow)

		if uw.size() >= bruteForceMinFails {
			c.emit("auth.bruteforce_user",
				fmt.Sprintf("Brute-force suspected against user %s", user),
				0.95,
				map[string]any{
					"window_sec": int(bruteForceWindow.Seconds()),
					"failures":   uw.size(),
					"user":       user,
					"event_ids":  uw.ids(maxFindingIDs),
				})
			uw.clear()
		}
		if pw.size() >= bruteForceMinFails {
			c.emit("auth.bruteforce_pair",
				fmt.Sprintf("Brute-force suspected from %s targeting %s", pair.ip, pair.user),
				0.96,
				map[string]any{
					"window_sec": int(bruteForceWindow.Seconds()),
					"failures":   pw.size(),
					"user":       pair.user,
					"src_ip":     pair.ip,
					"event_ids":  pw.ids(maxFindingIDs),
				})
			pw.clear()
		}
	}
}
