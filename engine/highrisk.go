package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const defaultRisk = 0.9

// passHighRisk reads provider risk hints out of the raw text. A "risk="
// fragment yields a score scaled by the parsed value; otherwise TOR
// vocabulary yields a fixed high score. One finding per matching event.
func (e *Engine) passHighRisk(b *batch, c *collector) {
	for i := range b.events {
		ev := &b.events[i]
		raw := ev.Raw
		if idx := strings.Index(raw, "risk="); idx >= 0 {
			val := parseRisk(raw[idx+len("risk="):])
			c.emit("auth.high_risk",
				fmt.Sprintf("High-risk login source (user=%s ip=%s)", ev.User, ev.SourceIP),
				clamp(0.85+0.15*val, 0, 1),
				map[string]any{
					"risk":      val,
					"event_ids": singleID(ev.ID),
				})
		} else if strings.Contains(raw, "tor") || strings.Contains(raw, "tor_exit") {
			c.emit("auth.tor",
				fmt.Sprintf("Login from TOR-like source (user=%s ip=%s)", ev.User, ev.SourceIP),
				0.88,
				map[string]any{
					"event_ids": singleID(ev.ID),
				})
		}
	}
}

// parseRisk extracts the numeric token following "risk=". Parse failures
// fall back to a high default so a malformed hint still surfaces. NaN and
// infinities count as failures to keep scores JSON-serializable.
func parseRisk(frag string) float64 {
	fields := strings.Fields(frag)
	if len(fields) == 0 {
		return defaultRisk
	}
	val, err := strconv.ParseFloat(strings.Trim(fields[0], " ;,"), 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return defaultRisk
	}
	return val
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
