// Package a contains test cases for the clockcheck analyzer.
package a

import "time"

// latestOf derives the reference time from the events themselves - allowed.
func latestOf(stamps []time.Time) time.Time {
	var latest time.Time
	for _, ts := range stamps {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

// staleness reads the wall clock - flagged.
func staleness(ts time.Time) time.Duration {
	return time.Now().Sub(ts) // want "time.Now\\(\\) used in staleness"
}

// windowCutoff reads the wall clock in an assignment - flagged.
func windowCutoff(maxAge time.Duration) time.Time {
	cutoff := time.Now().Add(-maxAge) // want "time.Now\\(\\) used in windowCutoff"
	return cutoff
}

// doubleRead reads the clock twice - both flagged.
func doubleRead() time.Duration {
	start := time.Now() // want "time.Now\\(\\) used in doubleRead"
	end := time.Now()   // want "time.Now\\(\\) used in doubleRead"
	return end.Sub(start)
}

// timedMatch measures its own duration for a metric - exempted inline.
func timedMatch() time.Duration {
	start := time.Now() // clockcheck:exempt match timing metric only
	return time.Since(start)
}

// exemptAbove carries the exemption on the preceding line.
func exemptAbove() time.Time {
	// clockcheck:exempt cache stamp, never compared to event times
	return time.Now()
}
