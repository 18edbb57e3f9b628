// Package engine implements the anomaly detection engine.
//
// The engine is a pure, deterministic function over one batch of access
// events: normalization coerces loose producer records into canonical form,
// eight independent detection passes scan the normalized batch (or a
// time-sorted view of it) and emit scored finding candidates, and a
// structural deduplicator collapses identical candidates while preserving
// order. The engine holds no state between invocations, performs no I/O,
// and never reads the wall clock, so identical input always yields
// identical output.
//
// Passes are isolated from each other: a panic inside one heuristic is
// recovered and degrades to zero findings for that pass only. Passes may
// optionally run on separate goroutines; results are concatenated in pass
// declaration order, keeping dedup and id-cap behavior deterministic.
package engine
