package engine

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"warptrace/core"
	"warptrace/metrics"
)

// maxFindingIDs caps the event id samples attached to a finding's meta.
const maxFindingIDs = 50

// Config controls detection behavior.
type Config struct {
	// ExtraRecognizers are appended after the built-in activity
	// recognizers, typically loaded from a rules file.
	ExtraRecognizers []Recognizer

	// ParallelPasses runs each detection pass on its own goroutine.
	// Output order is unaffected.
	ParallelPasses bool
}

// Engine runs the detection passes over a normalized event batch.
// An Engine is safe for concurrent use; passes never share mutable state.
type Engine struct {
	recognizers []Recognizer
	parallel    bool
	logger      *zap.SugaredLogger
}

// NewEngine builds an engine with the built-in recognizers plus any
// configured extras.
func NewEngine(cfg Config, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	recognizers := DefaultRecognizers()
	recognizers = append(recognizers, cfg.ExtraRecognizers...)
	return &Engine{
		recognizers: recognizers,
		parallel:    cfg.ParallelPasses,
		logger:      logger,
	}
}

// batch is the read-only input shared by every pass.
type batch struct {
	events []Event

	// timeSorted holds pointers to events with a timestamp, ordered
	// ascending. The sort is stable so ties keep input order.
	timeSorted []*Event

	// uaCounts counts occurrences of each non-empty user agent.
	uaCounts map[string]int
}

func newBatch(events []Event) *batch {
	b := &batch{
		events:   events,
		uaCounts: make(map[string]int),
	}
	for i := range events {
		if events[i].Timestamp != nil {
			b.timeSorted = append(b.timeSorted, &events[i])
		}
		if events[i].UserAgent != "" {
			b.uaCounts[events[i].UserAgent]++
		}
	}
	sort.SliceStable(b.timeSorted, func(i, j int) bool {
		return b.timeSorted[i].Timestamp.Before(*b.timeSorted[j].Timestamp)
	})
	return b
}

// collector accumulates the findings produced by a single pass.
type collector struct {
	findings []core.Finding
}

func (c *collector) emit(kind, reason string, score float64, meta map[string]any) {
	c.findings = append(c.findings, core.Finding{
		Kind:   kind,
		Reason: reason,
		Score:  score,
		Meta:   meta,
	})
}

type pass struct {
	name string
	run  func(*batch, *collector)
}

// passes returns the detection passes in emission order. Order matters:
// findings are concatenated pass by pass, and downstream grouping keys
// off first appearance.
func (e *Engine) passes() []pass {
	return []pass{
		{"pwd_mfa_activity", e.passActivity},
		{"brute_force", e.passBruteForce},
		{"blocked_protection", e.passBlocked},
		{"high_risk_source", e.passHighRisk},
		{"high_error_rate", e.passErrorRate},
		{"rare_ua", e.passRareUA},
		{"off_hours_logins", e.passOffHours},
		{"token_exchange_failures", e.passTokenBurst},
	}
}

// runPass executes one pass with panic isolation. A panicking pass
// contributes nothing; the others are unaffected.
func (e *Engine) runPass(p pass, b *batch) (findings []core.Finding) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("Detection pass panicked",
				"pass", p.name,
				"panic", r)
			findings = nil
		}
	}()
	c := &collector{}
	p.run(b, c)
	return c.findings
}

// Detect runs every pass over the given normalized events and returns
// the deduplicated findings in pass order. The result is deterministic
// for a given input and never nil.
func (e *Engine) Detect(events []Event) []core.Finding {
	all := []core.Finding{}
	if len(events) == 0 {
		return all
	}
	b := newBatch(events)
	ps := e.passes()
	if e.parallel {
		results := make([][]core.Finding, len(ps))
		var wg sync.WaitGroup
		for i, p := range ps {
			wg.Add(1)
			go func(slot int, p pass) {
				defer wg.Done()
				results[slot] = e.runPass(p, b)
			}(i, p)
		}
		wg.Wait()
		for _, r := range results {
			all = append(all, r...)
		}
	} else {
		for _, p := range ps {
			all = append(all, e.runPass(p, b)...)
		}
	}
	all = Dedupe(all)
	for i := range all {
		metrics.FindingsDetected.WithLabelValues(all[i].Kind).Inc()
	}
	return all
}

// Analyze normalizes raw event maps and runs detection over them.
func (e *Engine) Analyze(raws []RawEvent) []core.Finding {
	return e.Detect(Normalize(raws))
}

// capIDs returns at most n ids, never nil.
func capIDs(ids []int64, n int) []int64 {
	if len(ids) > n {
		ids = ids[:n]
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids
}

// singleID wraps a single event id, dropping the zero sentinel.
func singleID(id int64) []int64 {
	if id == 0 {
		return []int64{}
	}
	return []int64{id}
}
