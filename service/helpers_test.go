package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"warptrace/core"
	"warptrace/engine"
	"warptrace/storage"
	"warptrace/summarize"
)

// memStore is an in-memory stand-in for the three storage interfaces. It
// mirrors the real event store's progress reporting: one callback per full
// batch of 500, none for the trailing partial batch.
type memStore struct {
	mu       sync.Mutex
	uploads  map[string]*core.Upload
	events   map[string][]*core.LogEvent
	findings map[string][]core.Finding
	nextID   int64

	states          []stateChange
	eventDeletes    int
	findingReplaces int
}

type stateChange struct {
	uploadID string
	status   core.UploadStatus
	progress int
}

func newMemStore() *memStore {
	return &memStore{
		uploads:  make(map[string]*core.Upload),
		events:   make(map[string][]*core.LogEvent),
		findings: make(map[string][]core.Finding),
	}
}

func (m *memStore) Create(u *core.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.uploads[u.ID] = &cp
	return nil
}

func (m *memStore) Get(id string) (*core.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, storage.ErrUploadNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) List() ([]*core.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Upload, 0, len(m.uploads))
	for _, u := range m.uploads {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SetState(id string, status core.UploadStatus, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return storage.ErrUploadNotFound
	}
	u.Status = status
	u.Progress = core.ClampProgress(progress)
	m.states = append(m.states, stateChange{uploadID: id, status: status, progress: progress})
	return nil
}

func (m *memStore) SaveSummary(id, summary, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return storage.ErrUploadNotFound
	}
	now := time.Now().UTC()
	u.AISummary = summary
	u.AISummaryModel = model
	u.AISummaryAt = &now
	return nil
}

func (m *memStore) DeleteByUpload(uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventDeletes++
	delete(m.events, uploadID)
	return nil
}

func (m *memStore) InsertEvents(uploadID string, events []*core.LogEvent, onProgress func(inserted, total int)) error {
	total := len(events)
	for i, e := range events {
		m.mu.Lock()
		m.nextID++
		e.ID = m.nextID
		e.UploadID = uploadID
		m.events[uploadID] = append(m.events[uploadID], e)
		m.mu.Unlock()
		if inserted := i + 1; inserted%500 == 0 && onProgress != nil {
			onProgress(inserted, total)
		}
	}
	return nil
}

func (m *memStore) EventsByUpload(uploadID string) ([]*core.LogEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.events[uploadID]
	out := make([]*core.LogEvent, len(evs))
	for i, e := range evs {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *memStore) ReplaceFindings(uploadID string, findings []core.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findingReplaces++
	m.findings[uploadID] = findings
	return nil
}

func (m *memStore) stateLog() []stateChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stateChange, len(m.states))
	copy(out, m.states)
	return out
}

func (m *memStore) storedEvents(uploadID string) []*core.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.LogEvent(nil), m.events[uploadID]...)
}

type stubNarrator struct {
	mu           sync.Mutex
	calls        int
	lastContext  summarize.LogContext
	lastGroups   []core.AnomalyGroup
	lastTimeline []core.TimelinePoint
	text         string
	model        string
}

func (n *stubNarrator) SummarizeLog(_ context.Context, logCtx summarize.LogContext, groups []core.AnomalyGroup, timeline []core.TimelinePoint) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.lastContext = logCtx
	n.lastGroups = groups
	n.lastTimeline = timeline
	return n.text
}

func (n *stubNarrator) Model() string { return n.model }

func (n *stubNarrator) snapshot() (int, summarize.LogContext) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls, n.lastContext
}

type recordHub struct {
	mu         sync.Mutex
	broadcasts []stateChange
}

func (h *recordHub) BroadcastStatus(uploadID string, status core.UploadStatus, progress int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, stateChange{uploadID: uploadID, status: status, progress: progress})
}

func (h *recordHub) log() []stateChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]stateChange, len(h.broadcasts))
	copy(out, h.broadcasts)
	return out
}

type fakeArchive struct {
	mu     sync.Mutex
	events []*core.LogEvent
	err    error
}

func (a *fakeArchive) Enqueue(e *core.LogEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

// testService bundles a service with its collaborators for assertions.
type testService struct {
	svc      *AnalysisService
	store    *memStore
	narrator *stubNarrator
	hub      *recordHub
	archive  *fakeArchive
	pool     *core.WorkerPool
}

func newTestService(t *testing.T, cache AnalysisCache) *testService {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	store := newMemStore()
	narrator := &stubNarrator{text: "summary text", model: "test-model"}
	hub := &recordHub{}
	archive := &fakeArchive{}

	pool := core.NewWorkerPool(context.Background(), 2, 16, "analysis-test", logger)
	if err := pool.Start(); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(pool.Stop)

	svc := NewAnalysisService(
		store, store, store,
		engine.NewEngine(engine.Config{}, logger),
		narrator,
		pool,
		archive,
		cache,
		hub,
		logger,
	)
	return &testService{svc: svc, store: store, narrator: narrator, hub: hub, archive: archive, pool: pool}
}
