package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"warptrace/core"
	"warptrace/engine"
	"warptrace/storage"
)

// buildCSV renders a parseable access log with rows spread over ten minutes.
func buildCSV(rows int) string {
	var b strings.Builder
	b.WriteString("time,src_ip,user,status,url\n")
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		ts := base.Add(time.Duration(i%10) * time.Minute)
		fmt.Fprintf(&b, "%s,203.0.113.7,alice,200,https://example.com/app\n", ts.Format(time.RFC3339))
	}
	return b.String()
}

func seedUpload(t *testing.T, ts *testService, content string) *core.Upload {
	t.Helper()
	u, err := ts.svc.CreateUpload("access.csv", content)
	require.NoError(t, err)
	return u
}

func waitForStatus(t *testing.T, store *memStore, id string, want core.UploadStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		u, err := store.Get(id)
		return err == nil && u.Status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartAnalysis_RunsPipelineToDone(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, buildCSV(1250))

	got, started, err := ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, core.UploadStatusProcessing, got.Status)
	assert.Equal(t, progressQueued, got.Progress)

	waitForStatus(t, ts.store, u.ID, core.UploadStatusDone)

	// Progress 37 and 59 come from the two full insert batches:
	// 15 + int(55*500/1250) and 15 + int(55*1000/1250).
	want := []stateChange{
		{u.ID, core.UploadStatusProcessing, 5},
		{u.ID, core.UploadStatusProcessing, 5},
		{u.ID, core.UploadStatusProcessing, 15},
		{u.ID, core.UploadStatusProcessing, 37},
		{u.ID, core.UploadStatusProcessing, 59},
		{u.ID, core.UploadStatusProcessing, 75},
		{u.ID, core.UploadStatusSummarizing, 88},
		{u.ID, core.UploadStatusDone, 100},
	}
	assert.Equal(t, want, ts.store.stateLog())
	assert.Equal(t, want, ts.hub.log())

	events := ts.store.storedEvents(u.ID)
	require.Len(t, events, 1250)
	assert.Greater(t, events[0].ID, int64(0))
	assert.Equal(t, "alice", events[0].User)

	calls, logCtx := ts.narrator.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "access.csv", logCtx.Filename)
	assert.Equal(t, 1250, logCtx.Counts.Events)
	assert.Equal(t, 0, logCtx.Counts.Anomalies)
	assert.Equal(t, 0, logCtx.Counts.Groups)

	final, err := ts.store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "summary text", final.AISummary)
	assert.Equal(t, "test-model", final.AISummaryModel)
	require.NotNil(t, final.AISummaryAt)

	assert.Equal(t, 1250, ts.archive.count())
	assert.Equal(t, 1, ts.store.eventDeletes)
	assert.Equal(t, 1, ts.store.findingReplaces)
}

func TestStartAnalysis_NotFound(t *testing.T) {
	ts := newTestService(t, nil)

	_, _, err := ts.svc.StartAnalysis("missing")
	assert.ErrorIs(t, err, storage.ErrUploadNotFound)
}

func TestStartAnalysis_EchoesWhileRunning(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, buildCSV(3))
	require.NoError(t, ts.store.SetState(u.ID, core.UploadStatusProcessing, 42))
	before := len(ts.store.stateLog())

	got, started, err := ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, core.UploadStatusProcessing, got.Status)
	assert.Equal(t, 42, got.Progress)
	assert.Len(t, ts.store.stateLog(), before)
}

func TestStartAnalysis_EchoesWhenDone(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, buildCSV(3))
	require.NoError(t, ts.store.SetState(u.ID, core.UploadStatusDone, 100))

	got, started, err := ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, core.UploadStatusDone, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestStartAnalysis_QueueUnavailableRestoresState(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := newMemStore()
	narrator := &stubNarrator{text: "s", model: "m"}
	// Pool deliberately not started, so Submit is rejected.
	pool := core.NewWorkerPool(context.Background(), 1, 1, "analysis-test", logger)
	svc := NewAnalysisService(store, store, store,
		engine.NewEngine(engine.Config{}, logger), narrator, pool, nil, nil, nil, logger)

	u, err := svc.CreateUpload("access.csv", buildCSV(3))
	require.NoError(t, err)

	_, _, err = svc.StartAnalysis(u.ID)
	assert.ErrorIs(t, err, core.ErrWorkerPoolNotRunning)

	after, err := store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, core.UploadStatusUploaded, after.Status)
	assert.Equal(t, 0, after.Progress)
}

func TestStartAnalysis_FailedUploadRerunsClean(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, buildCSV(10))

	// Leftovers from an earlier aborted run.
	stale := []*core.LogEvent{{Raw: "stale line"}}
	require.NoError(t, ts.store.InsertEvents(u.ID, stale, nil))
	require.NoError(t, ts.store.SetState(u.ID, core.UploadStatusFailed, 100))

	_, started, err := ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	assert.True(t, started)
	waitForStatus(t, ts.store, u.ID, core.UploadStatusDone)

	events := ts.store.storedEvents(u.ID)
	assert.Len(t, events, 10)
	for _, e := range events {
		assert.NotEqual(t, "stale line", e.Raw)
	}
}

func TestStartAnalysis_EmptyContentFails(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, "")

	_, started, err := ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	assert.True(t, started)

	waitForStatus(t, ts.store, u.ID, core.UploadStatusFailed)
	final, err := ts.store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, final.Progress)

	calls, _ := ts.narrator.snapshot()
	assert.Zero(t, calls)
}

func TestNewAnalysisService_RequiresDependencies(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := newMemStore()
	eng := engine.NewEngine(engine.Config{}, logger)
	narrator := &stubNarrator{}
	pool := core.NewWorkerPool(context.Background(), 1, 1, "analysis-test", logger)

	assert.PanicsWithValue(t, "uploads storage is required", func() {
		NewAnalysisService(nil, store, store, eng, narrator, pool, nil, nil, nil, logger)
	})
	assert.PanicsWithValue(t, "logger is required", func() {
		NewAnalysisService(store, store, store, eng, narrator, pool, nil, nil, nil, nil)
	})
	assert.NotPanics(t, func() {
		NewAnalysisService(store, store, store, eng, narrator, pool, nil, nil, nil, logger)
	})
}
