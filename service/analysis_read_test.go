package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"warptrace/core"
	"warptrace/storage"
)

func TestCreateUpload(t *testing.T) {
	ts := newTestService(t, nil)

	u, err := ts.svc.CreateUpload("traffic.jsonl", "{}")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "traffic.jsonl", u.Filename)
	assert.Equal(t, core.UploadStatusUploaded, u.Status)
	assert.Zero(t, u.Progress)
	assert.False(t, u.CreatedAt.IsZero())

	listed, err := ts.svc.Uploads()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, u.ID, listed[0].ID)
}

func TestUploadFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"access.csv", "csv"},
		{"auth0.JSONL", "jsonl"},
		{"server.log", "log"},
		{"dump", "none"},
		{"archive.tar.gz", "gz"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, uploadFormat(tt.filename), tt.filename)
	}
}

func TestBuildAnalysis_NotFound(t *testing.T) {
	ts := newTestService(t, nil)

	_, err := ts.svc.BuildAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrUploadNotFound)
}

func TestBuildAnalysis_PartialWhileProcessing(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, buildCSV(3))
	require.NoError(t, ts.store.SetState(u.ID, core.UploadStatusProcessing, 42))

	doc, err := ts.svc.BuildAnalysis(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, doc.Done())
	assert.Equal(t, core.UploadStatusProcessing, doc.Status)
	assert.Equal(t, 42, doc.Progress)
	assert.Equal(t, u.ID, doc.Upload.ID)
	assert.Equal(t, "access.csv", doc.Upload.Filename)
	assert.Nil(t, doc.Events)
	assert.Empty(t, doc.Summary)
}

func TestBuildAnalysis_ReportsFreshUploadAsUploaded(t *testing.T) {
	ts := newTestService(t, nil)
	u := &core.Upload{ID: "fresh", Filename: "a.csv"}
	require.NoError(t, ts.store.Create(u))

	doc, err := ts.svc.BuildAnalysis(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, core.UploadStatusUploaded, doc.Status)
	assert.Zero(t, doc.Progress)
}

func TestBuildAnalysis_DoneRecomputes(t *testing.T) {
	ts := newTestService(t, nil)
	u := seedUpload(t, ts, buildCSV(10))
	_, _, err := ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	waitForStatus(t, ts.store, u.ID, core.UploadStatusDone)

	doc, err := ts.svc.BuildAnalysis(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, doc.Done())
	assert.Equal(t, core.UploadStatusDone, doc.Status)
	assert.Equal(t, 100, doc.Progress)
	require.Len(t, doc.Events, 10)
	assert.NotEmpty(t, doc.Timeline)
	// Benign traffic yields no groups, but the field still marshals as [].
	require.NotNil(t, doc.Groups)
	assert.Empty(t, doc.Groups)
	assert.Equal(t, "summary text", doc.Summary)
}

func TestBuildAnalysis_CachesDoneDocument(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := core.NewRedisCache(mr.Addr(), "", 0, 4, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { cache.Close() })

	ts := newTestService(t, cache)
	u := seedUpload(t, ts, buildCSV(10))
	_, _, err = ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	waitForStatus(t, ts.store, u.ID, core.UploadStatusDone)

	key := core.AnalysisCacheKey(u.ID)

	first, err := ts.svc.BuildAnalysis(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, first.Events, 10)
	assert.True(t, mr.Exists(key))

	// A stale extra row proves the second read came from the cache.
	require.NoError(t, ts.store.InsertEvents(u.ID, []*core.LogEvent{{Raw: "extra"}}, nil))
	second, err := ts.svc.BuildAnalysis(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, second.Events, 10)

	// Re-running the analysis drops the cached document.
	require.NoError(t, ts.store.SetState(u.ID, core.UploadStatusFailed, 100))
	_, _, err = ts.svc.StartAnalysis(u.ID)
	require.NoError(t, err)
	waitForStatus(t, ts.store, u.ID, core.UploadStatusDone)
	assert.False(t, mr.Exists(key))

	third, err := ts.svc.BuildAnalysis(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, third.Events, 10)
	assert.True(t, mr.Exists(key))
}
