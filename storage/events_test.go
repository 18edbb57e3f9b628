package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"warptrace/core"
)

func seedUpload(t *testing.T, db *SQLite) string {
	t.Helper()
	u := core.NewUpload("seed.log", "raw")
	require.NoError(t, NewUploadStore(db, zaptest.NewLogger(t).Sugar()).Create(u))
	return u.ID
}

func rawEvents(n int) []*core.LogEvent {
	events := make([]*core.LogEvent, n)
	for i := range events {
		events[i] = &core.LogEvent{Raw: fmt.Sprintf("line %d", i)}
	}
	return events
}

func TestEventStore_InsertEvents_AssignsIDs(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db, zaptest.NewLogger(t).Sugar())
	uploadID := seedUpload(t, db)

	events := rawEvents(3)
	require.NoError(t, store.InsertEvents(uploadID, events, nil))

	var prev int64
	for _, e := range events {
		assert.Greater(t, e.ID, prev)
		assert.Equal(t, uploadID, e.UploadID)
		prev = e.ID
	}
}

func TestEventStore_InsertEvents_ReportsBatchProgress(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		wantCalls [][2]int
	}{
		{"under one batch", 499, nil},
		{"exactly one batch", 500, [][2]int{{500, 500}}},
		{"partial trailing batch", 1250, [][2]int{{500, 1250}, {1000, 1250}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			store := NewEventStore(db, zaptest.NewLogger(t).Sugar())
			uploadID := seedUpload(t, db)

			var calls [][2]int
			err := store.InsertEvents(uploadID, rawEvents(tt.count), func(inserted, total int) {
				calls = append(calls, [2]int{inserted, total})
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, calls)

			n, err := store.CountEvents(uploadID)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.count), n)
		})
	}
}

func TestEventStore_EventsByUpload_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db, zaptest.NewLogger(t).Sugar())
	uploadID := seedUpload(t, db)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	status := 403
	bytes := int64(1024)
	full := &core.LogEvent{
		Timestamp: &ts,
		SourceIP:  "203.0.113.7",
		User:      "alice",
		URL:       "https://auth.example.com/authorize",
		Action:    "block",
		Status:    &status,
		Bytes:     &bytes,
		UserAgent: "curl/8.0",
		Raw:       "failed login",
	}
	sparse := &core.LogEvent{Raw: "just a line"}
	require.NoError(t, store.InsertEvents(uploadID, []*core.LogEvent{full, sparse}, nil))

	got, err := store.EventsByUpload(uploadID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, full.ID, got[0].ID)
	require.NotNil(t, got[0].Timestamp)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Equal(t, "203.0.113.7", got[0].SourceIP)
	assert.Equal(t, "alice", got[0].User)
	assert.Equal(t, "https://auth.example.com/authorize", got[0].URL)
	assert.Equal(t, "block", got[0].Action)
	require.NotNil(t, got[0].Status)
	assert.Equal(t, 403, *got[0].Status)
	require.NotNil(t, got[0].Bytes)
	assert.Equal(t, int64(1024), *got[0].Bytes)
	assert.Equal(t, "curl/8.0", got[0].UserAgent)
	assert.Equal(t, "failed login", got[0].Raw)

	// Absent values come back absent, not as zero values.
	assert.Nil(t, got[1].Timestamp)
	assert.Empty(t, got[1].SourceIP)
	assert.Nil(t, got[1].Status)
	assert.Nil(t, got[1].Bytes)
	assert.Equal(t, "just a line", got[1].Raw)
}

func TestEventStore_EventsByUpload_Empty(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db, zaptest.NewLogger(t).Sugar())
	uploadID := seedUpload(t, db)

	got, err := store.EventsByUpload(uploadID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEventStore_InsertEvents_RequiresUpload(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db, zaptest.NewLogger(t).Sugar())

	err := store.InsertEvents("no-such-upload", rawEvents(1), nil)
	assert.Error(t, err)
}

func TestEventStore_DeleteByUpload(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db, zaptest.NewLogger(t).Sugar())
	first := seedUpload(t, db)
	second := seedUpload(t, db)

	require.NoError(t, store.InsertEvents(first, rawEvents(4), nil))
	require.NoError(t, store.InsertEvents(second, rawEvents(2), nil))

	require.NoError(t, store.DeleteByUpload(first))

	n, err := store.CountEvents(first)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.CountEvents(second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
