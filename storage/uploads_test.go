package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"warptrace/core"
)

func newUploadStore(t *testing.T) (*UploadStore, *SQLite) {
	t.Helper()
	db := newTestDB(t)
	return NewUploadStore(db, zaptest.NewLogger(t).Sugar()), db
}

func TestUploadStore_CreateAndGet(t *testing.T) {
	store, _ := newUploadStore(t)

	u := core.NewUpload("auth0-march.jsonl", "{\"type\":\"f\"}\n")
	require.NoError(t, store.Create(u))

	got, err := store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "auth0-march.jsonl", got.Filename)
	assert.Equal(t, core.UploadStatusUploaded, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, u.RawContent, got.RawContent)
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))
	assert.Empty(t, got.AISummary)
	assert.Nil(t, got.AISummaryAt)
}

func TestUploadStore_Get_NotFound(t *testing.T) {
	store, _ := newUploadStore(t)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestUploadStore_List_NewestFirst(t *testing.T) {
	store, _ := newUploadStore(t)

	for i, day := range []int{1, 2, 3} {
		u := &core.Upload{
			ID:         []string{"u1", "u2", "u3"}[i],
			Filename:   "batch.log",
			CreatedAt:  time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC),
			Status:     core.UploadStatusUploaded,
			RawContent: "raw content",
		}
		require.NoError(t, store.Create(u))
	}
	require.NoError(t, store.SaveSummary("u2", "quiet day", "test-model"))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "u3", list[0].ID)
	assert.Equal(t, "u2", list[1].ID)
	assert.Equal(t, "u1", list[2].ID)

	// Raw content stays behind; the summary comes along.
	assert.Empty(t, list[0].RawContent)
	assert.Equal(t, "quiet day", list[1].AISummary)
	assert.Empty(t, list[0].AISummary)
}

func TestUploadStore_SetState(t *testing.T) {
	store, _ := newUploadStore(t)

	u := core.NewUpload("a.log", "x")
	require.NoError(t, store.Create(u))

	require.NoError(t, store.SetState(u.ID, core.UploadStatusProcessing, 5))
	got, err := store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, core.UploadStatusProcessing, got.Status)
	assert.Equal(t, 5, got.Progress)
}

func TestUploadStore_SetState_ClampsProgress(t *testing.T) {
	store, _ := newUploadStore(t)

	u := core.NewUpload("a.log", "x")
	require.NoError(t, store.Create(u))

	require.NoError(t, store.SetState(u.ID, core.UploadStatusDone, 150))
	got, err := store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)

	require.NoError(t, store.SetState(u.ID, core.UploadStatusFailed, -5))
	got, err = store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
}

func TestUploadStore_SetState_NotFound(t *testing.T) {
	store, _ := newUploadStore(t)
	assert.ErrorIs(t, store.SetState("missing", core.UploadStatusDone, 100), ErrUploadNotFound)
}

func TestUploadStore_SaveSummary(t *testing.T) {
	store, _ := newUploadStore(t)

	u := core.NewUpload("a.log", "x")
	require.NoError(t, store.Create(u))

	require.NoError(t, store.SaveSummary(u.ID, "Brute-force activity against alice.", "gpt-4o-mini"))

	got, err := store.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Brute-force activity against alice.", got.AISummary)
	assert.Equal(t, "gpt-4o-mini", got.AISummaryModel)
	require.NotNil(t, got.AISummaryAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.AISummaryAt, time.Minute)
}

func TestUploadStore_SaveSummary_NotFound(t *testing.T) {
	store, _ := newUploadStore(t)
	assert.ErrorIs(t, store.SaveSummary("missing", "s", "m"), ErrUploadNotFound)
}
