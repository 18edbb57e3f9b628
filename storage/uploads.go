package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warptrace/core"
)

// UploadStore persists uploads and their analysis state.
type UploadStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewUploadStore creates an upload store backed by db.
func NewUploadStore(db *SQLite, logger *zap.SugaredLogger) *UploadStore {
	return &UploadStore{db: db, logger: logger}
}

// Create inserts a new upload row.
func (s *UploadStore) Create(u *core.Upload) error {
	_, err := s.db.WriteDB.Exec(`
		INSERT INTO uploads (id, filename, created_at, status, progress, raw_content)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Filename, u.CreatedAt, string(u.Status), u.Progress, u.RawContent)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	s.logger.Infow("Upload stored", "upload_id", u.ID, "filename", u.Filename)
	return nil
}

// Get loads one upload including its raw content and cached summary.
func (s *UploadStore) Get(id string) (*core.Upload, error) {
	row := s.db.ReadDB.QueryRow(`
		SELECT id, filename, created_at, status, progress, raw_content,
		       COALESCE(ai_summary, ''), COALESCE(ai_summary_model, ''), ai_summary_at
		FROM uploads WHERE id = ?`, id)

	var (
		u         core.Upload
		status    string
		summaryAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Filename, &u.CreatedAt, &status, &u.Progress,
		&u.RawContent, &u.AISummary, &u.AISummaryModel, &summaryAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}
	u.Status = core.UploadStatus(status)
	if summaryAt.Valid {
		t := summaryAt.Time
		u.AISummaryAt = &t
	}
	return &u, nil
}

// List returns all uploads, newest first. Raw content is not loaded; the
// cached summary is, so callers can derive a has_summary flag without a
// second query.
func (s *UploadStore) List() ([]*core.Upload, error) {
	rows, err := s.db.ReadDB.Query(`
		SELECT id, filename, created_at, status, progress,
		       COALESCE(ai_summary, ''), COALESCE(ai_summary_model, ''), ai_summary_at
		FROM uploads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*core.Upload
	for rows.Next() {
		var (
			u         core.Upload
			status    string
			summaryAt sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Filename, &u.CreatedAt, &status, &u.Progress,
			&u.AISummary, &u.AISummaryModel, &summaryAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		u.Status = core.UploadStatus(status)
		if summaryAt.Valid {
			t := summaryAt.Time
			u.AISummaryAt = &t
		}
		uploads = append(uploads, &u)
	}
	return uploads, rows.Err()
}

// SetState updates the pipeline status and progress of an upload. Progress
// is clamped to [0,100].
func (s *UploadStore) SetState(id string, status core.UploadStatus, progress int) error {
	res, err := s.db.WriteDB.Exec(
		"UPDATE uploads SET status = ?, progress = ? WHERE id = ?",
		string(status), core.ClampProgress(progress), id)
	if err != nil {
		return fmt.Errorf("failed to update upload state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// SaveSummary caches the generated narrative on the upload row together
// with the model that produced it.
func (s *UploadStore) SaveSummary(id, summary, model string) error {
	res, err := s.db.WriteDB.Exec(`
		UPDATE uploads SET ai_summary = ?, ai_summary_model = ?, ai_summary_at = ?
		WHERE id = ?`,
		summary, model, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUploadNotFound
	}
	return nil
}
