package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warptrace/core"
)

// insertBatchSize is how many events go into one transaction before it is
// committed and progress is reported.
const insertBatchSize = 500

// EventStore persists parsed log events.
type EventStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewEventStore creates an event store backed by db.
func NewEventStore(db *SQLite, logger *zap.SugaredLogger) *EventStore {
	return &EventStore{db: db, logger: logger}
}

// InsertEvents writes events in commit batches, assigning each event its
// generated row id. onProgress, when non-nil, runs after every full batch
// with the running count, so callers can surface progress while a large
// upload loads. The trailing partial batch commits without a progress call.
func (s *EventStore) InsertEvents(uploadID string, events []*core.LogEvent, onProgress func(inserted, total int)) error {
	total := len(events)
	inserted := 0

	for start := 0; start < total; start += insertBatchSize {
		end := start + insertBatchSize
		if end > total {
			end = total
		}
		batch := events[start:end]

		err := s.db.WithTransaction(func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`
				INSERT INTO log_events (upload_id, ts, src_ip, user, url, action, status, bytes, user_agent, raw)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("failed to prepare event insert: %w", err)
			}
			defer stmt.Close()

			for _, e := range batch {
				res, err := stmt.Exec(uploadID,
					nullTime(e.Timestamp),
					nullString(e.SourceIP), nullString(e.User), nullString(e.URL), nullString(e.Action),
					nullInt(e.Status), nullInt64(e.Bytes),
					nullString(e.UserAgent), nullString(e.Raw))
				if err != nil {
					return fmt.Errorf("failed to insert event: %w", err)
				}
				id, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("failed to read event id: %w", err)
				}
				e.ID = id
				e.UploadID = uploadID
			}
			return nil
		})
		if err != nil {
			return err
		}

		inserted += len(batch)
		if onProgress != nil && len(batch) == insertBatchSize {
			onProgress(inserted, total)
		}
	}

	s.logger.Infow("Events stored", "upload_id", uploadID, "count", total)
	return nil
}

// EventsByUpload loads the stored events for one upload in insertion order.
func (s *EventStore) EventsByUpload(uploadID string) ([]*core.LogEvent, error) {
	rows, err := s.db.ReadDB.Query(`
		SELECT id, ts, src_ip, user, url, action, status, bytes, user_agent, raw
		FROM log_events WHERE upload_id = ? ORDER BY id`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*core.LogEvent
	for rows.Next() {
		e := &core.LogEvent{UploadID: uploadID}
		var (
			ts                                sql.NullTime
			srcIP, user, url, action, ua, raw sql.NullString
			status, bytes                     sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &ts, &srcIP, &user, &url, &action,
			&status, &bytes, &ua, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ts.Valid {
			t := ts.Time
			e.Timestamp = &t
		}
		e.SourceIP = srcIP.String
		e.User = user.String
		e.URL = url.String
		e.Action = action.String
		if status.Valid {
			v := int(status.Int64)
			e.Status = &v
		}
		if bytes.Valid {
			v := bytes.Int64
			e.Bytes = &v
		}
		e.UserAgent = ua.String
		e.Raw = raw.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored events for an upload.
func (s *EventStore) CountEvents(uploadID string) (int64, error) {
	var n int64
	if err := s.db.ReadDB.QueryRow(
		"SELECT COUNT(*) FROM log_events WHERE upload_id = ?", uploadID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// DeleteByUpload removes all stored events for an upload, so a re-run of a
// failed analysis starts from a clean slate.
func (s *EventStore) DeleteByUpload(uploadID string) error {
	if _, err := s.db.WriteDB.Exec(
		"DELETE FROM log_events WHERE upload_id = ?", uploadID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

// Absent values are stored as NULL rather than zero values, matching what
// the parsers leave unset.

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
