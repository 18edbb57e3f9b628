package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warptrace/core"
)

// FindingStore persists the detection output for an upload.
type FindingStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewFindingStore creates a finding store backed by db.
func NewFindingStore(db *SQLite, logger *zap.SugaredLogger) *FindingStore {
	return &FindingStore{db: db, logger: logger}
}

// ReplaceFindings overwrites the persisted findings for an upload with the
// given set. A finding with no contributing events is stored with a NULL
// event id.
func (s *FindingStore) ReplaceFindings(uploadID string, findings []core.Finding) error {
	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM anomalies WHERE upload_id = ?", uploadID); err != nil {
			return fmt.Errorf("failed to clear findings: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO anomalies (upload_id, event_id, kind, reason, score, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare finding insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range findings {
			f := &findings[i]
			eventID := sql.NullInt64{Int64: f.PrimaryEventID()}
			eventID.Valid = eventID.Int64 != 0
			if _, err := stmt.Exec(uploadID, eventID, f.Kind, f.Reason, f.Score, now); err != nil {
				return fmt.Errorf("failed to insert finding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Findings stored", "upload_id", uploadID, "count", len(findings))
	return nil
}

// FindingsByUpload loads the persisted findings in detection order.
func (s *FindingStore) FindingsByUpload(uploadID string) ([]core.Anomaly, error) {
	rows, err := s.db.ReadDB.Query(`
		SELECT id, event_id, kind, reason, score, created_at
		FROM anomalies WHERE upload_id = ? ORDER BY id`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var anomalies []core.Anomaly
	for rows.Next() {
		a := core.Anomaly{UploadID: uploadID}
		var eventID sql.NullInt64
		if err := rows.Scan(&a.ID, &eventID, &a.Kind, &a.Reason, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		a.EventID = eventID.Int64
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}
