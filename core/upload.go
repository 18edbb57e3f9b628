package core

import (
	"time"

	"github.com/google/uuid"
)

// Upload is one submitted log file together with its analysis state.
// RawContent holds the file verbatim; events are parsed from it during
// analysis so a re-analysis can always start from the original bytes.
type Upload struct {
	ID             string       `json:"id" example:"9f2c3b7a-1d4e-4f6a-9c0b-2e8d5a71f3c4"`
	Filename       string       `json:"filename" example:"auth0-march.jsonl"`
	CreatedAt      time.Time    `json:"created_at" swaggertype:"string" example:"2023-10-31T12:00:00Z"`
	Status         UploadStatus `json:"status" example:"done"`
	Progress       int          `json:"progress" example:"100"`
	RawContent     string       `json:"-"`
	AISummary      string       `json:"-"`
	AISummaryModel string       `json:"-"`
	AISummaryAt    *time.Time   `json:"-"`
}

// NewUpload creates an Upload in the initial state with a generated UUID.
func NewUpload(filename, rawContent string) *Upload {
	return &Upload{
		ID:         uuid.New().String(),
		Filename:   filename,
		CreatedAt:  time.Now().UTC(),
		Status:     UploadStatusUploaded,
		Progress:   0,
		RawContent: rawContent,
	}
}

// ClampProgress bounds a progress value to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
