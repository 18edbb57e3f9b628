package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"warptrace/core"
	"warptrace/metrics"
)

// analysisCacheTTL bounds how long an assembled document may outlive the
// invalidation on a new run (for example when Redis was unreachable at
// invalidation time).
const analysisCacheTTL = 15 * time.Minute

// UploadRef is the compact upload identity embedded in analysis documents.
type UploadRef struct {
	ID        string    `json:"id" example:"9f2c3b7a-1d4e-4f6a-9c0b-2e8d5a71f3c4"`
	Filename  string    `json:"filename" example:"auth0-march.jsonl"`
	CreatedAt time.Time `json:"created_at" swaggertype:"string" example:"2023-10-31T12:00:00Z"`
}

// Analysis is the assembled result document for an upload. Events, Timeline,
// Groups and Summary are populated only once Status is done.
type Analysis struct {
	Upload   UploadRef            `json:"upload"`
	Events   []*core.LogEvent     `json:"events"`
	Timeline []core.TimelinePoint `json:"timeline"`
	Groups   []core.AnomalyGroup  `json:"anomaly_groups"`
	Summary  string               `json:"summary"`
	Status   core.UploadStatus    `json:"status"`
	Progress int                  `json:"progress"`
}

// Done reports whether the document carries full results.
func (a *Analysis) Done() bool {
	return a.Status == core.UploadStatusDone
}

// CreateUpload stores a submitted file and returns the created upload record.
func (s *AnalysisService) CreateUpload(filename, content string) (*core.Upload, error) {
	u := core.NewUpload(filename, content)
	if err := s.uploads.Create(u); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	metrics.UploadsReceived.WithLabelValues(uploadFormat(filename)).Inc()
	return u, nil
}

// Upload returns the current state of one upload.
func (s *AnalysisService) Upload(uploadID string) (*core.Upload, error) {
	return s.uploads.Get(uploadID)
}

// Uploads lists all uploads, newest first.
func (s *AnalysisService) Uploads() ([]*core.Upload, error) {
	return s.uploads.List()
}

// BuildAnalysis assembles the analysis document for an upload. Until the
// pipeline finishes, the document carries only identity and progress. For
// finished uploads detection and grouping are recomputed from the stored
// events, with a cache in front so repeated reads skip the recompute. The
// cached narrative summary comes from the upload row either way.
func (s *AnalysisService) BuildAnalysis(ctx context.Context, uploadID string) (*Analysis, error) {
	u, err := s.uploads.Get(uploadID)
	if err != nil {
		return nil, err
	}

	ref := UploadRef{ID: u.ID, Filename: u.Filename, CreatedAt: u.CreatedAt}

	if u.Status != core.UploadStatusDone {
		status := u.Status
		if status == "" {
			status = core.UploadStatusUploaded
		}
		return &Analysis{Upload: ref, Status: status, Progress: u.Progress}, nil
	}

	if s.cache != nil {
		var doc Analysis
		if ok, err := s.cache.Get(ctx, core.AnalysisCacheKey(uploadID), &doc); err == nil && ok {
			return &doc, nil
		}
	}

	evs, err := s.events.EventsByUpload(uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	findings := s.engine.Analyze(rawMaps(evs))
	groups := core.GroupFindings(findings, core.NewEventIndex(evs))
	timeline := core.BuildTimeline(evs)
	if evs == nil {
		evs = []*core.LogEvent{}
	}
	if groups == nil {
		groups = []core.AnomalyGroup{}
	}

	doc := &Analysis{
		Upload:   ref,
		Events:   evs,
		Timeline: timeline,
		Groups:   groups,
		Summary:  u.AISummary,
		Status:   core.UploadStatusDone,
		Progress: progressDone,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, core.AnalysisCacheKey(uploadID), doc, analysisCacheTTL); err != nil {
			s.logger.Debugw("Analysis cache store failed", "upload_id", uploadID, "error", err)
		}
	}
	return doc, nil
}

// uploadFormat labels upload metrics by file extension.
func uploadFormat(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "none"
	}
	return ext
}
