package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"warptrace/core"
	"warptrace/engine"
	"warptrace/ingest"
	"warptrace/metrics"
	"warptrace/storage"
	"warptrace/summarize"
)

// UploadStorage defines the upload state operations the pipeline needs.
type UploadStorage interface {
	Create(u *core.Upload) error
	Get(id string) (*core.Upload, error)
	List() ([]*core.Upload, error)
	SetState(id string, status core.UploadStatus, progress int) error
	SaveSummary(id, summary, model string) error
}

// EventStorage defines the event persistence operations the pipeline needs.
type EventStorage interface {
	DeleteByUpload(uploadID string) error
	InsertEvents(uploadID string, events []*core.LogEvent, onProgress func(inserted, total int)) error
	EventsByUpload(uploadID string) ([]*core.LogEvent, error)
}

// FindingStorage persists detection results.
type FindingStorage interface {
	ReplaceFindings(uploadID string, findings []core.Finding) error
}

// Narrator produces the upload-level narrative summary.
type Narrator interface {
	SummarizeLog(ctx context.Context, logCtx summarize.LogContext, groups []core.AnomalyGroup, timeline []core.TimelinePoint) string
	Model() string
}

// EventArchiver receives stored events for long-term archival.
type EventArchiver interface {
	Enqueue(e *core.LogEvent) error
}

// AnalysisCache caches assembled analysis documents between runs.
type AnalysisCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StatusBroadcaster pushes upload state transitions to connected clients.
type StatusBroadcaster interface {
	BroadcastStatus(uploadID string, status core.UploadStatus, progress int)
}

// Pipeline progress milestones. Between parsed and inserted, progress scales
// with the fraction of rows committed.
const (
	progressQueued      = 5
	progressParsed      = 15
	progressInserted    = 75
	progressInsertCap   = 70
	progressSummarizing = 88
	progressDone        = 100
)

// AnalysisService runs upload analyses on a bounded worker pool and assembles
// analysis documents for reads.
type AnalysisService struct {
	uploads  UploadStorage
	events   EventStorage
	findings FindingStorage
	engine   *engine.Engine
	narrator Narrator
	pool     *core.WorkerPool

	// Optional collaborators, nil when the feature is disabled.
	archive EventArchiver
	cache   AnalysisCache
	hub     StatusBroadcaster

	logger *zap.SugaredLogger
}

// NewAnalysisService wires the pipeline. archive, cache and hub may be nil;
// the corresponding steps are skipped.
func NewAnalysisService(
	uploads UploadStorage,
	events EventStorage,
	findings FindingStorage,
	eng *engine.Engine,
	narrator Narrator,
	pool *core.WorkerPool,
	archive EventArchiver,
	cache AnalysisCache,
	hub StatusBroadcaster,
	logger *zap.SugaredLogger,
) *AnalysisService {
	if uploads == nil {
		panic("uploads storage is required")
	}
	if events == nil {
		panic("events storage is required")
	}
	if findings == nil {
		panic("findings storage is required")
	}
	if eng == nil {
		panic("engine is required")
	}
	if narrator == nil {
		panic("narrator is required")
	}
	if pool == nil {
		panic("worker pool is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &AnalysisService{
		uploads:  uploads,
		events:   events,
		findings: findings,
		engine:   eng,
		narrator: narrator,
		pool:     pool,
		archive:  archive,
		cache:    cache,
		hub:      hub,
		logger:   logger,
	}
}

// StartAnalysis queues the pipeline for an upload. The returned upload
// reflects the state after the call; started is false when the upload is
// already running or already done, in which case the current state is echoed
// unchanged. A full worker queue surfaces as core.ErrWorkerPoolQueueFull
// with the upload left in its prior state.
func (s *AnalysisService) StartAnalysis(uploadID string) (u *core.Upload, started bool, err error) {
	u, err = s.uploads.Get(uploadID)
	if err != nil {
		return nil, false, err
	}

	switch u.Status {
	case core.UploadStatusDone, core.UploadStatusProcessing, core.UploadStatusSummarizing:
		return u, false, nil
	}

	if err := s.setState(uploadID, core.UploadStatusProcessing, progressQueued); err != nil {
		return nil, false, err
	}
	s.invalidateCache(uploadID)

	if err := s.pool.Submit(func() { s.runAnalysis(uploadID) }); err != nil {
		s.logger.Warnw("Analysis not queued", "upload_id", uploadID, "error", err)
		// Restore the prior state so a later request can retry.
		if restoreErr := s.setState(uploadID, u.Status, u.Progress); restoreErr != nil {
			s.logger.Errorw("Failed to restore upload state", "upload_id", uploadID, "error", restoreErr)
		}
		return nil, false, err
	}

	u.Status = core.UploadStatusProcessing
	u.Progress = progressQueued
	return u, true, nil
}

// runAnalysis executes the full pipeline for one upload. Every failure path
// lands the upload in failed/100; its events and findings keep whatever was
// committed before the failure, and the next run replaces them.
func (s *AnalysisService) runAnalysis(uploadID string) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}()
	defer func() {
		// A panicking stage must not leave the upload stuck in processing.
		if r := recover(); r != nil {
			s.logger.Errorw("Analysis pipeline panicked", "upload_id", uploadID, "panic", r)
			s.fail(uploadID)
		}
	}()

	u, err := s.uploads.Get(uploadID)
	if err != nil {
		s.logger.Errorw("Analysis aborted, upload not loadable", "upload_id", uploadID, "error", err)
		s.fail(uploadID)
		return
	}
	if u.RawContent == "" {
		s.logger.Warnw("Analysis aborted, upload has no content", "upload_id", uploadID)
		s.fail(uploadID)
		return
	}

	if err := s.setState(uploadID, core.UploadStatusProcessing, progressQueued); err != nil {
		s.fail(uploadID)
		return
	}

	rows, format := ingest.SmartParse([]byte(u.RawContent), u.Filename)
	metrics.EventsParsed.WithLabelValues(format).Add(float64(len(rows)))
	s.logger.Infow("Upload parsed",
		"upload_id", uploadID,
		"rows", len(rows),
		"format", format)
	if err := s.setState(uploadID, core.UploadStatusProcessing, progressParsed); err != nil {
		s.fail(uploadID)
		return
	}

	events := make([]*core.LogEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.Event())
	}

	// A re-run of a failed analysis starts from a clean slate.
	if err := s.events.DeleteByUpload(uploadID); err != nil {
		s.logger.Errorw("Failed to clear previous events", "upload_id", uploadID, "error", err)
		s.fail(uploadID)
		return
	}
	err = s.events.InsertEvents(uploadID, events, func(inserted, total int) {
		prog := progressParsed + int(55*float64(inserted)/float64(total))
		if prog > progressInsertCap {
			prog = progressInsertCap
		}
		if stateErr := s.setState(uploadID, core.UploadStatusProcessing, prog); stateErr != nil {
			s.logger.Warnw("Progress update failed", "upload_id", uploadID, "error", stateErr)
		}
	})
	if err != nil {
		s.logger.Errorw("Failed to store events", "upload_id", uploadID, "error", err)
		s.fail(uploadID)
		return
	}
	if err := s.setState(uploadID, core.UploadStatusProcessing, progressInserted); err != nil {
		s.fail(uploadID)
		return
	}

	// Detection runs over the stored rows so findings reference row ids.
	evs, err := s.events.EventsByUpload(uploadID)
	if err != nil {
		s.logger.Errorw("Failed to reload events", "upload_id", uploadID, "error", err)
		s.fail(uploadID)
		return
	}
	s.archiveEvents(uploadID, evs)

	detectStart := time.Now()
	findings := s.engine.Analyze(rawMaps(evs))
	metrics.DetectionDuration.Observe(time.Since(detectStart).Seconds())

	if err := s.findings.ReplaceFindings(uploadID, findings); err != nil {
		s.logger.Errorw("Failed to store findings", "upload_id", uploadID, "error", err)
		s.fail(uploadID)
		return
	}

	groups := core.GroupFindings(findings, core.NewEventIndex(evs))
	timeline := core.BuildTimeline(evs)

	if err := s.setState(uploadID, core.UploadStatusSummarizing, progressSummarizing); err != nil {
		s.fail(uploadID)
		return
	}

	summary := s.narrator.SummarizeLog(context.Background(), summarize.LogContext{
		Filename:  u.Filename,
		CreatedAt: u.CreatedAt,
		Counts: summarize.LogCounts{
			Events:    len(evs),
			Anomalies: len(findings),
			Groups:    len(groups),
		},
	}, groups, core.TailPoints(timeline, 60))

	if err := s.uploads.SaveSummary(uploadID, summary, s.narrator.Model()); err != nil {
		// The analysis is still good without the cached narrative.
		s.logger.Warnw("Summary not cached", "upload_id", uploadID, "error", err)
	}

	if err := s.setState(uploadID, core.UploadStatusDone, progressDone); err != nil {
		s.fail(uploadID)
		return
	}

	s.logger.Infow("Analysis complete",
		"upload_id", uploadID,
		"events", len(evs),
		"findings", len(findings),
		"groups", len(groups),
		"duration", time.Since(start))
}

// archiveEvents forwards stored events to the archive queue, best effort.
func (s *AnalysisService) archiveEvents(uploadID string, evs []*core.LogEvent) {
	if s.archive == nil {
		return
	}
	for _, e := range evs {
		if err := s.archive.Enqueue(e); err != nil {
			if errors.Is(err, storage.ErrArchiveStopped) {
				s.logger.Debugw("Archive stopped, skipping remaining events", "upload_id", uploadID)
				return
			}
			s.logger.Warnw("Event not archived", "upload_id", uploadID, "event_id", e.ID, "error", err)
		}
	}
}

func (s *AnalysisService) fail(uploadID string) {
	metrics.AnalysisFailures.Inc()
	if err := s.setState(uploadID, core.UploadStatusFailed, progressDone); err != nil {
		s.logger.Errorw("Failed to mark upload failed", "upload_id", uploadID, "error", err)
	}
}

// setState persists a state transition and broadcasts it to the hub.
func (s *AnalysisService) setState(uploadID string, status core.UploadStatus, progress int) error {
	if err := s.uploads.SetState(uploadID, status, progress); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastStatus(uploadID, status, progress)
	}
	return nil
}

func (s *AnalysisService) invalidateCache(uploadID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.Background(), core.AnalysisCacheKey(uploadID)); err != nil {
		s.logger.Warnw("Analysis cache invalidation failed", "upload_id", uploadID, "error", err)
	}
}

func rawMaps(evs []*core.LogEvent) []engine.RawEvent {
	raws := make([]engine.RawEvent, len(evs))
	for i, e := range evs {
		raws[i] = e.RawMap()
	}
	return raws
}
