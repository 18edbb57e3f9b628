package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"warptrace/core"
	"warptrace/metrics"
	"warptrace/util/goroutine"
)

const (
	archiveQueueSize    = 10000
	archiveDedupSize    = 100000
	defaultArchiveBatch = 1000
	defaultArchiveFlush = 5 * time.Second
)

// EventArchive streams stored events into ClickHouse in the background.
// Enqueue never blocks the analysis pipeline: when the queue is full the
// event is dropped and the drop is counted.
type EventArchive struct {
	clickhouse *ClickHouse
	logger     *zap.SugaredLogger

	batchSize     int
	flushInterval time.Duration

	eventCh  chan *core.LogEvent
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool

	// Recently archived event keys, so a re-read of the same upload does
	// not duplicate rows before the MergeTree parts merge.
	dedupCache *lru.Cache[string, bool]
	dedupMu    sync.Mutex
}

// NewEventArchive creates the archive writer. batchSize and flushInterval
// fall back to defaults when zero.
func NewEventArchive(ch *ClickHouse, batchSize int, flushInterval time.Duration, logger *zap.SugaredLogger) (*EventArchive, error) {
	if batchSize <= 0 {
		batchSize = defaultArchiveBatch
	}
	if flushInterval <= 0 {
		flushInterval = defaultArchiveFlush
	}
	cache, err := lru.New[string, bool](archiveDedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventArchive{
		clickhouse:    ch,
		logger:        logger,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		eventCh:       make(chan *core.LogEvent, archiveQueueSize),
		ctx:           ctx,
		cancel:        cancel,
		dedupCache:    cache,
	}, nil
}

// Start launches the background batch writers.
func (a *EventArchive) Start(numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	a.logger.Infof("Starting %d event archive workers", numWorkers)
	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		workerID := i
		go a.worker(workerID)
	}
}

// Enqueue hands an event to the background writers. Events without a parsed
// timestamp are skipped because the archive table is partitioned by event
// time. A full queue drops the event rather than stalling the caller.
func (a *EventArchive) Enqueue(e *core.LogEvent) error {
	if a.stopped.Load() {
		return ErrArchiveStopped
	}
	if e.Timestamp == nil {
		return nil
	}
	select {
	case a.eventCh <- e:
	default:
		metrics.ArchiveInsertFailures.Inc()
		a.logger.Warnw("Archive queue full, dropping event",
			"event_id", e.ID, "upload_id", e.UploadID)
	}
	return nil
}

// Stop drains the queue, flushes outstanding batches and waits for the
// writers to exit. Producers must stop enqueueing first.
func (a *EventArchive) Stop() {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		close(a.eventCh)
		a.wg.Wait()
		a.cancel()
	})
}

func (a *EventArchive) worker(workerID int) {
	defer a.wg.Done()
	defer goroutine.Recover("event-archive-worker", a.logger)

	batch := make([]*core.LogEvent, 0, a.batchSize)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-a.eventCh:
			if !ok {
				// Channel closed during shutdown; flush what is left with a
				// fresh timeout since a.ctx may already be cancelled.
				if len(batch) > 0 {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					if err := a.insertBatch(ctx, batch); err != nil {
						a.logger.Errorw("Final archive flush failed, events lost",
							"error", err, "count", len(batch), "worker", workerID)
					}
					cancel()
				}
				return
			}

			if a.seen(e) {
				continue
			}
			batch = append(batch, e)
			if len(batch) >= a.batchSize {
				if err := a.insertBatch(a.ctx, batch); err != nil {
					a.logger.Errorw("Archive batch insert failed",
						"error", err, "count", len(batch))
				}
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				if err := a.insertBatch(a.ctx, batch); err != nil {
					a.logger.Errorw("Archive batch insert failed",
						"error", err, "count", len(batch))
				}
				batch = batch[:0]
			}
		}
	}
}

// seen records the event in the dedup cache and reports whether it was
// already archived recently.
func (a *EventArchive) seen(e *core.LogEvent) bool {
	key := archiveKey(e)
	a.dedupMu.Lock()
	defer a.dedupMu.Unlock()
	if _, ok := a.dedupCache.Get(key); ok {
		return true
	}
	a.dedupCache.Add(key, true)
	return false
}

// archiveKey identifies an event by its upload and row id. A re-analysis
// deletes and re-inserts rows, so the fresh ids hash to new keys and
// archive again.
func archiveKey(e *core.LogEvent) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", e.UploadID, e.ID)))
	return hex.EncodeToString(sum[:16])
}

func (a *EventArchive) insertBatch(ctx context.Context, batch []*core.LogEvent) error {
	// Nil connection occurs in tests and when the archive never connected.
	if a.clickhouse == nil || a.clickhouse.Conn == nil {
		return nil
	}

	start := time.Now()
	prepared, err := a.clickhouse.Conn.PrepareBatch(ctx, `
		INSERT INTO archived_events (
			event_id, upload_id, ts, src_ip, user, url, action,
			status, bytes, user_agent, raw
		)`)
	if err != nil {
		metrics.ArchiveInsertFailures.Inc()
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, e := range batch {
		if err := prepared.Append(
			e.ID,
			e.UploadID,
			*e.Timestamp,
			e.SourceIP,
			e.User,
			e.URL,
			e.Action,
			nullableInt32(e.Status),
			e.Bytes,
			e.UserAgent,
			e.Raw,
		); err != nil {
			a.logger.Errorw("Failed to append event to archive batch",
				"event_id", e.ID, "error", err)
		}
	}

	if err := prepared.Send(); err != nil {
		metrics.ArchiveInsertFailures.Inc()
		return fmt.Errorf("failed to send archive batch: %w", err)
	}

	a.logger.Debugf("Archived %d events in %v", len(batch), time.Since(start))
	return nil
}

func nullableInt32(p *int) *int32 {
	if p == nil {
		return nil
	}
	v := int32(*p)
	return &v
}
