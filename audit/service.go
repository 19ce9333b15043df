package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// recentKey is the cache list holding the newest action summaries.
const recentKey = "audit:recent"
const recentKeep = 100

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID    string
	ActorID    *int64
	ActorName  string
	Action     string
	Status     string
	ResourceID *int64
	Details    interface{}
	IP         string
}

// Options tunes the async writer.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Service logs audit entries asynchronously in batches. Writes are fire and
// forget: a failed write is reported to the logger and never surfaces to the
// operation that produced the entry.
type Service struct {
	db        *gorm.DB
	cache     cache.Cache
	ch        chan *model.AuditLog
	stopCh    chan struct{}
	wg        sync.WaitGroup
	batchSize int
	flushIvl  time.Duration
	logger    *zap.Logger
}

// New creates a new audit Service and starts its background worker.
// cache may be nil; the recent-actions feed is then skipped.
func New(db *gorm.DB, c cache.Cache, opts Options, logger *zap.Logger) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	svc := &Service{
		db:        db,
		cache:     c,
		ch:        make(chan *model.AuditLog, opts.QueueSize),
		stopCh:    make(chan struct{}),
		batchSize: opts.BatchSize,
		flushIvl:  opts.FlushInterval,
		logger:    logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Record enqueues an audit entry for async DB write.
func (svc *Service) Record(entry Entry) {
	detailsJSON, _ := json.Marshal(entry.Details)
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		ActorID:    entry.ActorID,
		ActorName:  entry.ActorName,
		Action:     entry.Action,
		Status:     entry.Status,
		ResourceID: entry.ResourceID,
		Details:    datatypes.JSON(detailsJSON),
		IP:         entry.IP,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.flushIvl)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err))
		} else {
			svc.pushRecent(batch)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// pushRecent mirrors the newest entries into the cache list backing the
// /logs/recent fast path. Best effort.
func (svc *Service) pushRecent(batch []*model.AuditLog) {
	if svc.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, rec := range batch {
		summary, _ := json.Marshal(map[string]interface{}{
			"id":         rec.ID,
			"actor_id":   rec.ActorID,
			"actor_name": rec.ActorName,
			"action":     rec.Action,
			"status":     rec.Status,
			"created_at": rec.CreatedAt,
		})
		if err := svc.cache.LPush(ctx, recentKey, string(summary)); err != nil {
			svc.logger.Warn("audit recent push failed", zap.Error(err))
			return
		}
	}
	_ = svc.cache.LTrim(ctx, recentKey, 0, recentKeep-1)
}

// RecentSummaries returns up to limit cached action summaries, newest first.
func (svc *Service) RecentSummaries(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if svc.cache == nil {
		return nil, nil
	}
	rows, err := svc.cache.LRange(ctx, recentKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, json.RawMessage(r))
	}
	return out, nil
}

// PurgeOlderThan deletes entries older than the given number of days and
// returns how many rows were removed. Invoked by the scheduler, never on a
// request path.
func (svc *Service) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	res := svc.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.AuditLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("audit retention sweep",
			zap.Int64("purged", res.RowsAffected),
			zap.String("cutoff", cutoff.Format(time.RFC3339)))
	}
	return res.RowsAffected, nil
}
