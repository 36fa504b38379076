package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
	"github.com/noah-isme/kb-admin-api/pkg/config"
	"github.com/noah-isme/kb-admin-api/pkg/jobs"
)

// taskTransport is the slice of the redis API the dispatcher needs.
type taskTransport interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// reprocessTask is the message pushed to the pipeline's Redis task list.
// The embedding pipeline is a separate consumer; this side only hands off.
type reprocessTask struct {
	DocumentID  string `json:"document_id"`
	KBID        string `json:"kb_id"`
	Name        string `json:"name"`
	StorageKey  string `json:"storage_key"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	EnqueuedAt  string `json:"enqueued_at"`
}

// PipelineDispatcher hands replaced documents back to the embedding pipeline
// and signals cancellation for cleared ones. Delivery to the Redis task list
// goes through an in-process queue so transient Redis hiccups are retried
// without blocking the request path.
type PipelineDispatcher struct {
	redis  taskTransport
	queue  *jobs.Queue
	logger *zap.Logger
	cfg    config.PipelineConfig
}

func NewPipelineDispatcher(transport taskTransport, logger *zap.Logger, cfg config.PipelineConfig) *PipelineDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TaskQueueKey == "" {
		cfg.TaskQueueKey = "kb_ingest_tasks"
	}
	if cfg.CancelKeyTTL <= 0 {
		cfg.CancelKeyTTL = 24 * time.Hour
	}
	d := &PipelineDispatcher{redis: transport, logger: logger, cfg: cfg}
	d.queue = jobs.NewQueue("pipeline-dispatch", d.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return d
}

// Start launches the delivery workers.
func (d *PipelineDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (d *PipelineDispatcher) Stop() {
	d.queue.Stop()
}

// EnqueueReprocess schedules a replaced document for re-ingestion. A stale
// cancel flag from an earlier clear on the same id is removed first so the
// pipeline does not drop the fresh task.
func (d *PipelineDispatcher) EnqueueReprocess(ctx context.Context, doc *models.Document) error {
	if err := d.redis.Del(ctx, cancelKey(doc.ID)).Err(); err != nil {
		d.logger.Warn("stale cancel flag not removed", zap.Error(err), zap.String("document_id", doc.ID))
	}
	task := reprocessTask{
		DocumentID:  doc.ID,
		KBID:        doc.KBID,
		Name:        doc.Name,
		StorageKey:  doc.StorageKey,
		ContentHash: doc.ContentHash,
		SizeBytes:   doc.SizeBytes,
		EnqueuedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	return d.queue.Enqueue(jobs.Job{ID: doc.ID, Type: "reprocess", Payload: task})
}

// SignalCancel asks the pipeline to stop work on a document. Cooperative on
// both sides: the flag is polled by the external workers, and any task still
// waiting in the local delivery queue is dropped before it ships.
func (d *PipelineDispatcher) SignalCancel(ctx context.Context, documentID string) error {
	d.queue.Cancel(documentID)
	if err := d.redis.Set(ctx, cancelKey(documentID), "1", d.cfg.CancelKeyTTL).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

func (d *PipelineDispatcher) deliver(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(reprocessTask)
	if !ok {
		d.logger.Error("unexpected task payload", zap.String("job_id", job.ID))
		return nil
	}
	body, err := json.Marshal(task)
	if err != nil {
		d.logger.Error("task marshal failed", zap.Error(err), zap.String("document_id", task.DocumentID))
		return nil
	}
	if err := d.redis.LPush(ctx, d.cfg.TaskQueueKey, body).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	d.logger.Info("reprocess task delivered", zap.String("document_id", task.DocumentID), zap.String("queue", d.cfg.TaskQueueKey))
	return nil
}

func cancelKey(documentID string) string {
	return "doc:cancel:" + documentID
}
