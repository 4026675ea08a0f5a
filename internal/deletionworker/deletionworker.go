// Package deletionworker periodically drains the metadata index's
// deletion queue and releases the corresponding chunk store ranges.
package deletionworker

import (
	"context"
	"time"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/logger"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	"github.com/vitality-ai/warpdrive/internal/metrics"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// DefaultBatchSize is the number of deletion tasks processed per tick.
const DefaultBatchSize = 100

// DefaultInterval is the time between deletion queue sweeps.
const DefaultInterval = 300 * time.Second

// DefaultRetention is how long a processed task is kept before GCProcessed
// removes it.
const DefaultRetention = 7 * 24 * time.Hour

// Worker drains metadataindex.Index.PendingDeletions into chunkstore.Store
// releases on a fixed interval.
type Worker struct {
	cs        chunkstore.Store
	mi        metadataindex.Index
	metrics   *metrics.Registry
	batchSize int
	interval  time.Duration
	retention time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) { w.retention = d }
}

// WithMetrics attaches a metrics.Registry the worker reports queue depth to.
func WithMetrics(m *metrics.Registry) Option {
	return func(w *Worker) { w.metrics = m }
}

// New builds a Worker over cs and mi.
func New(cs chunkstore.Store, mi metadataindex.Index, opts ...Option) *Worker {
	w := &Worker{
		cs:        cs,
		mi:        mi,
		batchSize: DefaultBatchSize,
		interval:  DefaultInterval,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, sweeping the deletion queue every interval until ctx is
// canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep processes one batch of pending deletions, then garbage-collects
// old processed tasks. Errors releasing an individual task are logged and
// skipped rather than aborting the whole batch, so one bad task never
// blocks the rest of the queue.
func (w *Worker) sweep(ctx context.Context) {
	tasks, err := w.mi.PendingDeletions(ctx, w.batchSize)
	if err != nil {
		logger.ErrorCtx(ctx, "deletionworker: fetch pending deletions failed", "error", err)
		return
	}
	if depth, err := w.mi.PendingDeletionCount(ctx); err != nil {
		logger.ErrorCtx(ctx, "deletionworker: fetch pending deletion count failed", "error", err)
	} else {
		w.metrics.SetDeletionQueueDepth(depth)
	}
	if len(tasks) == 0 {
		w.gc(ctx)
		return
	}

	for _, task := range tasks {
		if err := w.processTask(ctx, task); err != nil {
			logger.ErrorCtx(ctx, "deletionworker: process task failed",
				"task_id", task.ID, "user_id", task.UserID, "bucket", task.Bucket, "error", err)
			continue
		}
		if err := w.mi.MarkProcessed(ctx, task.ID); err != nil {
			logger.ErrorCtx(ctx, "deletionworker: mark processed failed", "task_id", task.ID, "error", err)
		}
	}

	w.gc(ctx)
}

func (w *Worker) processTask(ctx context.Context, task metadataindex.DeletionTask) error {
	t := tenant.New(task.UserID, task.Bucket, nil)
	if err := w.cs.Delete(ctx, t, task.Ranges); err != nil {
		return err
	}
	logger.DebugCtx(ctx, "deletionworker: released ranges",
		"user_id", task.UserID, "bucket", task.Bucket,
		"range_count", len(task.Ranges), "bytes", chunkstore.TotalSize(task.Ranges))
	return nil
}

func (w *Worker) gc(ctx context.Context) {
	if err := w.mi.GCProcessed(ctx, time.Now().Add(-w.retention)); err != nil {
		logger.ErrorCtx(ctx, "deletionworker: gc processed failed", "error", err)
	}
}
