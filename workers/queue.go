package workers

import (
	"context"
	"log"
	"time"

	"staysync/models"
	"staysync/services"
)

// Store is the slice of persistence the queue worker needs. Implemented by
// storage.PostgresStore.
type Store interface {
	GetDueSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTask(ctx context.Context, t *models.SyncTask) error
}

// QueueWorker drains deferred sync tasks. Tasks land in the queue when an
// immediate reconciliation failed fatally; the worker retries them with an
// exponentially growing delay until max_attempts.
type QueueWorker struct {
	store     Store
	rec       *services.Reconciler
	baseDelay time.Duration
	trigger   chan struct{}
}

func NewQueueWorker(store Store, rec *services.Reconciler, baseDelay time.Duration) *QueueWorker {
	return &QueueWorker{
		store:     store,
		rec:       rec,
		baseDelay: baseDelay,
		trigger:   make(chan struct{}, 1),
	}
}

// Trigger requests an immediate drain.
func (w *QueueWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run processes up to batchSize due tasks every interval until ctx ends.
func (w *QueueWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		case <-ctx.Done():
			return
		}
	}
}

func (w *QueueWorker) processBatch(ctx context.Context, batchSize int) {
	tasks, err := w.store.GetDueSyncTasks(ctx, batchSize)
	if err != nil {
		log.Printf("Queue worker: failed to fetch tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	log.Printf("Queue worker: processing %d tasks", len(tasks))
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
}

func (w *QueueWorker) processTask(ctx context.Context, task *models.SyncTask) {
	task.Status = models.TaskStatusInProgress
	task.Attempts++
	if err := w.store.UpdateSyncTask(ctx, task); err != nil {
		log.Printf("Queue worker: failed to claim task %d: %v", task.ID, err)
		return
	}

	result, err := w.rec.Sync(ctx, task.IntegrationID, services.Options{
		Trigger:          models.TriggerQueue,
		ExcludeBookingID: task.ExcludeBookingID,
	})

	switch {
	case err != nil:
		w.reschedule(ctx, task, err.Error())
	case !result.Synced:
		// Token acquisition failed again; retry later.
		msg := "token acquisition failed"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		w.reschedule(ctx, task, msg)
	default:
		task.Status = models.TaskStatusCompleted
		if err := w.store.UpdateSyncTask(ctx, task); err != nil {
			log.Printf("Queue worker: failed to complete task %d: %v", task.ID, err)
		}
	}
}

func (w *QueueWorker) reschedule(ctx context.Context, task *models.SyncTask, lastError string) {
	task.LastError = lastError

	if task.Attempts >= task.MaxAttempts {
		task.Status = models.TaskStatusFailed
		log.Printf("Queue worker: task %d exhausted after %d attempts: %s", task.ID, task.Attempts, lastError)
	} else {
		task.Status = models.TaskStatusPending
		delay := w.baseDelay << uint(task.Attempts)
		task.NextRetryAt = time.Now().Add(delay)
	}

	if err := w.store.UpdateSyncTask(ctx, task); err != nil {
		log.Printf("Queue worker: failed to reschedule task %d: %v", task.ID, err)
	}
}
