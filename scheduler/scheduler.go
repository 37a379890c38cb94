package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"staysync/config"
	"staysync/models"
	"staysync/services"
	"staysync/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Scheduler drives periodic reconciliation of all active integrations and
// polls the local command channel.
type Scheduler struct {
	cfg    *config.Config
	store  *storage.PostgresStore
	ops    *storage.SQLiteStore
	rec    *services.Reconciler
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	paused atomic.Bool

	queueWorker Triggerable
}

func New(cfg *config.Config, store *storage.PostgresStore, ops *storage.SQLiteStore, rec *services.Reconciler) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		ops:    ops,
		rec:    rec,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(queue Triggerable) {
	s.queueWorker = queue
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.RunAll(ctx); err != nil {
				log.Printf("Scheduled sync error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.RunAll(ctx); err != nil {
						log.Printf("Scheduled sync error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands and API calls")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// RunAll reconciles every active integration sequentially and records the
// pass in the local run log.
func (s *Scheduler) RunAll(ctx context.Context) error {
	if s.paused.Load() {
		log.Println("Scheduler paused, skipping run")
		return nil
	}

	integrations, err := s.store.ListIntegrations(ctx, true)
	if err != nil {
		return fmt.Errorf("list integrations: %w", err)
	}

	run := &models.SyncRun{
		StartedAt:    time.Now(),
		Status:       models.RunStatusRunning,
		Integrations: len(integrations),
	}
	if err := s.ops.CreateSyncRun(run); err != nil {
		log.Printf("Warning: failed to create run record: %v", err)
	}

	for i := range integrations {
		integ := &integrations[i]
		result, err := s.rec.Sync(ctx, integ.ID, services.Options{Trigger: models.TriggerScheduled})
		if err != nil {
			log.Printf("Sync error for integration %s: %v", integ.ID, err)
			run.Failed++
			continue
		}
		if result.Success {
			run.Succeeded++
			continue
		}
		run.Failed++
		log.Printf("Sync for integration %s finished with %d operation errors", integ.ID, len(result.Errors))

		if !result.Synced {
			// Nothing reached the marketplace; hand the integration to the
			// queue worker for a delayed retry.
			task := &models.SyncTask{
				IntegrationID: integ.ID,
				Status:        models.TaskStatusPending,
				MaxAttempts:   s.cfg.Sync.MaxRetries,
				NextRetryAt:   time.Now().Add(s.cfg.Sync.RetryBaseDelay),
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			}
			if err := s.store.EnqueueSyncTask(ctx, task); err != nil {
				log.Printf("Warning: failed to enqueue retry task for integration %s: %v", integ.ID, err)
			}
		}
	}

	now := time.Now()
	run.FinishedAt = &now
	switch {
	case run.Failed == 0:
		run.Status = models.RunStatusCompleted
	case run.Succeeded > 0:
		run.Status = models.RunStatusPartial
	default:
		run.Status = models.RunStatusFailed
	}
	if run.ID != 0 {
		if err := s.ops.FinishSyncRun(run); err != nil {
			log.Printf("Warning: failed to finish run record: %v", err)
		}
	}

	log.Printf("Sync pass complete: %d integrations, %d ok, %d failed", run.Integrations, run.Succeeded, run.Failed)
	return nil
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.ops.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.ops.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdSyncNow:
		if s.queueWorker != nil {
			s.queueWorker.Trigger()
		}
		return s.RunAll(ctx)
	case models.CmdSyncIntegration:
		var params models.CommandParams
		if len(cmd.Params) > 0 {
			if err := json.Unmarshal(cmd.Params, &params); err != nil {
				return fmt.Errorf("parse params: %w", err)
			}
		}
		id, err := uuid.Parse(params.IntegrationID)
		if err != nil {
			return fmt.Errorf("invalid integration id %q", params.IntegrationID)
		}
		_, err = s.rec.Sync(ctx, id, services.Options{Trigger: models.TriggerManual})
		return err
	case models.CmdPause:
		s.paused.Store(true)
		log.Println("Scheduler paused")
		return nil
	case models.CmdResume:
		s.paused.Store(false)
		log.Println("Scheduler resumed")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.RunAll(ctx)
}
