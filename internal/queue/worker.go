package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// JobHandler executes one unit of work for a dequeued message.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool polls the queue and dispatches messages to handlers by job
// kind. Multiple workers give parallelism across entities; nothing here
// prevents two jobs for the same entity from running at once (entity
// idempotence covers that).
type WorkerPool struct {
	manager      *Manager
	handlers     map[models.JobKind]JobHandler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a worker pool on the given queue manager.
func NewWorkerPool(manager *Manager, logger arbor.ILogger, config *common.QueueConfig) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &WorkerPool{
		manager:      manager,
		handlers:     make(map[models.JobKind]JobHandler),
		concurrency:  concurrency,
		pollInterval: common.Duration(config.PollInterval, 2*time.Second),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers the handler for a job kind. Must be called
// before Start.
func (wp *WorkerPool) RegisterHandler(kind models.JobKind, handler JobHandler) {
	wp.handlers[kind] = handler
	wp.logger.Debug().
		Str("kind", string(kind)).
		Msg("Job handler registered")
}

// Start starts the worker goroutines.
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
	return nil
}

// Stop signals all workers to exit after their current message.
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread polling across the interval.
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && err != models.ErrNoMessage {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage receives and executes a single message. Handler outcome
// is reported back into the registry; a handler error never kills the
// worker.
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, err := wp.manager.Receive(wp.ctx)
	if err != nil {
		return err
	}

	wp.logger.Debug().
		Str("job_id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("entity_key", msg.EntityKey).
		Int("worker_id", workerID).
		Msg("Processing message")

	handler, exists := wp.handlers[msg.Kind]
	if !exists {
		wp.logger.Error().
			Str("kind", string(msg.Kind)).
			Str("job_id", msg.ID).
			Msg("No handler registered for job kind")
		if failErr := wp.manager.Fail(wp.ctx, msg.ID, fmt.Sprintf("no handler for job kind %q", msg.Kind)); failErr != nil {
			wp.logger.Warn().Err(failErr).Str("job_id", msg.ID).Msg("Failed to fail unhandled message")
		}
		return fmt.Errorf("no handler for job kind: %s", msg.Kind)
	}

	handlerErr := wp.runHandler(handler, msg)
	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", msg.ID).
			Str("kind", string(msg.Kind)).
			Str("entity_key", msg.EntityKey).
			Msg("Job failed")
		if err := wp.manager.Fail(wp.ctx, msg.ID, handlerErr.Error()); err != nil {
			wp.logger.Warn().Err(err).Str("job_id", msg.ID).Msg("Failed to record job failure")
		}
		return nil
	}

	if err := wp.manager.Complete(wp.ctx, msg.ID, ""); err != nil {
		wp.logger.Warn().Err(err).Str("job_id", msg.ID).Msg("Failed to record job completion")
	}

	wp.logger.Info().
		Str("job_id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("entity_key", msg.EntityKey).
		Msg("Job completed")
	return nil
}

// runHandler executes a handler with panic recovery so a crashing task
// surfaces as a failed record instead of taking down the process.
func (wp *WorkerPool) runHandler(handler JobHandler, msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			wp.logger.Error().
				Str("job_id", msg.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Job handler panicked")
		}
	}()
	return handler(wp.ctx, msg)
}
