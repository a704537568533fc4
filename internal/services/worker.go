package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/hibiken/asynq"
)

// Worker drains the Redis activity queue into an ActivityProcessor.
type Worker struct {
	server  *asynq.Server
	process ActivityProcessor

	mu      sync.Mutex
	running bool
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig, process ActivityProcessor) *Worker {
	if !cfg.Enabled {
		return nil
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	w := &Worker{process: process}
	w.server = asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{ActivityQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).
				Str("type", task.Type()).
				Int("retried", retried).
				Int("max_retry", maxRetry).
				Msg("activity task failed")
		}),
	})
	return w
}

// Start runs the server in the background. It does not install signal
// handlers; the caller stops it with Stop.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeActivity, w.handle)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("start activity worker: %w", err)
	}
	w.running = true
	logger.Info().Str("queue", ActivityQueue).Msg("Activity worker started")
	return nil
}

// Stop waits for in-flight tasks, up to asynq's shutdown timeout.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
	logger.Info().Msg("Activity worker stopped")
}

func (w *Worker) handle(ctx context.Context, t *asynq.Task) error {
	var task ActivityTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		// a payload that does not decode now never will
		return fmt.Errorf("decode activity task: %v: %w", err, asynq.SkipRetry)
	}
	if w.process == nil || len(task.Events) == 0 {
		return nil
	}

	id, _ := asynq.GetTaskID(ctx)
	logger.Debug().Str("task_id", id).Int("events", len(task.Events)).Msg("processing activity task")
	return w.process(ctx, &task)
}
