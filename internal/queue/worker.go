package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"kanbo/internal/models"
)

// Executor runs one claimed job to completion. Implemented by
// automation.Executor.
type Executor interface {
	ExecuteJob(ctx context.Context, job *models.AutomationJob) error
}

// WorkerOptions bounds the claim loop.
type WorkerOptions struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	StaleRunning time.Duration
}

func (o *WorkerOptions) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.StaleRunning <= 0 {
		o.StaleRunning = 2 * time.Minute
	}
}

// Worker pulls jobs off the queue and hands them to the executor. Each
// worker slot processes one job at a time; concurrency exists across slots,
// never within one job's step chain. A hung handler stalls only its own
// slot.
type Worker struct {
	queue    *Queue
	executor Executor
	logger   *logrus.Logger
	opts     WorkerOptions
}

func NewWorker(queue *Queue, executor Executor, logger *logrus.Logger, opts WorkerOptions) *Worker {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()
	return &Worker{queue: queue, executor: executor, logger: logger, opts: opts}
}

// Start launches the worker loops. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.opts.Workers; i++ {
		go w.loop(ctx, i)
	}
}

func (w *Worker) loop(ctx context.Context, slot int) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain until empty so a burst does not wait a tick per job.
			for {
				job, err := w.queue.ClaimNext(ctx, w.opts.MaxAttempts, w.opts.StaleRunning)
				if err != nil {
					w.logger.Warnf("worker[%d]: claim failed: %v", slot, err)
					break
				}
				if job == nil {
					break
				}
				w.process(ctx, slot, job)
			}
		}
	}
}

// process executes one job with panic isolation: a panicking handler fails
// its job, not the worker loop.
func (w *Worker) process(ctx context.Context, slot int, job *models.AutomationJob) {
	var execErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("panic: %v", r)
				w.logger.Errorf("worker[%d]: job %s panicked: %v", slot, job.ID, r)
			}
		}()
		execErr = w.executor.ExecuteJob(ctx, job)
	}()

	if execErr != nil {
		if err := w.queue.MarkFailed(ctx, job, execErr); err != nil {
			w.logger.Warnf("worker[%d]: mark job %s failed: %v", slot, job.ID, err)
		}
		return
	}
	if err := w.queue.MarkSucceeded(ctx, job); err != nil {
		w.logger.Warnf("worker[%d]: mark job %s succeeded: %v", slot, job.ID, err)
	}
}
