package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/chickenify/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned", slog.Int("worker_count", w.concurrency))
}

// workerLoop processes jobs until jobsChan is closed. A job already taken
// off the channel runs to completion even after shutdown begins.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))

	for job := range w.jobsChan {
		err := w.processJob(context.WithoutCancel(ctx), job)

		if err != nil {
			requeue := shouldRequeueJob(err)
			logger.Error("Job processing failed",
				slog.Int64("job_id", job.jobID),
				slog.String("error", err.Error()),
				slog.Bool("requeue", requeue),
			)

			if nackErr := job.delivery.Nack(false, requeue); nackErr != nil {
				logger.Error("Failed to NACK message",
					slog.Int64("job_id", job.jobID),
					slog.String("error", nackErr.Error()),
				)
			}
			continue
		}

		if ackErr := job.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.Int64("job_id", job.jobID),
				slog.String("error", ackErr.Error()),
			)
			continue
		}
		logger.Info("Job message acknowledged", slog.Int64("job_id", job.jobID))
	}
}

// shouldRequeueJob requeues only transient failures
func shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
