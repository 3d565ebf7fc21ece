package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/cuongbtq/chickenify/internal/dispatch"
	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/shared/objectstore"
)

// staleClaimFactor is how many missed heartbeats make a claim reclaimable
const staleClaimFactor = 4

// processJob claims the job, fetches its input and runs it through the dispatcher
func (w *Worker) processJob(ctx context.Context, msg *dispatchedJob) error {
	logger := w.logger.With(slog.Int64("job_id", msg.jobID))
	logger.Info("Processing job")

	job, err := w.jobs.ClaimJob(ctx, msg.jobID, w.workerID, staleClaimFactor*w.heartbeatInterval)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			logger.Warn("Job already claimed or finished, skipping")
			return fmt.Errorf("job already claimed: %w", err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	if job.UserID != msg.userID {
		logger.Warn("Message user does not match job owner",
			slog.Int64("message_user_id", msg.userID),
			slog.Int64("user_id", job.UserID),
		)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)
	defer close(heartbeatDone)

	key := domain.InputKey(job.UserID, job.ID)
	input, err := w.inputs.Get(jobCtx, key)
	if err != nil {
		logger.Error("Failed to fetch input", slog.String("key", key), slog.String("error", err.Error()))
		if errors.Is(err, objectstore.ErrNotFound) {
			return w.release(ctx, job.ID, w.runner.Fail(ctx, job, "input not found"))
		}
		return w.release(ctx, job.ID, domain.NewRetryableError(fmt.Errorf("failed to fetch input: %w", err)))
	}
	defer input.Close()

	err = w.runner.Run(jobCtx, job, dispatch.Audio{
		Filename:    path.Base(key),
		ContentType: "audio/wav",
		Body:        input,
	})
	return w.release(ctx, job.ID, err)
}

// release hands a job back when its outcome could not be recorded so the
// requeued message can claim it again
func (w *Worker) release(ctx context.Context, jobID int64, err error) error {
	if err == nil || errors.Is(err, domain.ErrJobFinished) || errors.Is(err, domain.ErrJobNotFound) {
		return nil
	}
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		// another worker owns the job now
		return err
	}

	var retryable *domain.RetryableError
	if !errors.As(err, &retryable) {
		err = domain.NewRetryableError(err)
	}

	if relErr := w.jobs.ReleaseJob(ctx, jobID, w.workerID); relErr != nil {
		w.logger.Warn("Failed to release job",
			slog.Int64("job_id", jobID),
			slog.String("error", relErr.Error()),
		)
	}
	return err
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID int64, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			err := w.jobs.UpdateJobHeartbeat(ctx, jobID, w.workerID)
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				w.logger.Warn("Job claim lost, stopping heartbeat", slog.Int64("job_id", jobID))
				return
			}
			if err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.Int64("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
