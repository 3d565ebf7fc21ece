// Package dispatch sends a job's audio to the inference worker and records
// the outcome on the job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/inference"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/cuongbtq/chickenify/shared/statuscache"
)

// Inferrer runs the remote render
type Inferrer interface {
	Infer(ctx context.Context, req inference.Request) (*inference.Result, error)
}

// JobRecorder persists the outcome of a job
type JobRecorder interface {
	CompleteJob(ctx context.Context, id int64, workerID, outputURL string, durationSec float64) error
	FailJob(ctx context.Context, id int64, workerID, errorMsg string) error
}

// StatusWriter caches the latest job status
type StatusWriter interface {
	Put(ctx context.Context, s statuscache.Status) error
}

// Audio is the song handed to the worker
type Audio struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Dispatcher couples the inference client with job bookkeeping
type Dispatcher struct {
	inferrer Inferrer
	jobs     JobRecorder
	cache    StatusWriter
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. cache may be nil.
func NewDispatcher(inferrer Inferrer, jobs JobRecorder, cache StatusWriter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		inferrer: inferrer,
		jobs:     jobs,
		cache:    cache,
		logger:   logger,
	}
}

// Run renders the job and records done or error. A worker failure is not
// returned: it is written to the job. The returned error means the outcome
// could not be recorded; it is retryable unless the job was already finished
// or another worker took over its claim.
func (d *Dispatcher) Run(ctx context.Context, job *model.Job, audio Audio) error {
	logger := d.logger.With(slog.Int64("job_id", job.ID), slog.Int64("user_id", job.UserID))
	start := time.Now()

	res, inferErr := d.inferrer.Infer(ctx, inference.Request{
		JobID:       job.ID,
		UserID:      job.UserID,
		OutputKey:   domain.OutputKey(job.UserID, job.ID),
		Filename:    audio.Filename,
		ContentType: audio.ContentType,
		Audio:       audio.Body,
	})

	// the request context may have expired during the render; the outcome still needs recording
	recordCtx := context.WithoutCancel(ctx)

	status := statuscache.Status{JobID: job.ID, UserID: job.UserID}
	var err error
	if inferErr != nil {
		logger.Warn("Inference failed",
			slog.String("error", inferErr.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		err = d.jobs.FailJob(recordCtx, job.ID, job.WorkerID.String, inferErr.Error())
		status.Status = domain.JobStatusError
		status.Error = inferErr.Error()
	} else {
		logger.Info("Inference completed",
			slog.String("output_url", res.OutputURL),
			slog.Float64("duration_sec", res.DurationSec),
			slog.Duration("elapsed", time.Since(start)),
		)
		err = d.jobs.CompleteJob(recordCtx, job.ID, job.WorkerID.String, res.OutputURL, res.DurationSec)
		status.Status = domain.JobStatusDone
		status.OutputURL = res.OutputURL
		status.DurationSec = res.DurationSec
	}

	if err != nil {
		if errors.Is(err, domain.ErrJobFinished) || errors.Is(err, domain.ErrJobNotFound) ||
			errors.Is(err, domain.ErrJobAlreadyClaimed) {
			logger.Warn("Job outcome not recorded", slog.String("error", err.Error()))
			return err
		}
		logger.Error("Failed to record job outcome", slog.String("error", err.Error()))
		return domain.NewRetryableError(fmt.Errorf("failed to record job %d outcome: %w", job.ID, err))
	}

	d.cacheStatus(recordCtx, logger, status)
	return nil
}

// Fail records an error on a job that never reached the worker
func (d *Dispatcher) Fail(ctx context.Context, job *model.Job, reason string) error {
	if err := d.jobs.FailJob(ctx, job.ID, job.WorkerID.String, reason); err != nil {
		return err
	}

	d.cacheStatus(ctx, d.logger, statuscache.Status{
		JobID:  job.ID,
		UserID: job.UserID,
		Status: domain.JobStatusError,
		Error:  reason,
	})
	return nil
}

func (d *Dispatcher) cacheStatus(ctx context.Context, logger *slog.Logger, status statuscache.Status) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Put(ctx, status); err != nil {
		logger.Warn("Failed to cache job status", slog.String("error", err.Error()))
	}
}
