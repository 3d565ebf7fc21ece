// Package worker consumes queued job messages and runs each job through the
// dispatcher on a fixed-size goroutine pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/chickenify/internal/dispatch"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the consumer
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// JobStore is the job bookkeeping the worker needs
type JobStore interface {
	ClaimJob(ctx context.Context, id int64, workerID string, staleAfter time.Duration) (*model.Job, error)
	ReleaseJob(ctx context.Context, id int64, workerID string) error
	UpdateJobHeartbeat(ctx context.Context, id int64, workerID string) error
}

// InputSource fetches uploaded songs
type InputSource interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Runner renders a job and records its outcome
type Runner interface {
	Run(ctx context.Context, job *model.Job, audio dispatch.Audio) error
	Fail(ctx context.Context, job *model.Job, reason string) error
}

// DeliverySource starts a consumer on the job queue
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Jobs              JobStore
	Inputs            InputSource
	Runner            Runner
	Deliveries        DeliverySource
	WorkerID          string
	QueueName         string
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// dispatchedJob pairs a decoded message with the delivery to ack
type dispatchedJob struct {
	jobID    int64
	userID   int64
	delivery amqp.Delivery
}

// Worker represents the background job worker
type Worker struct {
	logger            *slog.Logger
	jobs              JobStore
	inputs            InputSource
	runner            Runner
	deliveries        DeliverySource
	workerID          string
	queueName         string
	concurrency       int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	jobsChan          chan *dispatchedJob
	wg                sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "dispatch-" + uuid.NewString()[:8]
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Worker{
		logger:            cfg.Logger.With(slog.String("worker_id", workerID)),
		jobs:              cfg.Jobs,
		inputs:            cfg.Inputs,
		runner:            cfg.Runner,
		deliveries:        cfg.Deliveries,
		workerID:          workerID,
		queueName:         cfg.QueueName,
		concurrency:       concurrency,
		jobTimeout:        jobTimeout,
		heartbeatInterval: heartbeat,
		jobsChan:          make(chan *dispatchedJob),
	}
}

// ID returns the worker id recorded on claimed jobs
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes messages until ctx is canceled or the broker closes the
// consumer. In-flight jobs keep running; call Stop to wait for them.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	closed := w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)

	if closed && ctx.Err() == nil {
		return ErrDeliveriesClosed
	}
	return nil
}

// Stop waits for in-flight jobs, giving up after timeout
func (w *Worker) Stop(timeout time.Duration) error {
	w.logger.Info("Stopping worker...")

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker did not stop within %s", timeout)
	}
}
