package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/inference"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/cuongbtq/chickenify/shared/statuscache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInferrer struct {
	got    inference.Request
	result *inference.Result
	err    error
}

func (f *fakeInferrer) Infer(_ context.Context, req inference.Request) (*inference.Result, error) {
	f.got = req
	return f.result, f.err
}

type fakeRecorder struct {
	completed map[int64]string
	failed    map[int64]string
	workerIDs []string
	err       error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{completed: map[int64]string{}, failed: map[int64]string{}}
}

func (f *fakeRecorder) CompleteJob(_ context.Context, id int64, workerID, url string, _ float64) error {
	f.workerIDs = append(f.workerIDs, workerID)
	if f.err != nil {
		return f.err
	}
	f.completed[id] = url
	return nil
}

func (f *fakeRecorder) FailJob(_ context.Context, id int64, workerID, msg string) error {
	f.workerIDs = append(f.workerIDs, workerID)
	if f.err != nil {
		return f.err
	}
	f.failed[id] = msg
	return nil
}

type fakeCache struct {
	puts []statuscache.Status
}

func (f *fakeCache) Put(_ context.Context, s statuscache.Status) error {
	f.puts = append(f.puts, s)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_RunSuccess(t *testing.T) {
	inf := &fakeInferrer{result: &inference.Result{OutputURL: "https://x/outputs/2/5.wav", DurationSec: 30}}
	rec := newFakeRecorder()
	cache := &fakeCache{}
	d := NewDispatcher(inf, rec, cache, testLogger())

	job := &model.Job{ID: 5, UserID: 2}
	err := d.Run(context.Background(), job, Audio{Filename: "a.wav", ContentType: "audio/wav", Body: strings.NewReader("a")})
	require.NoError(t, err)

	assert.Equal(t, "outputs/2/5.wav", inf.got.OutputKey)
	assert.Equal(t, "a.wav", inf.got.Filename)
	assert.Equal(t, "https://x/outputs/2/5.wav", rec.completed[5])
	require.Len(t, cache.puts, 1)
	assert.Equal(t, domain.JobStatusDone, cache.puts[0].Status)
	assert.Equal(t, 30.0, cache.puts[0].DurationSec)
}

func TestDispatcher_RunWorkerFailure(t *testing.T) {
	inf := &fakeInferrer{err: errors.New("Worker 500")}
	rec := newFakeRecorder()
	cache := &fakeCache{}
	d := NewDispatcher(inf, rec, cache, testLogger())

	err := d.Run(context.Background(), &model.Job{ID: 6, UserID: 2}, Audio{Body: strings.NewReader("a")})
	require.NoError(t, err, "worker failures are recorded, not returned")

	assert.Equal(t, "Worker 500", rec.failed[6])
	require.Len(t, cache.puts, 1)
	assert.Equal(t, domain.JobStatusError, cache.puts[0].Status)
	assert.Equal(t, "Worker 500", cache.puts[0].Error)
}

func TestDispatcher_RunRecordFailure(t *testing.T) {
	inf := &fakeInferrer{result: &inference.Result{OutputURL: "u"}}

	t.Run("database down is retryable", func(t *testing.T) {
		rec := newFakeRecorder()
		rec.err = errors.New("connection refused")
		d := NewDispatcher(inf, rec, nil, testLogger())

		err := d.Run(context.Background(), &model.Job{ID: 7}, Audio{Body: strings.NewReader("a")})
		var retryable *domain.RetryableError
		assert.ErrorAs(t, err, &retryable)
	})

	t.Run("lost claim is not retryable", func(t *testing.T) {
		rec := newFakeRecorder()
		rec.err = domain.ErrJobAlreadyClaimed
		d := NewDispatcher(inf, rec, nil, testLogger())

		job := &model.Job{ID: 7, WorkerID: sql.NullString{String: "worker-a", Valid: true}}
		err := d.Run(context.Background(), job, Audio{Body: strings.NewReader("a")})
		assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
		var retryable *domain.RetryableError
		assert.False(t, errors.As(err, &retryable))
		assert.Equal(t, []string{"worker-a"}, rec.workerIDs)
	})

	t.Run("finished job is not retryable", func(t *testing.T) {
		rec := newFakeRecorder()
		rec.err = domain.ErrJobFinished
		d := NewDispatcher(inf, rec, nil, testLogger())

		err := d.Run(context.Background(), &model.Job{ID: 7}, Audio{Body: strings.NewReader("a")})
		assert.ErrorIs(t, err, domain.ErrJobFinished)
		var retryable *domain.RetryableError
		assert.False(t, errors.As(err, &retryable))
	})
}

func TestDispatcher_Fail(t *testing.T) {
	rec := newFakeRecorder()
	cache := &fakeCache{}
	d := NewDispatcher(&fakeInferrer{}, rec, cache, testLogger())

	require.NoError(t, d.Fail(context.Background(), &model.Job{ID: 8, UserID: 1}, "dispatch failed"))
	assert.Equal(t, "dispatch failed", rec.failed[8])
	assert.Equal(t, []string{""}, rec.workerIDs, "unclaimed jobs fail without a worker")
	require.Len(t, cache.puts, 1)
}
