package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/cuongbtq/chickenify/internal/dispatch"
	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/cuongbtq/chickenify/internal/storage"
	"github.com/cuongbtq/chickenify/internal/web/dto"
	"github.com/cuongbtq/chickenify/shared/objectstore"
	"github.com/cuongbtq/chickenify/shared/statuscache"
	"github.com/gin-gonic/gin"
)

var homeFlashes = map[string]string{
	"badfile":  "Please upload an MP3 or WAV file.",
	"toolarge": "That file is too large.",
	"dispatch": "Your song could not be sent for processing. Please try again.",
}

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

// Home handles GET /
func (h *Handler) Home(c *gin.Context) {
	var q dto.HomeQuery
	_ = c.ShouldBindQuery(&q)

	data := gin.H{
		"Error":       homeFlashes[q.Err],
		"MaxUploadMB": h.maxUploadBytes >> 20,
	}

	user := CurrentUser(c)
	if user == nil {
		c.HTML(http.StatusOK, "index.html", data)
		return
	}
	data["User"] = user

	cursor, err := DecodeJobCursor(q.Cursor)
	if err != nil {
		h.logger.Debug("Ignoring invalid cursor", slog.String("error", err.Error()))
		cursor = nil
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:   user.ID,
		PageSize: h.pageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > h.pageSize
	if hasMore {
		jobs = jobs[:h.pageSize]
	}

	views := make([]dto.JobView, len(jobs))
	for i, job := range jobs {
		views[i] = toJobView(job)
	}
	data["Jobs"] = views

	if hasMore {
		last := jobs[len(jobs)-1]
		data["NextCursor"] = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.HTML(http.StatusOK, "index.html", data)
}

// CreateJob handles POST /jobs
func (h *Handler) CreateJob(c *gin.Context) {
	user := CurrentUser(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverhead)
	header, err := c.FormFile("song")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Redirect(http.StatusFound, "/?err=toolarge")
			return
		}
		c.Redirect(http.StatusFound, "/?err=badfile")
		return
	}
	if header.Size > h.maxUploadBytes {
		c.Redirect(http.StatusFound, "/?err=toolarge")
		return
	}

	contentType := uploadContentType(header)
	if !domain.AudioContentTypes[contentType] {
		h.logger.Info("Rejected upload",
			slog.Int64("user_id", user.ID),
			slog.String("content_type", contentType),
		)
		c.Redirect(http.StatusFound, "/?err=badfile")
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", slog.String("error", err.Error()))
		c.Redirect(http.StatusFound, "/?err=badfile")
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	job := &model.Job{UserID: user.ID, InputFilename: header.Filename}
	if err := h.jobs.CreateJob(ctx, job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Failed to create job")
		return
	}

	logger := h.logger.With(slog.Int64("job_id", job.ID), slog.Int64("user_id", user.ID))
	logger.Info("Job created",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
		slog.String("mode", h.dispatchMode),
	)

	var dispatchErr error
	if h.dispatchMode == domain.DispatchModeQueue {
		dispatchErr = h.enqueue(ctx, job, file, contentType)
	} else {
		// the render outlives a closed tab; the inference client timeout bounds it
		dispatchErr = h.runInline(context.WithoutCancel(ctx), job, file, header.Filename, contentType)
	}

	if dispatchErr != nil {
		logger.Error("Failed to dispatch job", slog.String("error", dispatchErr.Error()))
		c.Redirect(http.StatusFound, "/?err=dispatch")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// enqueue stores the input and publishes the job for the dispatch worker
func (h *Handler) enqueue(ctx context.Context, job *model.Job, file io.Reader, contentType string) error {
	if h.inputs == nil || h.publisher == nil {
		return h.failDispatch(ctx, job, errors.New("queue dispatch is not configured"))
	}

	key := domain.InputKey(job.UserID, job.ID)
	if err := h.inputs.Put(ctx, key, file, objectstore.PutOptions{ContentType: contentType}); err != nil {
		return h.failDispatch(ctx, job, err)
	}

	msg := domain.JobMessage{JobID: job.ID, UserID: job.UserID}
	if err := h.publisher.PublishJSON(ctx, msg); err != nil {
		return h.failDispatch(ctx, job, err)
	}
	return nil
}

// runInline calls the worker during the request and records the outcome
func (h *Handler) runInline(ctx context.Context, job *model.Job, file multipart.File, filename, contentType string) error {
	if h.inputs != nil {
		key := domain.InputKey(job.UserID, job.ID)
		if err := h.inputs.Put(ctx, key, file, objectstore.PutOptions{ContentType: contentType}); err != nil {
			return h.failDispatch(ctx, job, err)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return h.failDispatch(ctx, job, err)
		}
	}

	err := h.runner.Run(ctx, job, dispatch.Audio{
		Filename:    filename,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		// the worker outcome was not recorded; the job stays queued
		h.logger.Error("Failed to record inline job outcome",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (h *Handler) failDispatch(ctx context.Context, job *model.Job, cause error) error {
	if err := h.runner.Fail(context.WithoutCancel(ctx), job, "dispatch failed: "+cause.Error()); err != nil {
		h.logger.Error("Failed to mark job as failed",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	return cause
}

// GetJob handles GET /jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	user := CurrentUser(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	ctx := c.Request.Context()
	if h.statusCache != nil {
		status, err := h.statusCache.Get(ctx, id)
		switch {
		case err == nil && status.UserID == user.ID:
			c.JSON(http.StatusOK, dto.JobStatusResponse{
				ID:          id,
				Status:      status.Status,
				OutputURL:   status.OutputURL,
				DurationSec: status.DurationSec,
				Error:       status.Error,
			})
			return
		case err != nil && !errors.Is(err, statuscache.ErrMiss):
			h.logger.Warn("Status cache read failed", slog.Int64("job_id", id), slog.String("error", err.Error()))
		}
	}

	job, err := h.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	if job.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, toJobStatus(job))
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"service":  h.serviceName,
				"database": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  h.serviceName,
		"database": "ok",
	})
}

func uploadContentType(header *multipart.FileHeader) string {
	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

func toJobView(job model.Job) dto.JobView {
	return dto.JobView{
		ID:          job.ID,
		Filename:    job.InputFilename,
		Status:      job.Status,
		OutputURL:   job.OutputURL.String,
		DurationSec: job.InputDurationSec.Float64,
		Error:       job.ErrorMessage.String,
		CreatedAt:   job.CreatedAt,
	}
}

func toJobStatus(job *model.Job) dto.JobStatusResponse {
	resp := dto.JobStatusResponse{
		ID:          job.ID,
		Status:      job.Status,
		Filename:    job.InputFilename,
		OutputURL:   job.OutputURL.String,
		DurationSec: job.InputDurationSec.Float64,
		Error:       job.ErrorMessage.String,
		CreatedAt:   &job.CreatedAt,
	}
	if job.CompletedAt.Valid {
		resp.CompletedAt = &job.CompletedAt.Time
	}
	return resp
}
