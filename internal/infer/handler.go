// Package infer implements the worker's POST /infer endpoint: it renders an
// uploaded song through the audio pipeline and uploads the result.
package infer

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/chickenify/internal/inference"
	"github.com/cuongbtq/chickenify/shared/ginmw"
	"github.com/cuongbtq/chickenify/shared/objectstore"
	"github.com/gin-gonic/gin"
)

// Processor renders a song on local disk
type Processor interface {
	Process(ctx context.Context, dir, inputPath string) (*Result, error)
}

// Uploader stores rendered songs
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, opts objectstore.PutOptions) error
	URL(key string) string
}

// InferForm is the multipart form posted to /infer
type InferForm struct {
	JobID    string `form:"job_id" binding:"required"`
	UserID   string `form:"user_id" binding:"required"`
	S3Prefix string `form:"s3_prefix" binding:"required"`
}

// Dependencies holds everything the infer handler needs
type Dependencies struct {
	Logger         *slog.Logger
	Processor      Processor
	Uploader       Uploader
	APIKey         string
	WorkDir        string
	Concurrency    int
	MaxUploadBytes int64
	PublicRead     bool
}

// Handler serves /infer
type Handler struct {
	logger         *slog.Logger
	processor      Processor
	uploader       Uploader
	workDir        string
	sem            chan struct{}
	maxUploadBytes int64
	publicRead     bool
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}

	return &Handler{
		logger:         deps.Logger,
		processor:      deps.Processor,
		uploader:       deps.Uploader,
		workDir:        deps.WorkDir,
		sem:            make(chan struct{}, concurrency),
		maxUploadBytes: maxUpload,
		publicRead:     deps.PublicRead,
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, inference.Response{OK: false, Error: msg})
}

// APIKeyMiddleware rejects requests without the shared worker key
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(inference.APIKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			fail(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}

// validKey accepts clean relative object keys only
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "../") && key != ".."
}

// Infer handles POST /infer
func (h *Handler) Infer(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))

	var form InferForm
	if err := c.ShouldBind(&form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		fail(c, http.StatusBadRequest, "job_id, user_id and s3_prefix are required")
		return
	}
	if !validKey(form.S3Prefix) {
		fail(c, http.StatusBadRequest, "invalid s3_prefix")
		return
	}

	file, err := c.FormFile("audio")
	if err != nil {
		fail(c, http.StatusBadRequest, "audio file is required")
		return
	}

	logger := h.logger.With(
		slog.String("job_id", form.JobID),
		slog.String("user_id", form.UserID),
	)

	ctx := c.Request.Context()
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		fail(c, http.StatusServiceUnavailable, "request canceled while waiting for a free slot")
		return
	}

	dir, err := os.MkdirTemp(h.workDir, "infer-*")
	if err != nil {
		logger.Error("Failed to create work dir", slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "failed to create work dir")
		return
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "in.any")
	if err := c.SaveUploadedFile(file, input); err != nil {
		logger.Error("Failed to save upload", slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "failed to save upload")
		return
	}

	res, err := h.processor.Process(ctx, dir, input)
	if err != nil {
		logger.Error("Pipeline failed", slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := os.Open(res.OutputPath)
	if err != nil {
		logger.Error("Failed to open output", slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "failed to open output")
		return
	}
	defer out.Close()

	err = h.uploader.Put(ctx, form.S3Prefix, out, objectstore.PutOptions{
		ContentType: "audio/wav",
		PublicRead:  h.publicRead,
	})
	if err != nil {
		logger.Error("Failed to upload output", slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "failed to upload output")
		return
	}

	url := h.uploader.URL(form.S3Prefix)
	logger.Info("Song rendered",
		slog.String("output_url", url),
		slog.Float64("duration_sec", res.DurationSec),
	)

	c.JSON(http.StatusOK, inference.Response{
		OK:          true,
		OutputURL:   url,
		DurationSec: res.DurationSec,
	})
}

// SetupRouter configures the worker's gin engine
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginmw.RequestID())
	r.Use(ginmw.Logger(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "chickenify-infer",
		})
	})

	h := NewHandler(deps)
	r.POST("/infer", APIKeyMiddleware(deps.APIKey), h.Infer)

	return r
}
