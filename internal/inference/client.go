// Package inference is the HTTP client for the infer service's /infer endpoint.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// APIKeyHeader carries the shared worker key
const APIKeyHeader = "X-API-Key"

// Config holds the worker endpoint settings
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Request describes one song sent to the worker
type Request struct {
	JobID       int64
	UserID      int64
	OutputKey   string
	Filename    string
	ContentType string
	Audio       io.Reader
}

// Response is the worker's JSON envelope
type Response struct {
	OK          bool    `json:"ok"`
	OutputURL   string  `json:"output_s3_url,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Result is a successful render
type Result struct {
	OutputURL   string
	DurationSec float64
}

// Client posts audio to the worker
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a worker client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	return &Client{
		endpoint:   endpoint(cfg.URL),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// endpoint accepts either the worker base URL or the full /infer URL
func endpoint(url string) string {
	url = strings.TrimRight(url, "/")
	if strings.HasSuffix(url, "/infer") {
		return url
	}
	return url + "/infer"
}

// Infer sends the audio and returns the rendered output location
func (c *Client) Infer(ctx context.Context, req Request) (*Result, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build worker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(APIKeyHeader, c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Worker responded",
		slog.Int64("job_id", req.JobID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Worker %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode worker response: %w", err)
	}

	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "unknown"
		}
		return nil, fmt.Errorf("%s", msg)
	}

	return &Result{OutputURL: out.OutputURL, DurationSec: out.DurationSec}, nil
}

func encodeForm(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"job_id", strconv.FormatInt(req.JobID, 10)},
		{"user_id", strconv.FormatInt(req.UserID, 10)},
		{"s3_prefix", req.OutputKey},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	filename := req.Filename
	if filename == "" {
		filename = "input.wav"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio part: %w", err)
	}
	if _, err := io.Copy(part, req.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
