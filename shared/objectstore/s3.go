package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ErrNotFound is returned when the requested key does not exist
var ErrNotFound = errors.New("object not found")

// Config holds S3 connection settings
type Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	Endpoint     string
	UsePathStyle bool
}

// Configured reports whether enough settings are present to talk to S3
func (c *Config) Configured() bool {
	return c.Bucket != "" && c.Region != "" && c.AccessKey != "" && c.SecretKey != ""
}

// PutOptions controls object metadata on upload
type PutOptions struct {
	ContentType string
	PublicRead  bool
}

// Client wraps an S3 bucket
type Client struct {
	api      s3iface.S3API
	uploader *s3manager.Uploader
	config   Config
	logger   *slog.Logger
}

// NewClient builds an S3 client with static credentials
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("S3 not configured: bucket, region, key and secret are required")
	}

	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	logger.Info("S3 client initialized",
		slog.String("bucket", cfg.Bucket),
		slog.String("region", cfg.Region),
		slog.String("endpoint", cfg.Endpoint),
	)

	return newClient(s3.New(sess), cfg, logger), nil
}

func newClient(api s3iface.S3API, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		api:      api,
		uploader: s3manager.NewUploaderWithClient(api),
		config:   cfg,
		logger:   logger,
	}
}

// Put uploads body under key
func (c *Client) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	input := &s3manager.UploadInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.PublicRead {
		input.ACL = aws.String(s3.ObjectCannedACLPublicRead)
	}

	if _, err := c.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	c.logger.Debug("Object uploaded",
		slog.String("bucket", c.config.Bucket),
		slog.String("key", key),
	)
	return nil
}

// Get opens the object under key. The caller closes the returned reader.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	return out.Body, nil
}

// URL returns the public URL of key
func (c *Client) URL(key string) string {
	return ObjectURL(c.config, key)
}

// ObjectURL builds the public URL of key for cfg. A custom endpoint gets
// {endpoint}/{bucket}/{key} in path style and {scheme}://{bucket}.{host}/{key}
// otherwise.
func ObjectURL(cfg Config, key string) string {
	if cfg.Endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, key)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if cfg.UsePathStyle {
		return fmt.Sprintf("%s/%s/%s", endpoint, cfg.Bucket, key)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%s/%s/%s", endpoint, cfg.Bucket, key)
	}
	u.Host = cfg.Bucket + "." + u.Host
	u.Path = strings.TrimRight(u.Path, "/") + "/" + key
	return u.String()
}
