package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultSessionSecret is the placeholder secret shipped in sample configs
	DefaultSessionSecret = "change-me-please"
	// MinSessionSecretLen is the minimum secret length outside development
	MinSessionSecretLen = 32
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Inference InferenceConfig `yaml:"inference"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Upload    UploadConfig    `yaml:"upload"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the job status cache settings
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// WorkerConfig holds dispatch worker and infer service concurrency settings
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig holds the login cookie settings
type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	CookieName string        `yaml:"cookie_name"`
	MaxAge     time.Duration `yaml:"max_age"`
	Secure     bool          `yaml:"secure"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	PublicRead   bool   `yaml:"public_read"`
}

// Configured reports whether object storage credentials are present
func (s StorageConfig) Configured() bool {
	return s.Bucket != "" && s.Region != "" && s.AccessKey != "" && s.SecretKey != ""
}

// InferenceConfig holds the inference worker endpoint settings
type InferenceConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DispatchConfig selects how the web service hands jobs to the worker
type DispatchConfig struct {
	Mode string `yaml:"mode"`
}

// UploadConfig holds song upload limits
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	PageSize int   `yaml:"page_size"`
}

// PipelineConfig holds the audio pipeline tool settings
type PipelineConfig struct {
	FFmpegPath       string  `yaml:"ffmpeg_path"`
	FFprobePath      string  `yaml:"ffprobe_path"`
	DemucsPath       string  `yaml:"demucs_path"`
	DemucsModel      string  `yaml:"demucs_model"`
	WorkDir          string  `yaml:"work_dir"`
	SampleRate       int     `yaml:"sample_rate"`
	PitchFactor      float64 `yaml:"pitch_factor"`
	VocalGain        float64 `yaml:"vocal_gain"`
	InstrumentalGain float64 `yaml:"instrumental_gain"`
}

// Load reads and parses the configuration file, applies environment
// overrides and fills in defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

// applyEnv lets secrets and endpoints come from the environment instead of the file
func (c *Config) applyEnv() {
	setString(&c.Session.Secret, "SESSION_SECRET")
	setString(&c.Inference.APIKey, "WORKER_API_KEY")
	setString(&c.Inference.URL, "WORKER_URL")
	setString(&c.Storage.Bucket, "S3_BUCKET")
	setString(&c.Storage.Region, "S3_REGION")
	setString(&c.Storage.AccessKey, "S3_KEY")
	setString(&c.Storage.SecretKey, "S3_SECRET")
	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	setString(&c.Database.Host, "DATABASE_HOST")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Dispatch.Mode, "DISPATCH_MODE")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "session"
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = 30 * 24 * time.Hour
	}
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = "sync"
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 100 << 20
	}
	if c.Upload.PageSize <= 0 {
		c.Upload.PageSize = 20
	}
	if c.Inference.Timeout <= 0 {
		c.Inference.Timeout = 300 * time.Second
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = 10 * time.Minute
	}
	if c.Worker.HeartbeatInterval <= 0 {
		c.Worker.HeartbeatInterval = 30 * time.Second
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	p := &c.Pipeline
	if p.FFmpegPath == "" {
		p.FFmpegPath = "ffmpeg"
	}
	if p.FFprobePath == "" {
		p.FFprobePath = "ffprobe"
	}
	if p.DemucsPath == "" {
		p.DemucsPath = "demucs"
	}
	if p.DemucsModel == "" {
		p.DemucsModel = "htdemucs"
	}
	if p.WorkDir == "" {
		p.WorkDir = filepath.Join(os.TempDir(), "chickenify")
	}
	if p.SampleRate <= 0 {
		p.SampleRate = 44100
	}
	if p.PitchFactor <= 0 {
		p.PitchFactor = 1.8
	}
	if p.VocalGain <= 0 {
		p.VocalGain = 1.0
	}
	if p.InstrumentalGain <= 0 {
		p.InstrumentalGain = 0.9
	}
}

// IsDevelopment reports whether the app runs in a development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "" || c.App.Environment == "development"
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := validatePort("database", c.Database.Port); err != nil {
		return err
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if err := validatePort("rabbitmq", c.RabbitMQ.Port); err != nil {
		return err
	}
	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}
	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	return nil
}

// ValidateWebConfig checks the settings the web service needs
func (c *Config) ValidateWebConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required")
	}
	if !c.IsDevelopment() {
		if c.Session.Secret == DefaultSessionSecret || len(c.Session.Secret) < MinSessionSecretLen {
			return fmt.Errorf("session secret must be at least %d characters and not the default outside development", MinSessionSecretLen)
		}
	}

	switch c.Dispatch.Mode {
	case "sync":
		if c.Inference.URL == "" {
			return fmt.Errorf("inference url is required in sync dispatch mode")
		}
	case "queue":
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
		if !c.Storage.Configured() {
			return fmt.Errorf("storage bucket, region and credentials are required in queue dispatch mode")
		}
	default:
		return fmt.Errorf("invalid dispatch mode: %q (must be sync or queue)", c.Dispatch.Mode)
	}

	return c.validateRedis()
}

// ValidateDispatchConfig checks the settings the dispatch worker needs
func (c *Config) ValidateDispatchConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if !c.Storage.Configured() {
		return fmt.Errorf("storage bucket, region and credentials are required")
	}
	if c.Inference.URL == "" {
		return fmt.Errorf("inference url is required")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	return c.validateRedis()
}

// ValidateInferConfig checks the settings the infer service needs
func (c *Config) ValidateInferConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}
	if c.Inference.APIKey == "" {
		return fmt.Errorf("inference api key is required")
	}
	if !c.Storage.Configured() {
		return fmt.Errorf("storage bucket, region and credentials are required")
	}
	if c.Pipeline.VocalGain > 4 || c.Pipeline.InstrumentalGain > 4 {
		return fmt.Errorf("pipeline gains must not exceed 4.0")
	}
	if c.Pipeline.PitchFactor <= 0.5 || c.Pipeline.PitchFactor > 2 {
		return fmt.Errorf("pipeline pitch factor must be in (0.5, 2.0], got %v", c.Pipeline.PitchFactor)
	}
	return nil
}
