package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration. Storage backend settings (STORAGE_*)
// are read separately by storage.LoadConfig when the facade is first used.
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Imaging  ImagingConfig
	Logo     LogoConfig
	Upload   UploadConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type WorkerConfig struct {
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	MetricsPort     int           `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"lumina"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"lumina"`
	DBName   string `envconfig:"POSTGRES_DB" default:"lumina"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"lumina"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"lumina"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ImagingConfig sizes the derivatives cut from each original.
type ImagingConfig struct {
	ThumbMaxSize   int `envconfig:"THUMB_MAX_SIZE" default:"400"`
	PreviewMaxSize int `envconfig:"PREVIEW_MAX_SIZE" default:"1920"`
	ThumbQuality   int `envconfig:"THUMB_JPEG_QUALITY" default:"80"`
	PreviewQuality int `envconfig:"PREVIEW_JPEG_QUALITY" default:"85"`
	// MaxPixels rejects originals whose header declares more pixels.
	MaxPixels int64 `envconfig:"MAX_IMAGE_PIXELS" default:"100000000"`
}

// LogoConfig bounds logo watermark fetches.
type LogoConfig struct {
	// MediaCDNHost is the only host (and its subdomains) logos are fetched
	// from. Empty accepts any public host.
	MediaCDNHost string        `envconfig:"MEDIA_CDN_HOST"`
	FetchTimeout time.Duration `envconfig:"LOGO_FETCH_TIMEOUT" default:"10s"`
	MaxBytes     int64         `envconfig:"LOGO_MAX_BYTES" default:"10485760"`
	CacheTTL     time.Duration `envconfig:"LOGO_CACHE_TTL" default:"10m"`
}

// MinMultipartPartSize is the smallest part S3-compatible backends accept
// for any part but the last.
const MinMultipartPartSize = 5 << 20

var ErrInvalidConfig = errors.New("invalid config")

type UploadConfig struct {
	PresignTTL         time.Duration `envconfig:"PRESIGN_TTL" default:"1h"`
	MultipartThreshold int64         `envconfig:"MULTIPART_THRESHOLD" default:"16777216"`
	MultipartPartSize  int64         `envconfig:"MULTIPART_PART_SIZE" default:"8388608"`
	MaxUploadBytes     int64         `envconfig:"MAX_UPLOAD_BYTES" default:"209715200"`
}

func (c UploadConfig) validate() error {
	if c.MultipartPartSize < MinMultipartPartSize {
		return fmt.Errorf("%w: MULTIPART_PART_SIZE %d is below the %d byte minimum",
			ErrInvalidConfig, c.MultipartPartSize, MinMultipartPartSize)
	}
	if c.MultipartThreshold < c.MultipartPartSize {
		return fmt.Errorf("%w: MULTIPART_THRESHOLD %d is below MULTIPART_PART_SIZE %d",
			ErrInvalidConfig, c.MultipartThreshold, c.MultipartPartSize)
	}
	if c.PresignTTL <= 0 {
		return fmt.Errorf("%w: PRESIGN_TTL must be positive", ErrInvalidConfig)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Upload.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
