package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/hszk-dev/lumina/internal/domain/repository"
)

// Type names a storage backend.
type Type string

const (
	TypeMinIO Type = "minio"
	TypeS3    Type = "s3"
	TypeOSS   Type = "oss"
	TypeCOS   Type = "cos"
)

// Config selects and configures a storage backend.
type Config struct {
	Type           Type   `envconfig:"STORAGE_TYPE" default:"minio"`
	Endpoint       string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	PublicEndpoint string `envconfig:"STORAGE_PUBLIC_ENDPOINT"` // Optional: external-facing endpoint for presigned URLs
	Region         string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	AccessKey      string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"STORAGE_BUCKET" default:"photos"`
	UseSSL         bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
}

// LoadConfig reads the storage configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load storage config: %w", err)
	}
	return cfg, nil
}

func (c Config) normalizedType() Type {
	return Type(strings.ToLower(strings.TrimSpace(string(c.Type))))
}

var errMissingBucket = errors.New("storage bucket is required")

// backendError wraps a driver failure so callers can match repository.ErrBackend.
func backendError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", repository.ErrBackend, op, err)
}
