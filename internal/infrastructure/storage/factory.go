package storage

import (
	"fmt"

	"github.com/hszk-dev/lumina/internal/domain/repository"
)

// NewAdapter builds the driver selected by cfg.Type. minio and s3 share the
// S3-compatible driver. An unknown type is rejected before any client is
// constructed.
func NewAdapter(cfg Config) (repository.StorageAdapter, error) {
	switch cfg.normalizedType() {
	case TypeMinIO, TypeS3:
		return NewS3Adapter(cfg)
	case TypeOSS:
		return NewOSSAdapter(cfg)
	case TypeCOS:
		return NewCOSAdapter(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", repository.ErrUnsupportedStorageType, cfg.Type)
	}
}
