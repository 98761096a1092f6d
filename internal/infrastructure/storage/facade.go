package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
)

// Operation labels reported to metrics.
const (
	opDownload          = "download"
	opUpload            = "upload"
	opPresignPut        = "presign_put"
	opPresignGet        = "presign_get"
	opInitMultipart     = "init_multipart"
	opUploadPart        = "upload_part"
	opCompleteMultipart = "complete_multipart"
	opAbortMultipart    = "abort_multipart"
	opList              = "list"
	opCopy              = "copy"
	opDelete            = "delete"
)

const defaultAbortTimeout = 30 * time.Second

// ConfigLoader supplies the backend configuration on first use.
type ConfigLoader func() (Config, error)

// AdapterFactory builds an adapter from configuration.
type AdapterFactory func(Config) (repository.StorageAdapter, error)

// FacadeOption configures a Facade.
type FacadeOption func(*Facade)

// WithAdapterFactory replaces NewAdapter.
func WithAdapterFactory(factory AdapterFactory) FacadeOption {
	return func(f *Facade) {
		f.factory = factory
	}
}

// WithLogger sets the logger used for background cleanup failures.
func WithLogger(logger *slog.Logger) FacadeOption {
	return func(f *Facade) {
		f.logger = logger
	}
}

// WithAbortTimeout bounds each background abort.
func WithAbortTimeout(d time.Duration) FacadeOption {
	return func(f *Facade) {
		f.abortTimeout = d
	}
}

// boundAdapter is the adapter together with the backend it was built for.
type boundAdapter struct {
	adapter repository.StorageAdapter
	backend string
}

// Facade owns the single storage adapter of a process. The adapter is built
// on first use and reused afterwards; a failed construction is not cached.
// Only construction takes a lock. Once built, operations read the adapter
// with one atomic load and run concurrently.
type Facade struct {
	load         ConfigLoader
	factory      AdapterFactory
	logger       *slog.Logger
	abortTimeout time.Duration

	mu    sync.Mutex // serializes construction
	bound atomic.Pointer[boundAdapter]

	cleanup sync.WaitGroup
}

var _ repository.StorageAdapter = (*Facade)(nil)

// NewFacade creates a facade that reads its configuration with load.
func NewFacade(load ConfigLoader, opts ...FacadeOption) *Facade {
	f := &Facade{
		load:         load,
		factory:      NewAdapter,
		logger:       slog.Default(),
		abortTimeout: defaultAbortTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFacadeFromConfig creates a facade bound to a fixed configuration.
func NewFacadeFromConfig(cfg Config, opts ...FacadeOption) *Facade {
	return NewFacade(func() (Config, error) { return cfg, nil }, opts...)
}

// Adapter returns the memoized adapter, constructing it if needed.
func (f *Facade) Adapter() (repository.StorageAdapter, error) {
	b, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return b.adapter, nil
}

// Backend reports the selected backend type, or "" before first use.
func (f *Facade) Backend() string {
	if b := f.bound.Load(); b != nil {
		return b.backend
	}
	return ""
}

func (f *Facade) resolve() (*boundAdapter, error) {
	if b := f.bound.Load(); b != nil {
		return b, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if b := f.bound.Load(); b != nil {
		return b, nil
	}

	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	adapter, err := f.factory(cfg)
	if err != nil {
		return nil, err
	}

	b := &boundAdapter{adapter: adapter, backend: string(cfg.normalizedType())}
	f.bound.Store(b)
	return b, nil
}

func (f *Facade) do(op string, fn func(repository.StorageAdapter) error) error {
	b, err := f.resolve()
	if err != nil {
		return err
	}

	start := time.Now()
	err = fn(b.adapter)
	metrics.StorageOperationDuration.WithLabelValues(b.backend, op).Observe(time.Since(start).Seconds())

	status := metrics.StorageStatusSuccess
	switch {
	case errors.Is(err, repository.ErrObjectNotFound):
		status = metrics.StorageStatusNotFound
	case err != nil:
		status = metrics.StorageStatusError
	}
	metrics.StorageOperationsTotal.WithLabelValues(b.backend, op, status).Inc()
	return err
}

func (f *Facade) Download(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := f.do(opDownload, func(a repository.StorageAdapter) error {
		var err error
		data, err = a.Download(ctx, key)
		return err
	})
	return data, err
}

func (f *Facade) Upload(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
	return f.do(opUpload, func(a repository.StorageAdapter) error {
		return a.Upload(ctx, key, data, opts)
	})
}

func (f *Facade) PresignedPutURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var u string
	err := f.do(opPresignPut, func(a repository.StorageAdapter) error {
		var err error
		u, err = a.PresignedPutURL(ctx, key, ttl)
		return err
	})
	return u, err
}

func (f *Facade) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var u string
	err := f.do(opPresignGet, func(a repository.StorageAdapter) error {
		var err error
		u, err = a.PresignedGetURL(ctx, key, ttl)
		return err
	})
	return u, err
}

func (f *Facade) InitMultipartUpload(ctx context.Context, key string) (string, error) {
	var uploadID string
	err := f.do(opInitMultipart, func(a repository.StorageAdapter) error {
		var err error
		uploadID, err = a.InitMultipartUpload(ctx, key)
		return err
	})
	return uploadID, err
}

func (f *Facade) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error) {
	var part repository.CompletedPart
	err := f.do(opUploadPart, func(a repository.StorageAdapter) error {
		var err error
		part, err = a.UploadPart(ctx, key, uploadID, partNumber, data)
		return err
	})
	return part, err
}

func (f *Facade) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error {
	return f.do(opCompleteMultipart, func(a repository.StorageAdapter) error {
		return a.CompleteMultipartUpload(ctx, key, uploadID, parts)
	})
}

func (f *Facade) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return f.do(opAbortMultipart, func(a repository.StorageAdapter) error {
		return a.AbortMultipartUpload(ctx, key, uploadID)
	})
}

func (f *Facade) ListObjects(ctx context.Context, prefix string) ([]repository.ObjectSummary, error) {
	var objects []repository.ObjectSummary
	err := f.do(opList, func(a repository.StorageAdapter) error {
		var err error
		objects, err = a.ListObjects(ctx, prefix)
		return err
	})
	return objects, err
}

func (f *Facade) Copy(ctx context.Context, src, dst string) error {
	return f.do(opCopy, func(a repository.StorageAdapter) error {
		return a.Copy(ctx, src, dst)
	})
}

func (f *Facade) Delete(ctx context.Context, key string) error {
	return f.do(opDelete, func(a repository.StorageAdapter) error {
		return a.Delete(ctx, key)
	})
}

// AbortInBackground aborts a multipart session on a detached context. The
// abort outlives ctx's cancellation; failures are logged and dropped.
func (f *Facade) AbortInBackground(ctx context.Context, key, uploadID string) {
	f.cleanup.Add(1)
	go func() {
		defer f.cleanup.Done()

		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.abortTimeout)
		defer cancel()

		if err := f.AbortMultipartUpload(abortCtx, key, uploadID); err != nil {
			f.logger.Warn("failed to abort multipart upload",
				"key", key,
				"upload_id", uploadID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every background abort has finished.
func (f *Facade) Wait() {
	f.cleanup.Wait()
}

var defaultFacade = sync.OnceValue(func() *Facade {
	return NewFacade(LoadConfig)
})

// Default returns the process-wide facade configured from the environment.
func Default() *Facade {
	return defaultFacade()
}

// Download reads key through the default facade.
func Download(ctx context.Context, key string) ([]byte, error) {
	return Default().Download(ctx, key)
}

// Upload writes key through the default facade.
func Upload(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
	return Default().Upload(ctx, key, data, opts)
}

func PresignedPutURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return Default().PresignedPutURL(ctx, key, ttl)
}

func PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return Default().PresignedGetURL(ctx, key, ttl)
}

func InitMultipartUpload(ctx context.Context, key string) (string, error) {
	return Default().InitMultipartUpload(ctx, key)
}

func UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error) {
	return Default().UploadPart(ctx, key, uploadID, partNumber, data)
}

func CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error {
	return Default().CompleteMultipartUpload(ctx, key, uploadID, parts)
}

func AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return Default().AbortMultipartUpload(ctx, key, uploadID)
}

func ListObjects(ctx context.Context, prefix string) ([]repository.ObjectSummary, error) {
	return Default().ListObjects(ctx, prefix)
}

func Copy(ctx context.Context, src, dst string) error {
	return Default().Copy(ctx, src, dst)
}

func Delete(ctx context.Context, key string) error {
	return Default().Delete(ctx, key)
}
