package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/imaging/pipeline"
)

// mockPhotoRepository provides a configurable mock for PhotoRepository.
type mockPhotoRepository struct {
	createFn       func(ctx context.Context, photo *model.Photo) error
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*model.Photo, error)
	listByAlbumFn  func(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error)
	updateFn       func(ctx context.Context, photo *model.Photo) error
	updateStatusFn func(ctx context.Context, id uuid.UUID, status model.Status) error
}

func (m *mockPhotoRepository) Create(ctx context.Context, photo *model.Photo) error {
	if m.createFn != nil {
		return m.createFn(ctx, photo)
	}
	return nil
}

func (m *mockPhotoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPhotoRepository) ListByAlbum(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error) {
	if m.listByAlbumFn != nil {
		return m.listByAlbumFn(ctx, albumID)
	}
	return nil, nil
}

func (m *mockPhotoRepository) Update(ctx context.Context, photo *model.Photo) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, photo)
	}
	return nil
}

func (m *mockPhotoRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

// mockStorage provides a configurable mock for StorageAdapter.
type mockStorage struct {
	downloadFn        func(ctx context.Context, key string) ([]byte, error)
	uploadFn          func(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error
	presignedPutURLFn func(ctx context.Context, key string, ttl time.Duration) (string, error)
	presignedGetURLFn func(ctx context.Context, key string, ttl time.Duration) (string, error)
	initMultipartFn   func(ctx context.Context, key string) (string, error)
	uploadPartFn      func(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error)
	completeFn        func(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error
	abortFn           func(ctx context.Context, key, uploadID string) error
}

func (m *mockStorage) Download(ctx context.Context, key string) ([]byte, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStorage) Upload(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, data, opts)
	}
	return nil
}

func (m *mockStorage) PresignedPutURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.presignedPutURLFn != nil {
		return m.presignedPutURLFn(ctx, key, ttl)
	}
	return "http://example.com/upload", nil
}

func (m *mockStorage) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.presignedGetURLFn != nil {
		return m.presignedGetURLFn(ctx, key, ttl)
	}
	return "http://example.com/download/" + key, nil
}

func (m *mockStorage) InitMultipartUpload(ctx context.Context, key string) (string, error) {
	if m.initMultipartFn != nil {
		return m.initMultipartFn(ctx, key)
	}
	return "upload-1", nil
}

func (m *mockStorage) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error) {
	if m.uploadPartFn != nil {
		return m.uploadPartFn(ctx, key, uploadID, partNumber, data)
	}
	return repository.CompletedPart{PartNumber: partNumber}, nil
}

func (m *mockStorage) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error {
	if m.completeFn != nil {
		return m.completeFn(ctx, key, uploadID, parts)
	}
	return nil
}

func (m *mockStorage) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if m.abortFn != nil {
		return m.abortFn(ctx, key, uploadID)
	}
	return nil
}

func (m *mockStorage) ListObjects(ctx context.Context, prefix string) ([]repository.ObjectSummary, error) {
	return nil, nil
}

func (m *mockStorage) Copy(ctx context.Context, src, dst string) error {
	return nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return nil
}

// mockFacade adds the facade's tracked background abort to mockStorage.
type mockFacade struct {
	mockStorage
	abortInBackgroundFn func(ctx context.Context, key, uploadID string)
}

func (m *mockFacade) AbortInBackground(ctx context.Context, key, uploadID string) {
	if m.abortInBackgroundFn != nil {
		m.abortInBackgroundFn(ctx, key, uploadID)
	}
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishProcessTaskFn  func(ctx context.Context, task repository.ProcessTask) error
	consumeProcessTasksFn func(ctx context.Context, handler func(task repository.ProcessTask) error) error
}

func (m *mockMessageQueue) PublishProcessTask(ctx context.Context, task repository.ProcessTask) error {
	if m.publishProcessTaskFn != nil {
		return m.publishProcessTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeProcessTasks(ctx context.Context, handler func(task repository.ProcessTask) error) error {
	if m.consumeProcessTasksFn != nil {
		return m.consumeProcessTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockProcessor provides a configurable mock for ImageProcessor.
type mockProcessor struct {
	processFn func(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error)
}

func (m *mockProcessor) Process(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error) {
	if m.processFn != nil {
		return m.processFn(ctx, data, opts)
	}
	return nil, nil
}
