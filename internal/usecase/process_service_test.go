package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/imaging/pipeline"
)

func newProcessingPhoto(id uuid.UUID) *model.Photo {
	return &model.Photo{
		ID:          id,
		AlbumID:     uuid.New(),
		FileName:    "sunset.jpg",
		Status:      model.StatusProcessing,
		OriginalKey: "originals/" + id.String() + "/sunset.jpg",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func fakeResult() *model.ProcessedResult {
	return &model.ProcessedResult{
		Metadata: model.ImageMetadata{
			Format: "jpeg",
			Width:  1200,
			Height: 800,
		},
		EXIF:          map[string]any{"Make": "Canon"},
		BlurHash:      "LEHV6nWB2yk8pyo0adR*.7kCMdnj",
		ThumbBuffer:   []byte("thumb"),
		PreviewBuffer: []byte("preview"),
	}
}

func TestDefaultProcessServiceConfig(t *testing.T) {
	cfg := DefaultProcessServiceConfig()

	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries: got %d, expected %d", cfg.MaxRetries, DefaultMaxRetries)
	}
}

func TestProcessService_ProcessTask_Success(t *testing.T) {
	ctx := context.Background()
	photoID := uuid.New()
	photo := newProcessingPhoto(photoID)
	rotation := 90

	var mu sync.Mutex
	uploaded := make(map[string][]byte)
	uploadOpts := make(map[string]repository.UploadOptions)

	repo := &mockPhotoRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
			if id == photoID {
				return photo, nil
			}
			return nil, repository.ErrPhotoNotFound
		},
		updateFn: func(ctx context.Context, p *model.Photo) error {
			photo = p
			return nil
		},
	}

	storage := &mockStorage{
		downloadFn: func(ctx context.Context, key string) ([]byte, error) {
			if key != photo.OriginalKey {
				return nil, repository.ErrObjectNotFound
			}
			return []byte("original bytes"), nil
		},
		uploadFn: func(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
			mu.Lock()
			defer mu.Unlock()
			uploaded[key] = data
			uploadOpts[key] = opts
			return nil
		},
	}

	var gotOpts pipeline.Options
	processor := &mockProcessor{
		processFn: func(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error) {
			if string(data) != "original bytes" {
				t.Errorf("processor got %q", data)
			}
			gotOpts = opts
			return fakeResult(), nil
		},
	}

	svc := NewProcessService(repo, storage, processor, ProcessServiceConfig{MaxRetries: 3})

	prefix := "photos/" + photoID.String() + "/"
	task := repository.ProcessTask{
		PhotoID:     photoID,
		OriginalKey: photo.OriginalKey,
		OutputKey:   prefix,
		Rotation:    &rotation,
		StylePreset: "warm",
	}

	if err := svc.ProcessTask(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if photo.Status != model.StatusReady {
		t.Errorf("photo status: got %s, expected %s", photo.Status, model.StatusReady)
	}
	if photo.ThumbKey != prefix+"thumb.jpg" {
		t.Errorf("ThumbKey: got %s", photo.ThumbKey)
	}
	if photo.PreviewKey != prefix+"preview.jpg" {
		t.Errorf("PreviewKey: got %s", photo.PreviewKey)
	}
	if photo.Width != 1200 || photo.Height != 800 {
		t.Errorf("dimensions: got %dx%d, expected 1200x800", photo.Width, photo.Height)
	}
	if photo.BlurHash == "" {
		t.Error("BlurHash should be set")
	}

	var exif map[string]any
	if err := json.Unmarshal(photo.EXIF, &exif); err != nil {
		t.Fatalf("EXIF is not JSON: %v", err)
	}
	if exif["Make"] != "Canon" {
		t.Errorf("EXIF Make: got %v", exif["Make"])
	}

	if string(uploaded[prefix+"thumb.jpg"]) != "thumb" {
		t.Error("thumbnail should be uploaded")
	}
	if string(uploaded[prefix+"preview.jpg"]) != "preview" {
		t.Error("preview should be uploaded")
	}
	if ct := uploadOpts[prefix+"preview.jpg"].ContentType; ct != "image/jpeg" {
		t.Errorf("preview content type: got %s", ct)
	}

	if gotOpts.Rotation == nil || *gotOpts.Rotation != 90 {
		t.Errorf("rotation not passed to processor: %v", gotOpts.Rotation)
	}
	if gotOpts.StylePreset != "warm" {
		t.Errorf("style preset: got %s", gotOpts.StylePreset)
	}
}

func TestProcessService_ProcessTask_MaxRetriesExceeded(t *testing.T) {
	ctx := context.Background()
	photoID := uuid.New()
	photo := newProcessingPhoto(photoID)

	repo := &mockPhotoRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
			return photo, nil
		},
		updateFn: func(ctx context.Context, p *model.Photo) error {
			photo = p
			return nil
		},
	}

	downloaded := false
	storage := &mockStorage{
		downloadFn: func(ctx context.Context, key string) ([]byte, error) {
			downloaded = true
			return nil, nil
		},
	}

	svc := NewProcessService(repo, storage, &mockProcessor{}, ProcessServiceConfig{MaxRetries: 3})

	// Should return nil (ack the message) but mark photo as FAILED
	err := svc.ProcessTask(ctx, repository.ProcessTask{PhotoID: photoID, RetryCount: 3})
	if err != nil {
		t.Fatalf("expected nil error for max retries, got: %v", err)
	}

	if photo.Status != model.StatusFailed {
		t.Errorf("photo status: got %s, expected %s", photo.Status, model.StatusFailed)
	}
	if downloaded {
		t.Error("original should not be downloaded once retries are exhausted")
	}
}

func TestProcessService_ProcessTask_DecodeFailureIsPermanent(t *testing.T) {
	ctx := context.Background()
	photoID := uuid.New()
	photo := newProcessingPhoto(photoID)

	repo := &mockPhotoRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
			return photo, nil
		},
		updateFn: func(ctx context.Context, p *model.Photo) error {
			photo = p
			return nil
		},
	}

	uploads := 0
	storage := &mockStorage{
		downloadFn: func(ctx context.Context, key string) ([]byte, error) {
			return []byte("not an image"), nil
		},
		uploadFn: func(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
			uploads++
			return nil
		},
	}

	processor := &mockProcessor{
		processFn: func(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error) {
			return nil, fmt.Errorf("%w: %w", pipeline.ErrDecode, errors.New("image: unknown format"))
		},
	}

	svc := NewProcessService(repo, storage, processor, DefaultProcessServiceConfig())

	err := svc.ProcessTask(ctx, repository.ProcessTask{PhotoID: photoID, OriginalKey: photo.OriginalKey})
	if err != nil {
		t.Fatalf("decode failure should not be retried, got: %v", err)
	}

	if photo.Status != model.StatusFailed {
		t.Errorf("photo status: got %s, expected %s", photo.Status, model.StatusFailed)
	}
	if uploads != 0 {
		t.Errorf("expected no uploads, got %d", uploads)
	}
}

func TestProcessService_ProcessTask_TransientErrors(t *testing.T) {
	tests := []struct {
		name      string
		storage   func() *mockStorage
		processor *mockProcessor
	}{
		{
			name: "download error",
			storage: func() *mockStorage {
				return &mockStorage{
					downloadFn: func(ctx context.Context, key string) ([]byte, error) {
						return nil, repository.ErrBackend
					},
				}
			},
			processor: &mockProcessor{},
		},
		{
			name: "encoder error",
			storage: func() *mockStorage {
				return &mockStorage{
					downloadFn: func(ctx context.Context, key string) ([]byte, error) {
						return []byte("img"), nil
					},
				}
			},
			processor: &mockProcessor{
				processFn: func(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error) {
					return nil, errors.New("failed to encode preview: short write")
				},
			},
		},
		{
			name: "preview upload error",
			storage: func() *mockStorage {
				return &mockStorage{
					downloadFn: func(ctx context.Context, key string) ([]byte, error) {
						return []byte("img"), nil
					},
					uploadFn: func(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
						if string(data) == "preview" {
							return repository.ErrBackend
						}
						return nil
					},
				}
			},
			processor: &mockProcessor{
				processFn: func(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error) {
					return fakeResult(), nil
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			photoID := uuid.New()
			photo := newProcessingPhoto(photoID)

			repo := &mockPhotoRepository{
				getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
					return photo, nil
				},
				updateFn: func(ctx context.Context, p *model.Photo) error {
					t.Error("photo should not be updated on transient error")
					return nil
				},
			}

			svc := NewProcessService(repo, tt.storage(), tt.processor, DefaultProcessServiceConfig())

			// Should return error to trigger retry
			err := svc.ProcessTask(context.Background(), repository.ProcessTask{
				PhotoID:     photoID,
				OriginalKey: photo.OriginalKey,
				OutputKey:   "photos/" + photoID.String() + "/",
				RetryCount:  1,
			})
			if err == nil {
				t.Fatal("expected error for transient failure")
			}

			if photo.Status != model.StatusProcessing {
				t.Error("photo status should remain PROCESSING on transient error")
			}
		})
	}
}

func TestProcessService_ProcessTask_PhotoNotProcessing(t *testing.T) {
	ctx := context.Background()
	photoID := uuid.New()
	photo := newProcessingPhoto(photoID)
	photo.Status = model.StatusReady

	updated := false
	repo := &mockPhotoRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
			return photo, nil
		},
		updateFn: func(ctx context.Context, p *model.Photo) error {
			updated = true
			return nil
		},
	}

	storage := &mockStorage{
		downloadFn: func(ctx context.Context, key string) ([]byte, error) {
			return []byte("img"), nil
		},
	}
	processor := &mockProcessor{
		processFn: func(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error) {
			return fakeResult(), nil
		},
	}

	svc := NewProcessService(repo, storage, processor, DefaultProcessServiceConfig())

	if err := svc.ProcessTask(ctx, repository.ProcessTask{PhotoID: photoID, OutputKey: "photos/x/"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated {
		t.Error("a photo outside PROCESSING should not be updated")
	}
}

func TestProcessService_ProcessTask_MarkFailedError(t *testing.T) {
	repo := &mockPhotoRepository{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
			return nil, errors.New("database down")
		},
	}

	svc := NewProcessService(repo, &mockStorage{}, &mockProcessor{}, DefaultProcessServiceConfig())

	// The message is still acknowledged.
	err := svc.ProcessTask(context.Background(), repository.ProcessTask{PhotoID: uuid.New(), RetryCount: 5})
	if err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}
