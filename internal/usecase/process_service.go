package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/imaging/pipeline"
	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts before marking as failed.
	DefaultMaxRetries = 3

	thumbObject   = "thumb.jpg"
	previewObject = "preview.jpg"

	derivativeContentType  = "image/jpeg"
	derivativeCacheControl = "public, max-age=31536000, immutable"
)

// ProcessServiceConfig holds configuration for ProcessService.
type ProcessServiceConfig struct {
	// MaxRetries is the maximum number of retry attempts before marking the photo as failed.
	MaxRetries int
}

// DefaultProcessServiceConfig returns the default configuration.
func DefaultProcessServiceConfig() ProcessServiceConfig {
	return ProcessServiceConfig{
		MaxRetries: DefaultMaxRetries,
	}
}

// ImageProcessor turns an original into its derivatives.
type ImageProcessor interface {
	Process(ctx context.Context, data []byte, opts pipeline.Options) (*model.ProcessedResult, error)
}

// ProcessService defines the interface for photo processing operations.
type ProcessService interface {
	// ProcessTask handles a processing task from the message queue.
	// Returns nil on success or permanent failure (undecodable original,
	// max retries exceeded). Returns error for transient failures that
	// should trigger a retry.
	ProcessTask(ctx context.Context, task repository.ProcessTask) error
}

type processService struct {
	repo      repository.PhotoRepository
	storage   repository.StorageAdapter
	processor ImageProcessor

	maxRetries int
}

// NewProcessService creates a new ProcessService instance.
func NewProcessService(
	repo repository.PhotoRepository,
	storage repository.StorageAdapter,
	processor ImageProcessor,
	cfg ProcessServiceConfig,
) ProcessService {
	return &processService{
		repo:       repo,
		storage:    storage,
		processor:  processor,
		maxRetries: cfg.MaxRetries,
	}
}

// ProcessTask downloads the original, runs the pipeline, uploads the
// thumbnail and preview, and records the result on the photo.
func (s *processService) ProcessTask(ctx context.Context, task repository.ProcessTask) error {
	if task.RetryCount >= s.maxRetries {
		slog.Warn("giving up on photo after retries",
			"photo_id", task.PhotoID,
			"retry_count", task.RetryCount,
		)
		s.fail(ctx, task.PhotoID)
		return nil
	}

	original, err := s.storage.Download(ctx, task.OriginalKey)
	if err != nil {
		metrics.PhotosProcessedTotal.WithLabelValues(metrics.PhotoResultRetried).Inc()
		return fmt.Errorf("download original: %w", err)
	}

	result, err := s.processor.Process(ctx, original, pipeline.Options{
		Rotation:    task.Rotation,
		StylePreset: task.StylePreset,
		Watermark:   task.Watermark,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrDecode) {
			// Retrying cannot fix an undecodable original.
			slog.Error("original is not a decodable image",
				"photo_id", task.PhotoID,
				"key", task.OriginalKey,
				"error", err,
			)
			s.fail(ctx, task.PhotoID)
			return nil
		}
		metrics.PhotosProcessedTotal.WithLabelValues(metrics.PhotoResultRetried).Inc()
		return fmt.Errorf("process image: %w", err)
	}

	exifJSON, err := json.Marshal(result.EXIF)
	if err != nil {
		return fmt.Errorf("marshal exif: %w", err)
	}

	thumbKey := task.OutputKey + thumbObject
	previewKey := task.OutputKey + previewObject
	if err := s.uploadDerivatives(ctx, thumbKey, previewKey, result); err != nil {
		metrics.PhotosProcessedTotal.WithLabelValues(metrics.PhotoResultRetried).Inc()
		return fmt.Errorf("upload derivatives: %w", err)
	}

	if err := s.markPhotoReady(ctx, task.PhotoID, thumbKey, previewKey, result, exifJSON); err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}

	metrics.PhotosProcessedTotal.WithLabelValues(metrics.PhotoResultReady).Inc()
	slog.Info("photo processed",
		"photo_id", task.PhotoID,
		"width", result.Metadata.Width,
		"height", result.Metadata.Height,
		"watermarked", result.Metadata.Watermarked,
	)
	return nil
}

// uploadDerivatives stores the thumbnail and preview concurrently.
func (s *processService) uploadDerivatives(ctx context.Context, thumbKey, previewKey string, result *model.ProcessedResult) error {
	opts := repository.UploadOptions{
		ContentType:  derivativeContentType,
		CacheControl: derivativeCacheControl,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.storage.Upload(gctx, thumbKey, result.ThumbBuffer, opts); err != nil {
			return fmt.Errorf("thumbnail: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.storage.Upload(gctx, previewKey, result.PreviewBuffer, opts); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// markPhotoReady records the derivatives and transitions the photo to READY.
func (s *processService) markPhotoReady(ctx context.Context, photoID uuid.UUID, thumbKey, previewKey string, result *model.ProcessedResult, exifJSON []byte) error {
	photo, err := s.repo.GetByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("get photo: %w", err)
	}

	// Photo is not in expected state - log but don't fail
	if photo.Status != model.StatusProcessing {
		slog.Warn("photo not in processing state, skipping ready transition",
			"photo_id", photoID,
			"status", photo.Status,
		)
		return nil
	}

	photo.SetDerivatives(thumbKey, previewKey, result, exifJSON)
	if err := photo.TransitionTo(model.StatusReady); err != nil {
		return fmt.Errorf("transition to ready: %w", err)
	}

	if err := s.repo.Update(ctx, photo); err != nil {
		return fmt.Errorf("update photo: %w", err)
	}

	return nil
}

// fail marks the photo FAILED. Errors are logged; the message is still
// acknowledged and the photo stays in PROCESSING.
func (s *processService) fail(ctx context.Context, photoID uuid.UUID) {
	metrics.PhotosProcessedTotal.WithLabelValues(metrics.PhotoResultFailed).Inc()
	if err := s.markPhotoFailed(ctx, photoID); err != nil {
		slog.Error("failed to mark photo as failed",
			"photo_id", photoID,
			"error", err,
		)
	}
}

// markPhotoFailed updates the photo status to FAILED.
func (s *processService) markPhotoFailed(ctx context.Context, photoID uuid.UUID) error {
	photo, err := s.repo.GetByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("get photo: %w", err)
	}

	// Only transition if in PROCESSING state
	if photo.Status != model.StatusProcessing {
		return nil
	}

	if err := photo.TransitionTo(model.StatusFailed); err != nil {
		return fmt.Errorf("transition to failed: %w", err)
	}

	if err := s.repo.Update(ctx, photo); err != nil {
		return fmt.Errorf("update photo: %w", err)
	}

	return nil
}
