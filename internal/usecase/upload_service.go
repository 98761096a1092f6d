package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
)

var (
	// ErrPhotoAlreadyCompleted is returned when attempting to process a photo that has already completed.
	ErrPhotoAlreadyCompleted = errors.New("photo processing has already completed")

	// ErrPhotoNotAwaitingUpload is returned when an original is sent for a photo past PENDING_UPLOAD.
	ErrPhotoNotAwaitingUpload = errors.New("photo is not awaiting upload")

	// ErrEmptyUpload is returned when an upload body carries no bytes.
	ErrEmptyUpload = errors.New("upload body is empty")
)

const abortTimeout = 30 * time.Second

// CreatePhotoInput contains the input parameters for creating a photo.
type CreatePhotoInput struct {
	AlbumID  uuid.UUID
	FileName string
}

// CreatePhotoOutput contains the result of creating a photo.
type CreatePhotoOutput struct {
	Photo     *model.Photo
	UploadURL string
}

// UploadOriginalInput carries an original streamed through the server.
type UploadOriginalInput struct {
	PhotoID     uuid.UUID
	Body        io.Reader
	ContentType string
}

// TriggerProcessInput selects the per-photo pipeline options.
type TriggerProcessInput struct {
	PhotoID     uuid.UUID
	Rotation    *int
	StylePreset string
	Watermark   model.WatermarkConfig
}

// PhotoOutput is a photo with time-boxed links to its derivatives. The
// links are empty until the photo is READY.
type PhotoOutput struct {
	Photo      *model.Photo
	ThumbURL   string
	PreviewURL string
}

// UploadService defines the interface for photo ingestion operations.
type UploadService interface {
	// CreatePhoto creates photo metadata and returns a presigned upload URL.
	CreatePhoto(ctx context.Context, input CreatePhotoInput) (*CreatePhotoOutput, error)

	// UploadOriginal stores an original sent through the API instead of the
	// presigned URL. Bodies above the multipart threshold are uploaded in parts.
	UploadOriginal(ctx context.Context, input UploadOriginalInput) error

	// TriggerProcess initiates processing for an uploaded photo.
	// This operation is idempotent - calling it on an already processing photo returns nil.
	TriggerProcess(ctx context.Context, input TriggerProcessInput) error

	// GetPhoto retrieves photo information by ID.
	GetPhoto(ctx context.Context, photoID uuid.UUID) (*PhotoOutput, error)

	// ListPhotos returns the photos of an album, newest first.
	ListPhotos(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error)
}

// UploadServiceConfig holds configuration for UploadService.
type UploadServiceConfig struct {
	// PresignTTL bounds presigned PUT and GET URLs.
	PresignTTL time.Duration
	// MultipartThreshold is the largest body sent with a single PUT.
	MultipartThreshold int64
	// MultipartPartSize is the size of every part but the last.
	MultipartPartSize int64
}

// DefaultUploadServiceConfig returns the default configuration.
func DefaultUploadServiceConfig() UploadServiceConfig {
	return UploadServiceConfig{
		PresignTTL:         time.Hour,
		MultipartThreshold: 16 << 20,
		MultipartPartSize:  8 << 20,
	}
}

// backgroundAborter is implemented by storage.Facade.
type backgroundAborter interface {
	AbortInBackground(ctx context.Context, key, uploadID string)
}

type uploadService struct {
	repo    repository.PhotoRepository
	storage repository.StorageAdapter
	queue   repository.MessageQueue

	presignTTL         time.Duration
	multipartThreshold int64
	partSize           int64
}

// NewUploadService creates a new UploadService instance.
func NewUploadService(
	repo repository.PhotoRepository,
	storage repository.StorageAdapter,
	queue repository.MessageQueue,
	cfg UploadServiceConfig,
) UploadService {
	d := DefaultUploadServiceConfig()
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = d.PresignTTL
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = d.MultipartThreshold
	}
	if cfg.MultipartPartSize <= 0 {
		cfg.MultipartPartSize = d.MultipartPartSize
	}
	return &uploadService{
		repo:               repo,
		storage:            storage,
		queue:              queue,
		presignTTL:         cfg.PresignTTL,
		multipartThreshold: cfg.MultipartThreshold,
		partSize:           cfg.MultipartPartSize,
	}
}

// CreatePhoto creates photo metadata and generates a presigned upload URL.
func (s *uploadService) CreatePhoto(ctx context.Context, input CreatePhotoInput) (*CreatePhotoOutput, error) {
	photo, err := model.NewPhoto(input.AlbumID, input.FileName)
	if err != nil {
		return nil, err
	}

	key := s.generateOriginalKey(photo.ID, photo.FileName)

	uploadURL, err := s.storage.PresignedPutURL(ctx, key, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("generate presigned upload URL: %w", err)
	}

	photo.SetOriginalKey(key)

	if err := s.repo.Create(ctx, photo); err != nil {
		return nil, fmt.Errorf("create photo: %w", err)
	}

	return &CreatePhotoOutput{
		Photo:     photo,
		UploadURL: uploadURL,
	}, nil
}

// UploadOriginal reads at most MultipartThreshold+1 bytes to decide between
// a single PUT and a multipart session, so the body length need not be known.
func (s *uploadService) UploadOriginal(ctx context.Context, input UploadOriginalInput) error {
	photo, err := s.repo.GetByID(ctx, input.PhotoID)
	if err != nil {
		return err
	}
	if photo.Status != model.StatusPendingUpload {
		return ErrPhotoNotAwaitingUpload
	}

	opts := repository.UploadOptions{ContentType: input.ContentType}

	head, err := io.ReadAll(io.LimitReader(input.Body, s.multipartThreshold+1))
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	if len(head) == 0 {
		return ErrEmptyUpload
	}

	if int64(len(head)) <= s.multipartThreshold {
		if err := s.storage.Upload(ctx, photo.OriginalKey, head, opts); err != nil {
			return fmt.Errorf("upload original: %w", err)
		}
		return nil
	}

	body := io.MultiReader(bytes.NewReader(head), input.Body)
	if err := s.uploadMultipart(ctx, photo.OriginalKey, body); err != nil {
		return fmt.Errorf("multipart upload original: %w", err)
	}
	return nil
}

// uploadMultipart streams body in partSize chunks. Any failure after the
// session is opened schedules a detached abort.
func (s *uploadService) uploadMultipart(ctx context.Context, key string, body io.Reader) (err error) {
	uploadID, err := s.storage.InitMultipartUpload(ctx, key)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	session := repository.MultipartUploadSession{Key: key, UploadID: uploadID}
	defer func() {
		if err != nil {
			s.abortInBackground(ctx, session.Key, session.UploadID)
		}
	}()

	buf := make([]byte, s.partSize)
	for partNumber := 1; ; partNumber++ {
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			part, err := s.storage.UploadPart(ctx, session.Key, session.UploadID, partNumber, buf[:n])
			if err != nil {
				return fmt.Errorf("part %d: %w", partNumber, err)
			}
			session.Parts = append(session.Parts, part)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read part %d: %w", partNumber, readErr)
		}
	}

	if err := s.storage.CompleteMultipartUpload(ctx, session.Key, session.UploadID, session.Parts); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

// abortInBackground prefers the storage facade's tracked cleanup and falls
// back to a detached goroutine for plain adapters.
func (s *uploadService) abortInBackground(ctx context.Context, key, uploadID string) {
	if a, ok := s.storage.(backgroundAborter); ok {
		a.AbortInBackground(ctx, key, uploadID)
		return
	}

	go func() {
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		defer cancel()
		if err := s.storage.AbortMultipartUpload(abortCtx, key, uploadID); err != nil {
			slog.Warn("failed to abort multipart upload",
				"key", key,
				"upload_id", uploadID,
				"error", err,
			)
		}
	}()
}

// TriggerProcess initiates async processing for a photo.
// Idempotency: returns nil if photo is already processing.
func (s *uploadService) TriggerProcess(ctx context.Context, input TriggerProcessInput) error {
	photo, err := s.repo.GetByID(ctx, input.PhotoID)
	if err != nil {
		return err
	}

	if photo.Status == model.StatusProcessing {
		return nil
	}

	if photo.Status.IsTerminal() {
		return ErrPhotoAlreadyCompleted
	}

	if err := photo.TransitionTo(model.StatusProcessing); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, photo); err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}

	task := repository.ProcessTask{
		PhotoID:     photo.ID,
		OriginalKey: photo.OriginalKey,
		OutputKey:   s.generateOutputKey(photo.ID),
		Rotation:    input.Rotation,
		StylePreset: input.StylePreset,
		Watermark:   input.Watermark,
	}

	if err := s.queue.PublishProcessTask(ctx, task); err != nil {
		return fmt.Errorf("publish process task: %w", err)
	}

	return nil
}

// GetPhoto retrieves a photo and, once it is READY, presigned links to its
// thumbnail and preview.
func (s *uploadService) GetPhoto(ctx context.Context, photoID uuid.UUID) (*PhotoOutput, error) {
	photo, err := s.repo.GetByID(ctx, photoID)
	if err != nil {
		return nil, err
	}

	out := &PhotoOutput{Photo: photo}
	if !photo.IsReady() {
		return out, nil
	}

	if out.ThumbURL, err = s.storage.PresignedGetURL(ctx, photo.ThumbKey, s.presignTTL); err != nil {
		return nil, fmt.Errorf("presign thumbnail: %w", err)
	}
	if out.PreviewURL, err = s.storage.PresignedGetURL(ctx, photo.PreviewKey, s.presignTTL); err != nil {
		return nil, fmt.Errorf("presign preview: %w", err)
	}
	return out, nil
}

func (s *uploadService) ListPhotos(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error) {
	return s.repo.ListByAlbum(ctx, albumID)
}

// generateOriginalKey creates the storage key for original files.
// Format: originals/{photo_id}/{filename}
func (s *uploadService) generateOriginalKey(photoID uuid.UUID, filename string) string {
	return path.Join("originals", photoID.String(), path.Base(filename))
}

// generateOutputKey creates the storage key prefix for derivatives.
// Format: photos/{photo_id}/
func (s *uploadService) generateOutputKey(photoID uuid.UUID) string {
	return path.Join("photos", photoID.String()) + "/"
}
