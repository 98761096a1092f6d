package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
)

// PhotoRepository defines the interface for photo persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type PhotoRepository interface {
	// Create persists a new photo entity.
	// Returns ErrDuplicatePhoto if the ID is already taken.
	Create(ctx context.Context, photo *model.Photo) error

	// GetByID retrieves a photo by its unique identifier.
	// Returns nil and ErrPhotoNotFound if the photo does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Photo, error)

	// ListByAlbum returns the photos of an album, newest first.
	ListByAlbum(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error)

	// Update persists changes to an existing photo entity.
	// Returns ErrPhotoNotFound if the photo does not exist.
	Update(ctx context.Context, photo *model.Photo) error

	// UpdateStatus updates only the status field of a photo.
	// Returns ErrPhotoNotFound if the photo does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error
}
