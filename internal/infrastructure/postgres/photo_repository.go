package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
)

const photoColumns = `id, album_id, file_name, status, original_key, thumb_key, preview_key,
		blur_hash, width, height, exif, created_at, updated_at`

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PhotoRepository implements repository.PhotoRepository using PostgreSQL.
type PhotoRepository struct {
	db DBTX
}

// NewPhotoRepository creates a new PhotoRepository instance.
func NewPhotoRepository(db DBTX) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create persists a new photo entity.
func (r *PhotoRepository) Create(ctx context.Context, photo *model.Photo) error {
	const query = `
		INSERT INTO photos (` + photoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TablePhotos).Inc()

	_, err := r.db.Exec(ctx, query,
		photo.ID,
		photo.AlbumID,
		photo.FileName,
		photo.Status.String(),
		nullString(photo.OriginalKey),
		nullString(photo.ThumbKey),
		nullString(photo.PreviewKey),
		nullString(photo.BlurHash),
		nullInt(photo.Width),
		nullInt(photo.Height),
		nullJSON(photo.EXIF),
		photo.CreatedAt,
		photo.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicatePhoto
		}
		return fmt.Errorf("failed to create photo: %w", err)
	}

	return nil
}

// GetByID retrieves a photo by its unique identifier.
func (r *PhotoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
	const query = `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE id = $1
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TablePhotos).Inc()

	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrPhotoNotFound
		}
		return nil, fmt.Errorf("failed to get photo by ID: %w", err)
	}

	return photo, nil
}

// ListByAlbum returns the photos of an album, newest first.
func (r *PhotoRepository) ListByAlbum(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error) {
	const query = `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE album_id = $1
		ORDER BY created_at DESC
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TablePhotos).Inc()

	rows, err := r.db.Query(ctx, query, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos by album ID: %w", err)
	}
	defer rows.Close()

	photos := []*model.Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

// Update persists changes to an existing photo entity.
func (r *PhotoRepository) Update(ctx context.Context, photo *model.Photo) error {
	const query = `
		UPDATE photos
		SET status = $2, original_key = $3, thumb_key = $4, preview_key = $5,
			blur_hash = $6, width = $7, height = $8, exif = $9, updated_at = $10
		WHERE id = $1
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TablePhotos).Inc()

	photo.UpdatedAt = time.Now()

	tag, err := r.db.Exec(ctx, query,
		photo.ID,
		photo.Status.String(),
		nullString(photo.OriginalKey),
		nullString(photo.ThumbKey),
		nullString(photo.PreviewKey),
		nullString(photo.BlurHash),
		nullInt(photo.Width),
		nullInt(photo.Height),
		nullJSON(photo.EXIF),
		photo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update photo: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrPhotoNotFound
	}

	return nil
}

// UpdateStatus updates only the status field of a photo.
func (r *PhotoRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	const query = `
		UPDATE photos
		SET status = $2, updated_at = $3
		WHERE id = $1
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TablePhotos).Inc()

	tag, err := r.db.Exec(ctx, query, id, status.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update photo status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrPhotoNotFound
	}

	return nil
}

// scanPhoto scans one row; it accepts both pgx.Row and pgx.Rows.
func scanPhoto(row pgx.Row) (*model.Photo, error) {
	var (
		photo       model.Photo
		status      string
		originalKey *string
		thumbKey    *string
		previewKey  *string
		blurHash    *string
		width       *int
		height      *int
	)

	err := row.Scan(
		&photo.ID,
		&photo.AlbumID,
		&photo.FileName,
		&status,
		&originalKey,
		&thumbKey,
		&previewKey,
		&blurHash,
		&width,
		&height,
		&photo.EXIF,
		&photo.CreatedAt,
		&photo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	photo.Status = model.Status(status)
	photo.OriginalKey = deref(originalKey)
	photo.ThumbKey = deref(thumbKey)
	photo.PreviewKey = deref(previewKey)
	photo.BlurHash = deref(blurHash)
	if width != nil {
		photo.Width = *width
	}
	if height != nil {
		photo.Height = *height
	}

	return &photo, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile-time verification that PhotoRepository implements repository.PhotoRepository.
var _ repository.PhotoRepository = (*PhotoRepository)(nil)
