package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of a photo.
type Status string

const (
	StatusPendingUpload Status = "PENDING_UPLOAD"
	StatusProcessing    Status = "PROCESSING"
	StatusReady         Status = "READY"
	StatusFailed        Status = "FAILED"
)

// Valid status transitions:
// PENDING_UPLOAD -> PROCESSING -> READY
//
//	\-> FAILED
var validTransitions = map[Status][]Status{
	StatusPendingUpload: {StatusProcessing},
	StatusProcessing:    {StatusReady, StatusFailed},
	StatusReady:         {},
	StatusFailed:        {},
}

func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, status := range validTransitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Photo is a single uploaded image and the derivatives produced from it.
type Photo struct {
	ID          uuid.UUID
	AlbumID     uuid.UUID
	FileName    string
	Status      Status
	OriginalKey string
	ThumbKey    string
	PreviewKey  string
	BlurHash    string
	Width       int
	Height      int
	// EXIF holds the sanitized EXIF document as JSON.
	EXIF      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	ErrEmptyFileName     = errors.New("file name cannot be empty")
	ErrInvalidAlbumID    = errors.New("album ID cannot be nil")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrFileNameTooLong   = errors.New("file name exceeds maximum length of 255 characters")
)

const maxFileNameLength = 255

// NewPhoto creates a new Photo with PENDING_UPLOAD status.
func NewPhoto(albumID uuid.UUID, fileName string) (*Photo, error) {
	if albumID == uuid.Nil {
		return nil, ErrInvalidAlbumID
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, ErrEmptyFileName
	}
	if len(fileName) > maxFileNameLength {
		return nil, ErrFileNameTooLong
	}

	now := time.Now()
	return &Photo{
		ID:        uuid.New(),
		AlbumID:   albumID,
		FileName:  fileName,
		Status:    StatusPendingUpload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionTo attempts to change the photo status.
func (p *Photo) TransitionTo(next Status) error {
	if !next.IsValid() || !p.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	p.Status = next
	p.UpdatedAt = time.Now()
	return nil
}

// SetOriginalKey records where the uploaded original lives.
func (p *Photo) SetOriginalKey(key string) {
	p.OriginalKey = key
	p.UpdatedAt = time.Now()
}

// SetDerivatives records the outputs of a successful pipeline run.
func (p *Photo) SetDerivatives(thumbKey, previewKey string, result *ProcessedResult, exifJSON []byte) {
	p.ThumbKey = thumbKey
	p.PreviewKey = previewKey
	p.BlurHash = result.BlurHash
	p.Width = result.Metadata.Width
	p.Height = result.Metadata.Height
	p.EXIF = exifJSON
	p.UpdatedAt = time.Now()
}

func (p *Photo) IsReady() bool {
	return p.Status == StatusReady
}

func (p *Photo) IsFailed() bool {
	return p.Status == StatusFailed
}
