package repository

import "errors"

var (
	// ErrPhotoNotFound is returned when a photo cannot be found.
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrDuplicatePhoto is returned when attempting to create a photo that already exists.
	ErrDuplicatePhoto = errors.New("photo already exists")

	// ErrObjectNotFound is returned when a storage key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBackend wraps any failure reported by a storage backend.
	ErrBackend = errors.New("storage backend error")

	// ErrUnsupportedStorageType is returned by the adapter factory for an unknown backend type.
	ErrUnsupportedStorageType = errors.New("unsupported storage type")
)
