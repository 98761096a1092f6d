package repository

import (
	"context"
	"time"
)

// StorageAdapter is the backend-neutral object storage contract. Every driver
// (S3-compatible, OSS, COS) satisfies it with the same observable behavior:
// missing keys surface as ErrObjectNotFound and every other backend failure
// wraps ErrBackend.
type StorageAdapter interface {
	// Download returns the full object body.
	Download(ctx context.Context, key string) ([]byte, error)

	// Upload stores data under key, overwriting any existing object.
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error

	// PresignedPutURL returns a URL that accepts a single PUT of the object
	// until ttl elapses. Signing happens locally.
	PresignedPutURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PresignedGetURL returns a URL that serves the object until ttl elapses.
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// InitMultipartUpload opens a multipart session and returns its upload ID.
	InitMultipartUpload(ctx context.Context, key string) (string, error)

	// UploadPart uploads one part. Part numbers start at 1.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (CompletedPart, error)

	// CompleteMultipartUpload assembles the parts, which must be given in
	// ascending part number order.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error

	// AbortMultipartUpload discards a session. Aborting an unknown or
	// already aborted session is not an error.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	// ListObjects returns every object whose key starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]ObjectSummary, error)

	// Copy duplicates src to dst within the bucket.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// UploadOptions carries the optional HTTP headers stored with an object.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// CompletedPart identifies an uploaded part of a multipart session.
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// ObjectSummary describes one listed object.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// MultipartUploadSession tracks an open multipart upload.
type MultipartUploadSession struct {
	Key      string
	UploadID string
	Parts    []CompletedPart
}
