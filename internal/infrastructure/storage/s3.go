package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/lumina/internal/domain/repository"
)

// objectReader abstracts minio.Object for testability.
// *minio.Object satisfies this interface.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// s3Client is the slice of minio-go used by S3Adapter. Object calls go to
// *minio.Client; the multipart calls live on minio.Core.
type s3Client interface {
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

// minioClientAdapter binds s3Client to a real client. Core shares the
// client's transport and credentials.
type minioClientAdapter struct {
	client *minio.Client
	core   *minio.Core
}

func newMinioClientAdapter(client *minio.Client) *minioClientAdapter {
	return &minioClientAdapter{client: client, core: &minio.Core{Client: client}}
}

func (a *minioClientAdapter) PresignedPutObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (*url.URL, error) {
	return a.client.PresignedPutObject(ctx, bucketName, objectName, expiry)
}

func (a *minioClientAdapter) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	return a.client.PresignedGetObject(ctx, bucketName, objectName, expiry, reqParams)
}

func (a *minioClientAdapter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (a *minioClientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return a.client.GetObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return a.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return a.client.ListObjects(ctx, bucketName, opts)
}

func (a *minioClientAdapter) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	return a.client.CopyObject(ctx, dst, src)
}

func (a *minioClientAdapter) NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error) {
	return a.core.NewMultipartUpload(ctx, bucket, object, opts)
}

func (a *minioClientAdapter) PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	return a.core.PutObjectPart(ctx, bucket, object, uploadID, partID, data, size, opts)
}

func (a *minioClientAdapter) CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.core.CompleteMultipartUpload(ctx, bucket, object, uploadID, parts, opts)
}

func (a *minioClientAdapter) AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error {
	return a.core.AbortMultipartUpload(ctx, bucket, object, uploadID)
}

// S3Adapter implements repository.StorageAdapter for AWS S3 and MinIO.
type S3Adapter struct {
	client          s3Client
	presignedClient s3Client // Separate client for presigned URLs (may use public endpoint)
	bucket          string
}

// Compile-time verification that S3Adapter implements repository.StorageAdapter.
var _ repository.StorageAdapter = (*S3Adapter)(nil)

// NewS3Adapter creates an S3-compatible adapter. No request is sent: the
// region is pinned so presigning never has to look up the bucket location.
func NewS3Adapter(cfg Config) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errMissingBucket
	}

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if endpoint == "" && cfg.normalizedType() == TypeS3 {
		endpoint = "s3.amazonaws.com"
		secure = true
	}

	client, err := newMinioClient(endpoint, cfg, secure)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	adapter := newMinioClientAdapter(client)

	var presignedAdapter s3Client = adapter
	if cfg.PublicEndpoint != "" {
		presignedClient, err := newMinioClient(cfg.PublicEndpoint, cfg, secure)
		if err != nil {
			return nil, fmt.Errorf("failed to create presigned s3 client: %w", err)
		}
		presignedAdapter = newMinioClientAdapter(presignedClient)
	}

	return newS3AdapterWithClient(adapter, presignedAdapter, cfg.Bucket), nil
}

func newMinioClient(endpoint string, cfg Config, secure bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
}

// newS3AdapterWithClient is used for dependency injection in tests.
func newS3AdapterWithClient(client, presignedClient s3Client, bucket string) *S3Adapter {
	return &S3Adapter{
		client:          client,
		presignedClient: presignedClient,
		bucket:          bucket,
	}
}

// Download retrieves the full object body.
func (a *S3Adapter) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, a.classify("get object", key, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject returns a lazy reader that doesn't fail until read.
	if _, err := obj.Stat(); err != nil {
		return nil, a.classify("stat object", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, a.classify("read object", key, err)
	}
	return data, nil
}

// Upload stores data under key.
func (a *S3Adapter) Upload(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), putOptions(opts))
	if err != nil {
		return backendError("upload object", err)
	}
	return nil
}

// PresignedPutURL signs a PUT URL using presignedClient, which may be
// configured with a public endpoint.
func (a *S3Adapter) PresignedPutURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := a.presignedClient.PresignedPutObject(ctx, a.bucket, key, ttl)
	if err != nil {
		return "", backendError("generate presigned upload URL", err)
	}
	return u.String(), nil
}

// PresignedGetURL signs a GET URL.
func (a *S3Adapter) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := a.presignedClient.PresignedGetObject(ctx, a.bucket, key, ttl, make(url.Values))
	if err != nil {
		return "", backendError("generate presigned download URL", err)
	}
	return u.String(), nil
}

func (a *S3Adapter) InitMultipartUpload(ctx context.Context, key string) (string, error) {
	uploadID, err := a.client.NewMultipartUpload(ctx, a.bucket, key, minio.PutObjectOptions{})
	if err != nil {
		return "", backendError("initiate multipart upload", err)
	}
	return uploadID, nil
}

func (a *S3Adapter) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error) {
	part, err := a.client.PutObjectPart(ctx, a.bucket, key, uploadID, partNumber,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	if err != nil {
		return repository.CompletedPart{}, a.classify("upload part", key, err)
	}
	return repository.CompletedPart{PartNumber: partNumber, ETag: part.ETag}, nil
}

func (a *S3Adapter) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range sortedParts(parts) {
		completed = append(completed, minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	if _, err := a.client.CompleteMultipartUpload(ctx, a.bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return a.classify("complete multipart upload", key, err)
	}
	return nil
}

func (a *S3Adapter) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	err := a.client.AbortMultipartUpload(ctx, a.bucket, key, uploadID)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchUpload" {
			return nil
		}
		return backendError("abort multipart upload", err)
	}
	return nil
}

// ListObjects walks every page under prefix.
func (a *S3Adapter) ListObjects(ctx context.Context, prefix string) ([]repository.ObjectSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []repository.ObjectSummary
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, backendError("list objects", obj.Err)
		}
		out = append(out, repository.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func (a *S3Adapter) Copy(ctx context.Context, src, dst string) error {
	_, err := a.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: a.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: a.bucket, Object: src},
	)
	if err != nil {
		return a.classify("copy object", src, err)
	}
	return nil
}

func (a *S3Adapter) Delete(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isS3NotFound(err) {
			return nil
		}
		return backendError("delete object", err)
	}
	return nil
}

func (a *S3Adapter) classify(op, key string, err error) error {
	if isS3NotFound(err) {
		return fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
	}
	return backendError(op, err)
}

func isS3NotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket")
}

func putOptions(opts repository.UploadOptions) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	}
}

func sortedParts(parts []repository.CompletedPart) []repository.CompletedPart {
	out := slices.Clone(parts)
	slices.SortFunc(out, func(a, b repository.CompletedPart) int {
		return a.PartNumber - b.PartNumber
	})
	return out
}
