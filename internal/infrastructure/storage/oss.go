package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/hszk-dev/lumina/internal/domain/repository"
)

// ossBucket is the subset of *oss.Bucket used by OSSAdapter.
type ossBucket interface {
	GetObject(objectKey string, options ...oss.Option) (io.ReadCloser, error)
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
	SignURL(objectKey string, method oss.HTTPMethod, expiredInSec int64, options ...oss.Option) (string, error)
	InitiateMultipartUpload(objectKey string, options ...oss.Option) (oss.InitiateMultipartUploadResult, error)
	UploadPart(imur oss.InitiateMultipartUploadResult, reader io.Reader, partSize int64, partNumber int, options ...oss.Option) (oss.UploadPart, error)
	CompleteMultipartUpload(imur oss.InitiateMultipartUploadResult, parts []oss.UploadPart, options ...oss.Option) (oss.CompleteMultipartUploadResult, error)
	AbortMultipartUpload(imur oss.InitiateMultipartUploadResult, options ...oss.Option) error
	ListObjectsV2(options ...oss.Option) (oss.ListObjectsResultV2, error)
	CopyObject(srcObjectKey, destObjectKey string, options ...oss.Option) (oss.CopyObjectResult, error)
	DeleteObject(objectKey string, options ...oss.Option) error
}

const ossListPageSize = 1000

// OSSAdapter implements repository.StorageAdapter for Aliyun OSS using the
// vendor SDK's native signing.
type OSSAdapter struct {
	bucket     ossBucket
	bucketName string
}

var _ repository.StorageAdapter = (*OSSAdapter)(nil)

// NewOSSAdapter creates an OSS adapter. When no endpoint is configured it is
// derived from the region, e.g. oss-cn-hangzhou.aliyuncs.com.
func NewOSSAdapter(cfg Config) (*OSSAdapter, error) {
	if cfg.Bucket == "" {
		return nil, errMissingBucket
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("oss-%s.aliyuncs.com", strings.TrimPrefix(cfg.Region, "oss-"))
	}
	if !strings.Contains(endpoint, "://") {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		endpoint = scheme + endpoint
	}

	client, err := oss.New(endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open oss bucket: %w", err)
	}

	return newOSSAdapterWithBucket(bucket, cfg.Bucket), nil
}

// newOSSAdapterWithBucket is used for dependency injection in tests.
func newOSSAdapterWithBucket(bucket ossBucket, name string) *OSSAdapter {
	return &OSSAdapter{bucket: bucket, bucketName: name}
}

func (a *OSSAdapter) Download(ctx context.Context, key string) ([]byte, error) {
	body, err := a.bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		return nil, classifyOSS("get object", key, err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, backendError("read object", err)
	}
	return data, nil
}

func (a *OSSAdapter) Upload(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
	options := []oss.Option{oss.WithContext(ctx)}
	if opts.ContentType != "" {
		options = append(options, oss.ContentType(opts.ContentType))
	}
	if opts.CacheControl != "" {
		options = append(options, oss.CacheControl(opts.CacheControl))
	}
	for k, v := range opts.Metadata {
		options = append(options, oss.Meta(k, v))
	}

	if err := a.bucket.PutObject(key, bytes.NewReader(data), options...); err != nil {
		return backendError("upload object", err)
	}
	return nil
}

func (a *OSSAdapter) PresignedPutURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return a.sign(key, oss.HTTPPut, ttl)
}

func (a *OSSAdapter) PresignedGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return a.sign(key, oss.HTTPGet, ttl)
}

func (a *OSSAdapter) sign(key string, method oss.HTTPMethod, ttl time.Duration) (string, error) {
	u, err := a.bucket.SignURL(key, method, int64(ttl/time.Second))
	if err != nil {
		return "", backendError("sign url", err)
	}
	return u, nil
}

func (a *OSSAdapter) InitMultipartUpload(ctx context.Context, key string) (string, error) {
	imur, err := a.bucket.InitiateMultipartUpload(key, oss.WithContext(ctx))
	if err != nil {
		return "", backendError("initiate multipart upload", err)
	}
	return imur.UploadID, nil
}

func (a *OSSAdapter) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error) {
	part, err := a.bucket.UploadPart(a.session(key, uploadID), bytes.NewReader(data), int64(len(data)), partNumber, oss.WithContext(ctx))
	if err != nil {
		return repository.CompletedPart{}, backendError("upload part", err)
	}
	return repository.CompletedPart{PartNumber: partNumber, ETag: part.ETag}, nil
}

func (a *OSSAdapter) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error {
	uploaded := make([]oss.UploadPart, 0, len(parts))
	for _, p := range sortedParts(parts) {
		uploaded = append(uploaded, oss.UploadPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	if _, err := a.bucket.CompleteMultipartUpload(a.session(key, uploadID), uploaded, oss.WithContext(ctx)); err != nil {
		return backendError("complete multipart upload", err)
	}
	return nil
}

func (a *OSSAdapter) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	err := a.bucket.AbortMultipartUpload(a.session(key, uploadID), oss.WithContext(ctx))
	if err != nil {
		if ossCode(err) == "NoSuchUpload" {
			return nil
		}
		return backendError("abort multipart upload", err)
	}
	return nil
}

func (a *OSSAdapter) ListObjects(ctx context.Context, prefix string) ([]repository.ObjectSummary, error) {
	var (
		out   []repository.ObjectSummary
		token string
	)
	for {
		options := []oss.Option{oss.WithContext(ctx), oss.Prefix(prefix), oss.MaxKeys(ossListPageSize)}
		if token != "" {
			options = append(options, oss.ContinuationToken(token))
		}

		page, err := a.bucket.ListObjectsV2(options...)
		if err != nil {
			return nil, backendError("list objects", err)
		}
		for _, obj := range page.Objects {
			out = append(out, repository.ObjectSummary{
				Key:          obj.Key,
				Size:         obj.Size,
				ETag:         strings.Trim(obj.ETag, `"`),
				LastModified: obj.LastModified,
			})
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

func (a *OSSAdapter) Copy(ctx context.Context, src, dst string) error {
	if _, err := a.bucket.CopyObject(src, dst, oss.WithContext(ctx)); err != nil {
		return classifyOSS("copy object", src, err)
	}
	return nil
}

func (a *OSSAdapter) Delete(ctx context.Context, key string) error {
	if err := a.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		if isOSSNotFound(err) {
			return nil
		}
		return backendError("delete object", err)
	}
	return nil
}

func (a *OSSAdapter) session(key, uploadID string) oss.InitiateMultipartUploadResult {
	return oss.InitiateMultipartUploadResult{Bucket: a.bucketName, Key: key, UploadID: uploadID}
}

func classifyOSS(op, key string, err error) error {
	if isOSSNotFound(err) {
		return fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
	}
	return backendError(op, err)
}

func isOSSNotFound(err error) bool {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code == "NoSuchKey" || svcErr.StatusCode == http.StatusNotFound
	}
	return false
}

func ossCode(err error) string {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}
