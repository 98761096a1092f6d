package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"github.com/hszk-dev/lumina/internal/domain/repository"
)

// errCOSNoSuchUpload marks an abort against a session COS no longer knows.
var errCOSNoSuchUpload = errors.New("cos: no such upload")

// cosAPI is the narrow view of the COS SDK used by COSAdapter. The SDK
// binding translates missing keys into repository.ErrObjectNotFound.
type cosAPI interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	PutObject(ctx context.Context, key string, r io.Reader, opts repository.UploadOptions) error
	PresignURL(ctx context.Context, method, key string, ttl time.Duration) (*url.URL, error)
	InitiateMultipartUpload(ctx context.Context, key string) (string, error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []cos.Object) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	ListPage(ctx context.Context, prefix, marker string) (*cos.BucketGetResult, error)
	CopyObject(ctx context.Context, src, dst string) error
	DeleteObject(ctx context.Context, key string) error
}

// cosSDKClient binds cosAPI to *cos.Client.
type cosSDKClient struct {
	client    *cos.Client
	bucketURL *url.URL
	secretID  string
	secretKey string
}

func (c *cosSDKClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, translateCOSError(key, err)
	}
	return resp.Body, nil
}

func (c *cosSDKClient) PutObject(ctx context.Context, key string, r io.Reader, opts repository.UploadOptions) error {
	header := &cos.ObjectPutHeaderOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	}
	if len(opts.Metadata) > 0 {
		meta := make(http.Header, len(opts.Metadata))
		for k, v := range opts.Metadata {
			meta.Set("x-cos-meta-"+k, v)
		}
		header.XCosMetaXXX = &meta
	}

	_, err := c.client.Object.Put(ctx, key, r, &cos.ObjectPutOptions{ObjectPutHeaderOptions: header})
	return translateCOSError(key, err)
}

func (c *cosSDKClient) PresignURL(ctx context.Context, method, key string, ttl time.Duration) (*url.URL, error) {
	return c.client.Object.GetPresignedURL(ctx, method, key, c.secretID, c.secretKey, ttl, nil)
}

func (c *cosSDKClient) InitiateMultipartUpload(ctx context.Context, key string) (string, error) {
	res, _, err := c.client.Object.InitiateMultipartUpload(ctx, key, nil)
	if err != nil {
		return "", err
	}
	return res.UploadID, nil
}

func (c *cosSDKClient) UploadPart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader, size int64) (string, error) {
	resp, err := c.client.Object.UploadPart(ctx, key, uploadID, partNumber, r, &cos.ObjectUploadPartOptions{ContentLength: size})
	if err != nil {
		return "", translateCOSError(key, err)
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

func (c *cosSDKClient) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []cos.Object) error {
	_, _, err := c.client.Object.CompleteMultipartUpload(ctx, key, uploadID, &cos.CompleteMultipartUploadOptions{Parts: parts})
	return translateCOSError(key, err)
}

func (c *cosSDKClient) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := c.client.Object.AbortMultipartUpload(ctx, key, uploadID)
	if cosErrorCode(err) == "NoSuchUpload" {
		return errCOSNoSuchUpload
	}
	return err
}

func (c *cosSDKClient) ListPage(ctx context.Context, prefix, marker string) (*cos.BucketGetResult, error) {
	res, _, err := c.client.Bucket.Get(ctx, &cos.BucketGetOptions{
		Prefix:  prefix,
		Marker:  marker,
		MaxKeys: 1000,
	})
	return res, err
}

func (c *cosSDKClient) CopyObject(ctx context.Context, src, dst string) error {
	sourceURL := fmt.Sprintf("%s/%s", c.bucketURL.Host, src)
	_, _, err := c.client.Object.Copy(ctx, dst, sourceURL, nil)
	return translateCOSError(src, err)
}

func (c *cosSDKClient) DeleteObject(ctx context.Context, key string) error {
	_, err := c.client.Object.Delete(ctx, key)
	return translateCOSError(key, err)
}

func translateCOSError(key string, err error) error {
	if err == nil {
		return nil
	}
	var cosErr *cos.ErrorResponse
	if errors.As(err, &cosErr) {
		if cosErr.Code == "NoSuchKey" || (cosErr.Response != nil && cosErr.Response.StatusCode == http.StatusNotFound) {
			return fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
		}
	}
	return err
}

func cosErrorCode(err error) string {
	var cosErr *cos.ErrorResponse
	if errors.As(err, &cosErr) {
		return cosErr.Code
	}
	return ""
}

// COSAdapter implements repository.StorageAdapter for Tencent COS.
type COSAdapter struct {
	api cosAPI
}

var _ repository.StorageAdapter = (*COSAdapter)(nil)

// NewCOSAdapter creates a COS adapter. Endpoint may be a full bucket URL;
// otherwise it is derived as https://<bucket>.cos.<region>.myqcloud.com,
// where bucket carries the APPID suffix.
func NewCOSAdapter(cfg Config) (*COSAdapter, error) {
	if cfg.Bucket == "" {
		return nil, errMissingBucket
	}

	raw := cfg.Endpoint
	if raw == "" {
		raw = fmt.Sprintf("https://%s.cos.%s.myqcloud.com", cfg.Bucket, cfg.Region)
	} else if !strings.Contains(raw, "://") {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		raw = scheme + raw
	}
	bucketURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cos bucket url: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		},
	})

	return newCOSAdapterWithAPI(&cosSDKClient{
		client:    client,
		bucketURL: bucketURL,
		secretID:  cfg.AccessKey,
		secretKey: cfg.SecretKey,
	}), nil
}

// newCOSAdapterWithAPI is used for dependency injection in tests.
func newCOSAdapterWithAPI(api cosAPI) *COSAdapter {
	return &COSAdapter{api: api}
}

func (a *COSAdapter) Download(ctx context.Context, key string) ([]byte, error) {
	body, err := a.api.GetObject(ctx, key)
	if err != nil {
		return nil, wrapCOS("get object", err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, backendError("read object", err)
	}
	return data, nil
}

func (a *COSAdapter) Upload(ctx context.Context, key string, data []byte, opts repository.UploadOptions) error {
	if err := a.api.PutObject(ctx, key, bytes.NewReader(data), opts); err != nil {
		return wrapCOS("upload object", err)
	}
	return nil
}

func (a *COSAdapter) PresignedPutURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := a.api.PresignURL(ctx, http.MethodPut, key, ttl)
	if err != nil {
		return "", backendError("generate presigned upload URL", err)
	}
	return u.String(), nil
}

func (a *COSAdapter) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := a.api.PresignURL(ctx, http.MethodGet, key, ttl)
	if err != nil {
		return "", backendError("generate presigned download URL", err)
	}
	return u.String(), nil
}

func (a *COSAdapter) InitMultipartUpload(ctx context.Context, key string) (string, error) {
	uploadID, err := a.api.InitiateMultipartUpload(ctx, key)
	if err != nil {
		return "", backendError("initiate multipart upload", err)
	}
	return uploadID, nil
}

func (a *COSAdapter) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (repository.CompletedPart, error) {
	etag, err := a.api.UploadPart(ctx, key, uploadID, partNumber, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return repository.CompletedPart{}, wrapCOS("upload part", err)
	}
	return repository.CompletedPart{PartNumber: partNumber, ETag: etag}, nil
}

func (a *COSAdapter) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []repository.CompletedPart) error {
	objs := make([]cos.Object, 0, len(parts))
	for _, p := range sortedParts(parts) {
		objs = append(objs, cos.Object{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	if err := a.api.CompleteMultipartUpload(ctx, key, uploadID, objs); err != nil {
		return wrapCOS("complete multipart upload", err)
	}
	return nil
}

func (a *COSAdapter) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	err := a.api.AbortMultipartUpload(ctx, key, uploadID)
	if err != nil && !errors.Is(err, errCOSNoSuchUpload) {
		return backendError("abort multipart upload", err)
	}
	return nil
}

func (a *COSAdapter) ListObjects(ctx context.Context, prefix string) ([]repository.ObjectSummary, error) {
	var (
		out    []repository.ObjectSummary
		marker string
	)
	for {
		page, err := a.api.ListPage(ctx, prefix, marker)
		if err != nil {
			return nil, backendError("list objects", err)
		}
		for _, obj := range page.Contents {
			// COS reports LastModified as an ISO-8601 string.
			modified, _ := time.Parse(time.RFC3339, obj.LastModified)
			out = append(out, repository.ObjectSummary{
				Key:          obj.Key,
				Size:         obj.Size,
				ETag:         strings.Trim(obj.ETag, `"`),
				LastModified: modified,
			})
		}
		if !page.IsTruncated {
			return out, nil
		}
		marker = page.NextMarker
		if marker == "" && len(page.Contents) > 0 {
			marker = page.Contents[len(page.Contents)-1].Key
		}
		if marker == "" {
			return out, nil
		}
	}
}

func (a *COSAdapter) Copy(ctx context.Context, src, dst string) error {
	if err := a.api.CopyObject(ctx, src, dst); err != nil {
		return wrapCOS("copy object", err)
	}
	return nil
}

func (a *COSAdapter) Delete(ctx context.Context, key string) error {
	err := a.api.DeleteObject(ctx, key)
	if err != nil && !errors.Is(err, repository.ErrObjectNotFound) {
		return backendError("delete object", err)
	}
	return nil
}

func wrapCOS(op string, err error) error {
	if errors.Is(err, repository.ErrObjectNotFound) {
		return err
	}
	return backendError(op, err)
}
