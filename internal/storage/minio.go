package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ClientConfig encapsulates the connection info for one S3-compatible
// endpoint.
type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func newMinioClient(cfg ClientConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build storage client for %s: %w", cfg.Endpoint, err)
	}
	return client, nil
}

// MinioBucket implements Bucket against one bucket of an S3-compatible
// endpoint.
type MinioBucket struct {
	client *minio.Client
	bucket string
}

func NewMinioBucket(cfg ClientConfig, bucket string) (*MinioBucket, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must be provided")
	}
	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioBucket{client: client, bucket: bucket}, nil
}

func (b *MinioBucket) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	results := make([]ObjectInfo, 0)
	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})
	for object := range objects {
		if object.Err != nil {
			return nil, wrapMinioErr("list "+b.bucket, object.Err)
		}
		results = append(results, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return results, nil
}

func (b *MinioBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapMinioErr("get "+key, err)
	}
	return object, nil
}

func (b *MinioBucket) Put(ctx context.Context, key string, r io.Reader, size int64, headers map[string]string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		UserMetadata: headers,
	})
	return wrapMinioErr("put "+key, err)
}

// Copy performs a server-side copy within the bucket. The copy directive
// carries the source object's metadata along with it.
func (b *MinioBucket) Copy(ctx context.Context, srcKey, destKey string) error {
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.bucket, Object: destKey},
		minio.CopySrcOptions{Bucket: b.bucket, Object: srcKey},
	)
	return wrapMinioErr("copy "+srcKey, err)
}

var _ Bucket = (*MinioBucket)(nil)

// MinioArchive implements Archive against the long-term archive endpoint.
// It never creates buckets itself: the archive provider does that on first
// write when the upload carries its auto-make-bucket header.
type MinioArchive struct {
	client *minio.Client
}

func NewMinioArchive(cfg ClientConfig) (*MinioArchive, error) {
	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioArchive{client: client}, nil
}

func (a *MinioArchive) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, headers map[string]string) error {
	_, err := a.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		UserMetadata: headers,
	})
	return wrapMinioErr(fmt.Sprintf("put %s/%s", bucket, key), err)
}

func (a *MinioArchive) Head(ctx context.Context, bucket, key string) (int, error) {
	_, err := a.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		wrapped := wrapMinioErr(fmt.Sprintf("head %s/%s", bucket, key), err)
		if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 {
			return resp.StatusCode, wrapped
		}
		return 0, wrapped
	}
	return http.StatusOK, nil
}

var _ Archive = (*MinioArchive)(nil)

// wrapMinioErr converts HTTP-status-bearing minio errors into ServerError so
// callers can classify them; everything else is wrapped as-is.
func wrapMinioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 {
		return fmt.Errorf("%s: %w", op, &ServerError{
			StatusCode: resp.StatusCode,
			Reason:     resp.Message,
		})
	}
	return fmt.Errorf("%s: %w", op, err)
}
