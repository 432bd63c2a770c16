package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ObjectInfo describes one stored object as returned by a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Bucket captures the operations the archiver needs against a single bucket.
// A non-recursive List returns top-level entries only, with common prefixes
// reported as keys ending in "/".
type Bucket interface {
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, headers map[string]string) error
	Copy(ctx context.Context, srcKey, destKey string) error
}

// Archive is the destination backend. Its buckets are per-video and created
// on first write, so every call names the bucket it targets.
type Archive interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, headers map[string]string) error
	Head(ctx context.Context, bucket, key string) (int, error)
}

// ServerError is a non-2xx response from a storage backend.
type ServerError struct {
	StatusCode int
	Reason     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("storage server error %d: %s", e.StatusCode, e.Reason)
}

// IsTransient reports whether err is a server-side (5xx) failure worth
// retrying. Client errors and transport failures are not transient.
func IsTransient(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.StatusCode >= 500
}
