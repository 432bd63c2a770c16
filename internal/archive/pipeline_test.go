package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/video-archiver/internal/library"
	"github.com/andresuchdata/video-archiver/internal/storage"
)

type fakeObject struct {
	data         []byte
	lastModified time.Time
}

// fakeBucket is an in-memory storage.Bucket. extraListing entries are
// appended to every List result regardless of prefix, to simulate a backend
// returning keys the caller did not ask for.
type fakeBucket struct {
	objects      map[string]fakeObject
	extraListing []storage.ObjectInfo
	copies       [][2]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string]fakeObject)}
}

func (f *fakeBucket) put(key string, data string, lastModified time.Time) {
	f.objects[key] = fakeObject{data: []byte(data), lastModified: lastModified}
}

func (f *fakeBucket) List(ctx context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	listing := make([]storage.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		obj := f.objects[key]
		listing = append(listing, storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	return append(listing, f.extraListing...), nil
}

func (f *fakeBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, &storage.ServerError{StatusCode: http.StatusNotFound, Reason: "no such key " + key}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeBucket) Put(ctx context.Context, key string, r io.Reader, size int64, headers map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = fakeObject{data: data, lastModified: time.Now()}
	return nil
}

func (f *fakeBucket) Copy(ctx context.Context, srcKey, destKey string) error {
	obj, ok := f.objects[srcKey]
	if !ok {
		return &storage.ServerError{StatusCode: http.StatusNotFound, Reason: "no such key " + srcKey}
	}
	f.objects[destKey] = obj
	f.copies = append(f.copies, [2]string{srcKey, destKey})
	return nil
}

// fakeArchive is an in-memory storage.Archive. putErrs and headErrs are
// consumed one per call; a nil entry (or an exhausted queue) means success.
type fakeArchive struct {
	objects   map[string][]byte
	headers   map[string]map[string]string
	putErrs   []error
	headErrs  []error
	putCalls  int
	headCalls int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		objects: make(map[string][]byte),
		headers: make(map[string]map[string]string),
	}
}

func (f *fakeArchive) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, headers map[string]string) error {
	f.putCalls++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	f.headers[bucket+"/"+key] = headers
	return nil
}

func (f *fakeArchive) Head(ctx context.Context, bucket, key string) (int, error) {
	f.headCalls++
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		if err != nil {
			var se *storage.ServerError
			if errors.As(err, &se) {
				return se.StatusCode, err
			}
			return 0, err
		}
	}
	if _, ok := f.objects[bucket+"/"+key]; ok {
		return http.StatusOK, nil
	}
	err := &storage.ServerError{StatusCode: http.StatusNotFound, Reason: "no such object"}
	return http.StatusNotFound, err
}

type fakeCatalog struct {
	meta library.Metadata
}

func (f *fakeCatalog) GetLibrary(ctx context.Context) ([]library.Playlist, error) {
	return nil, nil
}

func (f *fakeCatalog) VideoMetadata(ctx context.Context, videoID string) (library.Metadata, error) {
	return f.meta, nil
}

func serverErr(status int) error {
	return &storage.ServerError{StatusCode: status, Reason: fmt.Sprintf("status %d", status)}
}

func repeatErr(n int, err error) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

var testNow = time.Date(2012, 7, 4, 12, 0, 0, 0, time.UTC)

func newTestPipeline(source *fakeBucket, dest *fakeArchive) *Pipeline {
	p := New(source, dest, &fakeCatalog{meta: library.Metadata{
		Title:       "Intro to algebra",
		Description: "First lesson",
	}}, Options{
		FreshnessWindow:   time.Hour,
		UploadMaxAttempts: 10,
		VerifyMaxAttempts: 5,
	}, zerolog.Nop())
	p.now = func() time.Time { return testNow }
	return p
}

func TestArchiveSuccess(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	source.put("abc123.mp4/abc123.png", "thumbnail-bytes", testNow.Add(-2*time.Hour))
	source.put("abc123/old-legacy.mp4", "legacy-bytes", testNow.Add(-48*time.Hour))
	dest := newFakeArchive()

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, Success, report.Result)
	assert.Equal(t, []string{"abc123.mp4"}, report.Uploaded)
	assert.Equal(t, map[string]bool{"abc123.mp4": true}, report.Verified)

	// Exactly one object lands in the per-video destination bucket, the
	// format's own payload; the thumbnail companion stays behind.
	require.Len(t, dest.objects, 1)
	assert.Equal(t, []byte("video-bytes"), dest.objects["KA-converted-abc123/abc123.mp4"])

	headers := dest.headers["KA-converted-abc123/abc123.mp4"]
	require.NotNil(t, headers)
	assert.Equal(t, "1", headers["x-archive-auto-make-bucket"])
	assert.Equal(t, "khanacademy", headers["x-archive-meta-collection"])
	assert.Equal(t, "Intro to algebra", headers["x-archive-meta-title"])
	assert.Equal(t, "First lesson", headers["x-archive-meta-description"])
	assert.Equal(t, "movies", headers["x-archive-meta-mediatype"])
}

func TestArchiveReadinessBlocked(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-5*time.Minute))
	source.put("abc123.mp4/abc123.png", "thumbnail-bytes", testNow.Add(-5*time.Minute))
	dest := newFakeArchive()

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, ReadinessBlocked, report.Result)
	assert.Empty(t, report.Uploaded)
	assert.Zero(t, dest.putCalls, "nothing may be copied when a source object is too fresh")
}

func TestArchiveBlocksOnAnyFreshObject(t *testing.T) {
	// A fresh object blocks the whole video id even when another requested
	// format is fully ready.
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	source.put("abc123.m3u8/abc123.m3u8", "playlist-bytes", testNow.Add(-5*time.Minute))
	dest := newFakeArchive()

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, ReadinessBlocked, report.Result)
	assert.Zero(t, dest.putCalls)
}

func TestArchiveSourceMissing(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"m3u8"})
	require.NoError(t, err)
	assert.Equal(t, SourceMissing, report.Result)
	assert.Empty(t, report.Uploaded)
	assert.Zero(t, dest.putCalls)
}

func TestArchiveUploadRetriesTransientServerErrors(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()
	dest.putErrs = repeatErr(9, serverErr(http.StatusServiceUnavailable))

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, Success, report.Result)
	assert.Equal(t, 10, dest.putCalls, "nine failures then success on the tenth attempt")
}

func TestArchiveUploadExhaustsRetryBudget(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()
	dest.putErrs = repeatErr(10, serverErr(http.StatusServiceUnavailable))

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, ServerErrorExhausted, report.Result)
	assert.Equal(t, 10, dest.putCalls, "no attempts beyond the budget")
	assert.Zero(t, dest.headCalls, "no verification after an aborted transfer")
}

func TestArchiveUploadFatalOnNonTransientError(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()
	dest.putErrs = []error{serverErr(http.StatusForbidden)}

	_, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.Error(t, err)
	assert.Equal(t, 1, dest.putCalls, "client errors are not retried")
}

func TestArchiveVerificationRetries(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()
	dest.headErrs = repeatErr(4, serverErr(http.StatusBadGateway))

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, Success, report.Result)
	assert.Equal(t, 5, dest.headCalls, "four failures then success on the fifth check")
	assert.True(t, report.Verified["abc123.mp4"])
}

func TestArchiveVerificationExhausted(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()
	dest.headErrs = repeatErr(5, serverErr(http.StatusBadGateway))

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, VerificationFailed, report.Result)
	assert.Equal(t, 5, dest.headCalls, "definitive failure after the budget, no crash")
	assert.False(t, report.Verified["abc123.mp4"])
}

func TestArchiveContractViolationOnForeignKey(t *testing.T) {
	// "abc123x" shares the listing prefix with "abc123" but is a different
	// video; discovering it under the requested id is a programming error.
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	source.put("abc123x.mp4/abc123x.mp4", "other-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()

	_, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.ErrorIs(t, err, ErrContract)
	assert.Zero(t, dest.putCalls)
}

func TestArchiveContractViolationOnNestedDestination(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/nested/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	dest := newFakeArchive()

	_, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.ErrorIs(t, err, ErrContract)
}

func TestArchiveIgnoresUnrecognizedKeys(t *testing.T) {
	source := newFakeBucket()
	source.put("abc123.mp4/abc123.mp4", "video-bytes", testNow.Add(-2*time.Hour))
	source.extraListing = []storage.ObjectInfo{
		{Key: "abc123 odd key", LastModified: testNow}, // fresh, but never inspected
	}
	dest := newFakeArchive()

	report, err := newTestPipeline(source, dest).Archive(context.Background(), "abc123", []string{"mp4"})
	require.NoError(t, err)
	assert.Equal(t, Success, report.Result)
}
