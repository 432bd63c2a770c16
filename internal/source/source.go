// Package source keeps the unconverted bucket stocked with original video
// files for the transcoding pipeline to pick up.
package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/video-archiver/internal/storage"
)

// Downloader fetches a video from the external hosting platform and returns
// the local file path it was written to.
type Downloader interface {
	Download(ctx context.Context, videoID string) (string, error)
}

// ExecDownloader shells out to an external downloader binary (yt-dlp or
// compatible) that writes the video into Dir and prints the final file path.
type ExecDownloader struct {
	Binary string
	Dir    string
}

func (d *ExecDownloader) Download(ctx context.Context, videoID string) (string, error) {
	template := filepath.Join(d.Dir, "%(id)s.%(ext)s")
	cmd := exec.CommandContext(ctx, d.Binary,
		"--output", template,
		"--print", "after_move:filepath",
		"--no-simulate",
		videoID,
	)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("download %s: %w", videoID, err)
	}

	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", fmt.Errorf("download %s: downloader reported no output file", videoID)
	}
	return path, nil
}

var _ Downloader = (*ExecDownloader)(nil)

// Extensions the transcoding pipeline is known to accept.
var knownExtensions = map[string]bool{
	"flv": true,
	"mp4": true,
}

// Store wraps the unconverted bucket.
type Store struct {
	bucket     storage.Bucket
	bucketName string
	downloader Downloader
	log        zerolog.Logger
}

func NewStore(bucket storage.Bucket, bucketName string, downloader Downloader, log zerolog.Logger) *Store {
	return &Store{
		bucket:     bucket,
		bucketName: bucketName,
		downloader: downloader,
		log:        log,
	}
}

// EnsureSourceURL returns an s3:// URL for the unconverted source of
// videoID. When the bucket holds nothing under the video's prefix, the video
// is downloaded from the hosting platform, uploaded as "<id>/<id>.<ext>",
// and the local file removed.
func (s *Store) EnsureSourceURL(ctx context.Context, videoID string) (string, error) {
	matching, err := s.bucket.List(ctx, videoID, true)
	if err != nil {
		return "", fmt.Errorf("list unconverted objects for %s: %w", videoID, err)
	}

	if len(matching) > 0 {
		if len(matching) > 1 {
			s.log.Warn().Str("video_id", videoID).Int("count", len(matching)).
				Msg("more than one matching unconverted source found")
		}
		return s.url(matching[0].Key), nil
	}

	s.log.Info().Str("video_id", videoID).
		Msg("unconverted source not on storage yet, downloading to create it")

	path, err := s.downloader.Download(ctx, videoID)
	if err != nil {
		return "", err
	}
	s.log.Info().Str("path", path).Msg("downloaded video")

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("downloaded file %s has no extension", path)
	}
	if !knownExtensions[ext] {
		s.log.Warn().Str("video_id", videoID).Str("extension", ext).
			Msg("unrecognized video extension from downloader")
	}

	key := fmt.Sprintf("%s/%s.%s", videoID, videoID, ext)
	if err := s.uploadFile(ctx, key, path); err != nil {
		return "", err
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove downloaded file: %w", err)
	}
	s.log.Info().Str("path", path).Msg("deleted local download")

	return s.url(key), nil
}

func (s *Store) uploadFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open downloaded file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat downloaded file: %w", err)
	}

	if err := s.bucket.Put(ctx, key, f, info.Size(), nil); err != nil {
		return fmt.Errorf("upload unconverted source %s: %w", key, err)
	}
	return nil
}

func (s *Store) url(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucketName, key)
}
