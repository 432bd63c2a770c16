// Package archive implements the transfer-and-verify workflow that moves
// converted video objects into the long-term archive.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/video-archiver/internal/keys"
	"github.com/andresuchdata/video-archiver/internal/library"
	"github.com/andresuchdata/video-archiver/internal/retry"
	"github.com/andresuchdata/video-archiver/internal/storage"
)

// Options bound the pipeline's heuristics, retry budgets and delays.
type Options struct {
	// FreshnessWindow is how recently modified a source object may be before
	// it is presumed still being written.
	FreshnessWindow time.Duration
	// UploadMaxAttempts bounds retries of a single object upload on
	// transient server errors.
	UploadMaxAttempts int
	// VerifyMaxAttempts bounds existence-check retries per object.
	VerifyMaxAttempts int
	// VerifyRetryDelay is the fixed wait between verification attempts.
	VerifyRetryDelay time.Duration
	// PropagationDelay is the fixed wait between the last upload and the
	// first verification, for read-after-write consistency lag.
	PropagationDelay time.Duration
	// TransferTimeout bounds the fetch+upload pair for one object. Zero
	// means no bound.
	TransferTimeout time.Duration
	// BucketPrefix prefixes the video id to name the destination bucket.
	BucketPrefix string
}

func (o Options) withDefaults() Options {
	if o.FreshnessWindow == 0 {
		o.FreshnessWindow = time.Hour
	}
	if o.UploadMaxAttempts == 0 {
		o.UploadMaxAttempts = 10
	}
	if o.VerifyMaxAttempts == 0 {
		o.VerifyMaxAttempts = 5
	}
	if o.BucketPrefix == "" {
		o.BucketPrefix = "KA-converted-"
	}
	return o
}

// transferUnit is one qualifying object selected for migration. It is built
// once during discovery and consumed once by the transfer stage.
type transferUnit struct {
	object   storage.ObjectInfo
	format   string
	destName string
}

// Pipeline moves one video id's converted objects to the archive and
// verifies each of them landed. It holds no per-run state: independent video
// ids may run through separate or shared Pipeline values concurrently, but
// callers must serialize runs for the same video id.
type Pipeline struct {
	source  storage.Bucket
	archive storage.Archive
	catalog library.Catalog
	opts    Options
	log     zerolog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(source storage.Bucket, archiveStore storage.Archive, catalog library.Catalog, opts Options, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:  source,
		archive: archiveStore,
		catalog: catalog,
		opts:    opts.withDefaults(),
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Archive runs the full workflow for one video id: discovery, readiness,
// transfer, propagation wait, verification. The Report carries the terminal
// Result; the error return is reserved for contract violations and
// non-transient infrastructure failures, which abort without a Result.
func (p *Pipeline) Archive(ctx context.Context, videoID string, formats []string) (Report, error) {
	report := Report{VideoID: videoID, Verified: make(map[string]bool)}
	log := p.log.With().Str("video_id", videoID).Logger()

	units, blocked, err := p.discover(ctx, videoID, log)
	if err != nil {
		return report, err
	}
	if blocked {
		report.Result = ReadinessBlocked
		return report, nil
	}

	for _, format := range formats {
		if len(units[format]) == 0 {
			log.Error().Str("format", format).
				Msg("requested format for archive upload not found in converted bucket")
			report.Result = SourceMissing
			return report, nil
		}
	}

	meta, err := p.catalog.VideoMetadata(ctx, videoID)
	if err != nil {
		return report, fmt.Errorf("fetch video metadata for %s: %w", videoID, err)
	}
	headers := uploadHeaders(meta)

	destBucket := p.opts.BucketPrefix + videoID
	for _, format := range formats {
		for _, unit := range units[format] {
			if err := p.transfer(ctx, destBucket, unit, headers, log); err != nil {
				if errors.Is(err, retry.ErrExhausted) {
					log.Error().Err(err).Str("key", unit.object.Key).
						Msg("gave up archive upload after repeated server errors")
					report.Result = ServerErrorExhausted
					return report, nil
				}
				return report, err
			}
			report.Uploaded = append(report.Uploaded, unit.destName)
		}
	}

	log.Debug().Dur("delay", p.opts.PropagationDelay).Msg("waiting for uploads to propagate")
	if err := p.sleep(ctx, p.opts.PropagationDelay); err != nil {
		return report, err
	}

	allVerified := true
	for _, destName := range report.Uploaded {
		verified := p.verify(ctx, destBucket, videoID, destName, log)
		report.Verified[destName] = verified
		allVerified = allVerified && verified
	}
	if !allVerified {
		report.Result = VerificationFailed
		return report, nil
	}

	report.Result = Success
	return report, nil
}

// discover lists the video's source objects, checks readiness of every
// current-format object, and groups the qualifying ones by format. An object
// qualifies for transfer when its relative path carries the format's own
// extension; companion artifacts (thumbnails and the like) stay behind.
func (p *Pipeline) discover(ctx context.Context, videoID string, log zerolog.Logger) (map[string][]transferUnit, bool, error) {
	listing, err := p.source.List(ctx, videoID, true)
	if err != nil {
		return nil, false, fmt.Errorf("list converted objects for %s: %w", videoID, err)
	}

	units := make(map[string][]transferUnit)
	for _, obj := range listing {
		k := keys.Parse(obj.Key)
		switch k.Kind {
		case keys.Current:
		case keys.Legacy:
			continue
		default:
			log.Info().Str("key", obj.Key).Msg("unrecognized object in converted bucket")
			continue
		}

		if k.VideoID != videoID {
			return nil, false, fmt.Errorf("%w: key %q does not belong to video %q", ErrContract, obj.Key, videoID)
		}

		if !ready(obj, p.opts.FreshnessWindow, p.now()) {
			log.Error().
				Str("format", k.Format).
				Time("last_modified", obj.LastModified).
				Msg("object appeared on storage, but the encoder may still be uploading it")
			return nil, true, nil
		}

		destName := strings.TrimPrefix(obj.Key, k.Prefix())
		if strings.Contains(destName, "/") {
			// Don't expect more than one level of nesting
			return nil, false, fmt.Errorf("%w: nested destination name %q from key %q", ErrContract, destName, obj.Key)
		}

		if strings.TrimPrefix(path.Ext(destName), ".") != k.Format {
			log.Debug().Str("key", obj.Key).Str("format", k.Format).
				Msg("skipping companion artifact, not the format's own payload")
			continue
		}

		units[k.Format] = append(units[k.Format], transferUnit{
			object:   obj,
			format:   k.Format,
			destName: destName,
		})
	}
	return units, false, nil
}

// transfer fetches one object into a scratch buffer and pushes it to the
// destination bucket, retrying transient server errors up to the attempt
// budget. Any other upload error is fatal immediately.
func (p *Pipeline) transfer(ctx context.Context, destBucket string, unit transferUnit, headers map[string]string, log zerolog.Logger) error {
	if p.opts.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TransferTimeout)
		defer cancel()
	}

	log.Debug().Str("dest", unit.destName).Msg("copying object to the archive")

	body, err := p.source.Get(ctx, unit.object.Key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", unit.object.Key, err)
	}
	buf, err := io.ReadAll(body)
	closeErr := body.Close()
	if err != nil {
		return fmt.Errorf("fetch %s: %w", unit.object.Key, err)
	}
	if closeErr != nil {
		return fmt.Errorf("fetch %s: %w", unit.object.Key, closeErr)
	}
	log.Debug().Str("key", unit.object.Key).Int("bytes", len(buf)).Msg("downloaded source object")

	attempt := 0
	return retry.Do(ctx, p.opts.UploadMaxAttempts, 0, storage.IsTransient, func() error {
		attempt++
		err := p.archive.Put(ctx, destBucket, unit.destName, bytes.NewReader(buf), int64(len(buf)), headers)
		if err != nil && storage.IsTransient(err) {
			log.Error().Err(err).Int("attempt", attempt).Str("dest", unit.destName).
				Msg("server error during archive upload attempt")
		}
		return err
	})
}

// verify issues the metadata-only existence check with its retry budget.
// Success logs at info and failure at error, so monitoring can tell the two
// apart; the boolean carries the same distinction to the caller.
func (p *Pipeline) verify(ctx context.Context, destBucket, videoID, destName string, log zerolog.Logger) bool {
	attempt := 0
	err := retry.Do(ctx, p.opts.VerifyMaxAttempts, p.opts.VerifyRetryDelay, retry.Always, func() error {
		attempt++
		status, err := p.archive.Head(ctx, destBucket, destName)
		if err != nil {
			log.Error().Err(err).Int("attempt", attempt).Str("dest", destName).
				Msg("error during archive upload verification attempt")
			return err
		}
		if status != http.StatusOK {
			err := fmt.Errorf("verification of %s/%s: unexpected status %d", destBucket, destName, status)
			log.Error().Err(err).Int("attempt", attempt).Msg("archive upload verification attempt failed")
			return err
		}
		return nil
	})
	if err != nil {
		log.Error().Str("object", videoID+"/"+destName).Msg("unable to verify archive upload")
		return false
	}

	log.Info().Str("object", videoID+"/"+destName).Msg("verified archive upload")
	return true
}
