package archive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/video-archiver/internal/keys"
	"github.com/andresuchdata/video-archiver/internal/storage"
)

// Legacy-era conversions only ever produced mp4 video (plus companions), so
// every migrated key lands under the mp4 format tag.
const legacyFormat = "mp4"

// MigrateLegacy rewrites every object stored under the legacy "<videoID>/"
// prefix into the current "<videoID>.mp4/" convention with a server-side
// copy. The source objects stay in place; the copy directive carries their
// metadata over. A matched key that is not legacy-shaped or that names a
// different video id is a contract violation.
func MigrateLegacy(ctx context.Context, bucket storage.Bucket, videoID string, log zerolog.Logger) error {
	listing, err := bucket.List(ctx, videoID+"/", true)
	if err != nil {
		return fmt.Errorf("list legacy objects for %s: %w", videoID, err)
	}

	for _, obj := range listing {
		k := keys.Parse(obj.Key)
		if k.Kind != keys.Legacy {
			return fmt.Errorf("%w: key %q under legacy prefix is not legacy-shaped", ErrContract, obj.Key)
		}
		if k.VideoID != videoID {
			return fmt.Errorf("%w: key %q does not belong to video %q", ErrContract, obj.Key, videoID)
		}

		destKey := fmt.Sprintf("%s.%s/%s", videoID, legacyFormat, k.RelativePath)
		log.Info().Str("from", obj.Key).Str("to", destKey).Msg("copying legacy object to new naming scheme")
		if err := bucket.Copy(ctx, obj.Key, destKey); err != nil {
			return fmt.Errorf("copy %s to %s: %w", obj.Key, destKey, err)
		}
	}
	return nil
}
