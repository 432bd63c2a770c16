package archive

import (
	"time"

	"github.com/andresuchdata/video-archiver/internal/storage"
)

// ready reports whether obj looks finished. An object modified within the
// freshness window is presumed to still be receiving writes from the
// upstream encoding pipeline. Heuristic only: "ready" means probably done,
// not provably immutable. The boundary counts as ready: an object modified
// exactly one window ago passes.
func ready(obj storage.ObjectInfo, window time.Duration, now time.Time) bool {
	return now.Sub(obj.LastModified) >= window
}
