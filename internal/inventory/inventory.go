// Package inventory folds converted-bucket listings into per-video format
// availability. Everything here is recomputed from the listing it is handed;
// there is no caching and no persistence.
package inventory

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/video-archiver/internal/keys"
	"github.com/andresuchdata/video-archiver/internal/library"
	"github.com/andresuchdata/video-archiver/internal/storage"
)

// FormatSet is a set of encoded-format names.
type FormatSet map[string]struct{}

func NewFormatSet(formats ...string) FormatSet {
	s := make(FormatSet, len(formats))
	for _, f := range formats {
		s.Add(f)
	}
	return s
}

func (s FormatSet) Add(format string)      { s[format] = struct{}{} }
func (s FormatSet) Has(format string) bool { _, ok := s[format]; return ok }

// Subtract returns the formats in s that are not in other. A nil other is an
// empty set.
func (s FormatSet) Subtract(other FormatSet) FormatSet {
	diff := make(FormatSet)
	for f := range s {
		if !other.Has(f) {
			diff.Add(f)
		}
	}
	return diff
}

// Sorted returns the set's members in lexical order.
func (s FormatSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Formats maps every video id seen in the listing to its available converted
// formats. Legacy keys are counted and reported without failing the fold;
// unrecognized keys are warned about and skipped.
func Formats(listing []storage.ObjectInfo, log zerolog.Logger) map[string]FormatSet {
	formats := make(map[string]FormatSet)
	legacyKeys := 0

	for _, obj := range listing {
		k := keys.Parse(obj.Key)
		switch k.Kind {
		case keys.Current:
			if formats[k.VideoID] == nil {
				formats[k.VideoID] = make(FormatSet)
			}
			formats[k.VideoID].Add(k.Format)
		case keys.Legacy:
			legacyKeys++
		default:
			log.Warn().Str("key", obj.Key).Msg("unrecognized key is not in VIDEO_ID.FORMAT/ form")
		}
	}

	log.Info().Int("count", legacyKeys).Msg("legacy converted keys ignored")
	return formats
}

// LegacyVideoIDs returns the video ids that still have at least one
// legacy-style key in the listing. These ids can be handed to the legacy
// migration.
func LegacyVideoIDs(listing []storage.ObjectInfo) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, obj := range listing {
		k := keys.Parse(obj.Key)
		if k.Kind == keys.Legacy {
			ids[k.VideoID] = struct{}{}
		}
	}
	return ids
}

// Missing returns, per catalog video, the required formats that the listing
// does not yet hold. A video id with no inventory entry at all counts as
// having an empty format set, so its full required set comes back missing.
func Missing(required FormatSet, listing []storage.ObjectInfo, playlists []library.Playlist, log zerolog.Logger) map[string]FormatSet {
	available := Formats(listing, log)

	missing := make(map[string]FormatSet)
	for _, playlist := range playlists {
		for _, video := range playlist.Videos {
			if video.YoutubeID == "" {
				// Not hosted on the video platform
				continue
			}
			missing[video.YoutubeID] = required.Subtract(available[video.YoutubeID])
		}
	}
	return missing
}
