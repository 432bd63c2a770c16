// Package keys classifies raw object names from the converted bucket into
// the naming conventions the archiver understands.
package keys

import (
	"fmt"
	"regexp"
)

// Kind discriminates the recognized object-key shapes.
type Kind int

const (
	// Unrecognized keys match neither convention. They are reported and
	// otherwise ignored.
	Unrecognized Kind = iota
	// Current keys carry an explicit format segment:
	// VIDEO_ID.FORMAT/RELATIVE_PATH, e.g. "DK1lCc9b7bg.mp4/DK1lCc9b7bg.mp4".
	Current
	// Legacy keys predate the format segment: VIDEO_ID/RELATIVE_PATH.
	Legacy
)

func (k Kind) String() string {
	switch k {
	case Current:
		return "current"
	case Legacy:
		return "legacy"
	default:
		return "unrecognized"
	}
}

var (
	currentPattern = regexp.MustCompile(`^([\w-]+)\.(\w+)/(.*)$`)
	legacyPattern  = regexp.MustCompile(`^([\w-]+)/(.*)$`)
)

// Key is one classified object name.
type Key struct {
	Kind         Kind
	VideoID      string
	Format       string // empty for legacy and unrecognized keys
	RelativePath string
	Raw          string
}

// Parse classifies a raw object name. It is total: anything matching neither
// convention comes back Unrecognized, never an error.
func Parse(raw string) Key {
	if m := currentPattern.FindStringSubmatch(raw); m != nil {
		return Key{Kind: Current, VideoID: m[1], Format: m[2], RelativePath: m[3], Raw: raw}
	}
	if m := legacyPattern.FindStringSubmatch(raw); m != nil {
		return Key{Kind: Legacy, VideoID: m[1], RelativePath: m[2], Raw: raw}
	}
	return Key{Kind: Unrecognized, Raw: raw}
}

// String reconstructs the raw object name from the classified parts.
func (k Key) String() string {
	switch k.Kind {
	case Current:
		return fmt.Sprintf("%s.%s/%s", k.VideoID, k.Format, k.RelativePath)
	case Legacy:
		return fmt.Sprintf("%s/%s", k.VideoID, k.RelativePath)
	default:
		return k.Raw
	}
}

// Prefix returns the "VIDEO_ID.FORMAT/" portion of a current key. Stripping
// it from the raw key yields the relative path.
func (k Key) Prefix() string {
	return k.VideoID + "." + k.Format + "/"
}
