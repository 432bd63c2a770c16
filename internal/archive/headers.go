package archive

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/andresuchdata/video-archiver/internal/library"
)

// Header names understood by the archive backend. The auto-make-bucket flag
// makes the provider create the per-video bucket on first upload.
const (
	headerAutoMakeBucket = "x-archive-auto-make-bucket"
	headerCollection     = "x-archive-meta-collection"
	headerTitle          = "x-archive-meta-title"
	headerDescription    = "x-archive-meta-description"
	headerMediaType      = "x-archive-meta-mediatype"
	headerSubject01      = "x-archive-meta01-subject"
	headerSubject02      = "x-archive-meta02-subject"
)

// uploadHeaders builds the fixed-shape metadata attached to every archive
// upload.
func uploadHeaders(meta library.Metadata) map[string]string {
	return map[string]string{
		headerAutoMakeBucket: "1",
		headerCollection:     "khanacademy",
		headerTitle:          normalizeForHeader(meta.Title),
		headerDescription:    normalizeForHeader(meta.Description),
		headerMediaType:      "movies",
		headerSubject01:      "Salman Khan",
		headerSubject02:      "Khan Academy",
	}
}

// normalizeForHeader reduces s to plain ASCII with newlines stripped. The
// archive rejects header values outside that range; losing decorative
// characters is accepted.
func normalizeForHeader(s string) string {
	decomposed := norm.NFKD.String(s)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r > unicode.MaxASCII || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
