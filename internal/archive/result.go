package archive

import "errors"

// Result is the terminal per-video outcome of an archive run. Callers branch
// on it; the pipeline holds no state once it is returned.
type Result int

const (
	// resultUnset is the zero value so that a Report abandoned by an error
	// never reads as a real outcome.
	resultUnset Result = iota
	// Success means every qualifying object was transferred and verified.
	Success
	// ReadinessBlocked means at least one source object was modified too
	// recently and the encoder may still be writing it. Retry later.
	ReadinessBlocked
	// SourceMissing means a requested format has no qualifying object in
	// the converted bucket. Retry once upstream encoding completes.
	SourceMissing
	// ServerErrorExhausted means an upload kept failing with transient
	// server errors until the attempt budget ran out.
	ServerErrorExhausted
	// VerificationFailed means at least one transferred object could not be
	// confirmed retrievable at the destination.
	VerificationFailed
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ReadinessBlocked:
		return "readiness-blocked"
	case SourceMissing:
		return "source-missing"
	case ServerErrorExhausted:
		return "server-error-exhausted"
	case VerificationFailed:
		return "verification-failed"
	default:
		return "unset"
	}
}

// Report pairs the terminal Result with per-object detail so monitoring can
// branch programmatically instead of scraping logs.
type Report struct {
	VideoID  string
	Result   Result
	Uploaded []string        // destination names pushed to the archive
	Verified map[string]bool // destination name -> verification outcome
}

// ErrContract marks a programming-contract violation, such as a listed key
// that names a different video id than the one requested. Not recoverable
// and never retried.
var ErrContract = errors.New("contract violation")
