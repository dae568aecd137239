package snapshot

// Reason is the closed set of failure causes reported by the extractor or
// introduced by this subsystem (storage_error). Branching happens on the
// typed value, never on raw strings from the wire.
type Reason string

// Extractor and storage failure reasons.
const (
	ReasonTimeout      Reason = "timeout"
	ReasonFetchError   Reason = "fetch_error"
	ReasonStorageError Reason = "storage_error"
	ReasonNoArchive    Reason = "noarchive"
	ReasonForbidden    Reason = "forbidden"
	ReasonNotHTML      Reason = "not_html"
	ReasonTooLarge     Reason = "too_large"
	ReasonInvalidURL   Reason = "invalid_url"
	ReasonParseFailed  Reason = "parse_failed"
	ReasonSSRFBlocked  Reason = "ssrf_blocked"
)

// Retriable reports whether a failure with this reason may be retried
// while attempt budget remains. Everything else is terminal on first sight.
func (r Reason) Retriable() bool {
	switch r {
	case ReasonTimeout, ReasonFetchError, ReasonStorageError:
		return true
	default:
		return false
	}
}

// TerminalStatus maps a non-retriable outcome to its record status.
// A noarchive opt-out is respected as blocked rather than treated as an error.
func (r Reason) TerminalStatus() Status {
	if r == ReasonNoArchive {
		return StatusBlocked
	}
	return StatusFailed
}
