// Package revocation implements the persistent revocation cache and the
// OCSP/CRL clients that populate it, grounded on the teacher's
// cmd/ocsp-updater (golang.org/x/crypto/ocsp usage, looper refresh pattern)
// and va/http.go (blocking HTTP client construction with bounded retries).
package revocation

// Status is a single-bit verification outcome. Status values combine into
// a StatusSet using the bit-flag encoding from SPEC_FULL.md's external
// interfaces section, so a cache row's integer column round-trips directly.
type Status int

const (
	Good              Status = 1 << 0
	Revoked           Status = 1 << 1
	Unknown           Status = 1 << 2
	VerificationError Status = 1 << 3
	NotSupported      Status = 1 << 4
	ConnectionFailed  Status = 1 << 5
	Error             Status = 1 << 6
)

func (s Status) String() string {
	switch s {
	case Good:
		return "Good"
	case Revoked:
		return "Revoked"
	case Unknown:
		return "Unknown"
	case VerificationError:
		return "VerificationError"
	case NotSupported:
		return "NotSupported"
	case ConnectionFailed:
		return "ConnectionFailed"
	case Error:
		return "Error"
	default:
		return "Composite"
	}
}

// StatusSet combines multiple Status bits observed over a certificate list.
type StatusSet int

// NewStatusSet builds a StatusSet from individual statuses.
func NewStatusSet(statuses ...Status) StatusSet {
	var set StatusSet
	for _, s := range statuses {
		set |= StatusSet(s)
	}
	return set
}

// Add folds another status into the set.
func (s *StatusSet) Add(status Status) {
	*s |= StatusSet(status)
}

// Has reports whether status is present in the set.
func (s StatusSet) Has(status Status) bool {
	return s&StatusSet(status) != 0
}

// Collapse reduces a StatusSet accumulated over a certificate list to a
// single Status, in priority order: Revoked beats everything, then Error,
// then Unknown/VerificationError/ConnectionFailed, then NotSupported, then
// Good. An empty set collapses to Unknown.
func (s StatusSet) Collapse() Status {
	switch {
	case s.Has(Revoked):
		return Revoked
	case s.Has(Error):
		return Error
	case s.Has(Unknown):
		return Unknown
	case s.Has(VerificationError):
		return VerificationError
	case s.Has(ConnectionFailed):
		return ConnectionFailed
	case s.Has(NotSupported):
		return NotSupported
	case s.Has(Good):
		return Good
	default:
		return Unknown
	}
}

// isUndetermined reports whether a status counts as the table's "Undet"
// bucket: the checker ran but could not reach a definite answer, as
// distinct from Good/Revoked/Unknown/NotSupported which each have their
// own table column or row.
func isUndetermined(s Status) bool {
	return s == Error || s == VerificationError || s == ConnectionFailed
}

// Combine applies the OCSP x CRL status-combination table:
//
//	            CRL Good   CRL Revoked  CRL Undet  CRL NotSupp
//	OCSP Good   Good       Revoked      Good       Good
//	OCSP Revoked Revoked   Revoked      Revoked    Revoked
//	OCSP Unknown Unknown   Revoked      Unknown    Unknown
//	OCSP Undet   Error     Revoked      Error      Error
//	OCSP NotSupp Good      Revoked      Good       Good
//
// The table is total: every (ocsp, crl) pair lands in exactly one cell.
func Combine(ocsp, crl Status) Status {
	if crl == Revoked {
		return Revoked
	}
	switch {
	case ocsp == Good, ocsp == NotSupported:
		return Good
	case ocsp == Revoked:
		return Revoked
	case ocsp == Unknown:
		return Unknown
	case isUndetermined(ocsp):
		return Error
	default:
		return Error
	}
}
