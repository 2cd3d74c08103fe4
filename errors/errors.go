// Package errors provides the typed error taxonomy used across vcore.
//
// Low-level packages (certificate, signature, reference, revocation) never
// decide a final verdict; they return one of these typed errors and let the
// validator package collapse the signal into a SignatureVerdict, per the
// propagation policy in SPEC_FULL.md §7.
package errors

import "fmt"

// ErrorType provides a coarse category for VcoreErrors.
type ErrorType int

const (
	// ParseError: certificate or XML-DSig document was malformed.
	ParseError ErrorType = iota
	// ChainError: certificate collection could not be sorted into a chain,
	// or the chain contains a cycle.
	ChainError
	// NetworkError: OCSP/CRL transport failed after exhausting retries.
	NetworkError
	// RevocationRevoked: a certificate was positively identified as revoked.
	RevocationRevoked
	// RevocationUnknown: revocation status could not be determined.
	RevocationUnknown
	// CacheError: the revocation cache's persistent store failed.
	CacheError
	// TrustError: the chain's root is not present in any expected trust domain.
	TrustError
	// ReferenceMismatch: the package's files and the signed reference set disagree.
	ReferenceMismatch
)

func (t ErrorType) String() string {
	switch t {
	case ParseError:
		return "ParseError"
	case ChainError:
		return "ChainError"
	case NetworkError:
		return "NetworkError"
	case RevocationRevoked:
		return "RevocationRevoked"
	case RevocationUnknown:
		return "RevocationUnknown"
	case CacheError:
		return "CacheError"
	case TrustError:
		return "TrustError"
	case ReferenceMismatch:
		return "ReferenceMismatch"
	default:
		return "Unknown"
	}
}

// VcoreError represents a typed error raised by any core component.
type VcoreError struct {
	Type   ErrorType
	Detail string
}

func (e *VcoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Detail)
}

// New is a convenience function for creating a new VcoreError.
func New(errType ErrorType, msg string, args ...interface{}) error {
	return &VcoreError{
		Type:   errType,
		Detail: fmt.Sprintf(msg, args...),
	}
}

// Is reports whether err is a VcoreError of the given type.
func Is(err error, errType ErrorType) bool {
	vErr, ok := err.(*VcoreError)
	if !ok {
		return false
	}
	return vErr.Type == errType
}

func NewParseError(msg string, args ...interface{}) error {
	return New(ParseError, msg, args...)
}

func NewChainError(msg string, args ...interface{}) error {
	return New(ChainError, msg, args...)
}

func NewNetworkError(msg string, args ...interface{}) error {
	return New(NetworkError, msg, args...)
}

func NewRevocationRevokedError(msg string, args ...interface{}) error {
	return New(RevocationRevoked, msg, args...)
}

func NewRevocationUnknownError(msg string, args ...interface{}) error {
	return New(RevocationUnknown, msg, args...)
}

func NewCacheError(msg string, args ...interface{}) error {
	return New(CacheError, msg, args...)
}

func NewTrustError(msg string, args ...interface{}) error {
	return New(TrustError, msg, args...)
}

func NewReferenceMismatchError(msg string, args ...interface{}) error {
	return New(ReferenceMismatch, msg, args...)
}
