// Package validator implements end-to-end orchestration for one signature
// file: parse, build chain, tag by trust domain, invoke XML-DSig verify,
// check references, run revocation, and collapse the result into a single
// SignatureVerdict. Grounded on the original SignatureValidator::check
// control flow, restructured as sequential Go calls the way the teacher's
// CA signer sequences GenerateOCSP/IssueCertificate steps with an error
// check after each one.
package validator

// Verdict is the final outcome of validating one signature file.
type Verdict int

const (
	// Valid is reserved for callers that pre-screen before invoking Check;
	// Check itself never returns Valid directly (see Verified).
	Valid Verdict = iota
	// Invalid: cryptographically unsound (bad role/profile, broken chain,
	// failed XML-DSig, mismatched references).
	Invalid
	// Verified: cryptographically sound and trusted.
	Verified
	// Disregard: cryptographically sound but not trusted, or revocation
	// status could not be determined.
	Disregard
	// Revoked: a certificate in the chain was positively identified as
	// revoked.
	Revoked
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	case Verified:
		return "Verified"
	case Disregard:
		return "Disregard"
	case Revoked:
		return "Revoked"
	default:
		return "Unknown"
	}
}

// Flags gates the optional behaviors described in SPEC_FULL.md §6's CLI
// surface: upstream drivers set these on a per-check basis.
type Flags struct {
	OCSPEnabled    bool
	CRLEnabled     bool
	ComplianceMode bool
}
