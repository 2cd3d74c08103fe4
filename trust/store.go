// Package trust holds the TrustAnchorStore: a process-wide, read-only-after-
// init map from a root certificate's SHA-1 fingerprint to the set of trust
// domains it belongs to. Grounded on the teacher's pattern of loading a
// fixed policy document once at startup (cmd/config.go's JSON config load)
// adapted here to an XML fingerprint list per SPEC_FULL.md.
package trust

import (
	"encoding/xml"
	"fmt"
	"strings"

	verrors "github.com/wacapps/vcore/errors"
)

// Domain is a labeled bucket of root-certificate fingerprints.
type Domain string

const (
	Developer       Domain = "developer"
	AuthorRoot      Domain = "wacroot"
	DistributorRoot Domain = "wacpublisher"
	Member          Domain = "wacmember"
)

var validDomains = map[string]Domain{
	"developer":    Developer,
	"wacroot":      AuthorRoot,
	"wacpublisher": DistributorRoot,
	"wacmember":    Member,
}

// DomainSet is the set of domains a fingerprint belongs to.
type DomainSet map[Domain]struct{}

// Has reports whether d is a member of the set.
func (s DomainSet) Has(d Domain) bool {
	_, ok := s[d]
	return ok
}

// HasAny reports whether the set intersects any of ds.
func (s DomainSet) HasAny(ds ...Domain) bool {
	for _, d := range ds {
		if s.Has(d) {
			return true
		}
	}
	return false
}

func (s DomainSet) add(d Domain) {
	s[d] = struct{}{}
}

// Store answers fingerprint lookups against the loaded trust-anchor policy.
type Store struct {
	byFingerprint map[string]DomainSet
}

type fingerprintFile struct {
	XMLName  xml.Name `xml:"TrustAnchors"`
	Domains  []xmlDomain `xml:"CertificateDomain"`
}

type xmlDomain struct {
	Name         string   `xml:"name,attr"`
	Fingerprints []string `xml:"FingerprintSHA1"`
}

// Load parses a trust-anchor fingerprint-list XML document into a Store.
// Text within FingerprintSHA1 elements is hex byte pairs, optionally
// colon-separated; spaces, tabs, CR and LF are ignored. Odd-length or non-hex content is
// a parse error. Duplicate fingerprints across domains union their domain
// sets rather than overwriting.
func Load(doc []byte) (*Store, error) {
	var parsed fingerprintFile
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, verrors.NewParseError("trust anchor store: %s", err)
	}

	s := &Store{byFingerprint: make(map[string]DomainSet)}
	for _, d := range parsed.Domains {
		domain, ok := validDomains[d.Name]
		if !ok {
			return nil, verrors.NewParseError("trust anchor store: unknown domain %q", d.Name)
		}
		for _, raw := range d.Fingerprints {
			key, err := normalizeFingerprint(raw)
			if err != nil {
				return nil, err
			}
			set, ok := s.byFingerprint[key]
			if !ok {
				set = make(DomainSet)
				s.byFingerprint[key] = set
			}
			set.add(domain)
		}
	}
	return s, nil
}

// normalizeFingerprint strips whitespace and colons and lower-cases the hex
// string, validating that the result is well-formed hex of even length.
func normalizeFingerprint(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r == ':' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
			b.WriteRune(r)
		default:
			return "", verrors.NewParseError("trust anchor store: invalid fingerprint byte %q", r)
		}
	}
	s := strings.ToLower(b.String())
	if len(s)%2 != 0 {
		return "", verrors.NewParseError("trust anchor store: odd-length fingerprint %q", raw)
	}
	return s, nil
}

// Lookup returns the domain set for a raw SHA-1 fingerprint. Unknown
// fingerprints yield the empty set, never an error.
func (s *Store) Lookup(fingerprint [20]byte) DomainSet {
	key := fmt.Sprintf("%x", fingerprint[:])
	if set, ok := s.byFingerprint[key]; ok {
		return set
	}
	return DomainSet{}
}
