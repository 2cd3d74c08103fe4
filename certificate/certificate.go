// Package certificate parses and introspects individual X.509 certificates
// and the ordered collections that make up a chain, grounded on the same
// crypto/x509 reliance the teacher's CA signer uses throughout
// certificate-authority.go, but aimed at reading certificates rather than
// issuing them.
package certificate

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	verrors "github.com/wacapps/vcore/errors"
)

// Certificate wraps a parsed X.509 certificate. Once constructed it is
// immutable; concurrent readers are safe.
type Certificate struct {
	x *x509.Certificate
	// der is retained so Fingerprint/ToBase64 never need to re-marshal.
	der []byte
}

// Parse builds a Certificate from raw DER bytes.
func Parse(der []byte) (*Certificate, error) {
	x, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, verrors.NewParseError("certificate: %s", err)
	}
	return &Certificate{x: x, der: der}, nil
}

// ParseBase64 decodes a base-64 DER blob and parses it.
func ParseBase64(b64 string) (*Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, verrors.NewParseError("certificate: invalid base64: %s", err)
	}
	return Parse(der)
}

// Raw returns the original DER bytes.
func (c *Certificate) Raw() []byte {
	return c.der
}

// X509 exposes the underlying parsed certificate for callers that need
// capabilities this package doesn't wrap (e.g. signature verification).
func (c *Certificate) X509() *x509.Certificate {
	return c.x
}

// ToBase64 returns the DER bytes, standard base-64 encoded.
func (c *Certificate) ToBase64() string {
	return base64.StdEncoding.EncodeToString(c.der)
}

// SubjectCommonName returns the subject's CN, or "" if absent.
func (c *Certificate) SubjectCommonName() string { return c.x.Subject.CommonName }

// IssuerCommonName returns the issuer's CN, or "" if absent.
func (c *Certificate) IssuerCommonName() string { return c.x.Issuer.CommonName }

// SubjectCountry returns the first subject country, or "" if absent.
func (c *Certificate) SubjectCountry() string { return first(c.x.Subject.Country) }

// SubjectOrganization returns the first subject organization, or "" if absent.
func (c *Certificate) SubjectOrganization() string { return first(c.x.Subject.Organization) }

// SubjectOrganizationalUnit returns the first subject OU, or "" if absent.
func (c *Certificate) SubjectOrganizationalUnit() string {
	return first(c.x.Subject.OrganizationalUnit)
}

// SubjectLocality returns the first subject locality, or "" if absent.
func (c *Certificate) SubjectLocality() string { return first(c.x.Subject.Locality) }

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// NotAfter returns the certificate's expiry instant.
func (c *Certificate) NotAfter() time.Time {
	return c.x.NotAfter
}

// OCSPURL returns the first OCSP responder URI from the Authority
// Information Access extension, or "" if none is present.
func (c *Certificate) OCSPURL() string {
	if len(c.x.OCSPServer) == 0 {
		return ""
	}
	return c.x.OCSPServer[0]
}

// CRLDistributionPoints returns the CRL-DP URIs carried by the certificate.
func (c *Certificate) CRLDistributionPoints() []string {
	return c.x.CRLDistributionPoints
}

// DNSNames returns the certificate's SAN-DNS entries.
func (c *Certificate) DNSNames() []string {
	return c.x.DNSNames
}

// FingerprintSHA1 returns the raw SHA-1 digest of the DER encoding.
func (c *Certificate) FingerprintSHA1() [20]byte {
	return sha1.Sum(c.der)
}

// FingerprintMD5 returns the raw MD5 digest of the DER encoding.
func (c *Certificate) FingerprintMD5() [16]byte {
	return md5.Sum(c.der)
}

// ColonHex renders a fingerprint as upper-case colon-separated hex pairs,
// e.g. "AB:CD:EF", matching the format the trust-anchor fingerprint file and
// audit log lines use.
func ColonHex(fp []byte) string {
	hexStr := hex.EncodeToString(fp)
	var buf bytes.Buffer
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			buf.WriteByte(':')
		}
		buf.WriteString(hexStr[i : i+2])
	}
	return bytesToUpper(buf.String())
}

func bytesToUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// IsIssuerOf reports whether c's subject name equals other's issuer name,
// i.e. c is a candidate parent of other in a chain.
func (c *Certificate) IsIssuerOf(other *Certificate) bool {
	return c.x.Subject.String() == other.x.Issuer.String()
}

// SelfSigned reports whether the certificate's subject and issuer names are
// identical, i.e. it is a plausible root.
func (c *Certificate) SelfSigned() bool {
	return c.x.Subject.String() == c.x.Issuer.String()
}

// String renders a short human-readable identity for logging.
func (c *Certificate) String() string {
	return fmt.Sprintf("%s (issued by %s)", c.SubjectCommonName(), c.IssuerCommonName())
}
