// Package xmldsig provides a thin adapter around XML-DSig verification,
// grounded on the invoice-processor XMLVerifier pattern (etree +
// github.com/russellhaering/goxmldsig) retrieved alongside the teacher:
// extract the signing certificate from KeyInfo, verify its chain to a
// supplied trust anchor, verify SignatureValue over the canonicalized
// SignedInfo using goxmldsig's own exclusive-C14N canonicalizer, then walk
// each Reference and check its digest directly — over the raw bytes of a
// referenced package file for an external URI, or over the canonicalized
// subtree for an in-document fragment.
package xmldsig

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/wacapps/vcore/certificate"
	verrors "github.com/wacapps/vcore/errors"
)

// Context carries the inputs and out-parameters for one Validate call.
// There is no package-wide "current working directory"; WorkingDir is
// resolved per call so concurrent validations never race on shared state.
type Context struct {
	SignaturePath string
	WorkingDir    string // defaults to filepath.Dir(SignaturePath) when empty

	TrustAnchor *certificate.Certificate

	// ValidationTime pins the instant used for certificate-validity checks.
	// The zero value means "now".
	ValidationTime time.Time

	// AllowBrokenChain tolerates a signing certificate whose chain does not
	// reach TrustAnchor; ErrorBrokenChain reports whether that tolerance
	// was actually exercised.
	AllowBrokenChain bool
	ErrorBrokenChain bool

	// ReferenceSet is populated with every URI the signature's <Reference>
	// elements covered, on success.
	ReferenceSet map[string]struct{}
}

// Adapter validates one signature document per call.
type Adapter struct{}

// NewAdapter constructs an Adapter. It holds no state across calls; the
// original's process-wide "current prefix path" hazard is avoided entirely
// by resolving WorkingDir fresh from ctx on every Validate call.
func NewAdapter() *Adapter {
	return &Adapter{}
}

var md5DigestFragment = "xmldsig#md5"

// canonicalizer is the exclusive C14N canonicalization goxmldsig's own
// SigningContext uses by default; reused here directly rather than through
// goxmldsig's ValidationContext, since ValidationContext.Validate resolves
// every <Reference URI> itself via an in-document fragment/ID lookup and
// has no notion of a package file living outside the XML tree — a widget
// signature's References are almost all exactly that (plain relative
// paths like "index.html"), so handing the whole element to Validate
// fails before it ever reaches a real reference. The canonicalizer is the
// one piece of goxmldsig's pipeline that still applies unmodified: it is
// what SignedInfo (and any in-document fragment Reference) must be
// canonicalized with before hashing/signing, same as when it was created.
var canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

// signatureMethodAlgorithms maps XML-DSig SignatureMethod URIs to the
// crypto/x509 algorithm CheckSignature expects.
var signatureMethodAlgorithms = map[string]x509.SignatureAlgorithm{
	"http://www.w3.org/2000/09/xmldsig#rsa-sha1":          x509.SHA1WithRSA,
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha256":   x509.SHA256WithRSA,
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha384":   x509.SHA384WithRSA,
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha512":   x509.SHA512WithRSA,
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256": x509.ECDSAWithSHA256,
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha384": x509.ECDSAWithSHA384,
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha512": x509.ECDSAWithSHA512,
}

// Validate checks the signature document named by ctx.SignaturePath.
func (a *Adapter) Validate(ctx *Context) error {
	workingDir := ctx.WorkingDir
	if workingDir == "" {
		workingDir = filepath.Dir(ctx.SignaturePath)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(ctx.SignaturePath); err != nil {
		return verrors.NewParseError("xmldsig: reading %s: %s", ctx.SignaturePath, err)
	}
	sigElem := findSignatureElement(doc.Root())
	if sigElem == nil {
		return verrors.NewParseError("xmldsig: no Signature element in %s", ctx.SignaturePath)
	}

	for _, digestMethod := range sigElem.FindElements(".//DigestMethod") {
		alg := digestMethod.SelectAttrValue("Algorithm", "")
		if strings.Contains(alg, md5DigestFragment) {
			return verrors.NewParseError("xmldsig: MD5 digest method is not permitted")
		}
	}

	signingCert, err := extractSigningCert(sigElem)
	if err != nil {
		return err
	}

	if err := verifySigningCertChain(signingCert, ctx); err != nil {
		if !ctx.AllowBrokenChain {
			return err
		}
		ctx.ErrorBrokenChain = true
	}

	if err := verifySignatureValue(sigElem, signingCert); err != nil {
		return err
	}

	refs := make(map[string]struct{})
	for _, ref := range sigElem.FindElements(".//Reference") {
		uri := ref.SelectAttrValue("URI", "")
		if uri == "" {
			continue
		}
		if strings.HasPrefix(uri, "#") {
			if err := checkFragmentReference(sigElem, uri, ref); err != nil {
				return err
			}
		} else {
			if err := checkExternalReference(uri, workingDir, ref); err != nil {
				return err
			}
		}
		refs[uri] = struct{}{}
	}
	ctx.ReferenceSet = refs

	return nil
}

// verifySignatureValue canonicalizes SignedInfo exactly as goxmldsig's
// SigningContext would have when it was produced, then verifies
// SignatureValue against it using signingCert's public key. This replaces
// goxmldsig's ValidationContext.Validate for the cryptographic check,
// since that call's own Reference-dereferencing loop cannot be reached
// for documents whose References point outside the XML tree.
func verifySignatureValue(sigElem *etree.Element, signingCert *x509.Certificate) error {
	signedInfo := sigElem.FindElement("SignedInfo")
	if signedInfo == nil {
		return verrors.NewParseError("xmldsig: no SignedInfo element")
	}
	canonical, err := canonicalizer.Canonicalize(signedInfo)
	if err != nil {
		return verrors.NewParseError("xmldsig: canonicalizing SignedInfo: %s", err)
	}

	methodElem := signedInfo.FindElement("SignatureMethod")
	if methodElem == nil {
		return verrors.NewParseError("xmldsig: no SignatureMethod element")
	}
	algo, ok := signatureMethodAlgorithms[methodElem.SelectAttrValue("Algorithm", "")]
	if !ok {
		return verrors.NewParseError("xmldsig: unsupported signature method %q", methodElem.SelectAttrValue("Algorithm", ""))
	}

	valueElem := sigElem.FindElement("SignatureValue")
	if valueElem == nil {
		return verrors.NewParseError("xmldsig: no SignatureValue element")
	}
	sigValue, err := base64.StdEncoding.DecodeString(strings.TrimSpace(valueElem.Text()))
	if err != nil {
		return verrors.NewParseError("xmldsig: malformed SignatureValue: %s", err)
	}

	if err := signingCert.CheckSignature(algo, canonical, sigValue); err != nil {
		return verrors.NewParseError("xmldsig: signature value verification failed: %s", err)
	}
	return nil
}

func findSignatureElement(root *etree.Element) *etree.Element {
	if root == nil {
		return nil
	}
	if root.Tag == "Signature" {
		return root
	}
	return root.FindElement(".//Signature")
}

// extractSigningCert parses the certificate embedded in the signature's
// KeyInfo.
func extractSigningCert(sigElem *etree.Element) (*x509.Certificate, error) {
	certElem := sigElem.FindElement(".//KeyInfo/X509Data/X509Certificate")
	if certElem == nil {
		return nil, verrors.NewParseError("xmldsig: no signing certificate in KeyInfo")
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certElem.Text()))
	if err != nil {
		return nil, verrors.NewParseError("xmldsig: invalid signing certificate encoding: %s", err)
	}
	signingCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, verrors.NewParseError("xmldsig: invalid signing certificate: %s", err)
	}
	return signingCert, nil
}

// verifySigningCertChain verifies signingCert chains to ctx.TrustAnchor as
// of ctx.ValidationTime.
func verifySigningCertChain(signingCert *x509.Certificate, ctx *Context) error {
	if ctx.TrustAnchor == nil {
		return verrors.NewParseError("xmldsig: no trust anchor supplied")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ctx.TrustAnchor.X509())

	validationTime := ctx.ValidationTime
	if validationTime.IsZero() {
		validationTime = time.Now()
	}

	_, err := signingCert.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: validationTime,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return verrors.NewParseError("xmldsig: signing certificate does not chain to trust anchor: %s", err)
	}
	return nil
}

// checkExternalReference validates the digest of a Reference whose URI
// points at a real file under workingDir: a plain relative path with no
// Transform applied, so the digest covers the file's raw bytes, not a
// canonicalized XML form. File access is constrained to workingDir: this
// is the concurrency-safe replacement for the original's global
// prefix-path file callback.
func checkExternalReference(uri, workingDir string, ref *etree.Element) error {
	target := filepath.Join(workingDir, filepath.FromSlash(uri))
	rel, err := filepath.Rel(workingDir, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return verrors.NewParseError("xmldsig: reference %q escapes package root", uri)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		return verrors.NewParseError("xmldsig: reading referenced file %q: %s", uri, err)
	}

	return compareDigest(ref, content, uri)
}

// checkFragmentReference validates the digest of a Reference whose URI is
// an in-document fragment (e.g. the SignatureProperties Object), by
// locating the element carrying that Id under root and canonicalizing it
// the same way it was canonicalized before signing.
func checkFragmentReference(root *etree.Element, uri string, ref *etree.Element) error {
	id := strings.TrimPrefix(uri, "#")
	target := root.FindElement(fmt.Sprintf(".//*[@Id='%s']", id))
	if target == nil {
		return verrors.NewParseError("xmldsig: reference %q has no matching element", uri)
	}

	canonical, err := canonicalizer.Canonicalize(target)
	if err != nil {
		return verrors.NewParseError("xmldsig: canonicalizing reference %q: %s", uri, err)
	}

	return compareDigest(ref, canonical, uri)
}

// compareDigest hashes content with ref's DigestMethod and compares it
// against ref's DigestValue.
func compareDigest(ref *etree.Element, content []byte, uri string) error {
	digestMethod := ref.FindElement("DigestMethod")
	digestValue := ref.FindElement("DigestValue")
	if digestMethod == nil || digestValue == nil {
		return verrors.NewParseError("xmldsig: reference %q missing digest", uri)
	}

	h, err := hashFor(digestMethod.SelectAttrValue("Algorithm", ""))
	if err != nil {
		return err
	}
	h.Write(content)
	want, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestValue.Text()))
	if err != nil {
		return verrors.NewParseError("xmldsig: reference %q has malformed digest value", uri)
	}
	if string(h.Sum(nil)) != string(want) {
		return verrors.NewParseError("xmldsig: reference %q digest mismatch", uri)
	}
	return nil
}

func hashFor(algorithm string) (hash.Hash, error) {
	switch {
	case strings.Contains(algorithm, "sha1"):
		return sha1.New(), nil
	case strings.Contains(algorithm, "sha256"):
		return sha256.New(), nil
	case strings.Contains(algorithm, "sha512"):
		return sha512.New(), nil
	default:
		return nil, verrors.NewParseError("xmldsig: unsupported digest algorithm %q", algorithm)
	}
}
