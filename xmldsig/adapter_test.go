package xmldsig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/wacapps/vcore/certificate"
)

func TestRejectsMD5Digest(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <SignedInfo>
    <Reference URI="#x">
      <DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#md5"/>
      <DigestValue>AA==</DigestValue>
    </Reference>
  </SignedInfo>
</Signature>`))
	dir := t.TempDir()
	path := dir + "/author-signature.xml"
	require.NoError(t, doc.WriteToFile(path))

	a := NewAdapter()
	err := a.Validate(&Context{SignaturePath: path})
	require.Error(t, err)
}

type referencedFile struct {
	name    string
	content []byte
}

// buildUnsignedSignatureDoc assembles a Signature element with one
// Reference per entry in refs, each pointing at a real file rather than an
// in-document fragment, plus a KeyInfo carrying certDER. SignatureValue is
// left out: it can only be computed after this document has been
// serialized and reparsed once, since canonicalization depends on the
// in-scope namespaces the parser sees.
func buildUnsignedSignatureDoc(refs []referencedFile, certDER []byte) *etree.Document {
	doc := etree.NewDocument()
	sigElem := doc.CreateElement("Signature")
	sigElem.CreateAttr("xmlns", "http://www.w3.org/2000/09/xmldsig#")

	signedInfo := sigElem.CreateElement("SignedInfo")
	canonMethod := signedInfo.CreateElement("CanonicalizationMethod")
	canonMethod.CreateAttr("Algorithm", "http://www.w3.org/2001/10/xml-exc-c14n#")
	sigMethod := signedInfo.CreateElement("SignatureMethod")
	sigMethod.CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256")

	for _, r := range refs {
		refElem := signedInfo.CreateElement("Reference")
		refElem.CreateAttr("URI", r.name)
		digestMethod := refElem.CreateElement("DigestMethod")
		digestMethod.CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#sha256")
		digest := sha256.Sum256(r.content)
		digestValue := refElem.CreateElement("DigestValue")
		digestValue.SetText(base64.StdEncoding.EncodeToString(digest[:]))
	}

	keyInfo := sigElem.CreateElement("KeyInfo")
	x509Data := keyInfo.CreateElement("X509Data")
	certElem := x509Data.CreateElement("X509Certificate")
	certElem.SetText(base64.StdEncoding.EncodeToString(certDER))

	return doc
}

// TestValidateSucceedsWithExternalFileReferences covers the shape a real
// widget signature actually takes: one Reference per packaged file, each a
// plain relative URI rather than a "#id" fragment.
func TestValidateSucceedsWithExternalFileReferences(t *testing.T) {
	dir := t.TempDir()

	refs := []referencedFile{
		{name: "index.html", content: []byte("<html><body>hello</body></html>")},
		{name: "config.xml", content: []byte("<config/>")},
	}
	for _, r := range refs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, r.name), r.content, 0o644))
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "widget-signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	signerCert, err := certificate.Parse(der)
	require.NoError(t, err)

	path := filepath.Join(dir, "author-signature.xml")
	require.NoError(t, buildUnsignedSignatureDoc(refs, der).WriteToFile(path))

	// Reparse before canonicalizing: the canonicalizer must see the same
	// in-scope namespaces Validate will see when it reads this file back.
	reread := etree.NewDocument()
	require.NoError(t, reread.ReadFromFile(path))
	signedInfo := reread.Root().FindElement("SignedInfo")
	require.NotNil(t, signedInfo)

	canonical, err := canonicalizer.Canonicalize(signedInfo)
	require.NoError(t, err)
	digest := sha256.Sum256(canonical)
	sigValue, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	sigValueElem := reread.Root().CreateElement("SignatureValue")
	sigValueElem.SetText(base64.StdEncoding.EncodeToString(sigValue))
	require.NoError(t, reread.WriteToFile(path))

	a := NewAdapter()
	ctx := &Context{SignaturePath: path, TrustAnchor: signerCert}
	require.NoError(t, a.Validate(ctx))
	require.Contains(t, ctx.ReferenceSet, "index.html")
	require.Contains(t, ctx.ReferenceSet, "config.xml")
}

func TestMissingTrustAnchorFails(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "widget-signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <SignedInfo>
    <Reference URI="#x">
      <DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha256"/>
      <DigestValue>AA==</DigestValue>
    </Reference>
  </SignedInfo>
  <KeyInfo>
    <X509Data><X509Certificate>`+base64.StdEncoding.EncodeToString(der)+`</X509Certificate></X509Data>
  </KeyInfo>
</Signature>`))
	dir := t.TempDir()
	path := dir + "/author-signature.xml"
	require.NoError(t, doc.WriteToFile(path))

	a := NewAdapter()
	err = a.Validate(&Context{SignaturePath: path})
	require.Error(t, err)
	require.ErrorContains(t, err, "no trust anchor")
}
