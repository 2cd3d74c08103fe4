package signature

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSignatureXML = `<?xml version="1.0" encoding="UTF-8"?>
<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <SignedInfo></SignedInfo>
  <KeyInfo>
    <X509Data>
      <X509Certificate>TUlJQ0FqQ0NBV3NDQWdQaU1BMEdDU3FHU0liM0RRRUJCUVVB</X509Certificate>
    </X509Data>
  </KeyInfo>
  <Object Id="prop">
    <SignatureProperties xmlns:dsp="http://www.w3.org/2009/xmldsig-properties">
      <SignatureProperty>
        <Profile xmlns="http://wacapps.net/ns/digsig" URI="http://wacapps.net/ns/widgets-digsig#profile"/>
      </SignatureProperty>
      <SignatureProperty>
        <Role xmlns="http://wacapps.net/ns/digsig" URI="http://wacapps.net/ns/widgets-digsig#role-author"/>
      </SignatureProperty>
      <SignatureProperty>
        <Identifier xmlns="http://wacapps.net/ns/digsig">urn:example:widget</Identifier>
      </SignatureProperty>
    </SignatureProperties>
  </Object>
</Signature>`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "author-signature.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReaderParsesProfileRoleIdentifier(t *testing.T) {
	path := writeTemp(t, sampleSignatureXML)
	r := NewReader()
	data, err := r.Parse(Found{Filename: "author-signature.xml", Number: AuthorFileNumber}, path)
	require.NoError(t, err)

	require.Equal(t, "http://wacapps.net/ns/widgets-digsig#profile", data.ProfileURI)
	require.Equal(t, "http://wacapps.net/ns/widgets-digsig#role-author", data.RoleURI)
	require.Equal(t, "urn:example:widget", data.Identifier)
	require.Equal(t, 1, len(data.CertificateChainB64))
	require.Contains(t, data.ObjectIDs, "prop")
}

func TestReaderRejectsDuplicateRole(t *testing.T) {
	doc := `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <Object Id="p">
    <SignatureProperties>
      <SignatureProperty><Role xmlns="http://wacapps.net/ns/digsig" URI="a"/></SignatureProperty>
      <SignatureProperty><Role xmlns="http://wacapps.net/ns/digsig" URI="b"/></SignatureProperty>
    </SignatureProperties>
  </Object>
</Signature>`
	path := writeTemp(t, doc)
	r := NewReader()
	_, err := r.Parse(Found{Number: AuthorFileNumber}, path)
	require.Error(t, err)
}

func TestReaderRejectsTargetRestrictionWithBothAttrs(t *testing.T) {
	doc := `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <Object Id="p">
    <TargetRestriction xmlns="http://wacapps.net/ns/digsig" IMEI="123" MEID="456"/>
  </Object>
</Signature>`
	path := writeTemp(t, doc)
	r := NewReader()
	_, err := r.Parse(Found{Number: AuthorFileNumber}, path)
	require.Error(t, err)
}

func TestReaderRejectsSecondObjectWithTargetRestriction(t *testing.T) {
	doc := `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <Object Id="p1">
    <TargetRestriction xmlns="http://wacapps.net/ns/digsig" IMEI="123"/>
  </Object>
  <Object Id="p2">
    <TargetRestriction xmlns="http://wacapps.net/ns/digsig" IMEI="456"/>
  </Object>
</Signature>`
	path := writeTemp(t, doc)
	r := NewReader()
	_, err := r.Parse(Found{Number: AuthorFileNumber}, path)
	require.Error(t, err)
}

func TestReaderRejectsBareKeyValue(t *testing.T) {
	doc := `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
  <KeyInfo>
    <KeyValue><RSAKeyValue></RSAKeyValue></KeyValue>
  </KeyInfo>
</Signature>`
	path := writeTemp(t, doc)
	r := NewReader()
	_, err := r.Parse(Found{Number: AuthorFileNumber}, path)
	require.Error(t, err)
}
