// Package signature enumerates and parses the XML-DSig signature files
// embedded in a widget package, grounded on the XML handling shape in
// other_examples' invoice signature verifier (KeyInfo/X509Data extraction
// via etree) and on the original SignatureFinder/SignatureReader algorithm.
package signature

import "github.com/wacapps/vcore/trust"

// AuthorFileNumber marks the author signature in FileNumber; all others use
// their numeric suffix.
const AuthorFileNumber = -1

// Data is the immutable-after-parse record produced by Reader.Parse.
type Data struct {
	FileNumber int
	Path       string

	RoleURI    string
	ProfileURI string
	Identifier string

	// CertificateChainB64 holds base-64 DER certificates in the order the
	// parser emitted them; callers sort them with the certificate package
	// before trusting adjacency.
	CertificateChainB64 []string

	// ReferenceSet is the set of URI strings the XML signature's Reference
	// elements claim to cover, populated after XML-DSig verification
	// reports which references it saw.
	ReferenceSet map[string]struct{}

	ObjectIDs []string

	IMEIList []string
	MEIDList []string

	// StorageType is assigned after root-CA lookup in the orchestrator.
	StorageType trust.DomainSet
}

// IsAuthor reports whether this is the author-signature.xml record.
func (d *Data) IsAuthor() bool {
	return d.FileNumber == AuthorFileNumber
}

// HasReference reports whether uri is present in the reference set.
func (d *Data) HasReference(uri string) bool {
	_, ok := d.ReferenceSet[uri]
	return ok
}
