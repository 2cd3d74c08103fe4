package signature

import (
	"github.com/beevik/etree"

	verrors "github.com/wacapps/vcore/errors"
)

// Reader parses XML-DSig signature documents into Data records.
type Reader struct{}

// NewReader constructs a Reader. It holds no state; namespaces are matched
// by local tag name, since etree path matching is namespace-agnostic and
// the supported documents never collide on local names across namespaces.
func NewReader() *Reader {
	return &Reader{}
}

// Parse reads the signature XML at path and produces a Data record.
// Unknown elements in known namespaces are ignored, as are unknown
// namespaces entirely; only the elements named in the widgets-digsig
// profile are recognized.
func (r *Reader) Parse(found Found, path string) (*Data, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, verrors.NewParseError("signature reader: %s: %s", path, err)
	}

	data := &Data{
		FileNumber:   found.Number,
		Path:         path,
		ReferenceSet: make(map[string]struct{}),
	}

	for _, certElem := range doc.FindElements("//KeyInfo/X509Data/X509Certificate") {
		data.CertificateChainB64 = append(data.CertificateChainB64, certElem.Text())
	}

	if kv := doc.FindElement("//KeyInfo/KeyValue"); kv != nil && len(data.CertificateChainB64) == 0 {
		return nil, verrors.New(verrors.ParseError, "signature reader: bare KeyValue certificates are not supported")
	}

	objectsWithTargetRestriction := 0

	for _, obj := range doc.FindElements("//Object") {
		id := obj.SelectAttrValue("Id", "")
		if id != "" {
			data.ObjectIDs = append(data.ObjectIDs, id)
		}

		sigProps := obj.FindElements("SignatureProperties")
		if len(sigProps) > 1 {
			return nil, verrors.NewParseError("signature reader: multiple SignatureProperties in one Object")
		}

		for _, sp := range sigProps {
			for _, prop := range sp.FindElements("SignatureProperty") {
				if e := prop.FindElement("Profile"); e != nil {
					uri := e.SelectAttrValue("URI", "")
					if data.ProfileURI != "" {
						return nil, verrors.NewParseError("signature reader: duplicate Profile")
					}
					data.ProfileURI = uri
				}
				if e := prop.FindElement("Role"); e != nil {
					uri := e.SelectAttrValue("URI", "")
					if data.RoleURI != "" {
						return nil, verrors.NewParseError("signature reader: duplicate Role")
					}
					data.RoleURI = uri
				}
				if e := prop.FindElement("Identifier"); e != nil {
					if data.Identifier != "" {
						return nil, verrors.NewParseError("signature reader: duplicate Identifier")
					}
					data.Identifier = e.Text()
				}
			}
		}

		targetRestrictions := obj.FindElements(".//TargetRestriction")
		if len(targetRestrictions) > 0 {
			objectsWithTargetRestriction++
			if objectsWithTargetRestriction > 1 {
				return nil, verrors.NewParseError("signature reader: more than one Object carries TargetRestriction")
			}
			for _, tr := range targetRestrictions {
				imei := tr.SelectAttr("IMEI")
				meid := tr.SelectAttr("MEID")
				switch {
				case imei != nil && meid != nil:
					return nil, verrors.NewParseError("signature reader: TargetRestriction has both IMEI and MEID")
				case imei == nil && meid == nil:
					return nil, verrors.NewParseError("signature reader: TargetRestriction has neither IMEI nor MEID")
				case imei != nil:
					data.IMEIList = append(data.IMEIList, imei.Value)
				case meid != nil:
					data.MEIDList = append(data.MEIDList, meid.Value)
				}
			}
		}
	}

	return data, nil
}
