package validator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"github.com/wacapps/vcore/certificate"
	idb "github.com/wacapps/vcore/internal/db"
	"github.com/wacapps/vcore/revocation"
	"github.com/wacapps/vcore/signature"
	"github.com/wacapps/vcore/trust"
	"github.com/wacapps/vcore/xmldsig"
)

// noopDBMap is a bare idb.DatabaseMap stand-in for validator tests, which
// exercise Cache only as a pass-through (no due entries, no stored rows
// expected to already exist).
type noopDBMap struct{}

func newNoopDBMap(t *testing.T) idb.DatabaseMap {
	t.Helper()
	return noopDBMap{}
}

func (noopDBMap) SelectOne(interface{}, string, ...interface{}) error { return sql.ErrNoRows }
func (noopDBMap) Select(interface{}, string, ...interface{}) ([]interface{}, error) {
	return nil, nil
}
func (noopDBMap) Insert(...interface{}) error                           { return nil }
func (noopDBMap) Exec(string, ...interface{}) (sql.Result, error)       { return nil, nil }
func (noopDBMap) Begin() (idb.Transaction, error)                       { return noopTxn{}, nil }

type noopTxn struct{}

func (noopTxn) SelectOne(interface{}, string, ...interface{}) error { return sql.ErrNoRows }
func (noopTxn) Select(interface{}, string, ...interface{}) ([]interface{}, error) {
	return nil, nil
}
func (noopTxn) Insert(...interface{}) error                     { return nil }
func (noopTxn) Exec(string, ...interface{}) (sql.Result, error) { return nil, nil }
func (noopTxn) Delete(...interface{}) (int64, error)            { return 0, nil }
func (noopTxn) Get(interface{}, ...interface{}) (interface{}, error) {
	return nil, errors.New("noopTxn: Get unsupported")
}
func (noopTxn) Update(...interface{}) (int64, error) { return 0, nil }
func (noopTxn) Commit() error                        { return nil }
func (noopTxn) Rollback() error                      { return nil }

var _ idb.DatabaseMap = noopDBMap{}
var _ idb.Transaction = noopTxn{}

// fakeDsig always succeeds and reports the given reference set, letting
// tests exercise orchestration without real cryptographic XML-DSig
// documents.
type fakeDsig struct {
	refs map[string]struct{}
	err  error
}

func (f *fakeDsig) Validate(ctx *xmldsig.Context) error {
	if f.err != nil {
		return f.err
	}
	ctx.ReferenceSet = f.refs
	return nil
}

func genChainCert(t *testing.T, cn string, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, notAfter time.Time) (*certificate.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     notAfter,
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	signer := tmpl
	signerKey := key
	if parent != nil {
		signer = parent
		signerKey = parentKey
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	require.NoError(t, err)
	cert, err := certificate.Parse(der)
	require.NoError(t, err)
	return cert, key
}

func trustStoreWithRoot(t *testing.T, root *certificate.Certificate, domain trust.Domain) *trust.Store {
	t.Helper()
	fp := root.FingerprintSHA1()
	doc := []byte(`<TrustAnchors><CertificateDomain name="` + domainName(domain) + `"><FingerprintSHA1>` + certificate.ColonHex(fp[:]) + `</FingerprintSHA1></CertificateDomain></TrustAnchors>`)
	store, err := trust.Load(doc)
	require.NoError(t, err)
	return store
}

func domainName(d trust.Domain) string {
	switch d {
	case trust.AuthorRoot:
		return "wacroot"
	case trust.DistributorRoot:
		return "wacpublisher"
	case trust.Developer:
		return "developer"
	case trust.Member:
		return "wacmember"
	}
	return "wacroot"
}

func baseSignatureData(isAuthor bool, leaf, intermediate, root *certificate.Certificate) *signature.Data {
	fileNum := 1
	role := RoleDistributorURI
	if isAuthor {
		fileNum = signature.AuthorFileNumber
		role = RoleAuthorURI
	}
	return &signature.Data{
		FileNumber:          fileNum,
		Path:                "/pkg/sig.xml",
		RoleURI:             role,
		ProfileURI:          ProfileURI,
		CertificateChainB64: []string{leaf.ToBase64(), intermediate.ToBase64(), root.ToBase64()},
		ReferenceSet:        map[string]struct{}{},
	}
}

func newTestValidator(t *testing.T, trustStore *trust.Store, dsig dsigValidator, ocspEnabled, crlEnabled bool) *Validator {
	t.Helper()
	verifier := &revocation.Verifier{
		OCSP:        revocation.NewOCSPClient(),
		CRL:         revocation.NewCRLClient(),
		Cache:       revocation.NewCache(newNoopDBMap(t), clock.NewFake()),
		OCSPEnabled: ocspEnabled,
		CRLEnabled:  crlEnabled,
	}
	return New(trustStore, nil, dsig, verifier, x509.NewCertPool(), nil)
}

func TestScenarioGoodDistributorSignatureNoRevocationService(t *testing.T) {
	root, rootKey := genChainCert(t, "root", nil, nil, time.Now().Add(24*time.Hour))
	inter, interKey := genChainCert(t, "intermediate", root.X509(), rootKey, time.Now().Add(24*time.Hour))
	leaf, _ := genChainCert(t, "leaf", inter.X509(), interKey, time.Now().Add(24*time.Hour))

	sig := baseSignatureData(false, leaf, inter, root)
	trustStore := trustStoreWithRoot(t, root, trust.DistributorRoot)
	v := newTestValidator(t, trustStore, &fakeDsig{refs: map[string]struct{}{}}, false, false)

	verdict, err := v.Check(context.Background(), sig, t.TempDir(), Flags{OCSPEnabled: false, CRLEnabled: false})
	require.NoError(t, err)
	require.Equal(t, Verified, verdict)
}

func TestScenarioRootNotInStoreDisregards(t *testing.T) {
	root, rootKey := genChainCert(t, "root", nil, nil, time.Now().Add(24*time.Hour))
	inter, interKey := genChainCert(t, "intermediate", root.X509(), rootKey, time.Now().Add(24*time.Hour))
	leaf, _ := genChainCert(t, "leaf", inter.X509(), interKey, time.Now().Add(24*time.Hour))

	sig := baseSignatureData(true, leaf, inter, root)
	// Trust store knows about a different domain entirely, so the author
	// root lookup misses.
	trustStore := trustStoreWithRoot(t, root, trust.Developer)
	v := newTestValidator(t, trustStore, &fakeDsig{refs: map[string]struct{}{}}, false, false)

	verdict, err := v.Check(context.Background(), sig, t.TempDir(), Flags{ComplianceMode: true})
	require.NoError(t, err)
	require.Equal(t, Disregard, verdict)
}

func TestScenarioAuthorCertExpiredYesterdayStillVerifies(t *testing.T) {
	root, rootKey := genChainCert(t, "root", nil, nil, time.Now().Add(24*time.Hour))
	inter, interKey := genChainCert(t, "intermediate", root.X509(), rootKey, time.Now().Add(24*time.Hour))
	leaf, _ := genChainCert(t, "leaf", inter.X509(), interKey, time.Now().Add(-24*time.Hour))

	sig := baseSignatureData(true, leaf, inter, root)
	trustStore := trustStoreWithRoot(t, root, trust.AuthorRoot)
	v := newTestValidator(t, trustStore, &fakeDsig{refs: map[string]struct{}{}}, false, false)

	verdict, err := v.Check(context.Background(), sig, t.TempDir(), Flags{ComplianceMode: true})
	require.NoError(t, err)
	require.Equal(t, Verified, verdict)
}

func TestCheckRoleAndProfileRejectsMismatchedRole(t *testing.T) {
	v := &Validator{}
	sig := &signature.Data{FileNumber: signature.AuthorFileNumber, RoleURI: RoleDistributorURI, ProfileURI: ProfileURI}
	err := v.checkRoleAndProfile(sig)
	require.Error(t, err)
}

func TestBuildChainFailsOnEmptyChain(t *testing.T) {
	v := &Validator{}
	_, err := v.buildChain(&signature.Data{})
	require.Error(t, err)
}
