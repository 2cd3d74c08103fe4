package validator

import (
	"context"
	"crypto/x509"
	"time"

	"github.com/wacapps/vcore/certificate"
	verrors "github.com/wacapps/vcore/errors"
	"github.com/wacapps/vcore/metrics"
	"github.com/wacapps/vcore/reference"
	"github.com/wacapps/vcore/revocation"
	"github.com/wacapps/vcore/signature"
	"github.com/wacapps/vcore/trust"
	"github.com/wacapps/vcore/vcorelog"
	"github.com/wacapps/vcore/xmldsig"
)

// Well-known role and profile URIs from the widgets-digsig profile.
const (
	RoleAuthorURI      = "http://www.w3.org/ns/widgets-digsig#role-author"
	RoleDistributorURI = "http://www.w3.org/ns/widgets-digsig#role-distributor"
	ProfileURI         = "http://www.w3.org/ns/widgets-digsig#profile"
)

// authorCertExpiryTolerance is subtracted from an expired author
// end-entity cert's notAfter to pick the XML-DSig validation time, however
// long ago the cert expired, per SPEC_FULL.md §4.10 step 6.
const authorCertExpiryTolerance = 24 * time.Hour

// dsigValidator is the subset of *xmldsig.Adapter the orchestrator needs;
// defined here so tests can substitute a fake without spinning up real
// XML-DSig documents.
type dsigValidator interface {
	Validate(*xmldsig.Context) error
}

// Validator orchestrates one signature file's full check.
type Validator struct {
	TrustStore  *trust.Store
	IssuerStore IssuerStore
	XMLDSig     dsigValidator
	Revocation  *revocation.Verifier
	Roots       *x509.CertPool

	Log   *vcorelog.Logger
	Stats metrics.Scope
}

// New constructs a Validator. log defaults to vcorelog.Get() when nil.
func New(trustStore *trust.Store, issuerStore IssuerStore, dsigAdapter dsigValidator, revocationVerifier *revocation.Verifier, roots *x509.CertPool, log *vcorelog.Logger) *Validator {
	if log == nil {
		log = vcorelog.Get()
	}
	return &Validator{
		TrustStore:  trustStore,
		IssuerStore: issuerStore,
		XMLDSig:     dsigAdapter,
		Revocation:  revocationVerifier,
		Roots:       roots,
		Log:         log,
		Stats:       metrics.NewNoopScope(),
	}
}

// WithStats attaches a metrics scope the validator reports verdict counts
// to, returning the same Validator for chaining at construction time.
func (v *Validator) WithStats(stats metrics.Scope) *Validator {
	v.Stats = stats.NewScope("Validator")
	return v
}

// cancelled returns an error if ctx has been cancelled, for the
// between-steps cancellation checks SPEC_FULL.md §5 requires.
func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Check runs the full orchestration for one signature file and returns its
// verdict.
func (v *Validator) Check(ctx context.Context, sig *signature.Data, pkgDir string, flags Flags) (verdict Verdict, err error) {
	defer func() { v.Stats.Inc("Verdicts."+verdict.String(), 1) }()

	if err := v.checkRoleAndProfile(sig); err != nil {
		v.Log.WarningErr(err)
		return Invalid, nil
	}

	if err := cancelled(ctx); err != nil {
		return Invalid, nil
	}

	chain, err := v.buildChain(sig)
	if err != nil {
		v.Log.WarningErr(err)
		return Invalid, nil
	}

	allowBrokenChain := !chain[len(chain)-1].SelfSigned()

	if err := cancelled(ctx); err != nil {
		return Invalid, nil
	}

	disregard := false
	terminal := chain[len(chain)-1]
	domains := v.TrustStore.Lookup(terminal.FingerprintSHA1())
	if sig.IsAuthor() {
		if !domains.Has(trust.AuthorRoot) {
			disregard = true
		}
	} else {
		if !domains.HasAny(trust.Developer, trust.DistributorRoot, trust.Member) {
			disregard = true
		}
	}

	validationTime := v.dsigValidationTime(sig, chain[0])

	dsigCtx := &xmldsig.Context{
		SignaturePath:    sig.Path,
		WorkingDir:       pkgDir,
		TrustAnchor:      terminal,
		ValidationTime:   validationTime,
		AllowBrokenChain: allowBrokenChain,
	}
	if err := v.XMLDSig.Validate(dsigCtx); err != nil {
		v.Log.WarningErr(err)
		return Invalid, nil
	}
	sig.ReferenceSet = dsigCtx.ReferenceSet

	if err := cancelled(ctx); err != nil {
		return Invalid, nil
	}

	for _, id := range sig.ObjectIDs {
		if !sig.HasReference("#" + id) {
			v.Log.Warning("object id not present in reference set: " + id)
			return Invalid, nil
		}
	}

	if err := reference.Validate(sig, pkgDir); err != nil {
		v.Log.WarningErr(err)
		return Invalid, nil
	}

	if err := cancelled(ctx); err != nil {
		return Invalid, nil
	}

	if !flags.ComplianceMode && !sig.IsAuthor() {
		revVerifier := *v.Revocation
		revVerifier.OCSPEnabled = flags.OCSPEnabled
		revVerifier.CRLEnabled = flags.CRLEnabled

		status, err := revVerifier.Check(ctx, chain, v.Roots)
		if err != nil {
			disregard = true
		} else {
			switch status {
			case revocation.Revoked:
				return Revoked, nil
			case revocation.Unknown, revocation.Error, revocation.VerificationError, revocation.ConnectionFailed:
				disregard = true
			}
		}
	}

	if disregard {
		return Disregard, nil
	}
	return Verified, nil
}

func (v *Validator) checkRoleAndProfile(sig *signature.Data) error {
	wantRole := RoleDistributorURI
	if sig.IsAuthor() {
		wantRole = RoleAuthorURI
	}
	if sig.RoleURI != wantRole {
		return verrors.NewParseError("validator: unexpected role URI %q", sig.RoleURI)
	}
	if sig.ProfileURI != ProfileURI {
		return verrors.NewParseError("validator: unexpected profile URI %q", sig.ProfileURI)
	}
	return nil
}

// buildChain sorts the signature's embedded certificates and completes the
// chain via IssuerStore until a self-signed cert is reached or no further
// parent can be found.
func (v *Validator) buildChain(sig *signature.Data) ([]*certificate.Certificate, error) {
	if len(sig.CertificateChainB64) == 0 {
		return nil, verrors.NewChainError("validator: empty certificate chain")
	}

	certs := make([]*certificate.Certificate, 0, len(sig.CertificateChainB64))
	for _, b64 := range sig.CertificateChainB64 {
		cert, err := certificate.ParseBase64(b64)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
		if v.IssuerStore != nil {
			if cache, ok := v.IssuerStore.(*ChainCompletionCache); ok {
				cache.Observe(cert)
			}
		}
	}

	coll := certificate.NewCollection(certs)
	if !coll.Sort() {
		return nil, verrors.NewChainError("validator: certificate chain is broken")
	}

	chain := coll.Certs()
	for v.IssuerStore != nil {
		tail := chain[len(chain)-1]
		if tail.SelfSigned() {
			break
		}
		parent, ok := v.IssuerStore.FindIssuer(tail)
		if !ok {
			break
		}
		chain = append(chain, parent)
	}

	return chain, nil
}

// dsigValidationTime implements the author-cert-expiry tolerance: for
// author signatures whose end-entity cert has expired, validate as of
// notAfter-1day instead of now, so installations don't break solely
// because the window has closed.
func (v *Validator) dsigValidationTime(sig *signature.Data, endEntity *certificate.Certificate) time.Time {
	if !sig.IsAuthor() {
		return time.Time{}
	}
	notAfter := endEntity.NotAfter()
	if notAfter.Before(time.Now()) {
		return notAfter.Add(-authorCertExpiryTolerance)
	}
	return time.Time{}
}
