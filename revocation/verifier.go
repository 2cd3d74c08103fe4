package revocation

import (
	"context"
	"crypto/x509"

	"golang.org/x/sync/errgroup"

	"github.com/wacapps/vcore/certificate"
)

// Verifier drives OCSP and CRL checking for a full sorted chain and
// combines the two verdicts per the Combine table. Either checker can be
// disabled by configuration; a disabled checker contributes Good.
type Verifier struct {
	OCSP *OCSPClient
	CRL  *CRLClient
	Cache *Cache

	OCSPEnabled bool
	CRLEnabled  bool
}

// NewVerifier constructs a Verifier with both checkers enabled.
func NewVerifier(ocspClient *OCSPClient, crlClient *CRLClient, cache *Cache) *Verifier {
	return &Verifier{
		OCSP:        ocspClient,
		CRL:         crlClient,
		Cache:       cache,
		OCSPEnabled: true,
		CRLEnabled:  true,
	}
}

// Check runs OCSP and CRL revocation checking for chain (sorted
// end-entity-first) and returns the combined status. roots is the trust
// pool used to validate OCSP responder certificates. The two checkers hit
// independent network services, so they run concurrently via errgroup
// rather than one blocking the other.
func (v *Verifier) Check(ctx context.Context, chain []*certificate.Certificate, roots *x509.CertPool) (Status, error) {
	ocspStatus := Good
	crlStatus := Good

	g, gctx := errgroup.WithContext(ctx)

	if v.OCSPEnabled {
		g.Go(func() error {
			set, _, err := v.OCSP.CheckChain(gctx, v.Cache, chain, roots)
			if err != nil {
				return err
			}
			ocspStatus = set.Collapse()
			return nil
		})
	}

	if v.CRLEnabled {
		g.Go(func() error {
			crlStatus = v.CRL.CheckChain(gctx, v.Cache, chain)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Error, err
	}

	return Combine(ocspStatus, crlStatus), nil
}
