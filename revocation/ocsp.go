package revocation

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/wacapps/vcore/certificate"
	verrors "github.com/wacapps/vcore/errors"
	"github.com/wacapps/vcore/metrics"
)

const (
	ocspMaxAttempts   = 5
	ocspAttemptTimeout = 6 * time.Second
	ocspMaxValiditySkew = 24 * time.Hour
)

// OCSPClient builds and sends OCSP requests, grounded on the
// golang.org/x/crypto/ocsp usage in the teacher's ocsp-updater and on the
// bounded-retry blocking-HTTP-client shape of its validation-authority
// transport.
type OCSPClient struct {
	httpClient *http.Client
	// DefaultResponderURI is used when a certificate carries no AIA-OCSP
	// URL. Populated from config and/or OCSP_DEFAULT_RESPONDER_URI, per
	// SPEC_FULL.md's compatibility-bridge note.
	DefaultResponderURI string
	// DefaultResponderEnabled gates use of DefaultResponderURI.
	DefaultResponderEnabled bool

	stats metrics.Scope
}

// NewOCSPClient constructs an OCSPClient with the per-attempt timeout
// set as its http.Client's Timeout.
func NewOCSPClient() *OCSPClient {
	return &OCSPClient{
		httpClient: &http.Client{Timeout: ocspAttemptTimeout},
		stats:      metrics.NewNoopScope(),
	}
}

// WithStats attaches a metrics scope the client reports request outcomes
// to, returning the same OCSPClient for chaining at construction time.
func (c *OCSPClient) WithStats(stats metrics.Scope) *OCSPClient {
	c.stats = stats.NewScope("OCSP")
	return c
}

// responderURI picks the OCSP responder for cert, per SPEC_FULL.md §4.7.1.
func (c *OCSPClient) responderURI(cert *certificate.Certificate) (string, bool) {
	if uri := cert.OCSPURL(); uri != "" {
		return uri, true
	}
	if c.DefaultResponderEnabled && c.DefaultResponderURI != "" {
		return c.DefaultResponderURI, true
	}
	return "", false
}

// chainKey builds the base-64 cache key for a (cert, issuer) pair, per
// §3's RevocationCacheEntry/OCSP variant ("key = base-64 of the
// cert-chain"), the same encoding C2's Collection.ToBase64 already uses
// for the full chain.
func chainKey(certs ...*certificate.Certificate) string {
	return certificate.NewCollection(certs).ToBase64()
}

// CheckOne builds an OCSP request for (cert, issuer), sends it to the
// resolved responder, and returns the per-certificate status along with
// the response's next-update time (zero if unavailable). When cache is
// non-nil, this is the CachedOCSP "checkEndEntity" wrapper ported from
// CachedOCSP.cpp: a cache hit with now < next_update short-circuits the
// live request; a miss or expiry falls through to the live client and
// then writes back, clamped, keyed end_entity_only=true on the (cert,
// issuer) pair.
func (c *OCSPClient) CheckOne(ctx context.Context, cache *Cache, cert, issuer *certificate.Certificate, roots *x509.CertPool) (Status, time.Time, error) {
	var key string
	if cache != nil {
		key = chainKey(cert, issuer)
		if entry, err := cache.GetOCSP(ctx, key, true); err == nil && entry != nil && cache.clk.Now().Before(entry.NextUpdate) {
			return entry.Status, entry.NextUpdate, nil
		}
	}

	status, nextUpdate, err := c.checkOneLive(ctx, cert, issuer, roots)
	if err != nil {
		return status, nextUpdate, err
	}

	if cache != nil {
		candidate := nextUpdate
		if candidate.IsZero() {
			candidate = time.Now()
		}
		_ = cache.PutOCSP(ctx, key, true, status, candidate)
	}

	return status, nextUpdate, nil
}

// checkOneLive performs the actual OCSP round-trip for (cert, issuer),
// uncached.
func (c *OCSPClient) checkOneLive(ctx context.Context, cert, issuer *certificate.Certificate, roots *x509.CertPool) (Status, time.Time, error) {
	responderURI, ok := c.responderURI(cert)
	if !ok {
		return NotSupported, time.Time{}, nil
	}

	req, err := ocsp.CreateRequest(cert.X509(), issuer.X509(), &ocsp.RequestOptions{Hash: crypto.SHA1})
	if err != nil {
		return VerificationError, time.Time{}, verrors.NewNetworkError("ocsp: building request: %s", err)
	}

	respBody, err := c.postWithRetry(ctx, responderURI, req)
	if err != nil {
		c.stats.Inc("Errors.Connection", 1)
		return ConnectionFailed, time.Time{}, err
	}
	c.stats.Inc("Requests", 1)

	parsed, err := ocsp.ParseResponseForCert(respBody, cert.X509(), issuer.X509())
	if err != nil {
		return VerificationError, time.Time{}, verrors.NewNetworkError("ocsp: parsing response: %s", err)
	}

	if parsed.Certificate != nil && roots != nil {
		if _, err := parsed.Certificate.Verify(x509.VerifyOptions{Roots: roots, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning}}); err != nil {
			return VerificationError, time.Time{}, nil
		}
	}

	if parsed.ThisUpdate.After(time.Now().Add(ocspMaxValiditySkew)) {
		return VerificationError, time.Time{}, nil
	}

	switch parsed.Status {
	case ocsp.Good:
		return Good, parsed.NextUpdate, nil
	case ocsp.Revoked:
		return Revoked, parsed.NextUpdate, nil
	default:
		return Unknown, parsed.NextUpdate, nil
	}
}

// postWithRetry POSTs the DER-encoded OCSP request, retrying up to
// ocspMaxAttempts times on transport failure.
func (c *OCSPClient) postWithRetry(ctx context.Context, uri string, der []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < ocspMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, verrors.NewNetworkError("ocsp: cancelled: %s", ctx.Err())
		default:
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(der))
		if err != nil {
			return nil, verrors.NewNetworkError("ocsp: building http request: %s", err)
		}
		httpReq.Header.Set("Content-Type", "application/ocsp-request")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = verrors.NewNetworkError("ocsp: responder returned status %d", resp.StatusCode)
			continue
		}
		return body, nil
	}
	return nil, verrors.NewNetworkError("ocsp: exhausted %d attempts: %s", ocspMaxAttempts, lastErr)
}

// CheckChain validates a full sorted certificate chain, iterating adjacent
// (cert, parent) pairs starting at the end-entity and accumulating a
// StatusSet. A chain shorter than two certificates cannot be validated
// without an issuer and yields Error immediately.
//
// When cache is non-nil this is the CachedOCSP "check" wrapper ported
// from CachedOCSP.cpp: the whole chain's collapsed status is cached under
// its own key, end_entity_only=false, distinct from the per-pair entries
// CheckOne writes as it walks the chain. A cache hit with now <
// next_update short-circuits the per-pair walk entirely.
func (c *OCSPClient) CheckChain(ctx context.Context, cache *Cache, chain []*certificate.Certificate, roots *x509.CertPool) (StatusSet, time.Time, error) {
	if len(chain) < 2 {
		return NewStatusSet(Error), time.Time{}, nil
	}

	var key string
	if cache != nil {
		key = chainKey(chain...)
		if entry, err := cache.GetOCSP(ctx, key, false); err == nil && entry != nil && cache.clk.Now().Before(entry.NextUpdate) {
			return NewStatusSet(entry.Status), entry.NextUpdate, nil
		}
	}

	var set StatusSet
	var minValidity time.Time

	for i := 0; i < len(chain)-1; i++ {
		status, nextUpdate, err := c.CheckOne(ctx, cache, chain[i], chain[i+1], roots)
		if err != nil {
			return set, minValidity, err
		}
		set.Add(status)
		if !nextUpdate.IsZero() && (minValidity.IsZero() || nextUpdate.Before(minValidity)) {
			minValidity = nextUpdate
		}
	}

	if cache != nil {
		candidate := minValidity
		if candidate.IsZero() {
			candidate = time.Now()
		}
		_ = cache.PutOCSP(ctx, key, false, set.Collapse(), candidate)
	}

	return set, minValidity, nil
}
