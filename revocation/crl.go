package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/wacapps/vcore/certificate"
	verrors "github.com/wacapps/vcore/errors"
	"github.com/wacapps/vcore/metrics"
)

const pemCRLSentinel = "-----BEGIN X509 CRL-----"

// CRLClient fetches and verifies CRLs from distribution-point URIs, and
// tests certificate serials against them. A CRLClient keeps its own local
// issuer store, populated as valid non-revoked certs are encountered while
// walking a chain, per SPEC_FULL.md §4.8 — it is not shared across clients.
type CRLClient struct {
	httpClient *http.Client

	mu          sync.Mutex
	issuerStore map[string]*certificate.Certificate // keyed by subject name

	stats metrics.Scope
}

// NewCRLClient constructs a CRLClient.
func NewCRLClient() *CRLClient {
	return &CRLClient{
		httpClient:  &http.Client{Timeout: ocspAttemptTimeout},
		issuerStore: make(map[string]*certificate.Certificate),
		stats:       metrics.NewNoopScope(),
	}
}

// WithStats attaches a metrics scope the client reports fetch outcomes to,
// returning the same CRLClient for chaining at construction time.
func (c *CRLClient) WithStats(stats metrics.Scope) *CRLClient {
	c.stats = stats.NewScope("CRL")
	return c
}

// AddIssuer records cert in the local issuer store so later lookups can
// verify CRLs signed by it.
func (c *CRLClient) AddIssuer(cert *certificate.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issuerStore[cert.X509().Subject.String()] = cert
}

func (c *CRLClient) findIssuer(subject string) *certificate.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issuerStore[subject]
}

// fetch downloads a CRL with the same retry budget as the OCSP client.
func (c *CRLClient) fetch(ctx context.Context, uri string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < ocspMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, verrors.NewNetworkError("crl: cancelled: %s", ctx.Err())
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, verrors.NewNetworkError("crl: building request: %s", err)
		}

		resp, err := c.httpClient.Do(req)
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
			lastErr = verrors.NewNetworkError("crl: fetch returned status %d", resp.StatusCode)
			continue
		}
		c.stats.Inc("Fetches", 1)
		return body, nil
	}
	c.stats.Inc("Errors.Connection", 1)
	return nil, verrors.NewNetworkError("crl: exhausted %d attempts: %s", ocspMaxAttempts, lastErr)
}

// parse autodetects PEM vs DER and parses the CRL.
func parseCRL(raw []byte) (*x509.RevocationList, error) {
	der := raw
	if bytes.Contains(raw, []byte(pemCRLSentinel)) {
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, verrors.NewParseError("crl: malformed PEM block")
		}
		der = block.Bytes
	}
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, verrors.NewParseError("crl: %s", err)
	}
	return crl, nil
}

// result describes one distribution point's outcome.
type result struct {
	valid   bool
	revoked bool
}

// checkURI fetches (using cache when fresh) and verifies a single
// distribution-point URI against target's serial number.
func (c *CRLClient) checkURI(ctx context.Context, cache *Cache, uri string, target *certificate.Certificate) result {
	var raw []byte

	entry, err := cache.GetCRL(ctx, uri)
	now := time.Now()
	if err == nil && entry != nil && now.Before(entry.NextUpdate) {
		raw = entry.Body
	} else {
		raw, err = c.fetch(ctx, uri)
		if err != nil {
			return result{valid: false, revoked: false}
		}
		crl, perr := parseCRL(raw)
		candidate := now
		if perr == nil && crl.NextUpdate.After(now) {
			candidate = crl.NextUpdate
		}
		_ = cache.PutCRL(ctx, uri, raw, candidate)
	}

	crl, err := parseCRL(raw)
	if err != nil {
		return result{valid: false, revoked: false}
	}

	issuer := c.findIssuer(crl.Issuer.String())
	if issuer == nil {
		return result{valid: false, revoked: false}
	}
	if err := crl.CheckSignatureFrom(issuer.X509()); err != nil {
		return result{valid: false, revoked: false}
	}

	revoked := serialListed(crl, target.X509().SerialNumber)
	return result{valid: true, revoked: revoked}
}

func serialListed(crl *x509.RevocationList, serial *big.Int) bool {
	for _, entry := range crl.RevokedCertificateEntries {
		if entry.SerialNumber.Cmp(serial) == 0 {
			return true
		}
	}
	return false
}

// RefreshURI re-fetches the CRL at uri unconditionally and restores it to
// cache, for background refresh of entries ListDueCRLs reports as due; it
// does not test any particular certificate's serial.
func (c *CRLClient) RefreshURI(ctx context.Context, cache *Cache, uri string) error {
	raw, err := c.fetch(ctx, uri)
	if err != nil {
		return err
	}
	crl, err := parseCRL(raw)
	if err != nil {
		return err
	}
	candidate := time.Now()
	if crl.NextUpdate.After(candidate) {
		candidate = crl.NextUpdate
	}
	return cache.PutCRL(ctx, uri, raw, candidate)
}

// CheckOne tests target against its (or, absent that, issuer's)
// distribution points, stopping at the first URI that produces a definite
// answer. Returns Good, Revoked, or Unknown (undetermined), or NotSupported
// when neither certificate carries a distribution point.
func (c *CRLClient) CheckOne(ctx context.Context, cache *Cache, target, issuer *certificate.Certificate) Status {
	dps := target.CRLDistributionPoints()
	if len(dps) == 0 && issuer != nil {
		dps = issuer.CRLDistributionPoints()
	}
	if len(dps) == 0 {
		return NotSupported
	}

	for _, uri := range dps {
		r := c.checkURI(ctx, cache, uri, target)
		if !r.valid {
			continue
		}
		if r.revoked {
			return Revoked
		}
		return Good
	}
	return Unknown
}

// CheckChain iterates the sorted chain leaf->root, skipping self-signed
// roots, short-circuiting on the first Revoked verdict. Valid non-revoked
// certs are added to the local issuer store so later siblings in the same
// chain can validate their CRLs.
func (c *CRLClient) CheckChain(ctx context.Context, cache *Cache, chain []*certificate.Certificate) Status {
	var worst Status = NotSupported

	for i, cert := range chain {
		if cert.SelfSigned() {
			c.AddIssuer(cert)
			continue
		}
		var issuer *certificate.Certificate
		if i+1 < len(chain) {
			issuer = chain[i+1]
		}

		status := c.CheckOne(ctx, cache, cert, issuer)
		if status == Revoked {
			return Revoked
		}
		if status == Good {
			c.AddIssuer(cert)
		}
		if status != NotSupported {
			worst = status
		}
	}
	return worst
}
