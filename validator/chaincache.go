package validator

import (
	"sync"

	"github.com/wacapps/vcore/certificate"
)

// IssuerStore supplies the missing parent of a certificate when a chain
// arrives incomplete, e.g. an intermediate the package itself didn't embed.
type IssuerStore interface {
	FindIssuer(child *certificate.Certificate) (*certificate.Certificate, bool)
}

// ChainCompletionCache is an in-memory IssuerStore keyed by subject name,
// supplementing embedded chains with previously-seen intermediates. This
// mirrors the original's OCSPCertMgrUtil-style certificate cache: a process
// lifetime, best-effort store of "certificates we've already parsed
// somewhere," consulted so repeat validations don't need every signature
// to embed its full chain.
type ChainCompletionCache struct {
	mu      sync.RWMutex
	bySubj  map[string]*certificate.Certificate
}

// NewChainCompletionCache constructs an empty cache.
func NewChainCompletionCache() *ChainCompletionCache {
	return &ChainCompletionCache{bySubj: make(map[string]*certificate.Certificate)}
}

// Observe records cert so it can later serve as a missing parent.
func (c *ChainCompletionCache) Observe(cert *certificate.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySubj[cert.X509().Subject.String()] = cert
}

// FindIssuer returns a cached certificate whose subject matches child's
// issuer name, if one has been observed.
func (c *ChainCompletionCache) FindIssuer(child *certificate.Certificate) (*certificate.Certificate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cert, ok := c.bySubj[child.X509().Issuer.String()]
	return cert, ok
}
