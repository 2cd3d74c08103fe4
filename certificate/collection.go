package certificate

import (
	"strings"

	verrors "github.com/wacapps/vcore/errors"
)

// State describes how far a Collection has progressed toward a validated
// chain.
type State int

const (
	// Unsorted: certs as received from the parser, order not meaningful.
	Unsorted State = iota
	// SortedChain: Sort succeeded; certs run end-entity -> root.
	SortedChain
	// Broken: Sort found a cycle or a missing link.
	Broken
)

// collectionDelimiter separates base-64 DER blocks in the serialized form.
const collectionDelimiter = ";"

// Collection is an ordered sequence of certificates plus the sort state
// that describes whether the order forms a validated chain.
type Collection struct {
	certs []*Certificate
	state State
}

// NewCollection builds an unsorted Collection from the given certificates,
// in the order supplied.
func NewCollection(certs []*Certificate) *Collection {
	return &Collection{certs: certs, state: Unsorted}
}

// Certs returns the collection's certificates in their current order.
func (c *Collection) Certs() []*Certificate {
	return c.certs
}

// State reports the collection's sort state.
func (c *Collection) State() State {
	return c.state
}

// Len returns the number of certificates held.
func (c *Collection) Len() int {
	return len(c.certs)
}

// Sort arranges the collection end-entity-first, parent-next, by following
// issuer/subject links. It locates the unique certificate that is not the
// issuer of any other (the end-entity), then repeatedly appends whichever
// remaining certificate is issued by the current tail, until either no
// certificates remain (success) or no parent can be found for the tail
// (the terminal cert may be self-signed, or the chain may simply end here
// pending completion by a store collaborator).
//
// Returns false, with state set to Broken, if a cycle leaves certificates
// unplaced after no further progress can be made.
func (c *Collection) Sort() bool {
	if len(c.certs) == 0 {
		c.state = Broken
		return false
	}

	remaining := append([]*Certificate(nil), c.certs...)

	var endEntity *Certificate
	var endEntityIdx int
	for i, candidate := range remaining {
		isIssuer := false
		for j, other := range remaining {
			if i == j {
				continue
			}
			if candidate.IsIssuerOf(other) {
				isIssuer = true
				break
			}
		}
		if !isIssuer {
			endEntity = candidate
			endEntityIdx = i
			break
		}
	}
	if endEntity == nil {
		c.state = Broken
		return false
	}

	remaining = append(remaining[:endEntityIdx], remaining[endEntityIdx+1:]...)
	ordered := []*Certificate{endEntity}

	for len(remaining) > 0 {
		tail := ordered[len(ordered)-1]
		if tail.SelfSigned() {
			break
		}
		foundIdx := -1
		for i, candidate := range remaining {
			if candidate.IsIssuerOf(tail) {
				foundIdx = i
				break
			}
		}
		if foundIdx == -1 {
			// No further parent present in this set; acceptable, the chain
			// may be completed later by a store collaborator.
			break
		}
		ordered = append(ordered, remaining[foundIdx])
		remaining = append(remaining[:foundIdx], remaining[foundIdx+1:]...)
	}

	if len(remaining) > 0 {
		c.state = Broken
		return false
	}

	c.certs = ordered
	c.state = SortedChain
	return true
}

// ToBase64 serializes the collection as base-64 DER blocks joined by a
// delimiter, in the collection's current order.
func (c *Collection) ToBase64() string {
	parts := make([]string, len(c.certs))
	for i, cert := range c.certs {
		parts[i] = cert.ToBase64()
	}
	return strings.Join(parts, collectionDelimiter)
}

// Load parses a ToBase64-formatted string back into an unsorted Collection.
func Load(encoded string) (*Collection, error) {
	if encoded == "" {
		return NewCollection(nil), nil
	}
	blocks := strings.Split(encoded, collectionDelimiter)
	certs := make([]*Certificate, 0, len(blocks))
	for _, b := range blocks {
		cert, err := ParseBase64(b)
		if err != nil {
			return nil, verrors.NewParseError("certificate collection: invalid block: %s", err)
		}
		certs = append(certs, cert)
	}
	return NewCollection(certs), nil
}
