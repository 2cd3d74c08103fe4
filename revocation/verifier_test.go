package revocation

import (
	"context"
	"testing"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"github.com/wacapps/vcore/certificate"
)

func TestVerifierDisabledCheckersReturnGood(t *testing.T) {
	root, _, leaf := genRootAndLeaf(t)
	cache := NewCache(newFakeDatabaseMap(), clock.NewFake())

	v := &Verifier{
		OCSP:        NewOCSPClient(),
		CRL:         NewCRLClient(),
		Cache:       cache,
		OCSPEnabled: false,
		CRLEnabled:  false,
	}

	status, err := v.Check(context.Background(), []*certificate.Certificate{leaf, root}, nil)
	require.NoError(t, err)
	require.Equal(t, Good, status)
}
