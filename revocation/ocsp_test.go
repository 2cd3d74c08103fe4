package revocation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/wacapps/vcore/certificate"
)

func TestOCSPClientNotSupportedWithoutResponder(t *testing.T) {
	root, _, leaf := genRootAndLeaf(t)
	client := NewOCSPClient()

	status, _, err := client.CheckOne(context.Background(), nil, leaf, root, nil)
	require.NoError(t, err)
	require.Equal(t, NotSupported, status)
}

func TestOCSPClientGoodResponse(t *testing.T) {
	root, rootKey, leaf := genRootAndLeaf(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBytes, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		ocspReq, err := ocsp.ParseRequest(reqBytes)
		require.NoError(t, err)

		respTmpl := ocsp.Response{
			Status:       ocsp.Good,
			SerialNumber: ocspReq.SerialNumber,
			ThisUpdate:   time.Now(),
			NextUpdate:   time.Now().Add(time.Hour),
		}
		respBytes, err := ocsp.CreateResponse(root.X509(), root.X509(), respTmpl, rootKey)
		require.NoError(t, err)
		w.Write(respBytes)
	}))
	defer srv.Close()

	// Point the leaf cert at the test server via the default-responder
	// path, since the generated test cert carries no AIA extension.
	client := NewOCSPClient()
	client.DefaultResponderEnabled = true
	client.DefaultResponderURI = srv.URL

	status, _, err := client.CheckOne(context.Background(), nil, leaf, root, nil)
	require.NoError(t, err)
	require.Equal(t, Good, status)
}

func TestOCSPCheckChainTooShort(t *testing.T) {
	_, _, leaf := genRootAndLeaf(t)
	client := NewOCSPClient()

	set, _, err := client.CheckChain(context.Background(), nil, []*certificate.Certificate{leaf}, nil)
	require.NoError(t, err)
	require.Equal(t, Error, set.Collapse())
}

func TestOCSPClientCachesGoodResponse(t *testing.T) {
	root, rootKey, leaf := genRootAndLeaf(t)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		reqBytes, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		ocspReq, err := ocsp.ParseRequest(reqBytes)
		require.NoError(t, err)

		respTmpl := ocsp.Response{
			Status:       ocsp.Good,
			SerialNumber: ocspReq.SerialNumber,
			ThisUpdate:   time.Now(),
			NextUpdate:   time.Now().Add(time.Hour),
		}
		respBytes, err := ocsp.CreateResponse(root.X509(), root.X509(), respTmpl, rootKey)
		require.NoError(t, err)
		w.Write(respBytes)
	}))
	defer srv.Close()

	client := NewOCSPClient()
	client.DefaultResponderEnabled = true
	client.DefaultResponderURI = srv.URL

	cache := NewCache(newFakeDatabaseMap(), clock.NewFake())

	status, _, err := client.CheckOne(context.Background(), cache, leaf, root, nil)
	require.NoError(t, err)
	require.Equal(t, Good, status)
	require.Equal(t, 1, requests)

	// Second call should be satisfied entirely from cache, with no further
	// HTTP round-trip to the responder.
	status, _, err = client.CheckOne(context.Background(), cache, leaf, root, nil)
	require.NoError(t, err)
	require.Equal(t, Good, status)
	require.Equal(t, 1, requests)
}
