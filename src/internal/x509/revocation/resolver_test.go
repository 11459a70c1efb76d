// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation_test

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/metrics"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/pool"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/revocation"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/testpki"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

func testLoader() *fetch.Loader {
	cfg := fetch.NewHTTPConfig("test")
	cfg.RetryMax = 0
	return fetch.NewLoader(cfg, nil)
}

func tokens(t *testing.T, p *pool.CertificatePool, certs ...*x509.Certificate) []*token.CertificateToken {
	t.Helper()
	out := make([]*token.CertificateToken, len(certs))
	for i, c := range certs {
		out[i] = p.GetInstance(c, token.SourceAdjunct)
		require.NotNil(t, out[i])
	}
	return out
}

func hasNote(tok token.Token, substr string) bool {
	for _, n := range tok.Notes() {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

func TestCRLResolver(t *testing.T) {
	root := testpki.NewRoot(t, "Resolver Root")
	inter := testpki.NewIntermediate(t, root, "Resolver Inter")
	revokedAt := time.Now().Add(-3 * time.Hour).UTC().Truncate(time.Second)

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Online Good Then Cached",
			testFunc: func(t *testing.T) {
				var hits atomic.Int32
				crl := inter.CRL(t)
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					hits.Add(1)
					_, _ = w.Write(crl)
				}))
				defer srv.Close()

				leaf := testpki.NewLeaf(t, inter, "CRL Good", testpki.WithCRLDistributionPoint(srv.URL+"/inter.crl"))
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)

				rec := metrics.NewPrometheus("ades")
				cache := revocation.NewResponseCache(revocation.DefaultCacheConfig())
				res := revocation.NewCRLResolver(revocation.NewOnlineCRLSource(testLoader(), cache, rec, nil), rec, nil)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.StatusGood, got.Status())
				assert.Equal(t, token.OriginOnline, got.Origin())
				assert.Same(t, toks[1], got.Issuer())

				again := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, again)
				assert.Equal(t, int32(1), hits.Load())
				assert.Equal(t, int64(1), cache.Metrics().Hits)

				summary, err := rec.Summary()
				require.NoError(t, err)
				assert.Contains(t, summary, `ades_revocation_checks_total{outcome="good",source="crl"} 2`)
				assert.Contains(t, summary, `ades_fetches_total{kind="crl",result="success"} 1`)
			},
		},
		{
			name: "Online Revoked Carries Date",
			testFunc: func(t *testing.T) {
				var crl []byte
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write(crl)
				}))
				defer srv.Close()
				leaf := testpki.NewLeaf(t, inter, "CRL Revoked", testpki.WithCRLDistributionPoint(srv.URL))
				crl = inter.CRL(t, testpki.Revoked{Serial: leaf.Cert.SerialNumber, At: revokedAt, Reason: 1})

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewCRLResolver(revocation.NewOnlineCRLSource(testLoader(), nil, nil, nil), nil, nil)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.StatusRevoked, got.Status())
				assert.True(t, revokedAt.Equal(got.RevokedAt()))
				assert.Equal(t, token.ReasonKeyCompromise, got.Reason())
			},
		},
		{
			name: "Wrong Signer Yields Nothing",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "CRL Forged")
				forged := testpki.CRLSignedAs(t, inter.Cert, testpki.NewKey(t))
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)

				res := revocation.NewCRLResolver(revocation.NewListCRLSource(forged), nil, nil)
				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
				assert.True(t, hasNote(toks[0], "no CRL among 1 candidates is signed by issuer"))
			},
		},
		{
			name: "Forged Newer CRL Does Not Hide Valid One",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "CRL Masked")
				valid := inter.CRL(t)
				time.Sleep(1100 * time.Millisecond)
				forged := testpki.CRLSignedAs(t, inter.Cert, testpki.NewKey(t))

				src := revocation.NewListCRLSource(valid, forged)
				found, err := src.FindCRLs(context.Background(), leaf.Cert, inter.Cert)
				require.NoError(t, err)
				require.Len(t, found, 2)
				assert.True(t, found[0].ThisUpdate().After(found[1].ThisUpdate()))

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewCRLResolver(src, nil, nil)
				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.StatusGood, got.Status())
				assert.Same(t, toks[1], got.Issuer())
				assert.Empty(t, toks[0].Notes())
				assert.True(t, hasNote(found[0], "signature does not verify"))
			},
		},
		{
			name: "Issuer Without CRL Sign",
			testFunc: func(t *testing.T) {
				noCRL := testpki.NewIntermediate(t, root, "No CRL Sign", testpki.WithKeyUsage(x509.KeyUsageCertSign))
				leaf := testpki.NewLeaf(t, noCRL, "Leaf Under No CRL Sign")
				crl := testpki.CRLSignedAs(t, noCRL.Cert, noCRL.Key)
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, noCRL.Cert)

				res := revocation.NewCRLResolver(revocation.NewListCRLSource(crl), nil, nil)
				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
				assert.True(t, hasNote(toks[0], "not allowed to sign CRLs"))
			},
		},
		{
			name: "Offline Picks Latest Matching Issuer",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "CRL Offline")
				older := inter.CRL(t)
				time.Sleep(1100 * time.Millisecond)
				newer := inter.CRL(t, testpki.Revoked{Serial: leaf.Cert.SerialNumber, At: revokedAt})
				unrelated := root.CRL(t)

				src := revocation.NewListCRLSource(unrelated, older, newer, older)
				assert.Equal(t, 3, src.Len())

				tok, err := src.FindCRL(context.Background(), leaf.Cert, inter.Cert)
				require.NoError(t, err)
				require.NotNil(t, tok)
				assert.Equal(t, token.StatusRevoked, tok.Status())
				assert.Equal(t, token.OriginEmbedded, tok.Origin())
			},
		},
		{
			name: "No Distribution Point Is Not Good",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "CRL None")
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)

				res := revocation.NewCRLResolver(revocation.NewOnlineCRLSource(testLoader(), nil, nil, nil), nil, nil)
				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
			},
		},
		{
			name: "Fetch Failure Noted",
			testFunc: func(t *testing.T) {
				srv := httptest.NewServer(http.NotFoundHandler())
				defer srv.Close()
				leaf := testpki.NewLeaf(t, inter, "CRL 404", testpki.WithCRLDistributionPoint(srv.URL))
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)

				res := revocation.NewCRLResolver(revocation.NewOnlineCRLSource(testLoader(), nil, nil, nil), nil, nil)
				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
				assert.True(t, hasNote(toks[0], "CRL lookup failed"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

// ocspServer answers POST and GET requests with a response built by respond.
func ocspServer(t *testing.T, allowPOST bool, respond func(req *ocsp.Request) []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw []byte
		switch r.Method {
		case http.MethodPost:
			if !allowPOST {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			assert.Equal(t, "application/ocsp-request", r.Header.Get("Content-Type"))
			raw, _ = io.ReadAll(r.Body)
		case http.MethodGet:
			var err error
			raw, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(r.URL.Path, "/"))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		req, err := ocsp.ParseRequest(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(respond(req))
	}))
}

func TestOCSPResolver(t *testing.T) {
	root := testpki.NewRoot(t, "OCSP Resolver Root")
	inter := testpki.NewIntermediate(t, root, "OCSP Resolver Inter")
	responder := testpki.NewOCSPResponder(t, inter, "OCSP Resolver Responder", testpki.WithOCSPNoCheck())

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Online POST Signed By Issuer",
			testFunc: func(t *testing.T) {
				var leaf *testpki.Issued
				srv := ocspServer(t, true, func(req *ocsp.Request) []byte {
					assert.Equal(t, 0, req.SerialNumber.Cmp(leaf.Cert.SerialNumber))
					return testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good})
				})
				defer srv.Close()
				leaf = testpki.NewLeaf(t, inter, "OCSP POST", testpki.WithOCSPServer(srv.URL))

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewOCSPResolver(revocation.NewOnlineOCSPSource(testLoader(), nil, nil), nil, nil)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.StatusGood, got.Status())
				assert.Equal(t, srv.URL, got.URL())
				assert.Same(t, toks[1], got.Issuer())
			},
		},
		{
			name: "Falls Back To GET",
			testFunc: func(t *testing.T) {
				var leaf *testpki.Issued
				srv := ocspServer(t, false, func(*ocsp.Request) []byte {
					return testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{
						Status:    ocsp.Revoked,
						RevokedAt: time.Now().Add(-time.Hour),
						Reason:    ocsp.CessationOfOperation,
					})
				})
				defer srv.Close()
				leaf = testpki.NewLeaf(t, inter, "OCSP GET", testpki.WithOCSPServer(srv.URL))

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewOCSPResolver(revocation.NewOnlineOCSPSource(testLoader(), nil, nil), nil, nil)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.StatusRevoked, got.Status())
				assert.Equal(t, token.ReasonCessationOfOperation, got.Reason())
			},
		},
		{
			name: "Delegated Responder Registered In Pool",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "OCSP Delegated")
				der := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good, Signer: responder, Embed: true})

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewOCSPResolver(revocation.NewListOCSPSource(der), nil, nil)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.OriginEmbedded, got.Origin())

				pooled := p.GetInstance(responder.Cert, token.SourceOther)
				assert.True(t, pooled.HasSource(token.SourceOCSPResponse))
				assert.Same(t, pooled, got.Issuer())
				assert.Same(t, toks[1], pooled.Issuer())
			},
		},
		{
			name: "Responder From Another CA Yields Nothing",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "OCSP Foreign Responder")
				foreign := testpki.NewOCSPResponder(t, root, "Foreign Responder")
				der := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good, Signer: foreign, Embed: true})

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				rec := metrics.NewPrometheus("ades")
				res := revocation.NewOCSPResolver(revocation.NewListOCSPSource(der), rec, nil)

				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
				assert.True(t, hasNote(toks[0], "signed neither by the issuer"))

				summary, err := rec.Summary()
				require.NoError(t, err)
				assert.Contains(t, summary, `ades_revocation_checks_total{outcome="invalid",source="ocsp"} 1`)
			},
		},
		{
			name: "Rejected Response Does Not Hide Valid One",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "OCSP Masked")
				foreign := testpki.NewOCSPResponder(t, root, "Masking Responder")
				bad := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Revoked, RevokedAt: time.Now().Add(-time.Hour), Signer: foreign, Embed: true})
				good := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good})

				src := revocation.NewListOCSPSource(bad, good)
				found, err := src.GetOCSPResponses(context.Background(), leaf.Cert, inter.Cert)
				require.NoError(t, err)
				require.Len(t, found, 2)

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewOCSPResolver(src, nil, nil)
				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.StatusGood, got.Status())
				assert.Same(t, toks[1], got.Issuer())
			},
		},
		{
			name: "Responder Without OCSP Signing",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "OCSP No EKU")
				plain := testpki.NewLeaf(t, inter, "Plain Signer")
				der := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good, Signer: plain, Embed: true})

				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewOCSPResolver(revocation.NewListOCSPSource(der), nil, nil)
				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
			},
		},
		{
			name: "Response For Other Serial",
			testFunc: func(t *testing.T) {
				leaf := testpki.NewLeaf(t, inter, "OCSP Other Serial")
				der := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good, Serial: big.NewInt(7)})

				src := revocation.NewListOCSPSource(der, der)
				assert.Equal(t, 1, src.Len())
				tok, err := src.GetOCSPResponse(context.Background(), leaf.Cert, inter.Cert)
				require.NoError(t, err)
				assert.Nil(t, tok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestCompositeResolver(t *testing.T) {
	root := testpki.NewRoot(t, "Composite Root")
	inter := testpki.NewIntermediate(t, root, "Composite Inter")
	leaf := testpki.NewLeaf(t, inter, "Composite Leaf")
	revokedCRL := inter.CRL(t, testpki.Revoked{Serial: leaf.Cert.SerialNumber, At: time.Now().Add(-time.Hour)})
	goodOCSP := testpki.OCSPResponse(t, inter, leaf.Cert, testpki.OCSPOptions{Status: ocsp.Good})

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "OCSP Wins Over CRL",
			testFunc: func(t *testing.T) {
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewCompositeResolver(
					revocation.NewOCSPResolver(revocation.NewListOCSPSource(goodOCSP), nil, nil),
					revocation.NewCRLResolver(revocation.NewListCRLSource(revokedCRL), nil, nil),
				)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.KindOCSP, got.Kind())
				assert.Equal(t, token.StatusGood, got.Status())
			},
		},
		{
			name: "CRL When OCSP Missing",
			testFunc: func(t *testing.T) {
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewCompositeResolver(
					revocation.NewOCSPResolver(revocation.NewListOCSPSource(), nil, nil),
					revocation.NewCRLResolver(revocation.NewListCRLSource(revokedCRL), nil, nil),
				)

				got := res.Resolve(context.Background(), p, toks[0], toks[1])
				require.NotNil(t, got)
				assert.Equal(t, token.KindCRL, got.Kind())
				assert.Equal(t, token.StatusRevoked, got.Status())
			},
		},
		{
			name: "Nothing Found",
			testFunc: func(t *testing.T) {
				p := pool.New()
				toks := tokens(t, p, leaf.Cert, inter.Cert)
				res := revocation.NewCompositeResolver(nil, revocation.NewCRLResolver(revocation.NewListCRLSource(), nil, nil))
				assert.Nil(t, res.Resolve(context.Background(), p, toks[0], toks[1]))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
