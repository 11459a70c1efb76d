// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package level_test

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/level"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/signature"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/testpki"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/trust"
)

type policyValue struct {
	ID   asn1.ObjectIdentifier
	Hash struct {
		Algorithm pkix.AlgorithmIdentifier
		Value     []byte
	}
}

func timestampStage(t *testing.T, tsa *testpki.Issued, oid asn1.ObjectIdentifier, typ token.TimestampType) func([]byte) []pkcs7.Attribute {
	return func(current []byte) []pkcs7.Attribute {
		sig, err := signature.ParseCMS(current, nil)
		require.NoError(t, err)
		data, err := sig.TimestampData(typ)
		require.NoError(t, err)
		return []pkcs7.Attribute{testpki.TimestampAttribute(oid, testpki.Timestamp(t, tsa, data, time.Now()))}
	}
}

// analyze validates der against root and returns the level report.
func analyze(t *testing.T, root *x509.Certificate, der, detached []byte) *level.Report {
	t.Helper()
	sig, err := signature.ParseCMS(der, detached)
	require.NoError(t, err)

	v := x509chain.NewVerifier(trust.NewListSource(token.SourceTrustedList, root))
	vc, err := x509chain.NewSignatureContext(v, sig)
	require.NoError(t, err)
	_, err = vc.ValidateSignature(context.Background())
	require.NoError(t, err)

	report, err := level.Analyze(sig, vc)
	require.NoError(t, err)
	return report
}

func TestAnalyze(t *testing.T) {
	root := testpki.NewRoot(t, "Level Root")
	inter := testpki.NewIntermediate(t, root, "Level Inter")
	signer := testpki.NewLeaf(t, inter, "Level Signer")
	tsa := testpki.NewTSA(t, root, "Level TSA")
	content := []byte("invoice 2025-0042")

	interCRL := inter.CRL(t)
	rootCRL := root.CRL(t)

	refs := pkcs7.Attribute{Type: signature.OIDCertificateRefs, Value: []int{1}}
	revRefs := pkcs7.Attribute{Type: signature.OIDRevocationRefs, Value: []int{2}}
	certValues := pkcs7.Attribute{Type: signature.OIDCertificateValues, Value: []asn1.RawValue{{FullBytes: inter.Cert.Raw}, {FullBytes: root.Cert.Raw}}}
	revValues := pkcs7.Attribute{Type: signature.OIDRevocationValues, Value: signature.RevocationValues{
		CRLs: []asn1.RawValue{{FullBytes: interCRL}, {FullBytes: rootCRL}},
	}}

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Nil Arguments",
			testFunc: func(t *testing.T) {
				_, err := level.Analyze(nil, nil)
				assert.ErrorIs(t, err, level.ErrNilSignature)

				sig, err := signature.ParseCMS(testpki.CMS(t, signer, content, testpki.CMSOptions{}), nil)
				require.NoError(t, err)
				_, err = level.Analyze(sig, nil)
				assert.ErrorIs(t, err, level.ErrNilContext)
			},
		},
		{
			name: "Context Not Run",
			testFunc: func(t *testing.T) {
				sig, err := signature.ParseCMS(testpki.CMS(t, signer, content, testpki.CMSOptions{}), nil)
				require.NoError(t, err)
				vc, err := x509chain.NewCertificateContext(x509chain.NewVerifier(trust.NewListSource(token.SourceTrustedList, root.Cert)))
				require.NoError(t, err)
				_, err = level.Analyze(sig, vc)
				assert.ErrorIs(t, err, level.ErrSignerNotProcessed)
			},
		},
		{
			name: "Basic Signature",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
				})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelBES, r.Level)
				assert.True(t, r.ChainComplete)
				assert.True(t, r.Integrity.Intact())
				assert.False(t, r.Check(level.LevelEPES).Passed)
				assert.Contains(t, r.Check(level.LevelT).Reasons, "no signature timestamp")
			},
		},
		{
			name: "Broken Content Reaches Nothing",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
					Detached:     true,
				})
				r := analyze(t, root.Cert, der, []byte("tampered invoice"))
				assert.Equal(t, level.LevelNone, r.Level)
				assert.False(t, r.Integrity.Intact())
				assert.NotEmpty(t, r.Check(level.LevelBES).Reasons)
			},
		},
		{
			name: "Missing Intermediate Reaches Nothing",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelNone, r.Level)
				assert.False(t, r.ChainComplete)
			},
		},
		{
			name: "Explicit Policy",
			testFunc: func(t *testing.T) {
				policy := policyValue{ID: asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 7}}
				policy.Hash.Algorithm = pkix.AlgorithmIdentifier{Algorithm: testpki.OIDSHA256}
				policy.Hash.Value = make([]byte, 32)

				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Certificates:     []*x509.Certificate{inter.Cert},
					SignedAttributes: []pkcs7.Attribute{{Type: signature.OIDSignaturePolicy, Value: policy}},
				})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelEPES, r.Level)
			},
		},
		{
			name: "Signature Timestamp",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
					},
				})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelT, r.Level)
				assert.True(t, r.Check(level.LevelT).Passed)
			},
		},
		{
			name: "Missing Revocation Data Caps At T",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{refs, revRefs} },
						timestampStage(t, tsa, signature.OIDEscTimestamp, token.TimestampSigAndRefs),
					},
				})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelT, r.Level)
				c := r.Check(level.LevelC)
				assert.False(t, c.Passed)
				assert.Contains(t, c.Reasons, "no revocation data for Level Signer")
				assert.True(t, r.Check(level.LevelX).Passed, "X checks only its own timestamp")
			},
		},
		{
			name: "Archive Signature",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					CRLs: [][]byte{interCRL},
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{refs, revRefs} },
						timestampStage(t, tsa, signature.OIDEscTimestamp, token.TimestampSigAndRefs),
						timestampStage(t, tsa, signature.OIDCertCRLTimestamp, token.TimestampRefsOnly),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{certValues, revValues} },
						timestampStage(t, tsa, signature.OIDArchiveTimestamp, token.TimestampArchive),
					},
				})
				r := analyze(t, root.Cert, der, nil)
				for _, c := range r.Checks {
					assert.True(t, c.Passed || c.Level == level.LevelEPES, "%s: %v", c.Level, c.Reasons)
				}
				assert.Equal(t, level.LevelA, r.Level)
				assert.Equal(t, x509chain.StatusGood.String(), r.SignerStatus)

				out, err := json.Marshal(r)
				require.NoError(t, err)
				assert.Contains(t, string(out), `"level":"A"`)
			},
		},
		{
			name: "Long Term Data Without Archive Timestamp",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{refs, revRefs} },
						timestampStage(t, tsa, signature.OIDCertCRLTimestamp, token.TimestampRefsOnly),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{certValues, revValues} },
					},
				})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelXL, r.Level)
				assert.Contains(t, r.Check(level.LevelA).Reasons, "no archive timestamp")
			},
		},
		{
			name: "Revoked Signer Fails Basic Level",
			testFunc: func(t *testing.T) {
				revoked := inter.CRL(t, testpki.Revoked{Serial: signer.Cert.SerialNumber, At: time.Now().Add(-time.Hour)})
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
					CRLs:         [][]byte{revoked},
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
					},
				})
				r := analyze(t, root.Cert, der, nil)
				assert.Equal(t, level.LevelNone, r.Level)
				assert.Equal(t, x509chain.StatusRevoked.String(), r.SignerStatus)
				assert.Contains(t, r.Check(level.LevelBES).Reasons, "certificate Level Signer is revoked")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestLevelString(t *testing.T) {
	names := map[level.Level]string{
		level.LevelNone: "none",
		level.LevelBES:  "BES",
		level.LevelEPES: "EPES",
		level.LevelT:    "T",
		level.LevelC:    "C",
		level.LevelX:    "X",
		level.LevelXL:   "XL",
		level.LevelA:    "A",
	}
	for l, want := range names {
		assert.Equal(t, want, l.String())
	}
}
