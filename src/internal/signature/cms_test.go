// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package signature_test

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/ocsp"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/signature"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/testpki"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

type policyValue struct {
	ID   asn1.ObjectIdentifier
	Hash struct {
		Algorithm pkix.AlgorithmIdentifier
		Value     []byte
	}
}

// timestampStage returns a CMS stage adding a timestamp of typ under oid.
func timestampStage(t *testing.T, tsa *testpki.Issued, oid asn1.ObjectIdentifier, typ token.TimestampType) func([]byte) []pkcs7.Attribute {
	return func(current []byte) []pkcs7.Attribute {
		sig, err := signature.ParseCMS(current, nil)
		require.NoError(t, err)
		data, err := sig.TimestampData(typ)
		require.NoError(t, err)
		return []pkcs7.Attribute{testpki.TimestampAttribute(oid, testpki.Timestamp(t, tsa, data, time.Now()))}
	}
}

func timestampsOf(sig *signature.CMSSignature, typ token.TimestampType) []*token.TimestampToken {
	var out []*token.TimestampToken
	for _, ts := range sig.Timestamps() {
		if ts.Type() == typ {
			out = append(out, ts)
		}
	}
	return out
}

func TestParseCMS(t *testing.T) {
	root := testpki.NewRoot(t, "CMS Root")
	inter := testpki.NewIntermediate(t, root, "CMS Inter")
	signer := testpki.NewLeaf(t, inter, "CMS Signer")
	tsa := testpki.NewTSA(t, root, "CMS TSA")
	content := []byte("signed document")

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Attached Signature",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{Certificates: []*x509.Certificate{inter.Cert}})
				sig, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)

				assert.True(t, sig.SigningCertificate().Equal(signer.Cert))
				assert.Len(t, sig.Certificates(), 2)
				assert.Equal(t, "SHA256-ECDSA", sig.SignatureAlgorithm())
				assert.False(t, sig.SigningTime().IsZero())
				assert.Nil(t, sig.PolicyID())
				assert.Empty(t, sig.Timestamps())
				assert.Equal(t, signature.Properties{}, sig.Properties())

				integrity := sig.CheckIntegrity()
				assert.True(t, integrity.Intact(), integrity.Reason)

				data, err := sig.TimestampData(token.TimestampContent)
				require.NoError(t, err)
				assert.Equal(t, content, data)
			},
		},
		{
			name: "Detached Signature",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{Detached: true})

				missing, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)
				assert.False(t, missing.CheckIntegrity().ReferenceFound)
				_, err = missing.TimestampData(token.TimestampContent)
				assert.ErrorIs(t, err, signature.ErrNoTimestampData)

				ok, err := signature.ParseCMS(der, content)
				require.NoError(t, err)
				assert.True(t, ok.CheckIntegrity().Intact())

				tampered, err := signature.ParseCMS(der, []byte("other document"))
				require.NoError(t, err)
				integrity := tampered.CheckIntegrity()
				assert.True(t, integrity.ReferenceFound)
				assert.False(t, integrity.ReferenceIntact)
				assert.NotEmpty(t, integrity.Reason)
			},
		},
		{
			name: "Signature Policy",
			testFunc: func(t *testing.T) {
				policy := policyValue{ID: asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 7}}
				policy.Hash.Algorithm = pkix.AlgorithmIdentifier{Algorithm: testpki.OIDSHA256}
				policy.Hash.Value = make([]byte, 32)

				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					SignedAttributes: []pkcs7.Attribute{{Type: signature.OIDSignaturePolicy, Value: policy}},
				})
				sig, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)
				assert.True(t, policy.ID.Equal(sig.PolicyID()))
				assert.True(t, sig.Properties().SignaturePolicy)
			},
		},
		{
			name: "Content And Signature Timestamps",
			testFunc: func(t *testing.T) {
				contentTST := testpki.Timestamp(t, tsa, content, time.Now())
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					SignedAttributes: []pkcs7.Attribute{testpki.TimestampAttribute(signature.OIDContentTimestamp, contentTST)},
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
					},
				})
				sig, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)
				require.Len(t, sig.Timestamps(), 2)

				for _, typ := range []token.TimestampType{token.TimestampContent, token.TimestampSignature} {
					tss := timestampsOf(sig, typ)
					require.Len(t, tss, 1, typ.String())
					data, err := sig.TimestampData(typ)
					require.NoError(t, err)
					assert.True(t, tss[0].MatchData(data), typ.String())
					assert.True(t, tss[0].SignerCertificate().Equal(tsa.Cert))
				}
				assert.True(t, sig.CheckIntegrity().Intact())
			},
		},
		{
			name: "Long Term Attributes",
			testFunc: func(t *testing.T) {
				crl := inter.CRL(t)
				ocspDER := testpki.OCSPResponse(t, inter, signer.Cert, testpki.OCSPOptions{Status: ocsp.Good})
				refs := pkcs7.Attribute{Type: signature.OIDCertificateRefs, Value: []int{1}}
				revRefs := pkcs7.Attribute{Type: signature.OIDRevocationRefs, Value: []int{2}}
				certValues := pkcs7.Attribute{Type: signature.OIDCertificateValues, Value: []asn1.RawValue{{FullBytes: inter.Cert.Raw}, {FullBytes: root.Cert.Raw}}}
				revValues := pkcs7.Attribute{Type: signature.OIDRevocationValues, Value: signature.RevocationValues{
					CRLs: []asn1.RawValue{{FullBytes: crl}},
					OCSP: []asn1.RawValue{{FullBytes: testpki.BasicOCSP(t, ocspDER)}},
				}}

				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					CRLs: [][]byte{crl},
					Stages: []func([]byte) []pkcs7.Attribute{
						timestampStage(t, tsa, signature.OIDSignatureTimestamp, token.TimestampSignature),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{refs, revRefs} },
						timestampStage(t, tsa, signature.OIDEscTimestamp, token.TimestampSigAndRefs),
						timestampStage(t, tsa, signature.OIDCertCRLTimestamp, token.TimestampRefsOnly),
						func([]byte) []pkcs7.Attribute { return []pkcs7.Attribute{certValues, revValues} },
						timestampStage(t, tsa, signature.OIDArchiveTimestamp, token.TimestampArchive),
					},
				})
				sig, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)
				assert.Empty(t, sig.Notes())

				assert.Equal(t, signature.Properties{
					CertificateRefs:   true,
					RevocationRefs:    true,
					CertificateValues: true,
					RevocationValues:  true,
				}, sig.Properties())
				assert.Len(t, sig.Certificates(), 3, "signer plus certificate values")
				assert.Len(t, sig.CRLs(), 1, "CRL in both places is listed once")
				require.Len(t, sig.OCSPResponses(), 1)
				assert.Equal(t, ocspDER, sig.OCSPResponses()[0])

				for _, typ := range []token.TimestampType{
					token.TimestampSignature,
					token.TimestampSigAndRefs,
					token.TimestampRefsOnly,
					token.TimestampArchive,
				} {
					tss := timestampsOf(sig, typ)
					require.Len(t, tss, 1, typ.String())
					data, err := sig.TimestampData(typ)
					require.NoError(t, err)
					assert.True(t, tss[0].MatchData(data), typ.String())
				}
			},
		},
		{
			name: "SignedData CRL Kept As Encoded",
			testFunc: func(t *testing.T) {
				crl := inter.MinutePrecisionCRL(t)
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{CRLs: [][]byte{crl}})
				sig, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)
				assert.Empty(t, sig.Notes())

				require.Len(t, sig.CRLs(), 1)
				assert.Equal(t, crl, sig.CRLs()[0])
				parsed, err := x509.ParseRevocationList(sig.CRLs()[0])
				require.NoError(t, err)
				assert.NoError(t, parsed.CheckSignatureFrom(inter.Cert))

				data, err := sig.TimestampData(token.TimestampArchive)
				require.NoError(t, err)
				assert.True(t, bytes.Contains(data, crl))
			},
		},
		{
			name: "Undecodable Timestamp Is Noted",
			testFunc: func(t *testing.T) {
				der := testpki.CMS(t, signer, content, testpki.CMSOptions{
					UnsignedAttributes: []pkcs7.Attribute{{Type: signature.OIDSignatureTimestamp, Value: []int{7}}},
				})
				sig, err := signature.ParseCMS(der, nil)
				require.NoError(t, err)
				assert.Empty(t, sig.Timestamps())
				assert.NotEmpty(t, sig.Notes())
			},
		},
		{
			name: "Garbage Input",
			testFunc: func(t *testing.T) {
				_, err := signature.ParseCMS([]byte("not cms"), nil)
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
