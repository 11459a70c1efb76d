// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	// registers SHA-1 for certID hashing
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"golang.org/x/crypto/ocsp"
)

var (
	oidOCSPBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}

	certIDHashes = map[string]crypto.Hash{
		"1.3.14.3.2.26":          crypto.SHA1,
		"2.16.840.1.101.3.4.2.1": crypto.SHA256,
		"2.16.840.1.101.3.4.2.2": crypto.SHA384,
		"2.16.840.1.101.3.4.2.3": crypto.SHA512,
	}
)

type ocspResponseASN1 struct {
	Status   asn1.Enumerated
	Response responseBytesASN1 `asn1:"explicit,tag:0,optional"`
}

type responseBytesASN1 struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

type basicResponseASN1 struct {
	TBSResponseData    responseDataASN1
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certificates       []asn1.RawValue `asn1:"explicit,tag:0,optional"`
}

type responseDataASN1 struct {
	Version        int `asn1:"optional,default:0,explicit,tag:0"`
	RawResponderID asn1.RawValue
	ProducedAt     time.Time `asn1:"generalized"`
	Responses      []singleResponseASN1
}

type certIDASN1 struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	NameHash      []byte
	IssuerKeyHash []byte
	SerialNumber  asn1.RawValue
}

type singleResponseASN1 struct {
	CertID     certIDASN1
	Good       asn1.Flag       `asn1:"tag:0,optional"`
	Revoked    revokedInfoASN1 `asn1:"tag:1,optional"`
	Unknown    asn1.Flag       `asn1:"tag:2,optional"`
	ThisUpdate time.Time       `asn1:"generalized"`
	NextUpdate time.Time       `asn1:"generalized,explicit,tag:0,optional"`
}

type revokedInfoASN1 struct {
	RevocationTime time.Time     `asn1:"generalized"`
	Reason         asn1.RawValue `asn1:"explicit,tag:0,optional"`
}

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// OCSPToken is an OCSP response evaluated for one target certificate.
type OCSPToken struct {
	base
	revocationInfo

	raw           []byte
	producedAt    time.Time
	responderName []byte
	responderKey  []byte
	certs         []*x509.Certificate
	resp          *ocsp.Response
}

// ParseOCSP parses a DER OCSPResponse and selects the single response whose
// certID (hash algorithm, issuer name hash, issuer key hash, serial) matches
// target as issued by issuer. Every single response is examined, not only the
// first one.
//
// Returns [ErrNoMatchingResponse] when no single response matches.
func ParseOCSP(raw []byte, target, issuer *x509.Certificate, url string, origin Origin) (*OCSPToken, error) {
	if target == nil || issuer == nil {
		return nil, ErrNilCertificate
	}

	var envelope ocspResponseASN1
	if _, err := asn1.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("token: parse OCSP response: %w", err)
	}
	if envelope.Status != 0 {
		return nil, fmt.Errorf("token: OCSP responder returned status %d", envelope.Status)
	}
	if !envelope.Response.ResponseType.Equal(oidOCSPBasic) {
		return nil, fmt.Errorf("token: unsupported OCSP response type %s", envelope.Response.ResponseType)
	}

	var basic basicResponseASN1
	if _, err := asn1.Unmarshal(envelope.Response.Response, &basic); err != nil {
		return nil, fmt.Errorf("token: parse basic OCSP response: %w", err)
	}

	single, err := matchSingleResponse(basic.TBSResponseData.Responses, target, issuer)
	if err != nil {
		return nil, err
	}

	// The x/crypto parser supplies the signed bytes and signature algorithm.
	// It picks the single response by serial only, so the status fields are
	// taken from the certID match above.
	resp, err := ocsp.ParseResponseForCert(raw, target, nil)
	if err != nil {
		return nil, fmt.Errorf("token: parse OCSP response: %w", err)
	}

	t := &OCSPToken{
		base: newBase(raw, target.RawIssuer, target.SerialNumber.Bytes()),
		revocationInfo: revocationInfo{
			thisUpdate: single.ThisUpdate,
			nextUpdate: single.NextUpdate,
			serial:     target.SerialNumber,
			url:        url,
			origin:     origin,
		},
		raw:           raw,
		producedAt:    basic.TBSResponseData.ProducedAt,
		responderName: resp.RawResponderName,
		responderKey:  resp.ResponderKeyHash,
		resp:          resp,
	}

	switch {
	case bool(single.Good):
		t.status = StatusGood
	case !single.Revoked.RevocationTime.IsZero():
		t.status = StatusRevoked
		t.revokedAt = single.Revoked.RevocationTime
		t.reason = ReasonUnspecified
		// the reason is an explicit [0] wrapper around the ENUMERATED
		if len(single.Revoked.Reason.Bytes) > 0 {
			var code asn1.Enumerated
			if _, err := asn1.Unmarshal(single.Revoked.Reason.Bytes, &code); err != nil {
				t.AddNote("undecodable OCSP revocation reason, treated as unspecified: %v", err)
			} else {
				t.reason = normalizeReason(int(code))
			}
		}
	default:
		t.status = StatusUnknown
	}

	for _, rc := range basic.Certificates {
		cert, err := x509.ParseCertificate(rc.FullBytes)
		if err != nil {
			t.AddNote("skipping undecodable responder certificate: %v", err)
			continue
		}
		t.certs = append(t.certs, cert)
	}
	return t, nil
}

func matchSingleResponse(responses []singleResponseASN1, target, issuer *x509.Certificate) (*singleResponseASN1, error) {
	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("token: parse issuer public key: %w", err)
	}
	serial, err := asn1.Marshal(target.SerialNumber)
	if err != nil {
		return nil, err
	}

	for i := range responses {
		id := responses[i].CertID
		hash, ok := certIDHashes[id.HashAlgorithm.Algorithm.String()]
		if !ok || !hash.Available() {
			continue
		}
		if !bytes.Equal(id.SerialNumber.FullBytes, serial) {
			continue
		}
		if !bytes.Equal(id.NameHash, digest(hash, issuer.RawSubject)) {
			continue
		}
		if !bytes.Equal(id.IssuerKeyHash, digest(hash, spki.PublicKey.RightAlign())) {
			continue
		}
		return &responses[i], nil
	}
	return nil, ErrNoMatchingResponse
}

func digest(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}

// WrapBasicOCSP wraps a DER BasicOCSPResponse, as stored in CAdES
// revocationValues, into a successful OCSPResponse envelope.
func WrapBasicOCSP(basic []byte) ([]byte, error) {
	return asn1.Marshal(ocspResponseASN1{
		Status: 0,
		Response: responseBytesASN1{
			ResponseType: oidOCSPBasic,
			Response:     basic,
		},
	})
}

func (t *OCSPToken) Kind() Kind { return KindOCSP }

// Raw returns the DER OCSPResponse.
func (t *OCSPToken) Raw() []byte { return t.raw }

// IssuerName returns the responder name when the responder is identified
// by name, nil when it is identified by key hash.
func (t *OCSPToken) IssuerName() []byte { return t.responderName }

// ResponderKeyHash returns the SHA-1 key hash identifying the responder, if any.
func (t *OCSPToken) ResponderKeyHash() []byte { return t.responderKey }

func (t *OCSPToken) ProducedAt() time.Time { return t.producedAt }

// Certificates returns the certificates embedded in the response.
func (t *OCSPToken) Certificates() []*x509.Certificate { return t.certs }

// IsSignedBy verifies the response signature with candidate's key.
func (t *OCSPToken) IsSignedBy(candidate *CertificateToken) bool {
	return t.resolveIssuer(candidate, t.resp.CheckSignatureFrom)
}

func (t *OCSPToken) String() string {
	return fmt.Sprintf("OCSP[%s] serial=%s status=%s", shortID(t.id), t.serial, t.status)
}

var _ RevocationToken = (*OCSPToken)(nil)
