// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"bytes"
	"crypto"
	"crypto/subtle"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.mozilla.org/pkcs7"
)

// TimestampType tells which part of a signature a timestamp covers.
type TimestampType int

const (
	TimestampContent TimestampType = iota + 1
	TimestampSignature
	TimestampSigAndRefs
	TimestampRefsOnly
	TimestampArchive
)

func (t TimestampType) String() string {
	switch t {
	case TimestampContent:
		return "content"
	case TimestampSignature:
		return "signature"
	case TimestampSigAndRefs:
		return "sigAndRefs"
	case TimestampRefsOnly:
		return "refsOnly"
	case TimestampArchive:
		return "archive"
	default:
		return fmt.Sprintf("timestamp(%d)", int(t))
	}
}

// ImprintState is the result of comparing a message imprint with data.
type ImprintState int

const (
	ImprintNotChecked ImprintState = iota
	ImprintIntact
	ImprintBroken
)

func (s ImprintState) String() string {
	switch s {
	case ImprintIntact:
		return "intact"
	case ImprintBroken:
		return "broken"
	default:
		return "not checked"
	}
}

type messageImprint struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashedMessage []byte
}

// tstInfo holds the leading TSTInfo fields. Trailing optional fields such
// as accuracy and tsa are not needed.
type tstInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint messageImprint
	SerialNumber   *big.Int
	GenTime        time.Time `asn1:"generalized"`
}

var digestHashes = map[string]crypto.Hash{
	"1.3.14.3.2.26":          crypto.SHA1,
	"2.16.840.1.101.3.4.2.1": crypto.SHA256,
	"2.16.840.1.101.3.4.2.2": crypto.SHA384,
	"2.16.840.1.101.3.4.2.3": crypto.SHA512,
}

// TimestampToken is an RFC 3161 time-stamp token.
type TimestampToken struct {
	base

	raw     []byte
	typ     TimestampType
	p7      *pkcs7.PKCS7
	info    tstInfo
	hash    crypto.Hash
	signer  *x509.Certificate
	certs   []*x509.Certificate
	sidName []byte
	sidSN   *big.Int

	imprintMu sync.Mutex
	imprint   ImprintState
}

// ParseTimestamp parses a DER ContentInfo holding a signed TSTInfo.
func ParseTimestamp(raw []byte, typ TimestampType) (*TimestampToken, error) {
	p7, err := pkcs7.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseTimestamp, err)
	}
	if len(p7.Signers) != 1 {
		return nil, fmt.Errorf("%w: expected one signer, got %d", ErrParseTimestamp, len(p7.Signers))
	}

	var info tstInfo
	if _, err := asn1.Unmarshal(p7.Content, &info); err != nil {
		return nil, fmt.Errorf("%w: TSTInfo: %v", ErrParseTimestamp, err)
	}
	hash, ok := digestHashes[info.MessageImprint.HashAlgorithm.Algorithm.String()]
	if !ok || !hash.Available() {
		return nil, fmt.Errorf("%w: imprint %s", ErrUnsupportedHash, info.MessageImprint.HashAlgorithm.Algorithm)
	}

	sid := p7.Signers[0].IssuerAndSerialNumber
	return &TimestampToken{
		base:    newBase(raw),
		raw:     raw,
		typ:     typ,
		p7:      p7,
		info:    info,
		hash:    hash,
		signer:  p7.GetOnlySigner(),
		certs:   p7.Certificates,
		sidName: sid.IssuerName.FullBytes,
		sidSN:   sid.SerialNumber,
	}, nil
}

func (t *TimestampToken) Kind() Kind { return KindTimestamp }

// Raw returns the DER token.
func (t *TimestampToken) Raw() []byte { return t.raw }

// Type returns what the timestamp covers.
func (t *TimestampToken) Type() TimestampType { return t.typ }

// GenTime returns the time asserted by the TSA.
func (t *TimestampToken) GenTime() time.Time { return t.info.GenTime }

// SerialNumber returns the TSTInfo serial.
func (t *TimestampToken) SerialNumber() *big.Int { return t.info.SerialNumber }

// Certificates returns the certificates embedded in the token.
func (t *TimestampToken) Certificates() []*x509.Certificate { return t.certs }

// SignerCertificate returns the embedded TSA certificate, or nil when the
// token does not carry it.
func (t *TimestampToken) SignerCertificate() *x509.Certificate { return t.signer }

// IssuerName returns the TSA certificate subject when the signer is embedded.
func (t *TimestampToken) IssuerName() []byte {
	if t.signer == nil {
		return nil
	}
	return t.signer.RawSubject
}

// MatchesSignerID reports whether cert is the one named by the signer's
// issuer and serial number.
func (t *TimestampToken) MatchesSignerID(cert *x509.Certificate) bool {
	return cert != nil && t.sidSN != nil &&
		bytes.Equal(cert.RawIssuer, t.sidName) && cert.SerialNumber.Cmp(t.sidSN) == 0
}

// IsSignedBy verifies the CMS signature with candidate, which must be the
// certificate named by the signer identifier.
func (t *TimestampToken) IsSignedBy(candidate *CertificateToken) bool {
	return t.resolveIssuer(candidate, func(cert *x509.Certificate) error {
		if !t.MatchesSignerID(cert) {
			return fmt.Errorf("certificate %s is not the timestamp signer", cert.Subject)
		}
		p7 := *t.p7
		p7.Certificates = []*x509.Certificate{cert}
		return p7.Verify()
	})
}

// MatchData hashes data with the imprint algorithm and compares it with the
// message imprint. The outcome is kept as the token's imprint state.
func (t *TimestampToken) MatchData(data []byte) bool {
	ok := subtle.ConstantTimeCompare(digest(t.hash, data), t.info.MessageImprint.HashedMessage) == 1

	t.imprintMu.Lock()
	defer t.imprintMu.Unlock()
	if ok {
		t.imprint = ImprintIntact
	} else {
		t.imprint = ImprintBroken
	}
	return ok
}

// ImprintState returns the outcome of the last MatchData call.
func (t *TimestampToken) ImprintState() ImprintState {
	t.imprintMu.Lock()
	defer t.imprintMu.Unlock()
	return t.imprint
}

func (t *TimestampToken) String() string {
	return fmt.Sprintf("Timestamp[%s] %s at %s", shortID(t.id), t.typ, t.info.GenTime.UTC().Format(time.RFC3339))
}
