// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"
)

var oidCRLReason = asn1.ObjectIdentifier{2, 5, 29, 21}

// CRLToken is a CRL evaluated for one target certificate.
//
// The same CRL checked for two certificates yields two tokens with distinct
// IDs, each carrying the status of its own target.
type CRLToken struct {
	base
	revocationInfo

	raw        []byte
	issuerName []byte
	verify     func(*x509.Certificate) error
}

// ParseCRL parses a DER CRL and evaluates it for target.
//
// The strict parser is tried first. When it rejects the list, typically
// because an entry carries an undecodable reason code, the legacy parser is
// used instead and the reason of the matching entry falls back to
// unspecified.
func ParseCRL(raw []byte, target *x509.Certificate, url string, origin Origin) (*CRLToken, error) {
	if target == nil {
		return nil, ErrNilCertificate
	}

	t := &CRLToken{
		base: newBase(raw, target.RawIssuer, target.SerialNumber.Bytes()),
		revocationInfo: revocationInfo{
			status: StatusGood,
			serial: target.SerialNumber,
			url:    url,
			origin: origin,
		},
		raw: raw,
	}

	if rl, err := x509.ParseRevocationList(raw); err == nil {
		t.fromRevocationList(rl)
		return t, nil
	}

	crl, err := x509.ParseDERCRL(raw) //nolint:staticcheck // tolerant fallback
	if err != nil {
		return nil, fmt.Errorf("token: parse CRL: %w", err)
	}
	t.fromCertificateList(crl)
	return t, nil
}

func (t *CRLToken) fromRevocationList(rl *x509.RevocationList) {
	t.issuerName = rl.RawIssuer
	t.thisUpdate = rl.ThisUpdate
	t.nextUpdate = rl.NextUpdate
	t.verify = func(issuer *x509.Certificate) error {
		return issuer.CheckSignature(rl.SignatureAlgorithm, rl.RawTBSRevocationList, rl.Signature)
	}
	for _, entry := range rl.RevokedCertificateEntries {
		if entry.SerialNumber == nil || entry.SerialNumber.Cmp(t.serial) != 0 {
			continue
		}
		t.markRevoked(entry.RevocationTime, normalizeReason(entry.ReasonCode))
		return
	}
}

func (t *CRLToken) fromCertificateList(crl *pkix.CertificateList) {
	t.issuerName = rawIssuer(crl.TBSCertList.Raw)
	t.thisUpdate = crl.TBSCertList.ThisUpdate
	t.nextUpdate = crl.TBSCertList.NextUpdate
	t.verify = func(issuer *x509.Certificate) error {
		return issuer.CheckCRLSignature(crl) //nolint:staticcheck // pairs with the legacy parser
	}
	for _, entry := range crl.TBSCertList.RevokedCertificates {
		if entry.SerialNumber == nil || entry.SerialNumber.Cmp(t.serial) != 0 {
			continue
		}
		reason, err := decodeReason(entry.Extensions)
		if err != nil {
			t.AddNote("undecodable CRL reason for serial %s, treated as unspecified: %v", t.serial, err)
		}
		t.markRevoked(entry.RevocationTime, reason)
		return
	}
}

func (t *CRLToken) markRevoked(at time.Time, reason Reason) {
	t.status = StatusRevoked
	t.revokedAt = at
	t.reason = reason
}

func decodeReason(exts []pkix.Extension) (Reason, error) {
	for _, ext := range exts {
		if !ext.Id.Equal(oidCRLReason) {
			continue
		}
		var code asn1.Enumerated
		if rest, err := asn1.Unmarshal(ext.Value, &code); err != nil {
			return ReasonUnspecified, err
		} else if len(rest) > 0 {
			return ReasonUnspecified, fmt.Errorf("trailing data after reason code")
		}
		return normalizeReason(int(code)), nil
	}
	return ReasonUnspecified, nil
}

type tbsCertListPrefix struct {
	Version   int `asn1:"optional,default:0"`
	Signature pkix.AlgorithmIdentifier
	Issuer    asn1.RawValue
}

// rawIssuer extracts the issuer bytes as encoded, so the legacy path keys
// the pool exactly like the strict one.
func rawIssuer(tbs []byte) []byte {
	var prefix tbsCertListPrefix
	if _, err := asn1.Unmarshal(tbs, &prefix); err != nil {
		return nil
	}
	return prefix.Issuer.FullBytes
}

func (t *CRLToken) Kind() Kind { return KindCRL }

// Raw returns the DER CRL.
func (t *CRLToken) Raw() []byte { return t.raw }

func (t *CRLToken) IssuerName() []byte { return t.issuerName }

// ProducedAt returns thisUpdate.
func (t *CRLToken) ProducedAt() time.Time { return t.thisUpdate }

// IsSignedBy verifies the CRL signature with candidate's key. Key usage is
// checked separately by the resolver.
func (t *CRLToken) IsSignedBy(candidate *CertificateToken) bool {
	return t.resolveIssuer(candidate, t.verify)
}

func (t *CRLToken) String() string {
	return fmt.Sprintf("CRL[%s] serial=%s status=%s", shortID(t.id), t.serial, t.status)
}

var _ RevocationToken = (*CRLToken)(nil)
