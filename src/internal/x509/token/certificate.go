// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"slices"
	"time"
)

var (
	oidOCSPNoCheck       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 5}
	oidExpiredCertsOnCRL = asn1.ObjectIdentifier{2, 5, 29, 60}
)

// Source records how a certificate entered a validation run.
type Source int

const (
	SourceOther Source = iota
	SourceTrustedList
	SourceTrustStore
	SourceRemote
	SourceAdjunct
	SourceSignature
	SourceAIA
	SourceOCSPResponse
	SourceTimestamp
)

func (s Source) String() string {
	switch s {
	case SourceTrustedList:
		return "trusted-list"
	case SourceTrustStore:
		return "trust-store"
	case SourceRemote:
		return "remote-trust"
	case SourceAdjunct:
		return "adjunct"
	case SourceSignature:
		return "signature"
	case SourceAIA:
		return "aia"
	case SourceOCSPResponse:
		return "ocsp-response"
	case SourceTimestamp:
		return "timestamp"
	default:
		return "other"
	}
}

// Trusted reports whether certificates from s are trust anchors.
func (s Source) Trusted() bool {
	return s == SourceTrustedList || s == SourceTrustStore || s == SourceRemote
}

// ServiceInfo describes the trust service a trusted certificate belongs to.
type ServiceInfo struct {
	Name string `json:"name"`
	// ExpiredCertsRevocationInfo is the date from which the service keeps
	// revocation data for expired certificates. Zero means not declared.
	ExpiredCertsRevocationInfo time.Time `json:"expired_certs_revocation_info,omitzero"`
}

// CertificateToken wraps an X.509 certificate.
type CertificateToken struct {
	base

	cert       *x509.Certificate
	selfSigned bool

	// guarded by base.mu
	sources  []Source
	services []ServiceInfo
}

// NewCertificate wraps cert. A self-signed certificate caches itself as issuer.
func NewCertificate(cert *x509.Certificate) (*CertificateToken, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	t := &CertificateToken{base: newBase(cert.Raw), cert: cert}
	if bytes.Equal(cert.RawSubject, cert.RawIssuer) &&
		cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil {
		t.selfSigned = true
		t.issuer = t
		t.sigStatus = SignatureStatus{State: SignatureValid}
	}
	return t, nil
}

func (t *CertificateToken) Kind() Kind { return KindCertificate }

// Certificate returns the wrapped certificate.
func (t *CertificateToken) Certificate() *x509.Certificate { return t.cert }

func (t *CertificateToken) IssuerName() []byte { return t.cert.RawIssuer }

// SubjectName returns the raw DER subject.
func (t *CertificateToken) SubjectName() []byte { return t.cert.RawSubject }

// IsSelfSigned reports whether subject equals issuer and the certificate
// verifies under its own key.
func (t *CertificateToken) IsSelfSigned() bool { return t.selfSigned }

// IsSignedBy verifies the certificate signature with candidate's key.
func (t *CertificateToken) IsSignedBy(candidate *CertificateToken) bool {
	return t.resolveIssuer(candidate, func(issuer *x509.Certificate) error {
		return issuer.CheckSignature(t.cert.SignatureAlgorithm, t.cert.RawTBSCertificate, t.cert.Signature)
	})
}

// SamePublicKey reports whether both certificates carry the same key.
func (t *CertificateToken) SamePublicKey(other *CertificateToken) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(t.cert.RawSubjectPublicKeyInfo, other.cert.RawSubjectPublicKeyInfo)
}

// AddSource tags the token with s; repeated sources are ignored.
func (t *CertificateToken) AddSource(s Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.sources, s) {
		t.sources = append(t.sources, s)
	}
}

// Sources returns every source the certificate was obtained from.
func (t *CertificateToken) Sources() []Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sources)
}

// HasSource reports whether s is among the token's sources.
func (t *CertificateToken) HasSource(s Source) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.sources, s)
}

// IsTrusted reports whether the certificate is a trust anchor.
func (t *CertificateToken) IsTrusted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.ContainsFunc(t.sources, Source.Trusted)
}

// AddServices attaches trust service information.
func (t *CertificateToken) AddServices(services ...ServiceInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range services {
		if !slices.Contains(t.services, s) {
			t.services = append(t.services, s)
		}
	}
}

// Services returns the attached trust service information.
func (t *CertificateToken) Services() []ServiceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.services)
}

// IsExpiredAt reports whether the certificate is past NotAfter at at.
func (t *CertificateToken) IsExpiredAt(at time.Time) bool { return at.After(t.cert.NotAfter) }

// IsValidAt reports whether at lies within the validity window.
func (t *CertificateToken) IsValidAt(at time.Time) bool {
	return !at.Before(t.cert.NotBefore) && !at.After(t.cert.NotAfter)
}

// HasOCSPNoCheck reports whether the id-pkix-ocsp-nocheck extension is present.
func (t *CertificateToken) HasOCSPNoCheck() bool {
	return hasExtension(t.cert, oidOCSPNoCheck)
}

// IsOCSPSigning reports whether the certificate carries the OCSPSigning EKU.
func (t *CertificateToken) IsOCSPSigning() bool {
	return slices.Contains(t.cert.ExtKeyUsage, x509.ExtKeyUsageOCSPSigning)
}

// CanSignCRL reports whether the key usage extension is present and asserts cRLSign.
func (t *CertificateToken) CanSignCRL() bool {
	return t.cert.KeyUsage&x509.KeyUsageCRLSign != 0
}

// ExpiredCertsOnCRL returns the date carried by the expiredCertsOnCRL
// extension. The boolean is false when the extension is absent. A present
// extension whose value cannot be decoded yields the zero time.
func (t *CertificateToken) ExpiredCertsOnCRL() (time.Time, bool) {
	for _, ext := range t.cert.Extensions {
		if !ext.Id.Equal(oidExpiredCertsOnCRL) {
			continue
		}
		var since time.Time
		if _, err := asn1.UnmarshalWithParams(ext.Value, &since, "generalized"); err != nil {
			return time.Time{}, true
		}
		return since, true
	}
	return time.Time{}, false
}

// String returns a short human readable description.
func (t *CertificateToken) String() string {
	return fmt.Sprintf("Certificate[%s] %s", shortID(t.id), t.cert.Subject.String())
}

func hasExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}
