// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNilCertificate is returned when a token is built from a nil certificate.
	ErrNilCertificate = errors.New("token: nil certificate")

	// ErrNoMatchingResponse is returned when an OCSP response holds no single
	// response for the requested certificate.
	ErrNoMatchingResponse = errors.New("token: no OCSP single response matches the certificate")

	// ErrUnsupportedHash is returned for certID hash algorithms this package
	// cannot compute.
	ErrUnsupportedHash = errors.New("token: unsupported hash algorithm")

	// ErrParseTimestamp is returned when a blob is not an RFC 3161 timestamp token.
	ErrParseTimestamp = errors.New("token: failed to parse timestamp token")
)

// Kind identifies the concrete variant of a [Token].
type Kind int

const (
	KindCertificate Kind = iota + 1
	KindCRL
	KindOCSP
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindCertificate:
		return "certificate"
	case KindCRL:
		return "crl"
	case KindOCSP:
		return "ocsp"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SignatureState is the tri-state result of checking a token's signature.
type SignatureState int

const (
	SignatureNotChecked SignatureState = iota
	SignatureValid
	SignatureInvalid
)

func (s SignatureState) String() string {
	switch s {
	case SignatureValid:
		return "valid"
	case SignatureInvalid:
		return "invalid"
	default:
		return "not checked"
	}
}

// SignatureStatus carries the signature state and, when invalid, the reason.
type SignatureStatus struct {
	State  SignatureState
	Reason string
}

// Token is implemented by every artifact taking part in a validation run.
//
// The interface is sealed; the set of implementations is fixed to the four
// variants declared in this package.
type Token interface {
	// ID is the hex SHA-256 of the artifact, stable across runs.
	ID() string
	Kind() Kind
	// IssuerName is the raw DER name of the expected signer's subject, or nil
	// when the artifact does not name its signer.
	IssuerName() []byte
	// Issuer returns the cached issuer, or nil while unresolved.
	Issuer() *CertificateToken
	// IsSignedBy verifies the token against candidate and caches it on success.
	IsSignedBy(candidate *CertificateToken) bool
	SignatureStatus() SignatureStatus
	AddNote(format string, args ...any)
	Notes() []string
	String() string

	sealed()
}

// base holds the state shared by all token variants.
type base struct {
	id string

	mu        sync.Mutex
	issuer    *CertificateToken
	sigStatus SignatureStatus
	notes     []string
}

func newBase(raw ...[]byte) base {
	h := sha256.New()
	for _, r := range raw {
		h.Write(r)
	}
	return base{id: hex.EncodeToString(h.Sum(nil))}
}

func (b *base) ID() string { return b.id }

func (b *base) Issuer() *CertificateToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issuer
}

func (b *base) SignatureStatus() SignatureStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sigStatus
}

func (b *base) AddNote(format string, args ...any) {
	note := fmt.Sprintf(format, args...)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notes {
		if n == note {
			return
		}
	}
	b.notes = append(b.notes, note)
}

func (b *base) Notes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.notes...)
}

func (b *base) sealed() {}

// resolveIssuer implements the first-wins issuer cache. Once an issuer is
// cached, later candidates only match when they are the same token or carry
// the same public key; the cache itself is never replaced.
func (b *base) resolveIssuer(candidate *CertificateToken, verify func(*x509.Certificate) error) bool {
	if candidate == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.issuer != nil {
		return b.issuer == candidate || b.issuer.SamePublicKey(candidate)
	}

	if err := verify(candidate.cert); err != nil {
		b.sigStatus = SignatureStatus{State: SignatureInvalid, Reason: err.Error()}
		return false
	}
	b.issuer = candidate
	b.sigStatus = SignatureStatus{State: SignatureValid}
	return true
}

// shortID returns the first characters of an ID for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
