// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"fmt"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// CertificateStatus is the revocation verdict recorded for one certificate.
type CertificateStatus int

const (
	// StatusUndetermined means revocation had to be checked but no usable
	// data was found, or the issuer is unknown.
	StatusUndetermined CertificateStatus = iota
	StatusTrusted
	StatusSelfSigned
	// StatusNotApplicable marks an OCSP responder certificate carrying
	// id-pkix-ocsp-nocheck.
	StatusNotApplicable
	StatusExpired
	StatusGood
	StatusRevoked
	// StatusUnknown is an authoritative OCSP "unknown" answer.
	StatusUnknown
)

func (s CertificateStatus) String() string {
	switch s {
	case StatusTrusted:
		return "trusted"
	case StatusSelfSigned:
		return "self-signed"
	case StatusNotApplicable:
		return "not-applicable"
	case StatusExpired:
		return "expired"
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	case StatusUnknown:
		return "unknown"
	case StatusUndetermined:
		return "undetermined"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s CertificateStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether the status needed no revocation lookup.
func (s CertificateStatus) Terminal() bool {
	return s == StatusTrusted || s == StatusSelfSigned || s == StatusNotApplicable || s == StatusExpired
}

func statusOf(rev token.RevocationToken) CertificateStatus {
	if rev == nil {
		return StatusUndetermined
	}
	switch rev.Status() {
	case token.StatusGood:
		return StatusGood
	case token.StatusRevoked:
		return StatusRevoked
	case token.StatusUnknown:
		return StatusUnknown
	default:
		return StatusUndetermined
	}
}

// Outcome is what a context recorded for one certificate.
type Outcome struct {
	Status CertificateStatus
	// Revocation is the first definite answer, online before embedded.
	Revocation token.RevocationToken
	// Embedded is the answer from the signature's own revocation values when
	// it was consulted after a definite online answer.
	Embedded token.RevocationToken
	// Attempts counts the revocation lookups made: one per consulted group
	// of sources (online, embedded).
	Attempts int
	// Issuer is nil when no issuer could be found.
	Issuer       *token.CertificateToken
	IssuerMethod string
}
