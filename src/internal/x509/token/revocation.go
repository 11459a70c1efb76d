// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"fmt"
	"math/big"
	"time"
)

// Status is the revocation status asserted by a CRL or OCSP response.
type Status int

const (
	StatusGood Status = iota + 1
	StatusRevoked
	// StatusUnknown is an authoritative OCSP answer: the responder has no
	// record of the certificate. It differs from having no data at all.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reason is an RFC 5280 CRLReason code.
type Reason int

const (
	ReasonUnspecified          Reason = 0
	ReasonKeyCompromise        Reason = 1
	ReasonCACompromise         Reason = 2
	ReasonAffiliationChanged   Reason = 3
	ReasonSuperseded           Reason = 4
	ReasonCessationOfOperation Reason = 5
	ReasonCertificateHold      Reason = 6
	ReasonRemoveFromCRL        Reason = 8
	ReasonPrivilegeWithdrawn   Reason = 9
	ReasonAACompromise         Reason = 10
)

var reasonNames = map[Reason]string{
	ReasonUnspecified:          "unspecified",
	ReasonKeyCompromise:        "keyCompromise",
	ReasonCACompromise:         "cACompromise",
	ReasonAffiliationChanged:   "affiliationChanged",
	ReasonSuperseded:           "superseded",
	ReasonCessationOfOperation: "cessationOfOperation",
	ReasonCertificateHold:      "certificateHold",
	ReasonRemoveFromCRL:        "removeFromCRL",
	ReasonPrivilegeWithdrawn:   "privilegeWithdrawn",
	ReasonAACompromise:         "aACompromise",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// normalizeReason maps codes outside RFC 5280 to unspecified.
func normalizeReason(code int) Reason {
	if _, ok := reasonNames[Reason(code)]; ok {
		return Reason(code)
	}
	return ReasonUnspecified
}

// Origin tells whether revocation data was fetched live or taken from the
// signature.
type Origin int

const (
	OriginOnline Origin = iota + 1
	OriginEmbedded
)

func (o Origin) String() string {
	switch o {
	case OriginOnline:
		return "online"
	case OriginEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// RevocationToken is implemented by [*CRLToken] and [*OCSPToken].
type RevocationToken interface {
	Token
	Status() Status
	RevokedAt() time.Time
	Reason() Reason
	// ProducedAt is OCSP producedAt or CRL thisUpdate.
	ProducedAt() time.Time
	ThisUpdate() time.Time
	NextUpdate() time.Time
	TargetSerial() *big.Int
	URL() string
	Origin() Origin
}

// revocationInfo is the part shared by CRL and OCSP tokens.
type revocationInfo struct {
	status     Status
	revokedAt  time.Time
	reason     Reason
	thisUpdate time.Time
	nextUpdate time.Time
	serial     *big.Int
	url        string
	origin     Origin
}

func (r *revocationInfo) Status() Status         { return r.status }
func (r *revocationInfo) RevokedAt() time.Time   { return r.revokedAt }
func (r *revocationInfo) Reason() Reason         { return r.reason }
func (r *revocationInfo) ThisUpdate() time.Time  { return r.thisUpdate }
func (r *revocationInfo) NextUpdate() time.Time  { return r.nextUpdate }
func (r *revocationInfo) TargetSerial() *big.Int { return r.serial }
func (r *revocationInfo) URL() string            { return r.url }
func (r *revocationInfo) Origin() Origin         { return r.origin }

// IsFreshAt reports whether at is before the next update. Data without a
// next update hint is considered fresh.
func (r *revocationInfo) IsFreshAt(at time.Time) bool {
	return r.nextUpdate.IsZero() || at.Before(r.nextUpdate)
}
