// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package signature

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"time"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

var (
	// ErrSignerCount is returned when a CMS structure does not carry exactly one signer.
	ErrSignerCount = errors.New("signature: expected exactly one signer")
	// ErrSignerNotFound is returned when the signer certificate is not embedded.
	ErrSignerNotFound = errors.New("signature: signer certificate not embedded")
	// ErrNoTimestampData is returned when the data covered by a timestamp type
	// is not available.
	ErrNoTimestampData = errors.New("signature: no data for timestamp type")
)

// Integrity is the result of checking a signature value against its
// signed data.
type Integrity struct {
	ReferenceFound  bool // The signed content is available
	ReferenceIntact bool // The content digest matches the signed digest
	SignatureIntact bool // The signature value verifies under the signer key
	Reason          string
}

// Intact reports whether every integrity flag is set.
func (i Integrity) Intact() bool {
	return i.ReferenceFound && i.ReferenceIntact && i.SignatureIntact
}

// Properties lists the CAdES attributes present on a signature.
type Properties struct {
	SignaturePolicy   bool // explicit signature-policy-identifier
	CertificateRefs   bool // complete-certificate-references
	RevocationRefs    bool // complete-revocation-references
	CertificateValues bool // certificate-values
	RevocationValues  bool // revocation-values
}

// AdvancedSignature is the view of a signature the validation context and
// level analysis work on.
type AdvancedSignature interface {
	// SigningCertificate returns the certificate of the signer.
	SigningCertificate() *x509.Certificate
	// Certificates returns every certificate embedded in the signature.
	Certificates() []*x509.Certificate
	// CRLs returns the DER CRLs embedded in the signature.
	CRLs() [][]byte
	// OCSPResponses returns the embedded OCSP data as DER OCSPResponse structures.
	OCSPResponses() [][]byte
	// Timestamps returns the timestamp tokens attached to the signature.
	Timestamps() []*token.TimestampToken
	// TimestampData returns the bytes a timestamp of type typ must cover.
	TimestampData(typ token.TimestampType) ([]byte, error)
	// SignatureAlgorithm names the digest and signature algorithms.
	SignatureAlgorithm() string
	// PolicyID returns the explicit signature policy, or nil.
	PolicyID() asn1.ObjectIdentifier
	// SigningTime returns the claimed signing time, zero when absent.
	SigningTime() time.Time
	// Properties reports which CAdES attributes are present.
	Properties() Properties
	// CheckIntegrity verifies the signature value.
	CheckIntegrity() Integrity
}
