// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package signature

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"go.mozilla.org/pkcs7"

	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// CAdES attribute identifiers (id-aa, RFC 5126).
var (
	OIDSignaturePolicy    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 15}
	OIDSignatureTimestamp = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	OIDContentTimestamp   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 20}
	OIDCertificateRefs    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 21}
	OIDRevocationRefs     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 22}
	OIDCertificateValues  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 23}
	OIDRevocationValues   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 24}
	OIDEscTimestamp       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 25}
	OIDCertCRLTimestamp   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 26}
	OIDArchiveTimestamp   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 27}
	OIDArchiveTimestampV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 48}
)

var digestNames = map[string]string{
	"1.3.14.3.2.26":          "SHA1",
	"2.16.840.1.101.3.4.2.1": "SHA256",
	"2.16.840.1.101.3.4.2.2": "SHA384",
	"2.16.840.1.101.3.4.2.3": "SHA512",
}

var encryptionNames = map[string]string{
	"1.2.840.113549.1.1.1":  "RSA",
	"1.2.840.113549.1.1.11": "RSA",
	"1.2.840.113549.1.1.12": "RSA",
	"1.2.840.113549.1.1.13": "RSA",
	"1.2.840.10045.2.1":     "ECDSA",
	"1.2.840.10045.4.3.2":   "ECDSA",
	"1.2.840.10045.4.3.3":   "ECDSA",
	"1.2.840.10045.4.3.4":   "ECDSA",
	"1.3.101.112":           "Ed25519",
}

// RevocationValues is the CAdES revocation-values attribute.
type RevocationValues struct {
	CRLs []asn1.RawValue `asn1:"optional,explicit,tag:0"`
	OCSP []asn1.RawValue `asn1:"optional,explicit,tag:1"`
}

// cmsAttribute mirrors a CMS Attribute; Value holds the whole SET OF values.
type cmsAttribute struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"set"`
}

type signaturePolicyID struct {
	ID         asn1.ObjectIdentifier
	Hash       asn1.RawValue
	Qualifiers asn1.RawValue `asn1:"optional"`
}

// CMSSignature is an [AdvancedSignature] over a CMS SignedData with a single
// signer.
type CMSSignature struct {
	p7      *pkcs7.PKCS7
	signer  *x509.Certificate
	content []byte

	signed   []cmsAttribute
	unsigned []cmsAttribute
	sigValue []byte
	algo     string

	embedded   []*x509.Certificate // SignedData certificates
	certs      []*x509.Certificate // embedded plus certificate-values
	sdCRLs     [][]byte            // SignedData crls, as encoded
	crls       [][]byte            // sdCRLs plus revocation-values
	ocsp       [][]byte
	timestamps []*token.TimestampToken
	policy     asn1.ObjectIdentifier
	signedAt   time.Time
	props      Properties
	notes      []string
}

var _ AdvancedSignature = (*CMSSignature)(nil)

// ParseCMS parses a DER CMS SignedData.
//
// Parameters:
//   - der: The SignedData ContentInfo
//   - detached: Signed content for detached signatures; nil keeps the
//     encapsulated content
//
// Returns:
//   - *CMSSignature: Parsed signature. Undecodable timestamps and revocation
//     values are skipped and listed by [CMSSignature.Notes].
//   - error: Parse failure, [ErrSignerCount] or [ErrSignerNotFound]
func ParseCMS(der, detached []byte) (*CMSSignature, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("signature: parse CMS: %w", err)
	}
	if len(p7.Signers) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrSignerCount, len(p7.Signers))
	}
	if detached != nil {
		p7.Content = bytes.Clone(detached)
	}
	signer := p7.GetOnlySigner()
	if signer == nil {
		return nil, ErrSignerNotFound
	}

	si := p7.Signers[0]
	s := &CMSSignature{
		p7:       p7,
		signer:   signer,
		content:  p7.Content,
		sigValue: si.EncryptedDigest,
		algo:     algorithmName(si.DigestAlgorithm.Algorithm, si.DigestEncryptionAlgorithm.Algorithm),
		embedded: p7.Certificates,
		certs:    append([]*x509.Certificate(nil), p7.Certificates...),
	}
	for _, a := range si.AuthenticatedAttributes {
		s.signed = append(s.signed, cmsAttribute{Type: a.Type, Value: a.Value})
	}
	for _, a := range si.UnauthenticatedAttributes {
		s.unsigned = append(s.unsigned, cmsAttribute{Type: a.Type, Value: a.Value})
	}

	sdCRLs, err := x509certs.SignedDataCRLs(der)
	if err != nil {
		// BER input: only the decoded form is left
		s.note("CRLs re-encoded from a non-DER SignedData: %v", err)
		sdCRLs = nil
		for _, crl := range p7.CRLs {
			raw, err := asn1.Marshal(crl)
			if err != nil {
				s.note("skipping unencodable CRL: %v", err)
				continue
			}
			sdCRLs = append(sdCRLs, raw)
		}
	}
	s.sdCRLs = sdCRLs
	s.crls = append(s.crls, sdCRLs...)

	var signingTime time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &signingTime); err == nil {
		s.signedAt = signingTime
	}

	for _, a := range s.signed {
		switch {
		case a.Type.Equal(OIDSignaturePolicy):
			s.parsePolicy(a)
		case a.Type.Equal(OIDContentTimestamp):
			s.parseTimestamps(a, token.TimestampContent)
		}
	}
	for _, a := range s.unsigned {
		switch {
		case a.Type.Equal(OIDSignatureTimestamp):
			s.parseTimestamps(a, token.TimestampSignature)
		case a.Type.Equal(OIDEscTimestamp):
			s.parseTimestamps(a, token.TimestampSigAndRefs)
		case a.Type.Equal(OIDCertCRLTimestamp):
			s.parseTimestamps(a, token.TimestampRefsOnly)
		case a.Type.Equal(OIDArchiveTimestamp), a.Type.Equal(OIDArchiveTimestampV2):
			s.parseTimestamps(a, token.TimestampArchive)
		case a.Type.Equal(OIDCertificateRefs):
			s.props.CertificateRefs = true
		case a.Type.Equal(OIDRevocationRefs):
			s.props.RevocationRefs = true
		case a.Type.Equal(OIDCertificateValues):
			s.props.CertificateValues = true
			s.parseCertificateValues(a)
		case a.Type.Equal(OIDRevocationValues):
			s.props.RevocationValues = true
			s.parseRevocationValues(a)
		}
	}
	return s, nil
}

func algorithmName(digest, encryption asn1.ObjectIdentifier) string {
	d, ok := digestNames[digest.String()]
	if !ok {
		d = digest.String()
	}
	e, ok := encryptionNames[encryption.String()]
	if !ok {
		e = encryption.String()
	}
	return d + "-" + e
}

func (s *CMSSignature) note(format string, args ...any) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// values splits the SET OF values of an attribute.
func values(a cmsAttribute) ([]asn1.RawValue, error) {
	var out []asn1.RawValue
	rest := a.Value.Bytes
	for len(rest) > 0 {
		var v asn1.RawValue
		var err error
		if rest, err = asn1.Unmarshal(rest, &v); err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *CMSSignature) parsePolicy(a cmsAttribute) {
	vals, err := values(a)
	if err != nil || len(vals) == 0 {
		s.note("undecodable signature policy identifier")
		return
	}
	// signaturePolicyImplied is an ASN.1 NULL.
	if vals[0].Tag == asn1.TagNull {
		return
	}
	var id signaturePolicyID
	if _, err := asn1.Unmarshal(vals[0].FullBytes, &id); err != nil {
		s.note("undecodable signature policy identifier: %v", err)
		return
	}
	s.policy = id.ID
	s.props.SignaturePolicy = true
}

func (s *CMSSignature) parseTimestamps(a cmsAttribute, typ token.TimestampType) {
	vals, err := values(a)
	if err != nil {
		s.note("undecodable %s timestamp attribute: %v", typ, err)
	}
	for _, v := range vals {
		ts, err := token.ParseTimestamp(v.FullBytes, typ)
		if err != nil {
			s.note("skipping undecodable %s timestamp: %v", typ, err)
			continue
		}
		s.timestamps = append(s.timestamps, ts)
	}
}

func (s *CMSSignature) parseCertificateValues(a cmsAttribute) {
	vals, err := values(a)
	if err != nil || len(vals) == 0 {
		s.note("undecodable certificate values")
		return
	}
	var raws []asn1.RawValue
	if _, err := asn1.Unmarshal(vals[0].FullBytes, &raws); err != nil {
		s.note("undecodable certificate values: %v", err)
		return
	}
	for _, r := range raws {
		cert, err := x509.ParseCertificate(r.FullBytes)
		if err != nil {
			s.note("skipping undecodable certificate value: %v", err)
			continue
		}
		if !containsCert(s.certs, cert) {
			s.certs = append(s.certs, cert)
		}
	}
}

func (s *CMSSignature) parseRevocationValues(a cmsAttribute) {
	vals, err := values(a)
	if err != nil || len(vals) == 0 {
		s.note("undecodable revocation values")
		return
	}
	var rv RevocationValues
	if _, err := asn1.Unmarshal(vals[0].FullBytes, &rv); err != nil {
		s.note("undecodable revocation values: %v", err)
		return
	}
	for _, c := range rv.CRLs {
		s.crls = appendUnique(s.crls, c.FullBytes)
	}
	for _, o := range rv.OCSP {
		full, err := token.WrapBasicOCSP(o.FullBytes)
		if err != nil {
			s.note("skipping unwrappable OCSP value: %v", err)
			continue
		}
		s.ocsp = appendUnique(s.ocsp, full)
	}
}

func containsCert(certs []*x509.Certificate, c *x509.Certificate) bool {
	for _, have := range certs {
		if have.Equal(c) {
			return true
		}
	}
	return false
}

func appendUnique(list [][]byte, v []byte) [][]byte {
	for _, have := range list {
		if bytes.Equal(have, v) {
			return list
		}
	}
	return append(list, v)
}

func (s *CMSSignature) SigningCertificate() *x509.Certificate { return s.signer }

func (s *CMSSignature) Certificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), s.certs...)
}

func (s *CMSSignature) CRLs() [][]byte { return append([][]byte(nil), s.crls...) }

func (s *CMSSignature) OCSPResponses() [][]byte { return append([][]byte(nil), s.ocsp...) }

func (s *CMSSignature) Timestamps() []*token.TimestampToken {
	return append([]*token.TimestampToken(nil), s.timestamps...)
}

func (s *CMSSignature) SignatureAlgorithm() string { return s.algo }

func (s *CMSSignature) PolicyID() asn1.ObjectIdentifier { return s.policy }

func (s *CMSSignature) SigningTime() time.Time { return s.signedAt }

func (s *CMSSignature) Properties() Properties { return s.props }

// Notes lists attributes that were present but could not be decoded.
func (s *CMSSignature) Notes() []string { return append([]string(nil), s.notes...) }

// TimestampData returns the bytes covered by a timestamp of type typ:
//
//   - content: the signed content
//   - signature: the signature value
//   - sigAndRefs: signature value, then the encoded signature timestamp,
//     certificate references and revocation references attributes
//   - refsOnly: the encoded certificate and revocation references attributes
//   - archive: content, embedded certificates and CRLs, encoded signed
//     attributes, signature value and every other unsigned attribute
func (s *CMSSignature) TimestampData(typ token.TimestampType) ([]byte, error) {
	var buf bytes.Buffer
	switch typ {
	case token.TimestampContent:
		if s.content == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTimestampData, typ)
		}
		buf.Write(s.content)
	case token.TimestampSignature:
		buf.Write(s.sigValue)
	case token.TimestampSigAndRefs:
		buf.Write(s.sigValue)
		if err := s.writeAttributes(&buf, s.unsigned, OIDSignatureTimestamp, OIDCertificateRefs, OIDRevocationRefs); err != nil {
			return nil, err
		}
	case token.TimestampRefsOnly:
		if err := s.writeAttributes(&buf, s.unsigned, OIDCertificateRefs, OIDRevocationRefs); err != nil {
			return nil, err
		}
	case token.TimestampArchive:
		buf.Write(s.content)
		for _, c := range s.embedded {
			buf.Write(c.Raw)
		}
		for _, crl := range s.sdCRLs {
			buf.Write(crl)
		}
		for _, a := range s.signed {
			if err := writeAttribute(&buf, a); err != nil {
				return nil, err
			}
		}
		buf.Write(s.sigValue)
		for _, a := range s.unsigned {
			if a.Type.Equal(OIDArchiveTimestamp) || a.Type.Equal(OIDArchiveTimestampV2) {
				continue
			}
			if err := writeAttribute(&buf, a); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoTimestampData, typ)
	}
	return buf.Bytes(), nil
}

// writeAttributes writes every attribute of the given types, grouped in the
// order the types are listed.
func (s *CMSSignature) writeAttributes(buf *bytes.Buffer, attrs []cmsAttribute, types ...asn1.ObjectIdentifier) error {
	for _, typ := range types {
		for _, a := range attrs {
			if !a.Type.Equal(typ) {
				continue
			}
			if err := writeAttribute(buf, a); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeAttribute(buf *bytes.Buffer, a cmsAttribute) error {
	raw, err := asn1.Marshal(a)
	if err != nil {
		return fmt.Errorf("signature: encode attribute %s: %w", a.Type, err)
	}
	buf.Write(raw)
	return nil
}

// CheckIntegrity verifies the message digest and the signature value.
func (s *CMSSignature) CheckIntegrity() Integrity {
	if s.content == nil {
		return Integrity{Reason: "signed content is not available"}
	}
	err := s.p7.Verify()
	if err == nil {
		return Integrity{ReferenceFound: true, ReferenceIntact: true, SignatureIntact: true}
	}

	var mismatch *pkcs7.MessageDigestMismatchError
	if errors.As(err, &mismatch) {
		return Integrity{ReferenceFound: true, Reason: err.Error()}
	}
	return Integrity{ReferenceFound: true, ReferenceIntact: true, Reason: err.Error()}
}
