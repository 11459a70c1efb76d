// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509certs

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/cloudflare/cfssl/crypto/pkcs7"
	mozpkcs7 "go.mozilla.org/pkcs7"
)

// PEM block types understood by [Codec].
const (
	BlockCertificate = "CERTIFICATE"
	BlockCRL         = "X509 CRL"
	BlockPKCS7       = "PKCS7"
)

var (
	// ErrInvalidPEMBlock indicates that the provided data does not contain a valid PEM block.
	ErrInvalidPEMBlock = errors.New("x509certs: invalid PEM block")

	// ErrInvalidBlockType indicates that a PEM block carries an unexpected type.
	ErrInvalidBlockType = errors.New("x509certs: invalid block type")

	// ErrParseCertificate indicates a failure to parse a certificate.
	ErrParseCertificate = errors.New("x509certs: failed to parse certificate")

	// ErrParseCRL indicates a failure to parse a certificate revocation list.
	ErrParseCRL = errors.New("x509certs: failed to parse CRL")

	// ErrParsePKCS7 indicates a failure to parse PKCS7 formatted data.
	ErrParsePKCS7 = errors.New("x509certs: failed to parse PKCS7 data")

	// ErrEmptyBundle indicates that a bundle decoded without any certificate or CRL.
	ErrEmptyBundle = errors.New("x509certs: bundle holds no certificates or CRLs")
)

// Bundle is the material decoded from a mixed input: certificates and raw
// DER CRLs, in the order they appeared.
type Bundle struct {
	Certificates []*x509.Certificate
	CRLs         [][]byte
}

// Codec decodes and encodes the [X.509] artifacts a validation run consumes:
// certificates, CRLs and PKCS#7 certs-only bundles, in PEM or DER.
//
// [X.509]: https://en.wikipedia.org/wiki/X.509
type Codec struct{}

// New returns a Codec.
func New() *Codec { return &Codec{} }

// IsPEM reports whether data starts with a PEM block.
func (c *Codec) IsPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

// DecodeCertificate decodes a single certificate from PEM, DER or a PKCS#7
// bundle. For bundles the first certificate is returned.
func (c *Codec) DecodeCertificate(data []byte) (*x509.Certificate, error) {
	if c.IsPEM(data) {
		block, _ := pem.Decode(data)
		switch block.Type {
		case BlockCertificate, BlockPKCS7:
			data = block.Bytes
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidBlockType, block.Type)
		}
	}

	if cert, err := x509.ParseCertificate(data); err == nil {
		return cert, nil
	}

	certs, _, err := c.decodePKCS7(data)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, ErrParseCertificate
	}
	return certs[0], nil
}

// DecodeCertificates decodes every certificate found in data.
func (c *Codec) DecodeCertificates(data []byte) ([]*x509.Certificate, error) {
	b, err := c.DecodeBundle(data)
	if err != nil {
		return nil, err
	}
	if len(b.Certificates) == 0 {
		return nil, ErrParseCertificate
	}
	return b.Certificates, nil
}

// DecodeCRL decodes a single DER or PEM encoded CRL and returns its DER bytes.
// The structure is only checked for well-formedness here; signature and
// entry semantics are evaluated by the token layer.
func (c *Codec) DecodeCRL(data []byte) ([]byte, error) {
	if c.IsPEM(data) {
		block, _ := pem.Decode(data)
		if block.Type != BlockCRL {
			return nil, fmt.Errorf("%w: %s", ErrInvalidBlockType, block.Type)
		}
		data = block.Bytes
	}
	if _, err := x509.ParseDERCRL(data); err != nil { //nolint:staticcheck // tolerant of entry-level extension errors
		return nil, fmt.Errorf("%w: %v", ErrParseCRL, err)
	}
	return bytes.Clone(data), nil
}

// DecodeBundle decodes a mixed input.
//
// Accepted forms:
//   - concatenated PEM blocks of type CERTIFICATE, X509 CRL and PKCS7
//   - a single DER certificate, a DER certificate sequence or a DER CRL
//   - a DER PKCS#7 certs-only structure (as served by AIA caIssuers URLs)
//
// Returns:
//   - The decoded [Bundle]
//   - An error wrapping one of the package sentinel errors
func (c *Codec) DecodeBundle(data []byte) (*Bundle, error) {
	data = bytes.TrimSpace(data)
	b := &Bundle{}

	if c.IsPEM(data) {
		for len(data) > 0 {
			block, rest := pem.Decode(data)
			if block == nil {
				break
			}
			if err := c.appendBlock(b, block); err != nil {
				return nil, err
			}
			data = rest
		}
		if len(b.Certificates) == 0 && len(b.CRLs) == 0 {
			return nil, ErrEmptyBundle
		}
		return b, nil
	}

	if certs, err := x509.ParseCertificates(data); err == nil && len(certs) > 0 {
		b.Certificates = certs
		return b, nil
	}
	if crl, err := c.DecodeCRL(data); err == nil {
		b.CRLs = append(b.CRLs, crl)
		return b, nil
	}

	certs, crls, err := c.decodePKCS7(data)
	if err != nil {
		return nil, err
	}
	b.Certificates, b.CRLs = certs, crls
	if len(b.Certificates) == 0 && len(b.CRLs) == 0 {
		return nil, ErrEmptyBundle
	}
	return b, nil
}

func (c *Codec) appendBlock(b *Bundle, block *pem.Block) error {
	switch block.Type {
	case BlockCertificate:
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrParseCertificate, err)
		}
		b.Certificates = append(b.Certificates, cert)
	case BlockCRL:
		crl, err := c.DecodeCRL(block.Bytes)
		if err != nil {
			return err
		}
		b.CRLs = append(b.CRLs, crl)
	case BlockPKCS7:
		certs, crls, err := c.decodePKCS7(block.Bytes)
		if err != nil {
			return err
		}
		b.Certificates = append(b.Certificates, certs...)
		b.CRLs = append(b.CRLs, crls...)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidBlockType, block.Type)
	}
	return nil
}

// decodePKCS7 takes certificates from Cloudflare's parser, which accepts
// degenerate certs-only SignedData, falling back to the mozilla parser for
// bundles Cloudflare rejects, such as those carrying several CRLs. CRLs are
// kept as stored.
func (c *Codec) decodePKCS7(data []byte) ([]*x509.Certificate, [][]byte, error) {
	var certs []*x509.Certificate
	if p, err := pkcs7.ParsePKCS7(data); err == nil {
		certs = p.Content.SignedData.Certificates
	} else if p7, merr := mozpkcs7.Parse(data); merr == nil {
		certs = p7.Certificates
	} else {
		return nil, nil, fmt.Errorf("%w: %v", ErrParsePKCS7, err)
	}

	crls, err := SignedDataCRLs(data)
	if err != nil {
		return nil, nil, err
	}
	return certs, crls, nil
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []asn1.RawValue `asn1:"set"`
	ContentInfo      asn1.RawValue
	Certificates     []asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             []asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      []asn1.RawValue `asn1:"set"`
}

// SignedDataCRLs returns the CRLs of a DER PKCS#7 SignedData exactly as
// encoded, so their signatures still verify. Parsers that decode the CRL
// structure and marshal it again may not reproduce the signed bytes.
func SignedDataCRLs(der []byte) ([][]byte, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsePKCS7, err)
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsePKCS7, err)
	}
	crls := make([][]byte, 0, len(sd.CRLs))
	for _, crl := range sd.CRLs {
		crls = append(crls, bytes.Clone(crl.FullBytes))
	}
	return crls, nil
}

// EncodePEM encodes a certificate to PEM format.
func (c *Codec) EncodePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: BlockCertificate, Bytes: cert.Raw})
}

// EncodeCRLPEM encodes DER CRL bytes to PEM format.
func (c *Codec) EncodeCRLPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: BlockCRL, Bytes: der})
}

// EncodeMultiplePEM encodes multiple certificates to PEM format.
func (c *Codec) EncodeMultiplePEM(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, cert := range certs {
		buf.Write(c.EncodePEM(cert))
	}
	return buf.Bytes()
}
