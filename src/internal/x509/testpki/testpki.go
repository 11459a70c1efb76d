// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package testpki builds throwaway certificate hierarchies, CRLs, OCSP responses,
// timestamp tokens and CMS signatures in memory for tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/ocsp"
)

var (
	// OIDOCSPNoCheck is id-pkix-ocsp-nocheck.
	OIDOCSPNoCheck = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 5}
	// OIDExpiredCertsOnCRL is the expiredCertsOnCRL extension (RFC 5280 5.2.7 / X.509).
	OIDExpiredCertsOnCRL = asn1.ObjectIdentifier{2, 5, 29, 60}
	// OIDSHA256 is the SHA-256 digest algorithm.
	OIDSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

	oidTSTInfo = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 4}
)

var serialCounter atomic.Int64

func init() { serialCounter.Store(1000) }

// NextSerial returns a process-unique serial number.
func NextSerial() *big.Int { return big.NewInt(serialCounter.Add(1)) }

// Issued is a certificate together with its private key.
type Issued struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// Option customizes a certificate template before signing.
type Option func(*x509.Certificate)

// WithSerial sets the serial number.
func WithSerial(serial int64) Option {
	return func(c *x509.Certificate) { c.SerialNumber = big.NewInt(serial) }
}

// WithValidity sets the validity window.
func WithValidity(notBefore, notAfter time.Time) Option {
	return func(c *x509.Certificate) {
		c.NotBefore = notBefore
		c.NotAfter = notAfter
	}
}

// WithIssuingURL sets the AIA caIssuers URL.
func WithIssuingURL(url string) Option {
	return func(c *x509.Certificate) { c.IssuingCertificateURL = []string{url} }
}

// WithOCSPServer sets the AIA OCSP responder URL.
func WithOCSPServer(url string) Option {
	return func(c *x509.Certificate) { c.OCSPServer = []string{url} }
}

// WithCRLDistributionPoint sets the CRL distribution point URL.
func WithCRLDistributionPoint(url string) Option {
	return func(c *x509.Certificate) { c.CRLDistributionPoints = []string{url} }
}

// WithKeyUsage overrides the key usage bits.
func WithKeyUsage(ku x509.KeyUsage) Option {
	return func(c *x509.Certificate) { c.KeyUsage = ku }
}

// WithExtKeyUsage sets the extended key usages.
func WithExtKeyUsage(eku ...x509.ExtKeyUsage) Option {
	return func(c *x509.Certificate) { c.ExtKeyUsage = eku }
}

// WithExtension appends a raw extension.
func WithExtension(ext pkix.Extension) Option {
	return func(c *x509.Certificate) { c.ExtraExtensions = append(c.ExtraExtensions, ext) }
}

// WithOCSPNoCheck adds the id-pkix-ocsp-nocheck extension.
func WithOCSPNoCheck() Option {
	return WithExtension(pkix.Extension{Id: OIDOCSPNoCheck, Value: asn1.NullBytes})
}

// WithExpiredCertsOnCRL adds the expiredCertsOnCRL extension carrying since.
func WithExpiredCertsOnCRL(since time.Time) Option {
	value, err := asn1.MarshalWithParams(since.UTC(), "generalized")
	if err != nil {
		panic(err)
	}
	return WithExtension(pkix.Extension{Id: OIDExpiredCertsOnCRL, Value: value})
}

// NewKey generates a P-256 key.
func NewKey(tb testing.TB) *ecdsa.PrivateKey {
	tb.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	return key
}

// Sign issues template with signer's key, using parent as issuer. parent may be a
// bare template for hand-built hierarchies such as cycles.
func Sign(tb testing.TB, template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) *x509.Certificate {
	tb.Helper()
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		tb.Fatalf("create certificate %q: %v", template.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse certificate %q: %v", template.Subject.CommonName, err)
	}
	return cert
}

// CATemplate returns a CA template valid from one hour ago for one year.
func CATemplate(cn string, opts ...Option) *x509.Certificate {
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          NextSerial(),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test PKI"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, opt := range opts {
		opt(tmpl)
	}
	return tmpl
}

// LeafTemplate returns an end-entity template valid from one hour ago for ninety days.
func LeafTemplate(cn string, opts ...Option) *x509.Certificate {
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          NextSerial(),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test PKI"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}
	for _, opt := range opts {
		opt(tmpl)
	}
	return tmpl
}

// NewRoot creates a self-signed root CA.
func NewRoot(tb testing.TB, cn string, opts ...Option) *Issued {
	tb.Helper()
	key := NewKey(tb)
	tmpl := CATemplate(cn, opts...)
	return &Issued{Cert: Sign(tb, tmpl, tmpl, &key.PublicKey, key), Key: key}
}

// NewIntermediate creates a CA certificate issued by parent.
func NewIntermediate(tb testing.TB, parent *Issued, cn string, opts ...Option) *Issued {
	tb.Helper()
	key := NewKey(tb)
	return &Issued{Cert: Sign(tb, CATemplate(cn, opts...), parent.Cert, &key.PublicKey, parent.Key), Key: key}
}

// NewLeaf creates an end-entity certificate issued by parent.
func NewLeaf(tb testing.TB, parent *Issued, cn string, opts ...Option) *Issued {
	tb.Helper()
	key := NewKey(tb)
	return &Issued{Cert: Sign(tb, LeafTemplate(cn, opts...), parent.Cert, &key.PublicKey, parent.Key), Key: key}
}

// NewOCSPResponder creates a delegated OCSP signing certificate issued by parent.
func NewOCSPResponder(tb testing.TB, parent *Issued, cn string, opts ...Option) *Issued {
	tb.Helper()
	base := []Option{
		WithKeyUsage(x509.KeyUsageDigitalSignature),
		WithExtKeyUsage(x509.ExtKeyUsageOCSPSigning),
	}
	return NewLeaf(tb, parent, cn, append(base, opts...)...)
}

// NewTSA creates a time-stamping unit certificate issued by parent.
func NewTSA(tb testing.TB, parent *Issued, cn string, opts ...Option) *Issued {
	tb.Helper()
	base := []Option{
		WithKeyUsage(x509.KeyUsageDigitalSignature),
		WithExtKeyUsage(x509.ExtKeyUsageTimeStamping),
	}
	return NewLeaf(tb, parent, cn, append(base, opts...)...)
}

// Revoked describes one CRL entry.
type Revoked struct {
	Serial *big.Int
	At     time.Time
	Reason int
	// RawExtensions are written verbatim and Reason is ignored. Any entry
	// using them switches the whole list to the raw encoding path, which
	// allows malformed extensions.
	RawExtensions []pkix.Extension
}

// CRL issues a DER CRL signed by i listing entries.
func (i *Issued) CRL(tb testing.TB, entries ...Revoked) []byte {
	tb.Helper()
	return CRLSignedAs(tb, i.Cert, i.Key, entries...)
}

// CRLSignedAs issues a DER CRL naming issuer but signed with key. The issuer's key
// usage is widened for creation only, so CRLs from certificates lacking cRLSign
// can be produced.
func CRLSignedAs(tb testing.TB, issuer *x509.Certificate, key crypto.Signer, entries ...Revoked) []byte {
	tb.Helper()
	issuerCopy := *issuer
	issuerCopy.KeyUsage |= x509.KeyUsageCRLSign
	if len(issuerCopy.SubjectKeyId) == 0 {
		issuerCopy.SubjectKeyId = []byte{1, 2, 3, 4}
	}
	// CreateRevocationList rejects a key that does not match the issuer.
	issuerCopy.PublicKey = key.Public()

	now := time.Now()
	tmpl := &x509.RevocationList{
		Number:     NextSerial(),
		ThisUpdate: now.Add(-time.Minute),
		NextUpdate: now.Add(24 * time.Hour),
	}
	raw := slices.ContainsFunc(entries, func(e Revoked) bool { return len(e.RawExtensions) > 0 })
	for _, e := range entries {
		if raw {
			tmpl.RevokedCertificates = append(tmpl.RevokedCertificates, pkix.RevokedCertificate{ //nolint:staticcheck // raw path
				SerialNumber:   e.Serial,
				RevocationTime: e.At,
				Extensions:     e.RawExtensions,
			})
			continue
		}
		tmpl.RevokedCertificateEntries = append(tmpl.RevokedCertificateEntries, x509.RevocationListEntry{
			SerialNumber:   e.Serial,
			RevocationTime: e.At,
			ReasonCode:     e.Reason,
		})
	}

	der, err := x509.CreateRevocationList(rand.Reader, tmpl, &issuerCopy, key)
	if err != nil {
		tb.Fatalf("create CRL: %v", err)
	}
	return der
}

// MinutePrecisionCRL issues a CRL signed by i whose thisUpdate is a UTCTime
// without seconds. Parsers accept it, but decoding and marshalling it again
// adds the seconds and breaks the signature.
func (i *Issued) MinutePrecisionCRL(tb testing.TB) []byte {
	tb.Helper()
	var crl struct {
		TBS       asn1.RawValue
		Algorithm asn1.RawValue
		Signature asn1.BitString
	}
	if _, err := asn1.Unmarshal(i.CRL(tb), &crl); err != nil {
		tb.Fatalf("parse CRL: %v", err)
	}

	// version, signature, issuer, thisUpdate, ...
	var fields []byte
	rest := crl.TBS.Bytes
	for n := 0; len(rest) > 0; n++ {
		var f asn1.RawValue
		var err error
		if rest, err = asn1.Unmarshal(rest, &f); err != nil {
			tb.Fatalf("parse TBSCertList: %v", err)
		}
		if n == 3 {
			stamp := time.Now().Add(-time.Minute).UTC().Format("0601021504Z")
			f.FullBytes, err = asn1.Marshal(asn1.RawValue{Tag: asn1.TagUTCTime, Bytes: []byte(stamp)})
			if err != nil {
				tb.Fatalf("encode thisUpdate: %v", err)
			}
		}
		fields = append(fields, f.FullBytes...)
	}
	tbs, err := asn1.Marshal(asn1.RawValue{Tag: asn1.TagSequence, IsCompound: true, Bytes: fields})
	if err != nil {
		tb.Fatalf("encode TBSCertList: %v", err)
	}

	digest := sha256.Sum256(tbs)
	sig, err := i.Key.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		tb.Fatalf("sign CRL: %v", err)
	}
	crl.TBS = asn1.RawValue{FullBytes: tbs}
	crl.Signature = asn1.BitString{Bytes: sig, BitLength: 8 * len(sig)}
	der, err := asn1.Marshal(crl)
	if err != nil {
		tb.Fatalf("encode CRL: %v", err)
	}
	return der
}

// signedDataASN1 mirrors SignedData with every field kept raw.
type signedDataASN1 struct {
	Version          int
	DigestAlgorithms []asn1.RawValue `asn1:"set"`
	ContentInfo      asn1.RawValue
	Certificates     []asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             []asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      []asn1.RawValue `asn1:"set"`
}

type contentInfoASN1 struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// WithCRLs places crls, byte for byte, in the crls field of a DER SignedData
// ContentInfo. The signer's signature does not cover that field.
func WithCRLs(tb testing.TB, der []byte, crls ...[]byte) []byte {
	tb.Helper()
	if len(crls) == 0 {
		return der
	}
	var ci contentInfoASN1
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		tb.Fatalf("parse ContentInfo: %v", err)
	}
	var sd signedDataASN1
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		tb.Fatalf("parse SignedData: %v", err)
	}
	for _, c := range crls {
		sd.CRLs = append(sd.CRLs, asn1.RawValue{FullBytes: c})
	}
	inner, err := asn1.Marshal(sd)
	if err != nil {
		tb.Fatalf("encode SignedData: %v", err)
	}
	ci.Content = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: inner}
	out, err := asn1.Marshal(ci)
	if err != nil {
		tb.Fatalf("encode ContentInfo: %v", err)
	}
	return out
}

// OCSPOptions tunes an OCSP response.
type OCSPOptions struct {
	// Status is ocsp.Good, ocsp.Revoked or ocsp.Unknown.
	Status    int
	RevokedAt time.Time
	Reason    int
	// Signer signs the response; nil means the issuer signs directly.
	Signer *Issued
	// Embed includes the signer certificate in the response.
	Embed bool
	// Serial overrides the serial placed in the certID.
	Serial *big.Int
}

// OCSPResponse builds a DER OCSP response about target issued under issuer.
func OCSPResponse(tb testing.TB, issuer *Issued, target *x509.Certificate, opts OCSPOptions) []byte {
	tb.Helper()
	signer := opts.Signer
	if signer == nil {
		signer = issuer
	}
	serial := target.SerialNumber
	if opts.Serial != nil {
		serial = opts.Serial
	}

	now := time.Now()
	tmpl := ocsp.Response{
		Status:           opts.Status,
		SerialNumber:     serial,
		ThisUpdate:       now.Add(-time.Minute),
		NextUpdate:       now.Add(time.Hour),
		RevokedAt:        opts.RevokedAt,
		RevocationReason: opts.Reason,
	}
	if opts.Embed {
		tmpl.Certificate = signer.Cert
	}

	der, err := ocsp.CreateResponse(issuer.Cert, signer.Cert, tmpl, signer.Key)
	if err != nil {
		tb.Fatalf("create OCSP response: %v", err)
	}
	return der
}

type messageImprint struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashedMessage []byte
}

type tstInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint messageImprint
	SerialNumber   *big.Int
	GenTime        time.Time `asn1:"generalized"`
}

// Timestamp issues an RFC 3161 token over the SHA-256 digest of data.
func Timestamp(tb testing.TB, tsa *Issued, data []byte, genTime time.Time) []byte {
	tb.Helper()
	digest := sha256.Sum256(data)
	info := tstInfo{
		Version: 1,
		Policy:  asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1},
		MessageImprint: messageImprint{
			HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: OIDSHA256},
			HashedMessage: digest[:],
		},
		SerialNumber: NextSerial(),
		GenTime:      genTime.UTC().Truncate(time.Second),
	}
	content, err := asn1.Marshal(info)
	if err != nil {
		tb.Fatalf("marshal TSTInfo: %v", err)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		tb.Fatalf("new signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	sd.GetSignedData().ContentInfo.ContentType = oidTSTInfo
	if err := sd.AddSigner(tsa.Cert, tsa.Key, pkcs7.SignerInfoConfig{}); err != nil {
		tb.Fatalf("add TSA signer: %v", err)
	}
	der, err := sd.Finish()
	if err != nil {
		tb.Fatalf("finish timestamp: %v", err)
	}
	return der
}

// CMSOptions tunes a CMS signature.
type CMSOptions struct {
	// Extra certificates embedded next to the signer.
	Certificates []*x509.Certificate
	// SignedAttributes and UnsignedAttributes are appended to the signer info.
	SignedAttributes   []pkcs7.Attribute
	UnsignedAttributes []pkcs7.Attribute
	// CRLs are DER CRLs placed in the SignedData crls field.
	CRLs [][]byte
	// Detached leaves the content out of the structure.
	Detached bool
	// Stages run after signing, in order. Each receives the DER SignedData
	// built so far and returns unsigned attributes to add, which lets tests
	// attach timestamps over the signature value or the archived structure.
	Stages []func(current []byte) []pkcs7.Attribute
}

// CMS signs content with signer and returns the DER SignedData.
func CMS(tb testing.TB, signer *Issued, content []byte, opts CMSOptions) []byte {
	tb.Helper()
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		tb.Fatalf("new signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(signer.Cert, signer.Key, pkcs7.SignerInfoConfig{
		ExtraSignedAttributes:   opts.SignedAttributes,
		ExtraUnsignedAttributes: opts.UnsignedAttributes,
	}); err != nil {
		tb.Fatalf("add signer: %v", err)
	}
	for _, c := range opts.Certificates {
		sd.AddCertificate(c)
	}
	if opts.Detached {
		sd.Detach()
	}
	der, err := sd.Finish()
	if err != nil {
		tb.Fatalf("finish CMS: %v", err)
	}
	der = WithCRLs(tb, der, opts.CRLs...)

	unsigned := append([]pkcs7.Attribute(nil), opts.UnsignedAttributes...)
	for _, stage := range opts.Stages {
		unsigned = append(unsigned, stage(der)...)
		if err := sd.GetSignedData().SignerInfos[0].SetUnauthenticatedAttributes(unsigned); err != nil {
			tb.Fatalf("set unsigned attributes: %v", err)
		}
		if der, err = sd.Finish(); err != nil {
			tb.Fatalf("finish CMS stage: %v", err)
		}
		der = WithCRLs(tb, der, opts.CRLs...)
	}
	return der
}

// BasicOCSP extracts the BasicOCSPResponse from a DER OCSPResponse, the form
// in which CAdES revocation values carry OCSP data.
func BasicOCSP(tb testing.TB, der []byte) []byte {
	tb.Helper()
	var envelope struct {
		Status   asn1.Enumerated
		Response struct {
			ResponseType asn1.ObjectIdentifier
			Response     []byte
		} `asn1:"explicit,tag:0,optional"`
	}
	if _, err := asn1.Unmarshal(der, &envelope); err != nil {
		tb.Fatalf("parse OCSP envelope: %v", err)
	}
	return envelope.Response.Response
}

// TimestampAttribute wraps an RFC 3161 token as a CMS attribute value.
func TimestampAttribute(oid asn1.ObjectIdentifier, tst []byte) pkcs7.Attribute {
	return pkcs7.Attribute{Type: oid, Value: asn1.RawValue{FullBytes: tst}}
}
