// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package trust provides the certificate sources a validation run draws trust
// anchors and adjunct certificates from: in-memory lists, PEM files, PKCS#12
// trust stores, watched directories and lazily downloaded remote bundles.
package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"

	"software.sslmate.com/src/go-pkcs12"

	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// ErrNoCertificates is returned when an input yields no certificate.
var ErrNoCertificates = errors.New("trust: no certificates found")

// CertificateAndContext is a certificate with the context it was obtained in.
type CertificateAndContext struct {
	Certificate *x509.Certificate
	Source      token.Source
	Services    []token.ServiceInfo
}

// CertificateSource is a backing store of trusted or adjunct certificates.
type CertificateSource interface {
	// CertificatesBySubject returns the entries whose subject canonicalizes
	// to name (see token.CanonicalName).
	CertificatesBySubject(name string) []CertificateAndContext
	// Certificates returns every entry.
	Certificates() []CertificateAndContext
}

// RemoteCertificateSource answers subject lookups lazily, typically over the
// network. Results are merged into the caller's pool.
type RemoteCertificateSource interface {
	Get(ctx context.Context, subjectName []byte) ([]CertificateAndContext, error)
}

// ListSource is an in-memory [CertificateSource].
//
// Thread Safety: Safe for concurrent use.
type ListSource struct {
	source token.Source

	mu        sync.RWMutex
	entries   []CertificateAndContext
	bySubject map[string][]int
}

// NewListSource returns a source tagging every certificate with source.
func NewListSource(source token.Source, certs ...*x509.Certificate) *ListSource {
	s := &ListSource{source: source, bySubject: make(map[string][]int)}
	for _, c := range certs {
		s.Add(c)
	}
	return s
}

// Add appends cert.
func (s *ListSource) Add(cert *x509.Certificate, services ...token.ServiceInfo) {
	if cert == nil {
		return
	}
	name := token.CanonicalName(cert.RawSubject)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.bySubject[name] {
		if s.entries[i].Certificate.Equal(cert) {
			s.entries[i].Services = append(s.entries[i].Services, services...)
			return
		}
	}
	s.bySubject[name] = append(s.bySubject[name], len(s.entries))
	s.entries = append(s.entries, CertificateAndContext{Certificate: cert, Source: s.source, Services: services})
}

func (s *ListSource) CertificatesBySubject(name string) []CertificateAndContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.bySubject[name]
	out := make([]CertificateAndContext, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i])
	}
	return out
}

func (s *ListSource) Certificates() []CertificateAndContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CertificateAndContext(nil), s.entries...)
}

// Len returns the number of entries.
func (s *ListSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LoadPEMFiles reads PEM, DER or PKCS#7 certificate files into a ListSource.
func LoadPEMFiles(source token.Source, paths ...string) (*ListSource, error) {
	codec := x509certs.New()
	s := NewListSource(source)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("trust: read %s: %w", p, err)
		}
		certs, err := codec.DecodeCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("trust: decode %s: %w", p, err)
		}
		for _, c := range certs {
			s.Add(c)
		}
	}
	if s.Len() == 0 && len(paths) > 0 {
		return nil, ErrNoCertificates
	}
	return s, nil
}

// LoadKeyStore reads a PKCS#12 file. Java-style trust stores are read with
// DecodeTrustStore; a key store holding a private key contributes its
// certificate chain instead.
//
// Parameters:
//   - path: Location of the .p12 / .pfx file
//   - password: Store password (may be empty)
//   - source: Source tag, usually token.SourceTrustStore
//
// Returns:
//   - *ListSource: Source holding every certificate in the store
//   - error: Read or decode failure, or [ErrNoCertificates]
func LoadKeyStore(path, password string, source token.Source) (*ListSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trust: read %s: %w", path, err)
	}

	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		_, leaf, chain, chainErr := pkcs12.DecodeChain(data, password)
		if chainErr != nil {
			return nil, fmt.Errorf("trust: decode %s: %w", path, errors.Join(err, chainErr))
		}
		certs = append([]*x509.Certificate{leaf}, chain...)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}
	return NewListSource(source, certs...), nil
}

// Multi combines several sources. Lookups visit the sources in order.
type Multi []CertificateSource

func (m Multi) CertificatesBySubject(name string) []CertificateAndContext {
	var out []CertificateAndContext
	for _, s := range m {
		out = append(out, s.CertificatesBySubject(name)...)
	}
	return out
}

func (m Multi) Certificates() []CertificateAndContext {
	var out []CertificateAndContext
	for _, s := range m {
		out = append(out, s.Certificates()...)
	}
	return out
}
