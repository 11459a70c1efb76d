// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package pool provides the deduplicating certificate registry a validation
// run searches for issuers.
package pool

import (
	"crypto/sha256"
	"crypto/x509"
	"sync"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// CertificatePool maps subject names to certificate tokens.
//
// Byte-identical certificates always resolve to the same *token.CertificateToken,
// so callers may compare tokens by pointer. Lookups by name return tokens in
// insertion order.
//
// Thread Safety: all methods are safe for concurrent use.
type CertificatePool struct {
	mu        sync.RWMutex
	byDigest  map[[sha256.Size]byte]*token.CertificateToken
	bySubject map[string][]*token.CertificateToken
	order     []*token.CertificateToken
}

// New creates an empty pool.
func New() *CertificatePool {
	return &CertificatePool{
		byDigest:  make(map[[sha256.Size]byte]*token.CertificateToken),
		bySubject: make(map[string][]*token.CertificateToken),
	}
}

// GetInstance returns the canonical token for cert, creating it on first
// sight, and tags it with source.
//
// Parameters:
//   - cert: Parsed certificate; nil yields nil
//   - source: How the certificate was obtained
//
// Returns:
//   - The pooled token. Repeated calls with byte-identical certificates return
//     the same pointer; each call adds source to the token's sources.
func (p *CertificatePool) GetInstance(cert *x509.Certificate, source token.Source) *token.CertificateToken {
	return p.GetInstanceWithServices(cert, source)
}

// GetInstanceWithServices is [CertificatePool.GetInstance] that also attaches
// trust service information.
func (p *CertificatePool) GetInstanceWithServices(cert *x509.Certificate, source token.Source, services ...token.ServiceInfo) *token.CertificateToken {
	if cert == nil {
		return nil
	}
	key := sha256.Sum256(cert.Raw)

	p.mu.RLock()
	tok, ok := p.byDigest[key]
	p.mu.RUnlock()

	if !ok {
		p.mu.Lock()
		if tok, ok = p.byDigest[key]; !ok {
			tok, _ = token.NewCertificate(cert)
			p.insertLocked(key, tok)
		}
		p.mu.Unlock()
	}

	tok.AddSource(source)
	tok.AddServices(services...)
	return tok
}

func (p *CertificatePool) insertLocked(key [sha256.Size]byte, tok *token.CertificateToken) {
	p.byDigest[key] = tok
	name := token.CanonicalName(tok.SubjectName())
	p.bySubject[name] = append(p.bySubject[name], tok)
	p.order = append(p.order, tok)
}

// Get returns the tokens whose subject canonicalizes to name, in insertion order.
func (p *CertificatePool) Get(name string) []*token.CertificateToken {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*token.CertificateToken(nil), p.bySubject[name]...)
}

// GetByRawName is [CertificatePool.Get] for a DER encoded name.
func (p *CertificatePool) GetByRawName(raw []byte) []*token.CertificateToken {
	if len(raw) == 0 {
		return nil
	}
	return p.Get(token.CanonicalName(raw))
}

// Contains reports whether tok is the pooled instance for its certificate.
func (p *CertificatePool) Contains(tok *token.CertificateToken) bool {
	if tok == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byDigest[sha256.Sum256(tok.Certificate().Raw)] == tok
}

// Merge absorbs every certificate of other. Certificates missing locally get
// a fresh token carrying the other token's sources and services, so issuer
// caches, signature states and notes never cross from one pool to another.
// Certificates already present keep their local token, which gains the other
// token's sources and services.
func (p *CertificatePool) Merge(other *CertificatePool) {
	if other == nil || other == p {
		return
	}
	for _, tok := range other.Certificates() {
		key := sha256.Sum256(tok.Certificate().Raw)

		p.mu.Lock()
		local, ok := p.byDigest[key]
		if !ok {
			local, _ = token.NewCertificate(tok.Certificate())
			p.insertLocked(key, local)
		}
		p.mu.Unlock()

		for _, s := range tok.Sources() {
			local.AddSource(s)
		}
		local.AddServices(tok.Services()...)
	}
}

// Certificates returns all tokens in insertion order.
func (p *CertificatePool) Certificates() []*token.CertificateToken {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*token.CertificateToken(nil), p.order...)
}

// Len returns the number of distinct certificates.
func (p *CertificatePool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}
