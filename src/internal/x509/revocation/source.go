// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"slices"
	"sync"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// CRLSource finds a CRL covering cert. A nil token with a nil error means
// nothing was found.
type CRLSource interface {
	FindCRL(ctx context.Context, cert, issuer *x509.Certificate) (*token.CRLToken, error)
}

// OCSPSource finds an OCSP response about cert issued by issuer. A nil token
// with a nil error means nothing was found.
type OCSPSource interface {
	GetOCSPResponse(ctx context.Context, cert, issuer *x509.Certificate) (*token.OCSPToken, error)
}

// CRLCandidateSource is a [CRLSource] that can hold several CRLs from the
// same issuer name. Resolvers try every candidate in order, so a newer CRL
// that fails verification does not hide an older valid one.
type CRLCandidateSource interface {
	CRLSource
	// FindCRLs returns every CRL whose issuer name matches, newest first.
	FindCRLs(ctx context.Context, cert, issuer *x509.Certificate) ([]*token.CRLToken, error)
}

// OCSPCandidateSource is the [OCSPSource] counterpart of [CRLCandidateSource].
type OCSPCandidateSource interface {
	OCSPSource
	// GetOCSPResponses returns every response matching cert, most recently
	// produced first.
	GetOCSPResponses(ctx context.Context, cert, issuer *x509.Certificate) ([]*token.OCSPToken, error)
}

// ListCRLSource searches a fixed set of DER CRLs, typically those embedded
// in a signature.
//
// Thread Safety: Safe for concurrent use.
type ListCRLSource struct {
	mu   sync.RWMutex
	crls [][]byte
}

// NewListCRLSource creates a source over crls.
func NewListCRLSource(crls ...[]byte) *ListCRLSource {
	s := &ListCRLSource{}
	s.Add(crls...)
	return s
}

// Add appends DER CRLs, skipping exact duplicates.
func (s *ListCRLSource) Add(crls ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range crls {
		if len(c) == 0 || s.containsLocked(c) {
			continue
		}
		s.crls = append(s.crls, bytes.Clone(c))
	}
}

func (s *ListCRLSource) containsLocked(c []byte) bool {
	for _, have := range s.crls {
		if bytes.Equal(have, c) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct CRLs held.
func (s *ListCRLSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.crls)
}

// FindCRL returns the most recent CRL whose issuer name matches the issuer
// of cert. Undecodable CRLs are reported only when nothing matched.
func (s *ListCRLSource) FindCRL(ctx context.Context, cert, issuer *x509.Certificate) (*token.CRLToken, error) {
	found, err := s.FindCRLs(ctx, cert, issuer)
	if len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindCRLs returns every CRL whose issuer name matches the issuer of cert,
// newest thisUpdate first. Undecodable CRLs are reported only when nothing
// matched.
func (s *ListCRLSource) FindCRLs(_ context.Context, cert, _ *x509.Certificate) ([]*token.CRLToken, error) {
	if cert == nil {
		return nil, token.ErrNilCertificate
	}
	s.mu.RLock()
	crls := s.crls
	s.mu.RUnlock()

	want := token.CanonicalName(cert.RawIssuer)
	var (
		found []*token.CRLToken
		errs  []error
	)
	for _, raw := range crls {
		tok, err := token.ParseCRL(raw, cert, "", token.OriginEmbedded)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if token.CanonicalName(tok.IssuerName()) == want {
			found = append(found, tok)
		}
	}
	if len(found) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	slices.SortStableFunc(found, func(a, b *token.CRLToken) int {
		return b.ThisUpdate().Compare(a.ThisUpdate())
	})
	return found, nil
}

// ListOCSPSource searches a fixed set of DER OCSP responses, typically those
// embedded in a signature.
//
// Thread Safety: Safe for concurrent use.
type ListOCSPSource struct {
	mu        sync.RWMutex
	responses [][]byte
}

// NewListOCSPSource creates a source over DER OCSPResponse structures.
func NewListOCSPSource(responses ...[]byte) *ListOCSPSource {
	s := &ListOCSPSource{}
	s.Add(responses...)
	return s
}

// Add appends DER OCSPResponse structures, skipping exact duplicates.
func (s *ListOCSPSource) Add(responses ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range responses {
		if len(r) == 0 {
			continue
		}
		dup := false
		for _, have := range s.responses {
			if bytes.Equal(have, r) {
				dup = true
				break
			}
		}
		if !dup {
			s.responses = append(s.responses, bytes.Clone(r))
		}
	}
}

// Len returns the number of distinct responses held.
func (s *ListOCSPSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responses)
}

// GetOCSPResponse returns the most recently produced response carrying a
// single response for cert under issuer.
func (s *ListOCSPSource) GetOCSPResponse(ctx context.Context, cert, issuer *x509.Certificate) (*token.OCSPToken, error) {
	found, err := s.GetOCSPResponses(ctx, cert, issuer)
	if len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// GetOCSPResponses returns every response carrying a single response for
// cert under issuer, most recently produced first.
func (s *ListOCSPSource) GetOCSPResponses(_ context.Context, cert, issuer *x509.Certificate) ([]*token.OCSPToken, error) {
	if cert == nil || issuer == nil {
		return nil, token.ErrNilCertificate
	}
	s.mu.RLock()
	responses := s.responses
	s.mu.RUnlock()

	var (
		found []*token.OCSPToken
		errs  []error
	)
	for _, raw := range responses {
		tok, err := token.ParseOCSP(raw, cert, issuer, "", token.OriginEmbedded)
		if errors.Is(err, token.ErrNoMatchingResponse) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found = append(found, tok)
	}
	if len(found) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	slices.SortStableFunc(found, func(a, b *token.OCSPToken) int {
		return b.ProducedAt().Compare(a.ProducedAt())
	})
	return found, nil
}

var (
	_ CRLCandidateSource  = (*ListCRLSource)(nil)
	_ OCSPCandidateSource = (*ListOCSPSource)(nil)
)
