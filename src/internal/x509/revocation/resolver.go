// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation

import (
	"context"
	"crypto/x509"
	"errors"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/metrics"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/pool"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

// Resolver produces a verified revocation token for cert issued by issuer.
//
// Resolve returns nil when no usable result exists; the reason is added as a
// note on cert. Certificates met while verifying the result, such as an
// embedded OCSP responder, are registered in p.
type Resolver interface {
	Resolve(ctx context.Context, p *pool.CertificatePool, cert, issuer *token.CertificateToken) token.RevocationToken
}

func outcome(status token.Status) string {
	switch status {
	case token.StatusGood:
		return metrics.OutcomeGood
	case token.StatusRevoked:
		return metrics.OutcomeRevoked
	default:
		return metrics.OutcomeUnknown
	}
}

// CRLResolver resolves status from a [CRLSource].
type CRLResolver struct {
	Source  CRLSource
	Metrics metrics.Recorder
	Log     logger.Logger
}

// NewCRLResolver creates a resolver over src.
func NewCRLResolver(src CRLSource, rec metrics.Recorder, log logger.Logger) *CRLResolver {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &CRLResolver{Source: src, Metrics: rec, Log: logger.WithComponent(log, "revocation")}
}

// Resolve accepts the first CRL found for cert that verifies under
// issuer's key, provided issuer carries the cRLSign key usage. Sources
// implementing [CRLCandidateSource] offer every candidate, newest first.
//
// Parameters:
//   - ctx: Context for cancellation of network lookups
//   - p: Unused by CRL resolution
//   - cert: Certificate whose status is wanted
//   - issuer: Verified issuer of cert
//
// Returns:
//   - token.RevocationToken: The verified CRL token, or nil
func (r *CRLResolver) Resolve(ctx context.Context, _ *pool.CertificatePool, cert, issuer *token.CertificateToken) token.RevocationToken {
	if r == nil || r.Source == nil || cert == nil || issuer == nil {
		return nil
	}

	found, err := r.lookup(ctx, cert.Certificate(), issuer.Certificate())
	switch {
	case err != nil:
		cert.AddNote("CRL lookup failed: %v", err)
		r.Metrics.RevocationChecked("crl", metrics.OutcomeError)
		return nil
	case len(found) == 0:
		r.Metrics.RevocationChecked("crl", metrics.OutcomeNotFound)
		return nil
	}

	var tok *token.CRLToken
	for _, cand := range found {
		if cand.IsSignedBy(issuer) {
			tok = cand
			break
		}
		cand.AddNote("signature does not verify under %s", issuer.ID())
	}
	if tok == nil {
		cert.AddNote("no CRL among %d candidates is signed by issuer %s", len(found), issuer.Certificate().Subject)
		r.Metrics.RevocationChecked("crl", metrics.OutcomeInvalid)
		return nil
	}
	if !issuer.CanSignCRL() {
		cert.AddNote("issuer %s is not allowed to sign CRLs", issuer.ID())
		r.Metrics.RevocationChecked("crl", metrics.OutcomeInvalid)
		return nil
	}

	r.Metrics.RevocationChecked("crl", outcome(tok.Status()))
	r.Log.Printf("%s: CRL status %s", cert.ID(), tok.Status())
	return tok
}

func (r *CRLResolver) lookup(ctx context.Context, cert, issuer *x509.Certificate) ([]*token.CRLToken, error) {
	if multi, ok := r.Source.(CRLCandidateSource); ok {
		return multi.FindCRLs(ctx, cert, issuer)
	}
	tok, err := r.Source.FindCRL(ctx, cert, issuer)
	if err != nil || tok == nil {
		return nil, err
	}
	return []*token.CRLToken{tok}, nil
}

// OCSPResolver resolves status from an [OCSPSource].
type OCSPResolver struct {
	Source  OCSPSource
	Metrics metrics.Recorder
	Log     logger.Logger
}

// NewOCSPResolver creates a resolver over src.
func NewOCSPResolver(src OCSPSource, rec metrics.Recorder, log logger.Logger) *OCSPResolver {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &OCSPResolver{Source: src, Metrics: rec, Log: logger.WithComponent(log, "revocation")}
}

// Resolve accepts the first OCSP response found for cert that is signed by
// issuer or by a responder certificate embedded in the response, issued by
// issuer and carrying the OCSPSigning extended key usage. Sources
// implementing [OCSPCandidateSource] offer every candidate, most recent
// first.
//
// Embedded responder certificates are registered in p with
// [token.SourceOCSPResponse], so the caller can validate them in turn.
func (r *OCSPResolver) Resolve(ctx context.Context, p *pool.CertificatePool, cert, issuer *token.CertificateToken) token.RevocationToken {
	if r == nil || r.Source == nil || cert == nil || issuer == nil {
		return nil
	}

	found, err := r.lookup(ctx, cert.Certificate(), issuer.Certificate())
	switch {
	case errors.Is(err, token.ErrNoMatchingResponse):
		cert.AddNote("OCSP response carries no entry for this certificate")
		r.Metrics.RevocationChecked("ocsp", metrics.OutcomeNotFound)
		return nil
	case err != nil:
		cert.AddNote("OCSP lookup failed: %v", err)
		r.Metrics.RevocationChecked("ocsp", metrics.OutcomeError)
		return nil
	case len(found) == 0:
		r.Metrics.RevocationChecked("ocsp", metrics.OutcomeNotFound)
		return nil
	}

	var tok *token.OCSPToken
	for _, cand := range found {
		if r.verifySigner(p, cand, issuer) {
			tok = cand
			break
		}
	}
	if tok == nil {
		cert.AddNote("OCSP response %s is signed neither by the issuer nor by a responder it authorized", found[0].ID())
		r.Metrics.RevocationChecked("ocsp", metrics.OutcomeInvalid)
		return nil
	}

	r.Metrics.RevocationChecked("ocsp", outcome(tok.Status()))
	r.Log.Printf("%s: OCSP status %s", cert.ID(), tok.Status())
	return tok
}

func (r *OCSPResolver) lookup(ctx context.Context, cert, issuer *x509.Certificate) ([]*token.OCSPToken, error) {
	if multi, ok := r.Source.(OCSPCandidateSource); ok {
		return multi.GetOCSPResponses(ctx, cert, issuer)
	}
	tok, err := r.Source.GetOCSPResponse(ctx, cert, issuer)
	if err != nil || tok == nil {
		return nil, err
	}
	return []*token.OCSPToken{tok}, nil
}

func (r *OCSPResolver) verifySigner(p *pool.CertificatePool, tok *token.OCSPToken, issuer *token.CertificateToken) bool {
	if tok.IsSignedBy(issuer) {
		return true
	}
	for _, c := range tok.Certificates() {
		responder := register(p, c)
		if responder == nil || !tok.IsSignedBy(responder) {
			continue
		}
		if !responder.IsSignedBy(issuer) {
			tok.AddNote("responder %s is not issued by %s", responder.ID(), issuer.ID())
			return false
		}
		if !responder.IsOCSPSigning() {
			tok.AddNote("responder %s lacks the OCSPSigning extended key usage", responder.ID())
			return false
		}
		return true
	}
	return false
}

func register(p *pool.CertificatePool, cert *x509.Certificate) *token.CertificateToken {
	if p != nil {
		return p.GetInstance(cert, token.SourceOCSPResponse)
	}
	tok, err := token.NewCertificate(cert)
	if err != nil {
		return nil
	}
	tok.AddSource(token.SourceOCSPResponse)
	return tok
}

// CompositeResolver asks OCSP first and falls back to CRL when OCSP yields
// nothing usable.
type CompositeResolver struct {
	OCSP Resolver
	CRL  Resolver
}

// NewCompositeResolver combines the two resolvers; either may be nil.
func NewCompositeResolver(ocspResolver, crlResolver Resolver) *CompositeResolver {
	return &CompositeResolver{OCSP: ocspResolver, CRL: crlResolver}
}

// Resolve returns the OCSP result when there is one, else the CRL result.
func (c *CompositeResolver) Resolve(ctx context.Context, p *pool.CertificatePool, cert, issuer *token.CertificateToken) token.RevocationToken {
	if c.OCSP != nil {
		if tok := c.OCSP.Resolve(ctx, p, cert, issuer); tok != nil {
			return tok
		}
	}
	if c.CRL != nil {
		return c.CRL.Resolve(ctx, p, cert, issuer)
	}
	return nil
}
