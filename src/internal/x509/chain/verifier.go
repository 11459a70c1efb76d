// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"context"
	"crypto/x509"
	"sync"
	"time"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/metrics"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/pool"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/revocation"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/trust"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

// IssuerFetcher retrieves candidate issuer certificates over the network.
// [fetch.AIAFetcher] implements it.
type IssuerFetcher interface {
	FetchIssuers(ctx context.Context, cert *x509.Certificate) ([]*x509.Certificate, error)
}

// Policy holds the behavior switches of a validation run.
type Policy struct {
	// ClimbRevocationSigners pushes each accepted CRL or OCSP response onto
	// the worklist, so the chain of its signer is resolved and checked too.
	ClimbRevocationSigners bool
	// CrossCheckOffline consults the signature's embedded revocation data
	// even after a definite online answer. A contradicting embedded answer
	// is recorded as a warning and never replaces the online one.
	CrossCheckOffline bool
	// ValidationTime is the time expiry is judged at; zero means now.
	ValidationTime time.Time
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{ClimbRevocationSigners: true, CrossCheckOffline: true}
}

// Verifier holds the collaborators shared by validation contexts: trust
// sources, network fetchers, online revocation sources, metrics and logging.
//
// A Verifier is safe for concurrent use by many contexts. Certificates from
// its trust and adjunct sources are parsed once into a base pool; each
// context merges it into its own pool and gets fresh tokens, so notes and
// issuer resolutions live only as long as the context that made them.
type Verifier struct {
	trusted trust.CertificateSource
	adjunct trust.CertificateSource
	remote  trust.RemoteCertificateSource
	aia     IssuerFetcher

	ocspSource revocation.OCSPSource
	crlSource  revocation.CRLSource
	online     revocation.Resolver

	policy  Policy
	metrics metrics.Recorder
	log     logger.Logger

	mu   sync.Mutex
	base *pool.CertificatePool
}

// Option configures a [Verifier].
type Option func(*Verifier)

// WithAdjunct adds a source of untrusted helper certificates, such as
// intermediates supplied next to the certificate under test.
func WithAdjunct(src trust.CertificateSource) Option {
	return func(v *Verifier) { v.adjunct = src }
}

// WithRemoteSource sets the lazy trust source consulted when the pool holds
// no trusted issuer.
func WithRemoteSource(src trust.RemoteCertificateSource) Option {
	return func(v *Verifier) { v.remote = src }
}

// WithAIA enables issuer retrieval through Authority Information Access.
func WithAIA(f IssuerFetcher) Option {
	return func(v *Verifier) { v.aia = f }
}

// WithOCSPSource sets the online OCSP source.
func WithOCSPSource(src revocation.OCSPSource) Option {
	return func(v *Verifier) { v.ocspSource = src }
}

// WithCRLSource sets the online CRL source.
func WithCRLSource(src revocation.CRLSource) Option {
	return func(v *Verifier) { v.crlSource = src }
}

// WithPolicy replaces [DefaultPolicy].
func WithPolicy(p Policy) Option {
	return func(v *Verifier) { v.policy = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(v *Verifier) { v.metrics = rec }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// NewVerifier creates a Verifier trusting the certificates of trusted.
//
// Parameters:
//   - trusted: Trust anchors; nil means nothing is trusted and every chain
//     ends undetermined
//   - opts: Optional collaborators
//
// Returns:
//   - *Verifier: Ready to create contexts
func NewVerifier(trusted trust.CertificateSource, opts ...Option) *Verifier {
	v := &Verifier{trusted: trusted, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(v)
	}
	if v.metrics == nil {
		v.metrics = metrics.Nop()
	}
	v.log = logger.WithComponent(v.log, "validation")

	var ocspResolver, crlResolver revocation.Resolver
	if v.ocspSource != nil {
		ocspResolver = revocation.NewOCSPResolver(v.ocspSource, v.metrics, v.log)
	}
	if v.crlSource != nil {
		crlResolver = revocation.NewCRLResolver(v.crlSource, v.metrics, v.log)
	}
	v.online = revocation.NewCompositeResolver(ocspResolver, crlResolver)
	return v
}

// Policy returns the verifier's policy.
func (v *Verifier) Policy() Policy { return v.policy }

// Metrics returns the metrics recorder.
func (v *Verifier) Metrics() metrics.Recorder { return v.metrics }

// Refresh drops the base pool so the next context reloads the trust and
// adjunct sources, e.g. after a watched trust directory changed.
func (v *Verifier) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.base = nil
}

// basePool returns the shared pool of trusted and adjunct certificates,
// building it on first use.
func (v *Verifier) basePool() *pool.CertificatePool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.base != nil {
		return v.base
	}

	p := pool.New()
	for _, src := range []trust.CertificateSource{v.trusted, v.adjunct} {
		if src == nil {
			continue
		}
		for _, e := range src.Certificates() {
			p.GetInstanceWithServices(e.Certificate, e.Source, e.Services...)
		}
	}
	v.base = p
	return p
}
