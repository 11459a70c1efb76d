// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/metrics"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/signature"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/pool"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/revocation"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

var (
	// ErrNilVerifier is returned when a context is created without a verifier.
	ErrNilVerifier = errors.New("x509chain: verifier is nil")
	// ErrNilSignature is returned when a signature context is created without a signature.
	ErrNilSignature = errors.New("x509chain: signature is nil")
	// ErrNilCertificate is returned when there is no certificate to seed the walk with.
	ErrNilCertificate = errors.New("x509chain: certificate is nil")
	// ErrUnsupportedToken is returned when the walk meets a token kind it
	// has no dispatch for.
	ErrUnsupportedToken = errors.New("x509chain: unsupported token kind")
)

type visitState int

const (
	visitInProgress visitState = iota + 1
	visitDone
)

// frame is one worklist entry. A token is pushed once; its first pass
// resolves the issuer and pushes it above, so the issuer chain settles before
// the second pass checks revocation.
type frame struct {
	tok     token.Token
	climbed bool
}

// ValidationContext is one validation run over a signature or over ad-hoc
// certificates.
//
// A context owns its certificate pool, seeded from the verifier's base pool,
// and its result sets. It is not safe for concurrent use; run independent
// contexts in parallel instead (see [ValidateAll]).
type ValidationContext struct {
	v   *Verifier
	sig signature.AdvancedSignature
	log logger.Logger

	runID   string
	pool    *pool.CertificatePool
	offline revocation.Resolver
	hasOff  bool

	state   map[token.Token]visitState
	stack   []frame
	methods map[*token.CertificateToken]string

	certs      []*token.CertificateToken
	revs       []token.RevocationToken
	revIDs     map[string]bool
	timestamps []*token.TimestampToken
	outcomes   map[*token.CertificateToken]*Outcome
}

// NewCertificateContext creates a context for standalone certificate checks.
func NewCertificateContext(v *Verifier) (*ValidationContext, error) {
	if v == nil {
		return nil, ErrNilVerifier
	}
	return newContext(v, nil), nil
}

// NewSignatureContext creates a context validating the certificates,
// revocation data and timestamps of sig.
//
// The certificates embedded in sig join the context pool, and its embedded
// CRLs and OCSP responses back the offline revocation fallback.
//
// Parameters:
//   - v: Shared verifier
//   - sig: Parsed signature
//
// Returns:
//   - *ValidationContext: Ready to run [ValidationContext.ValidateSignature]
//   - error: [ErrNilVerifier] or [ErrNilSignature]
func NewSignatureContext(v *Verifier, sig signature.AdvancedSignature) (*ValidationContext, error) {
	if v == nil {
		return nil, ErrNilVerifier
	}
	if sig == nil {
		return nil, ErrNilSignature
	}
	c := newContext(v, sig)

	for _, cert := range sig.Certificates() {
		c.pool.GetInstance(cert, token.SourceSignature)
	}

	crls := revocation.NewListCRLSource(sig.CRLs()...)
	responses := revocation.NewListOCSPSource(sig.OCSPResponses()...)
	c.hasOff = crls.Len() > 0 || responses.Len() > 0
	c.offline = revocation.NewCompositeResolver(
		revocation.NewOCSPResolver(responses, v.metrics, v.log),
		revocation.NewCRLResolver(crls, v.metrics, v.log),
	)
	return c, nil
}

func newContext(v *Verifier, sig signature.AdvancedSignature) *ValidationContext {
	c := &ValidationContext{
		v:        v,
		sig:      sig,
		runID:    uuid.NewString(),
		pool:     pool.New(),
		state:    make(map[token.Token]visitState),
		methods:  make(map[*token.CertificateToken]string),
		revIDs:   make(map[string]bool),
		outcomes: make(map[*token.CertificateToken]*Outcome),
	}
	c.log = v.log
	c.pool.Merge(v.basePool())
	return c
}

// RunID identifies the run in logs and reports.
func (c *ValidationContext) RunID() string { return c.runID }

// Pool returns the context's certificate pool.
func (c *ValidationContext) Pool() *pool.CertificatePool { return c.pool }

// Signature returns the signature under validation, or nil for a
// certificate context.
func (c *ValidationContext) Signature() signature.AdvancedSignature { return c.sig }

// ValidateCertificate walks the chain of cert until every reachable token is
// processed.
//
// Parameters:
//   - ctx: Context for cancellation of network lookups
//   - cert: Certificate to validate
//   - intermediates: Untrusted helper certificates joining the pool
//
// Returns:
//   - *token.CertificateToken: The pooled token for cert
//   - error: [ErrNilCertificate], a context error, or [ErrUnsupportedToken];
//     missing issuers and revocation data are never errors
func (c *ValidationContext) ValidateCertificate(ctx context.Context, cert *x509.Certificate, intermediates ...*x509.Certificate) (*token.CertificateToken, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	for _, inter := range intermediates {
		c.pool.GetInstance(inter, token.SourceAdjunct)
	}

	start := time.Now()
	defer func() { c.v.metrics.ContextCompleted(time.Since(start)) }()

	tok := c.pool.GetInstance(cert, token.SourceOther)
	c.push(tok)
	if err := c.run(ctx); err != nil {
		return tok, err
	}
	c.log.Printf("run %s: %d certificates, %d revocation tokens", c.runID, len(c.certs), len(c.revs))
	return tok, nil
}

// ValidateSignature walks the chain of the signing certificate, then checks
// every timestamp of the signature against the data it covers and walks the
// chains of the timestamp signers.
func (c *ValidationContext) ValidateSignature(ctx context.Context) (*token.CertificateToken, error) {
	if c.sig == nil {
		return nil, ErrNilSignature
	}
	signer := c.sig.SigningCertificate()
	if signer == nil {
		return nil, fmt.Errorf("%w: signature carries no signing certificate", ErrNilCertificate)
	}

	start := time.Now()
	defer func() { c.v.metrics.ContextCompleted(time.Since(start)) }()

	tok := c.pool.GetInstance(signer, token.SourceSignature)
	c.push(tok)
	if err := c.run(ctx); err != nil {
		return tok, err
	}

	for _, ts := range c.sig.Timestamps() {
		c.prepareTimestamp(ts)
		c.push(ts)
	}
	if err := c.run(ctx); err != nil {
		return tok, err
	}

	c.log.Printf("run %s: %d certificates, %d revocation tokens, %d timestamps",
		c.runID, len(c.certs), len(c.revs), len(c.timestamps))
	return tok, nil
}

func (c *ValidationContext) prepareTimestamp(ts *token.TimestampToken) {
	for _, cert := range ts.Certificates() {
		c.pool.GetInstance(cert, token.SourceTimestamp)
	}
	data, err := c.sig.TimestampData(ts.Type())
	if err != nil {
		ts.AddNote("covered data unavailable: %v", err)
		return
	}
	if !ts.MatchData(data) {
		ts.AddNote("message imprint does not match the %s data", ts.Type())
	}
}

// push adds tok to the worklist unless it was seen before.
func (c *ValidationContext) push(tok token.Token) {
	if tok == nil {
		return
	}
	if _, seen := c.state[tok]; seen {
		return
	}
	c.state[tok] = visitInProgress
	if cert, ok := tok.(*token.CertificateToken); ok {
		c.certs = append(c.certs, cert)
	}
	c.stack = append(c.stack, frame{tok: tok})
}

// run drains the worklist depth first.
func (c *ValidationContext) run(ctx context.Context) error {
	for len(c.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("x509chain: run %s interrupted: %w", c.runID, err)
		}

		top := &c.stack[len(c.stack)-1]
		if !top.climbed {
			top.climbed = true
			tok := top.tok
			if err := checkKind(tok); err != nil {
				return err
			}
			if issuer := c.resolveIssuer(ctx, tok); issuer != nil {
				c.push(issuer)
			}
			continue
		}

		tok := top.tok
		c.stack = c.stack[:len(c.stack)-1]
		c.finish(ctx, tok)
		c.state[tok] = visitDone
	}
	return nil
}

func checkKind(tok token.Token) error {
	switch tok.(type) {
	case *token.CertificateToken, *token.CRLToken, *token.OCSPToken, *token.TimestampToken:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, tok.Kind())
	}
}

func (c *ValidationContext) finish(ctx context.Context, tok token.Token) {
	switch t := tok.(type) {
	case *token.CertificateToken:
		c.checkRevocation(ctx, t)
	case *token.TimestampToken:
		c.timestamps = append(c.timestamps, t)
	case *token.CRLToken, *token.OCSPToken:
		// recorded when accepted by a resolver
	}
}

// resolveIssuer finds the issuer of tok: cached issuer, pool, remote trust
// source, then AIA. The first candidate that verifies wins.
func (c *ValidationContext) resolveIssuer(ctx context.Context, tok token.Token) *token.CertificateToken {
	cert, isCert := tok.(*token.CertificateToken)
	if isCert && cert.IsTrusted() && !cert.IsSelfSigned() {
		return nil
	}

	if issuer := tok.Issuer(); issuer != nil {
		c.settled(tok, metrics.MethodCached)
		return issuer
	}

	candidates := c.candidates(tok)
	if c.v.remote != nil && !anyTrusted(candidates) {
		if c.fetchRemote(ctx, tok) {
			candidates = c.candidates(tok)
		}
	}
	for _, cand := range candidates {
		if cand == tok {
			continue
		}
		if tok.IsSignedBy(cand) {
			method := metrics.MethodPool
			if cand.HasSource(token.SourceRemote) {
				method = metrics.MethodRemote
			}
			c.settled(tok, method)
			return cand
		}
	}

	if isCert && c.v.aia != nil && len(cert.Certificate().IssuingCertificateURL) > 0 {
		if issuer := c.fetchAIA(ctx, cert); issuer != nil {
			c.settled(tok, metrics.MethodAIA)
			return issuer
		}
	}

	tok.AddNote("no issuer found")
	c.settled(tok, metrics.MethodNone)
	return nil
}

func (c *ValidationContext) settled(tok token.Token, method string) {
	c.v.metrics.IssuerResolved(method)
	if cert, ok := tok.(*token.CertificateToken); ok {
		c.methods[cert] = method
	}
}

// candidates returns the pool members named as issuer of tok. Tokens that do
// not name their signer (OCSP by key hash, timestamps without an embedded
// TSA certificate) are matched against the whole pool.
func (c *ValidationContext) candidates(tok token.Token) []*token.CertificateToken {
	if name := tok.IssuerName(); len(name) > 0 {
		return c.pool.GetByRawName(name)
	}
	return c.pool.Certificates()
}

func anyTrusted(candidates []*token.CertificateToken) bool {
	for _, cand := range candidates {
		if cand.IsTrusted() {
			return true
		}
	}
	return false
}

func (c *ValidationContext) fetchRemote(ctx context.Context, tok token.Token) bool {
	name := tok.IssuerName()
	if len(name) == 0 {
		return false
	}
	found, err := c.v.remote.Get(ctx, name)
	if err != nil {
		tok.AddNote("remote trust lookup failed: %v", err)
		return false
	}
	for _, e := range found {
		c.pool.GetInstanceWithServices(e.Certificate, e.Source, e.Services...)
	}
	return len(found) > 0
}

func (c *ValidationContext) fetchAIA(ctx context.Context, cert *token.CertificateToken) *token.CertificateToken {
	fetched, err := c.v.aia.FetchIssuers(ctx, cert.Certificate())
	if err != nil {
		cert.AddNote("AIA retrieval failed: %v", err)
	}
	for _, f := range fetched {
		cand := c.pool.GetInstance(f, token.SourceAIA)
		if cand != cert && cert.IsSignedBy(cand) {
			return cand
		}
	}
	if len(fetched) > 0 {
		cert.AddNote("none of %d AIA certificates signed this certificate", len(fetched))
	}
	return nil
}

// checkRevocation records the outcome of cert. Its issuer chain is settled
// by the time this runs.
func (c *ValidationContext) checkRevocation(ctx context.Context, cert *token.CertificateToken) {
	issuer := cert.Issuer()
	out := &Outcome{Issuer: issuer, IssuerMethod: c.methods[cert]}
	c.outcomes[cert] = out

	switch {
	case cert.IsTrusted():
		out.Status = StatusTrusted
		return
	case cert.IsSelfSigned():
		out.Status = StatusSelfSigned
		return
	case cert.HasOCSPNoCheck() && cert.IsOCSPSigning():
		cert.AddNote("revocation check skipped: OCSP responder certificate carries id-pkix-ocsp-nocheck")
		out.Status = StatusNotApplicable
		return
	case issuer == nil:
		out.Status = StatusUndetermined
		return
	case cert.IsExpiredAt(c.validationTime()) && !c.expiredCheckAllowed(cert, issuer):
		cert.AddNote("revocation check skipped: certificate expired on %s", cert.Certificate().NotAfter.Format(time.RFC3339))
		out.Status = StatusExpired
		return
	}

	if c.v.ocspSource != nil || c.v.crlSource != nil {
		out.Attempts++
		out.Revocation = c.v.online.Resolve(ctx, c.pool, cert, issuer)
	}

	if c.hasOff && (out.Revocation == nil || c.v.policy.CrossCheckOffline) {
		out.Attempts++
		embedded := c.offline.Resolve(ctx, c.pool, cert, issuer)
		switch {
		case out.Revocation == nil:
			out.Revocation = embedded
		case embedded != nil:
			out.Embedded = embedded
			if embedded.Status() != out.Revocation.Status() {
				cert.AddNote("embedded %s reports %s but online %s reports %s; keeping the online answer",
					embedded.Kind(), embedded.Status(), out.Revocation.Kind(), out.Revocation.Status())
				c.v.metrics.RevocationChecked(embedded.Kind().String(), metrics.OutcomeContradiction)
			}
		}
	}

	out.Status = statusOf(out.Revocation)
	if out.Revocation == nil {
		cert.AddNote("no revocation data found")
	}
	c.accept(out.Revocation)
	c.accept(out.Embedded)
}

func (c *ValidationContext) accept(rev token.RevocationToken) {
	if rev == nil || c.revIDs[rev.ID()] {
		return
	}
	c.revIDs[rev.ID()] = true
	c.revs = append(c.revs, rev)
	if c.v.policy.ClimbRevocationSigners {
		c.push(rev)
	}
}

func (c *ValidationContext) validationTime() time.Time {
	if t := c.v.policy.ValidationTime; !t.IsZero() {
		return t
	}
	return time.Now()
}

// expiredCheckAllowed reports whether revocation data is still published for
// an expired cert: the issuer carries expiredCertsOnCRL, or the trust
// service above it keeps revocation info for certificates expired after the
// declared date.
func (c *ValidationContext) expiredCheckAllowed(cert, issuer *token.CertificateToken) bool {
	if _, ok := issuer.ExpiredCertsOnCRL(); ok {
		return true
	}
	notAfter := cert.Certificate().NotAfter
	for _, anchor := range c.Chain(issuer) {
		if !anchor.IsTrusted() {
			continue
		}
		for _, svc := range anchor.Services() {
			if d := svc.ExpiredCertsRevocationInfo; !d.IsZero() && d.Before(notAfter) {
				return true
			}
		}
	}
	return false
}

// ProcessedCertificates returns every certificate the run visited, in
// discovery order, each once.
func (c *ValidationContext) ProcessedCertificates() []*token.CertificateToken {
	return append([]*token.CertificateToken(nil), c.certs...)
}

// ProcessedRevocations returns the accepted CRL and OCSP tokens.
func (c *ValidationContext) ProcessedRevocations() []token.RevocationToken {
	return append([]token.RevocationToken(nil), c.revs...)
}

// ProcessedTimestamps returns the timestamps walked by ValidateSignature.
func (c *ValidationContext) ProcessedTimestamps() []*token.TimestampToken {
	return append([]*token.TimestampToken(nil), c.timestamps...)
}

// Outcome returns the outcome recorded for cert, or nil when the run did not
// reach it.
func (c *ValidationContext) Outcome(cert *token.CertificateToken) *Outcome {
	return c.outcomes[cert]
}

// Chain follows cached issuers from cert up to a self-signed certificate, a
// missing issuer, or a repeat.
func (c *ValidationContext) Chain(cert *token.CertificateToken) []*token.CertificateToken {
	var chain []*token.CertificateToken
	seen := make(map[*token.CertificateToken]bool)
	for cur := cert; cur != nil && !seen[cur]; cur = cur.Issuer() {
		seen[cur] = true
		chain = append(chain, cur)
		if cur.IsSelfSigned() {
			break
		}
	}
	return chain
}

// ChainComplete reports whether the chain of cert ends at a trust anchor.
func (c *ValidationContext) ChainComplete(cert *token.CertificateToken) bool {
	chain := c.Chain(cert)
	return len(chain) > 0 && chain[len(chain)-1].IsTrusted()
}

// ChainValid reports whether the chain of cert is complete and no certificate
// on it is revoked.
func (c *ValidationContext) ChainValid(cert *token.CertificateToken) bool {
	if !c.ChainComplete(cert) {
		return false
	}
	for _, tok := range c.Chain(cert) {
		if out := c.Outcome(tok); out != nil && out.Status == StatusRevoked {
			return false
		}
	}
	return true
}

// ValidateAll validates sigs with independent contexts, at most limit at a
// time (no limit when limit <= 0). Results are in the order of sigs.
//
// Contexts share the verifier's base pool and caches; nothing else is shared.
func ValidateAll(ctx context.Context, v *Verifier, sigs []signature.AdvancedSignature, limit int) ([]*ValidationContext, error) {
	if v == nil {
		return nil, ErrNilVerifier
	}
	out := make([]*ValidationContext, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, sig := range sigs {
		g.Go(func() error {
			vc, err := NewSignatureContext(v, sig)
			if err != nil {
				return fmt.Errorf("signature %d: %w", i, err)
			}
			out[i] = vc
			if _, err := vc.ValidateSignature(gctx); err != nil {
				return fmt.Errorf("signature %d: %w", i, err)
			}
			return nil
		})
	}
	return out, g.Wait()
}
