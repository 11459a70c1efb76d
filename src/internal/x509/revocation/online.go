// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/ocsp"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/metrics"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

// maxGETRequestLength is the largest encoded OCSP request sent with GET.
const maxGETRequestLength = 255

// httpURLs returns the http and https entries of urls.
func httpURLs(urls []string) []string {
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// OnlineCRLSource downloads CRLs from the distribution points of a
// certificate.
//
// Thread Safety: Safe for concurrent use.
type OnlineCRLSource struct {
	loader  *fetch.Loader
	cache   *ResponseCache
	metrics metrics.Recorder
	log     logger.Logger
}

// NewOnlineCRLSource creates a source downloading through loader. A nil cache
// disables caching, a nil recorder discards metrics.
func NewOnlineCRLSource(loader *fetch.Loader, cache *ResponseCache, rec metrics.Recorder, log logger.Logger) *OnlineCRLSource {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &OnlineCRLSource{
		loader:  loader,
		cache:   cache,
		metrics: rec,
		log:     logger.WithComponent(log, "crl"),
	}
}

// Cache returns the response cache, which may be nil.
func (s *OnlineCRLSource) Cache() *ResponseCache { return s.cache }

// FindCRL tries each http(s) distribution point of cert in order and returns
// the first CRL issued under the name of cert's issuer.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cert: Certificate whose status is wanted
//
// Returns:
//   - *token.CRLToken: CRL evaluated for cert, or nil when cert names no
//     http(s) distribution point
//   - error: Joined per-URL failures when no CRL could be used
func (s *OnlineCRLSource) FindCRL(ctx context.Context, cert, _ *x509.Certificate) (*token.CRLToken, error) {
	if cert == nil {
		return nil, token.ErrNilCertificate
	}

	want := token.CanonicalName(cert.RawIssuer)
	var errs []error
	for _, u := range httpURLs(cert.CRLDistributionPoints) {
		raw, cached := s.lookup(u)
		if !cached {
			data, err := s.loader.Get(ctx, u)
			s.metrics.FetchCompleted("crl", err == nil)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			raw = data
		}

		tok, err := token.ParseCRL(raw, cert, u, token.OriginOnline)
		if err != nil {
			errs = append(errs, fmt.Errorf("revocation: %s: %w", u, err))
			continue
		}
		if token.CanonicalName(tok.IssuerName()) != want {
			errs = append(errs, fmt.Errorf("revocation: %s: CRL issuer does not match certificate issuer", u))
			continue
		}
		if !cached && s.cache != nil {
			s.cache.Set(u, raw, tok.NextUpdate())
		}
		s.log.Printf("CRL %s: %s (cached=%t)", u, tok.Status(), cached)
		return tok, nil
	}
	return nil, errors.Join(errs...)
}

func (s *OnlineCRLSource) lookup(u string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(u)
}

// OnlineOCSPSource queries the OCSP responders named by a certificate.
//
// Thread Safety: Safe for concurrent use.
type OnlineOCSPSource struct {
	loader  *fetch.Loader
	hash    crypto.Hash
	metrics metrics.Recorder
	log     logger.Logger
}

// NewOnlineOCSPSource creates a source querying through loader. Requests use
// SHA-1 certIDs, the only algorithm responders are required to support.
func NewOnlineOCSPSource(loader *fetch.Loader, rec metrics.Recorder, log logger.Logger) *OnlineOCSPSource {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &OnlineOCSPSource{
		loader:  loader,
		hash:    crypto.SHA1,
		metrics: rec,
		log:     logger.WithComponent(log, "ocsp"),
	}
}

// GetOCSPResponse asks each http(s) responder of cert in order. The request
// is POSTed; when that fails and the encoded request is short enough, it is
// retried with GET.
//
// Returns nil without error when cert names no http(s) responder.
func (s *OnlineOCSPSource) GetOCSPResponse(ctx context.Context, cert, issuer *x509.Certificate) (*token.OCSPToken, error) {
	if cert == nil || issuer == nil {
		return nil, token.ErrNilCertificate
	}

	req, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: s.hash})
	if err != nil {
		return nil, fmt.Errorf("revocation: build OCSP request: %w", err)
	}

	var errs []error
	for _, u := range httpURLs(cert.OCSPServer) {
		raw, err := s.query(ctx, u, req)
		s.metrics.FetchCompleted("ocsp", err == nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tok, err := token.ParseOCSP(raw, cert, issuer, u, token.OriginOnline)
		if err != nil {
			errs = append(errs, fmt.Errorf("revocation: %s: %w", u, err))
			continue
		}
		s.log.Printf("OCSP %s: %s", u, tok.Status())
		return tok, nil
	}
	return nil, errors.Join(errs...)
}

func (s *OnlineOCSPSource) query(ctx context.Context, u string, req []byte) ([]byte, error) {
	raw, postErr := s.loader.Post(ctx, u, "application/ocsp-request", req)
	if postErr == nil {
		return raw, nil
	}

	encoded := url.PathEscape(base64.StdEncoding.EncodeToString(req))
	if len(encoded) > maxGETRequestLength || ctx.Err() != nil {
		return nil, postErr
	}
	raw, getErr := s.loader.Get(ctx, strings.TrimSuffix(u, "/")+"/"+encoded)
	if getErr != nil {
		return nil, errors.Join(postErr, getErr)
	}
	return raw, nil
}
