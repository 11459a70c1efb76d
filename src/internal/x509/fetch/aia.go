// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package fetch

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"

	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
)

// ErrNoIssuerURL is returned when a certificate carries no usable caIssuers URL.
var ErrNoIssuerURL = errors.New("fetch: certificate has no http(s) caIssuers URL")

// AIAFetcher retrieves issuer certificates named by the Authority
// Information Access extension.
type AIAFetcher struct {
	loader *Loader
	codec  *x509certs.Codec
}

// NewAIAFetcher creates a fetcher downloading through loader.
func NewAIAFetcher(loader *Loader) *AIAFetcher {
	return &AIAFetcher{loader: loader, codec: x509certs.New()}
}

// FetchIssuers downloads every http(s) caIssuers URL of cert and decodes the
// responses as DER, PEM or PKCS#7 certs-only bundles.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cert: Certificate whose issuer is wanted
//
// Returns:
//   - []*x509.Certificate: Candidates in URL order; the caller verifies them
//   - error: Joined per-URL failures, only when no candidate was decoded
func (f *AIAFetcher) FetchIssuers(ctx context.Context, cert *x509.Certificate) ([]*x509.Certificate, error) {
	var (
		found []*x509.Certificate
		errs  []error
		tried bool
	)

	for _, raw := range cert.IssuingCertificateURL {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		tried = true

		data, err := f.loader.Get(ctx, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		certs, err := f.codec.DecodeCertificates(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch: decode %s: %w", raw, err))
			continue
		}
		found = append(found, certs...)
	}

	if len(found) > 0 {
		return found, nil
	}
	if !tried {
		return nil, ErrNoIssuerURL
	}
	return nil, errors.Join(errs...)
}
