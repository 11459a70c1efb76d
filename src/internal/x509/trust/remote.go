// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package trust

import (
	"context"
	"fmt"
	"sync"

	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// BundleSource is a [RemoteCertificateSource] backed by a certificate bundle
// (PEM or PKCS#7) published at a URL. The bundle is downloaded on the first
// lookup; a failed download is retried on the next lookup.
//
// Certificates are tagged [token.SourceRemote] and count as trust anchors.
type BundleSource struct {
	loader *fetch.Loader
	url    string

	mu   sync.Mutex
	list *ListSource
}

// NewBundleSource creates a lazy source for the bundle at url.
func NewBundleSource(loader *fetch.Loader, url string) *BundleSource {
	return &BundleSource{loader: loader, url: url}
}

// Get returns the bundle entries whose subject matches subjectName.
func (b *BundleSource) Get(ctx context.Context, subjectName []byte) ([]CertificateAndContext, error) {
	list, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return list.CertificatesBySubject(token.CanonicalName(subjectName)), nil
}

// Loaded reports whether the bundle has been downloaded.
func (b *BundleSource) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.list != nil
}

func (b *BundleSource) load(ctx context.Context) (*ListSource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.list != nil {
		return b.list, nil
	}

	data, err := b.loader.Get(ctx, b.url)
	if err != nil {
		return nil, fmt.Errorf("trust: remote bundle: %w", err)
	}
	certs, err := x509certs.New().DecodeCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("trust: remote bundle %s: %w", b.url, err)
	}
	b.list = NewListSource(token.SourceRemote, certs...)
	return b.list, nil
}
