// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package fetch downloads the network artifacts a validation run needs:
// issuer certificates from AIA caIssuers URLs, CRLs from distribution points,
// OCSP responses and remote trust bundles.
//
// All traffic goes through a [Loader], which retries transient failures with
// [retryablehttp], throttles requests with a token bucket, collapses
// concurrent GETs of the same URL and bounds response bodies.
//
// [retryablehttp]: https://pkg.go.dev/github.com/hashicorp/go-retryablehttp
package fetch
